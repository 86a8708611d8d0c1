// Package llmclient is the one concrete HTTP transport consensus's
// ConsensusProvider and approvalmanager's HecateClient collaborators are
// meant to be wired to (both packages explicitly leave the transport to
// "the concrete implementation wired in cmd/arbfarm" — see
// internal/approvalmanager/hecate.go's HecateClient doc comment). Grounded
// on internal/execution/blockhash.go's rpcCall shape: a minimal JSON POST
// with gjson-based response extraction, here against an OpenAI-chat-
// completions-shaped endpoint so any compatible provider (including
// self-hosted ones) can be pointed at it via base URL alone.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/arbfarm/swarm/internal/consensus"
	"github.com/arbfarm/swarm/internal/domain/approval"
	"github.com/arbfarm/swarm/internal/platform/apperr"
	"github.com/arbfarm/swarm/internal/platform/ratelimit"
)

// Client calls one OpenAI-chat-completions-compatible provider.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	apiKey     string
	name       string
	weight     float64
}

// Config names and weights one provider (spec.md §4.H's per-provider
// weighted vote).
type Config struct {
	Name    string
	Weight  float64
	BaseURL string // e.g. "https://api.openai.com/v1" or a self-hosted-compatible equivalent
	APIKey  string

	// RateLimit throttles outbound calls to this provider. Zero value
	// falls back to ratelimit.DefaultConfig, since an unbounded consensus
	// fan-out (internal/consensus.QueryAll dispatches to every configured
	// provider on every edge) could otherwise trip a provider's own rate
	// limiting.
	RateLimit ratelimit.Config
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	limitCfg := cfg.RateLimit
	if limitCfg.RequestsPerSecond <= 0 {
		limitCfg = ratelimit.DefaultConfig()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(limitCfg),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		name:       cfg.Name,
		weight:     cfg.Weight,
	}
}

// Name satisfies consensus.ConsensusProvider.
func (c *Client) Name() string { return c.name }

// Weight satisfies consensus.ConsensusProvider.
func (c *Client) Weight() float64 { return c.weight }

// Query satisfies consensus.ConsensusProvider: it posts a system+user
// message pair to /chat/completions and returns the first choice's
// content.
func (c *Client) Query(ctx context.Context, prompt, system, model string, maxTokens int) (string, time.Duration, error) {
	start := time.Now()

	reqBody, err := json.Marshal(map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": 0.2,
	})
	if err != nil {
		return "", time.Since(start), apperr.Wrap(apperr.CodeSerialization, "failed to encode chat completion request", err)
	}

	body, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", time.Since(start), err
	}

	content := gjson.GetBytes(body, "choices.0.message.content").String()
	if content == "" {
		return "", time.Since(start), apperr.New(apperr.CodeExternalAPI, "missing choices[0].message.content in chat completion response")
	}
	return content, time.Since(start), nil
}

// Recommend satisfies approvalmanager.HecateClient: it builds a single
// advisory-recommendation prompt from tradeContext and parses the
// response's balanced JSON object via consensus.ExtractBalancedJSON,
// mirroring how ParseTradeApproval parses a ConsensusProvider's reply.
func (c *Client) Recommend(ctx context.Context, approvalID uuid.UUID, approvalType string, tradeContext map[string]interface{}) (approval.HecateRecommendation, error) {
	contextJSON, err := json.Marshal(tradeContext)
	if err != nil {
		return approval.HecateRecommendation{}, apperr.Wrap(apperr.CodeSerialization, "failed to encode trade context", err)
	}

	prompt := fmt.Sprintf(
		"Approval %s (%s) is awaiting an advisory recommendation. Trade context: %s\n\n"+
			"Respond with a JSON object: {\"decision\": bool, \"reasoning\": string, \"confidence\": number between 0 and 1}.",
		approvalID.String(), approvalType, string(contextJSON),
	)

	content, _, err := c.Query(ctx, prompt, hecateSystemPrompt, "gpt-4o-mini", 512)
	if err != nil {
		return approval.HecateRecommendation{}, err
	}

	jsonStr := consensus.ExtractBalancedJSON(content)
	if jsonStr == "" {
		return approval.HecateRecommendation{}, apperr.New(apperr.CodeExternalAPI, "hecate response did not contain a JSON recommendation")
	}

	var parsed struct {
		Decision   bool    `json:"decision"`
		Reasoning  string  `json:"reasoning"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return approval.HecateRecommendation{}, apperr.Wrap(apperr.CodeSerialization, "failed to parse hecate recommendation", err)
	}

	return approval.HecateRecommendation{
		Decision:   parsed.Decision,
		Reasoning:  parsed.Reasoning,
		Confidence: parsed.Confidence,
	}, nil
}

const hecateSystemPrompt = "You are Hecate, an advisory risk reviewer for an autonomous trading swarm. " +
	"You do not execute trades; you only recommend whether a pending approval should proceed."

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(apperr.CodeTimeout, "rate limit wait cancelled", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExternalAPI, "failed to build chat completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExternalAPI, "chat completion request failed", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, apperr.Wrap(apperr.CodeExternalAPI, "failed to read chat completion response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.CodeExternalAPI, fmt.Sprintf("chat completion endpoint returned error status: %d", resp.StatusCode))
	}

	return buf.Bytes(), nil
}
