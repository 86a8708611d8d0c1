// Package consensus implements the Consensus Oracle (spec.md §4.H): a
// weighted vote across LLM providers evaluating a trade opportunity.
// Aggregation formulas are ground-truthed on
// original_source/.../consensus/voting.rs; prompt construction follows its
// style (and original_source/.../agents/hecate_notifier.rs's prompt-
// building conventions) rewritten in Go idiom, not translated line by
// line. JSON extraction improves on the original's naive first-`{`/
// last-`}` slice with a genuine balanced-brace scan (spec.md §9's explicit
// design note).
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProviderTimeout is the per-provider query deadline (spec.md §4.H).
const ProviderTimeout = 30 * time.Second

// minProviders is spec.md §4.H's floor: "if fewer than 2 providers
// returned, consensus fails."
const minProviders = 2

// ConsensusProvider is one weighted LLM voter (spec.md §4.H).
type ConsensusProvider interface {
	Name() string
	Weight() float64
	Query(ctx context.Context, prompt, system, model string, maxTokens int) (content string, latency time.Duration, err error)
}

// Vote is one provider's parsed trade-approval response.
type Vote struct {
	Provider            string
	Approved            bool
	Confidence          float64
	Reasoning           string
	RiskAssessment      string
	RecommendedPosition *float64
	LatencyMs           int64
}

// Result is the aggregated outcome of VotingEngine.CalculateConsensus.
type Result struct {
	Approved           bool
	AgreementScore     float64
	WeightedConfidence float64
	Votes              []Vote
	ReasoningSummary   string
	TotalLatencyMs     int64
}

// VotingEngine aggregates Votes per spec.md §4.H's weighted formulas.
type VotingEngine struct {
	minAgreement          float64
	minWeightedConfidence float64
}

// NewVotingEngine clamps both thresholds to [0,1], matching
// original_source/.../consensus/voting.rs's VotingEngine::new.
func NewVotingEngine(minAgreement, minWeightedConfidence float64) *VotingEngine {
	return &VotingEngine{
		minAgreement:          clamp01(minAgreement),
		minWeightedConfidence: clamp01(minWeightedConfidence),
	}
}

// DefaultVotingEngine matches spec.md §6's defaults (min_agreement=0.5,
// min_weighted_confidence=0.6).
func DefaultVotingEngine() *VotingEngine {
	return NewVotingEngine(0.5, 0.6)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// CalculateConsensus implements spec.md §4.H's aggregation: agreement
// score as weighted-approve-fraction, weighted confidence as a weight-
// normalized average, final approval requiring both thresholds.
func (e *VotingEngine) CalculateConsensus(votes []Vote, weights map[string]float64) Result {
	if len(votes) == 0 {
		return Result{ReasoningSummary: "No votes received"}
	}

	var totalWeight, weightedApprove, weightedConfidenceSum float64
	var maxLatency int64

	for _, v := range votes {
		w := weights[v.Provider]
		totalWeight += w
		if v.Approved {
			weightedApprove += w
		}
		weightedConfidenceSum += v.Confidence * w
		if v.LatencyMs > maxLatency {
			maxLatency = v.LatencyMs
		}
	}

	if totalWeight == 0 {
		return Result{ReasoningSummary: "No provider weight available", Votes: votes}
	}

	agreementScore := weightedApprove / totalWeight
	weightedConfidence := weightedConfidenceSum / totalWeight
	approved := agreementScore >= e.minAgreement && weightedConfidence >= e.minWeightedConfidence

	return Result{
		Approved:           approved,
		AgreementScore:     agreementScore,
		WeightedConfidence: weightedConfidence,
		Votes:              votes,
		ReasoningSummary:   summarizeReasoning(votes, approved),
		TotalLatencyMs:     maxLatency,
	}
}

func summarizeReasoning(votes []Vote, approved bool) string {
	approveCount := 0
	for _, v := range votes {
		if v.Approved {
			approveCount++
		}
	}

	decision := "REJECTED"
	if approved {
		decision = "APPROVED"
	}

	limit := 3
	if len(votes) < limit {
		limit = len(votes)
	}
	reasons := make([]string, 0, limit)
	for _, v := range votes[:limit] {
		status := "✗"
		if v.Approved {
			status = "✓"
		}
		reasons = append(reasons, fmt.Sprintf("%s %s (%.0f%%): %s",
			status, shortProviderName(v.Provider), v.Confidence*100.0, truncate(v.Reasoning, 100)))
	}

	return fmt.Sprintf("%s: %d/%d models approved. %s", decision, approveCount, len(votes), strings.Join(reasons, " | "))
}

func shortProviderName(name string) string {
	parts := strings.Split(name, "/")
	return parts[len(parts)-1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ExtractBalancedJSON scans content for the first balanced `{...}` block
// (tracking brace depth, ignoring braces inside string literals) and
// returns it, or "" if none closes. This replaces
// original_source/.../consensus/voting.rs's naive
// content.find('{')/content.rfind('}') slice, which breaks whenever a
// model's reasoning prose itself contains braces after the JSON object
// (spec.md §9's explicit improvement).
func ExtractBalancedJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(content); i++ {
		c := content[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return ""
}

// ParseTradeApproval extracts and unmarshals a provider's JSON reply,
// returning ok=false for any malformed response (spec.md §4.H: "Malformed
// replies count as abstention, not approval").
func ParseTradeApproval(content string) (Vote, bool) {
	jsonStr := ExtractBalancedJSON(content)
	if jsonStr == "" {
		return Vote{}, false
	}

	var parsed struct {
		Approved                 bool     `json:"approved"`
		Confidence               float64  `json:"confidence"`
		Reasoning                string   `json:"reasoning"`
		RiskAssessment           string   `json:"risk_assessment"`
		RecommendedPositionSize  *float64 `json:"recommended_position_size"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return Vote{}, false
	}

	return Vote{
		Approved:            parsed.Approved,
		Confidence:          parsed.Confidence,
		Reasoning:           parsed.Reasoning,
		RiskAssessment:      parsed.RiskAssessment,
		RecommendedPosition: parsed.RecommendedPositionSize,
	}, true
}

// GenerateTradePrompt builds the evaluation prompt sent to every provider,
// styled after original_source/.../consensus/voting.rs's
// generate_trade_prompt and .../agents/hecate_notifier.rs's prompt
// conventions (profit-first framing, strict JSON-only reply contract).
func GenerateTradePrompt(edgeContext string) string {
	return fmt.Sprintf(`You are an autonomous trading agent on a Solana-class chain. Your objective is to maximize net profit in SOL, after settling any acquired token back to base currency.

## Opportunity
%s

Respond with a JSON object in exactly this shape:
{
    "approved": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "explain the expected profit in SOL after settlement",
    "risk_assessment": "low/medium/high with explanation",
    "recommended_position_size": 0.0-1.0 or null
}

Evaluate, in priority order: net profit after settlement, settlement risk, risk-adjusted return, execution probability, slippage/fees, rug/scam risk. Only approve trades with clear, quantifiable profit. When in doubt, reject.`, edgeContext)
}

// QueryAll sends the caller's prompt (typically built by
// GenerateTradePrompt) to every enabled provider in parallel, each bounded by ProviderTimeout, and returns the votes from
// providers that answered with a parseable reply. Providers that error,
// time out, or reply with malformed JSON are silently omitted — they do
// not enter CalculateConsensus's denominator (spec.md §4.H).
func QueryAll(ctx context.Context, providers []ConsensusProvider, prompt, system, model string, maxTokens int) ([]Vote, map[string]float64, error) {
	type outcome struct {
		vote   Vote
		weight float64
		ok     bool
	}

	results := make([]outcome, len(providers))
	var wg sync.WaitGroup

	for i, p := range providers {
		wg.Add(1)
		go func(i int, p ConsensusProvider) {
			defer wg.Done()

			qctx, cancel := context.WithTimeout(ctx, ProviderTimeout)
			defer cancel()

			content, latency, err := p.Query(qctx, prompt, system, model, maxTokens)
			if err != nil {
				return
			}

			vote, ok := ParseTradeApproval(content)
			if !ok {
				return
			}
			vote.Provider = p.Name()
			vote.LatencyMs = latency.Milliseconds()

			results[i] = outcome{vote: vote, weight: p.Weight(), ok: true}
		}(i, p)
	}
	wg.Wait()

	votes := make([]Vote, 0, len(providers))
	weights := make(map[string]float64, len(providers))
	for _, r := range results {
		if !r.ok {
			continue
		}
		votes = append(votes, r.vote)
		weights[r.vote.Provider] = r.weight
	}

	sort.SliceStable(votes, func(i, j int) bool { return votes[i].Provider < votes[j].Provider })

	if len(votes) < minProviders {
		return votes, weights, fmt.Errorf("consensus: only %d of %d providers responded, need at least %d", len(votes), len(providers), minProviders)
	}

	return votes, weights, nil
}
