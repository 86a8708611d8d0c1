package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbfarm/swarm/internal/platform/ratelimit"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestClient_QueryReturnsFirstChoiceContent(t *testing.T) {
	srv := chatServer(t, "the venue looks clean")
	defer srv.Close()

	c := New(Config{Name: "gpt-4o", Weight: 1.0, BaseURL: srv.URL})
	content, _, err := c.Query(context.Background(), "prompt", "system", "gpt-4o", 256)
	require.NoError(t, err)
	assert.Equal(t, "the venue looks clean", content)
	assert.Equal(t, "gpt-4o", c.Name())
	assert.Equal(t, 1.0, c.Weight())
}

func TestClient_QueryMissingContentErrors(t *testing.T) {
	srv := chatServer(t, "")
	defer srv.Close()

	c := New(Config{Name: "gpt-4o", BaseURL: srv.URL})
	_, _, err := c.Query(context.Background(), "prompt", "system", "gpt-4o", 256)
	require.Error(t, err)
}

func TestClient_RecommendParsesHecateRecommendation(t *testing.T) {
	srv := chatServer(t, `{"decision": true, "reasoning": "liquidity is deep enough", "confidence": 0.82}`)
	defer srv.Close()

	c := New(Config{Name: "hecate", BaseURL: srv.URL})
	rec, err := c.Recommend(context.Background(), uuid.New(), "trade_approval", map[string]interface{}{"venue": "raydium"})
	require.NoError(t, err)
	assert.True(t, rec.Decision)
	assert.Equal(t, "liquidity is deep enough", rec.Reasoning)
	assert.InDelta(t, 0.82, rec.Confidence, 1e-9)
}

func TestClient_RecommendNoJSONInResponseErrors(t *testing.T) {
	srv := chatServer(t, "I cannot provide a structured answer right now.")
	defer srv.Close()

	c := New(Config{Name: "hecate", BaseURL: srv.URL})
	_, err := c.Recommend(context.Background(), uuid.New(), "trade_approval", map[string]interface{}{})
	require.Error(t, err)
}

func TestClient_QueryNonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{Name: "gpt-4o", BaseURL: srv.URL})
	_, _, err := c.Query(context.Background(), "prompt", "system", "gpt-4o", 256)
	require.Error(t, err)
}

func TestClient_QueryHonorsRateLimitCancellation(t *testing.T) {
	srv := chatServer(t, "unused")
	defer srv.Close()

	c := New(Config{Name: "gpt-4o", BaseURL: srv.URL, RateLimit: ratelimit.Config{RequestsPerSecond: 1, Burst: 1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Query(ctx, "prompt", "system", "gpt-4o", 256)
	require.Error(t, err)
}
