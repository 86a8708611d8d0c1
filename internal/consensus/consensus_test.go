package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVotingEngine_CalculateConsensus_ApprovesOnAgreementAndConfidence(t *testing.T) {
	e := DefaultVotingEngine()
	votes := []Vote{
		{Provider: "claude-3.5-sonnet", Approved: true, Confidence: 0.85},
		{Provider: "gpt-4o", Approved: true, Confidence: 0.70},
		{Provider: "gemini-1.5-pro", Approved: false, Confidence: 0.40},
	}
	weights := map[string]float64{"claude-3.5-sonnet": 1.0, "gpt-4o": 1.0, "gemini-1.5-pro": 1.0}

	result := e.CalculateConsensus(votes, weights)

	assert.True(t, result.Approved)
	assert.InDelta(t, 2.0/3.0, result.AgreementScore, 1e-9)
	assert.Greater(t, result.AgreementScore, 0.5)
	assert.Contains(t, result.ReasoningSummary, "APPROVED")
	assert.Contains(t, result.ReasoningSummary, "2/3")
}

func TestVotingEngine_CalculateConsensus_RejectsBelowAgreementThreshold(t *testing.T) {
	e := DefaultVotingEngine()
	votes := []Vote{
		{Provider: "a", Approved: false, Confidence: 0.9},
		{Provider: "b", Approved: true, Confidence: 0.9},
	}
	weights := map[string]float64{"a": 2.0, "b": 1.0}

	result := e.CalculateConsensus(votes, weights)

	assert.False(t, result.Approved)
	assert.InDelta(t, 1.0/3.0, result.AgreementScore, 1e-9)
	assert.Contains(t, result.ReasoningSummary, "REJECTED")
}

func TestVotingEngine_CalculateConsensus_NoVotes(t *testing.T) {
	e := DefaultVotingEngine()
	result := e.CalculateConsensus(nil, nil)

	assert.False(t, result.Approved)
	assert.Equal(t, "No votes received", result.ReasoningSummary)
}

func TestVotingEngine_CalculateConsensus_WeightedConfidenceGatesApproval(t *testing.T) {
	e := NewVotingEngine(0.5, 0.9)
	votes := []Vote{
		{Provider: "a", Approved: true, Confidence: 0.6},
		{Provider: "b", Approved: true, Confidence: 0.6},
	}
	weights := map[string]float64{"a": 1.0, "b": 1.0}

	result := e.CalculateConsensus(votes, weights)

	assert.Equal(t, 1.0, result.AgreementScore)
	assert.False(t, result.Approved, "weighted confidence 0.6 must fail a 0.9 threshold even at full agreement")
}

func TestVotingEngine_TotalLatencyIsMaxNotSum(t *testing.T) {
	e := DefaultVotingEngine()
	votes := []Vote{
		{Provider: "a", Approved: true, Confidence: 0.9, LatencyMs: 120},
		{Provider: "b", Approved: true, Confidence: 0.9, LatencyMs: 450},
	}
	weights := map[string]float64{"a": 1.0, "b": 1.0}

	result := e.CalculateConsensus(votes, weights)
	assert.EqualValues(t, 450, result.TotalLatencyMs)
}

func TestExtractBalancedJSON_IgnoresProseBeforeAndAfter(t *testing.T) {
	content := `Sure, here is my analysis: {"approved": true, "confidence": 0.8, "reasoning": "looks {solid}"} Let me know if you need more.`
	got := ExtractBalancedJSON(content)
	assert.Equal(t, `{"approved": true, "confidence": 0.8, "reasoning": "looks {solid}"}`, got)
}

func TestExtractBalancedJSON_NoOpeningBrace(t *testing.T) {
	assert.Equal(t, "", ExtractBalancedJSON("no json here"))
}

func TestExtractBalancedJSON_UnbalancedNeverCloses(t *testing.T) {
	assert.Equal(t, "", ExtractBalancedJSON(`prose then {"approved": true`))
}

func TestExtractBalancedJSON_NestedBracesInReasoningDoNotTruncateEarly(t *testing.T) {
	content := `{"approved": false, "reasoning": "risk map {a: 1, b: 2} looks bad"} trailing text with a } stray brace`
	got := ExtractBalancedJSON(content)
	assert.Equal(t, `{"approved": false, "reasoning": "risk map {a: 1, b: 2} looks bad"}`, got)
}

func TestParseTradeApproval_MalformedIsAbstentionNotApproval(t *testing.T) {
	_, ok := ParseTradeApproval("the model refused to answer in JSON")
	assert.False(t, ok)

	_, ok = ParseTradeApproval(`{"approved": tru`)
	assert.False(t, ok)
}

func TestParseTradeApproval_ValidReply(t *testing.T) {
	v, ok := ParseTradeApproval(`prefix {"approved": true, "confidence": 0.77, "reasoning": "clear edge", "risk_assessment": "low"} suffix`)
	require.True(t, ok)
	assert.True(t, v.Approved)
	assert.InDelta(t, 0.77, v.Confidence, 1e-9)
	assert.Equal(t, "low", v.RiskAssessment)
}

type fakeProvider struct {
	name    string
	weight  float64
	content string
	err     error
	delay   time.Duration
}

func (f *fakeProvider) Name() string   { return f.name }
func (f *fakeProvider) Weight() float64 { return f.weight }
func (f *fakeProvider) Query(ctx context.Context, prompt, system, model string, maxTokens int) (string, time.Duration, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.content, f.delay, nil
}

func TestQueryAll_FewerThanTwoRespondersFails(t *testing.T) {
	providers := []ConsensusProvider{
		&fakeProvider{name: "a", weight: 1.0, content: `{"approved": true, "confidence": 0.9}`},
		&fakeProvider{name: "b", weight: 1.0, err: errors.New("timeout")},
		&fakeProvider{name: "c", weight: 1.0, content: "not json at all"},
	}

	votes, _, err := QueryAll(context.Background(), providers, "prompt", "system", "model", 512)
	require.Error(t, err)
	assert.Len(t, votes, 1)
}

func TestQueryAll_AggregatesSuccessfulVotesOnly(t *testing.T) {
	providers := []ConsensusProvider{
		&fakeProvider{name: "a", weight: 1.0, content: `{"approved": true, "confidence": 0.9}`},
		&fakeProvider{name: "b", weight: 2.0, content: `{"approved": true, "confidence": 0.8}`},
	}

	votes, weights, err := QueryAll(context.Background(), providers, "prompt", "system", "model", 512)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, 2.0, weights["b"])

	e := DefaultVotingEngine()
	result := e.CalculateConsensus(votes, weights)
	assert.True(t, result.Approved)
}

func TestGenerateTradePrompt_IncludesOpportunityContext(t *testing.T) {
	prompt := GenerateTradePrompt("mint=ABC123 profit_bps=250")
	assert.Contains(t, prompt, "mint=ABC123 profit_bps=250")
	assert.Contains(t, prompt, "recommended_position_size")
}
