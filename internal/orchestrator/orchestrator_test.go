package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/approvalmanager"
	"github.com/arbfarm/swarm/internal/consensus"
	"github.com/arbfarm/swarm/internal/domain/approval"
	domainconsensus "github.com/arbfarm/swarm/internal/domain/consensus"
	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

type fakeEventRepo struct{}

func (fakeEventRepo) SaveEvent(ctx context.Context, evt event.ArbEvent) error { return nil }
func (fakeEventRepo) EventsByTopic(ctx context.Context, topicPattern string, limit int) ([]event.ArbEvent, error) {
	return nil, nil
}
func (fakeEventRepo) EventsSince(ctx context.Context, eventID string, topics []string, limit int) ([]event.ArbEvent, error) {
	return nil, nil
}

type fakeProvider struct {
	name     string
	weight   float64
	approved bool
}

func (f fakeProvider) Name() string   { return f.name }
func (f fakeProvider) Weight() float64 { return f.weight }
func (f fakeProvider) Query(ctx context.Context, prompt, system, model string, maxTokens int) (string, time.Duration, error) {
	decision := "false"
	if f.approved {
		decision = "true"
	}
	content := `{"approved": ` + decision + `, "confidence": 0.9, "reasoning": "looks fine", "risk_assessment": "low"}`
	return content, 5 * time.Millisecond, nil
}

type fakeConsensusRepo struct {
	saved []domainconsensus.Record
}

func (f *fakeConsensusRepo) Save(ctx context.Context, r domainconsensus.Record) error {
	f.saved = append(f.saved, r)
	return nil
}
func (f *fakeConsensusRepo) ByEdge(ctx context.Context, edgeID uuid.UUID) ([]domainconsensus.Record, error) {
	return nil, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEdgeApprovalBridge_NoProvidersCreatesApprovalDirectly(t *testing.T) {
	bus := eventbus.New(fakeEventRepo{}, logging.New("test", "error", "text"))
	manager := approvalmanager.New(bus, logging.New("test", "error", "text"), approval.DefaultGlobalExecutionConfig())
	bridge := New(bus, logging.New("test", "error", "text"), manager, consensus.DefaultVotingEngine(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge.Start(ctx)

	ed := edge.Edge{ID: uuid.New(), TokenMint: "mint1", RiskScore: 50, ExpiresAt: time.Now().Add(time.Hour)}
	evt, err := event.New("edge.detected", event.SystemSource(), event.TopicEdgeDetected, ed)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool { return manager.PendingCount() == 1 })
}

func TestEdgeApprovalBridge_ConsensusRejectsSkipsApproval(t *testing.T) {
	bus := eventbus.New(fakeEventRepo{}, logging.New("test", "error", "text"))
	manager := approvalmanager.New(bus, logging.New("test", "error", "text"), approval.DefaultGlobalExecutionConfig())
	records := &fakeConsensusRepo{}
	providers := []consensus.ConsensusProvider{
		fakeProvider{name: "a", weight: 1, approved: false},
		fakeProvider{name: "b", weight: 1, approved: false},
	}
	bridge := New(bus, logging.New("test", "error", "text"), manager, consensus.DefaultVotingEngine(), providers, records)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge.Start(ctx)

	ed := edge.Edge{ID: uuid.New(), TokenMint: "mint1", RiskScore: 50, ExpiresAt: time.Now().Add(time.Hour)}
	evt, err := event.New("edge.detected", event.SystemSource(), event.TopicEdgeDetected, ed)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool { return len(records.saved) == 1 })
	if manager.PendingCount() != 0 {
		t.Errorf("expected no pending approvals after consensus rejection, got %d", manager.PendingCount())
	}
	if records.saved[0].Approved {
		t.Error("expected persisted consensus record to be rejected")
	}
}

