// Package approvalmanager implements the Approval Manager (spec.md §4.I):
// the Pending/Approved/Rejected/AutoApproved/Expired state machine gating
// every edge (and position exit) before it reaches the Executor.
package approvalmanager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/approval"
	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// JanitorInterval is the sweep cadence for expiring stale approvals
// (spec.md §4.I: "runs a janitor tick (every 10 s) to sweep expired").
const JanitorInterval = 10 * time.Second

// ErrBackpressure is returned when max_pending_approvals is already
// reached (spec.md §5: "creator of the edge receives a rate_limited
// reason").
var ErrBackpressure = fmt.Errorf("approval manager: max pending approvals reached")

// ErrNotFound is returned when an approval ID does not exist.
var ErrNotFound = fmt.Errorf("approval manager: approval not found")

// ErrNotPending is returned when a decision targets a non-Pending
// approval (already decided, auto-approved, or expired).
var ErrNotPending = fmt.Errorf("approval manager: approval is not pending")

// Manager owns the approval state machine.
type Manager struct {
	bus *eventbus.Bus
	log *logging.Logger
	cfg approval.GlobalExecutionConfig

	mu        sync.RWMutex
	approvals map[uuid.UUID]*approval.PendingApproval

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Manager under the given global execution config.
func New(bus *eventbus.Bus, log *logging.Logger, cfg approval.GlobalExecutionConfig) *Manager {
	return &Manager{
		bus:       bus,
		log:       log,
		cfg:       cfg,
		approvals: make(map[uuid.UUID]*approval.PendingApproval),
	}
}

// CreateApproval opens a new approval for ed, applying the auto-approve
// rule at creation time (spec.md §4.I). If the rule's six conditions all
// hold the approval is immediately AutoApproved; otherwise it starts
// Pending and, unless it is already terminal, a Hecate advisory request
// is published for an external notifier to pick up.
func (m *Manager) CreateApproval(ctx context.Context, ed edge.Edge, approvalType approval.Type, amountSol float64, confidence float64) (*approval.PendingApproval, error) {
	m.mu.Lock()
	if m.pendingCountLocked() >= m.cfg.MaxPendingApprovals {
		m.mu.Unlock()
		m.publish(ctx, event.TopicApprovalBackpressured, map[string]interface{}{
			"edge_id": ed.ID,
			"reason":  "rate_limited",
		})
		return nil, ErrBackpressure
	}

	profitBps := estimatedProfitBps(ed)
	a := &approval.PendingApproval{
		ID:                      uuid.New(),
		EdgeID:                  &ed.ID,
		ApprovalType:            approvalType,
		Status:                  approval.StatusPending,
		Atomicity:               ed.Atomicity,
		AmountSol:               amountSol,
		RiskScore:               ed.RiskScore,
		EstimatedProfitBps:      profitBps,
		EstimatedProfitLamports: ed.EstimatedProfitLamports,
		Confidence:              confidence,
		ExpiresAt:               time.Now().UTC().Add(m.cfg.DefaultApprovalTimeout),
	}

	if m.autoApproves(a) {
		a.Status = approval.StatusAutoApproved
	}

	m.approvals[a.ID] = a
	m.mu.Unlock()

	m.publish(ctx, event.TopicApprovalCreated, a)

	if a.Status == approval.StatusAutoApproved {
		m.publish(ctx, event.TopicApprovalAutoApproved, a)
	} else {
		m.publish(ctx, event.TopicApprovalHecateNotified, map[string]interface{}{
			"approval_id":   a.ID,
			"approval_type": a.ApprovalType,
			"context": map[string]interface{}{
				"amount_sol":                a.AmountSol,
				"risk_score":                a.RiskScore,
				"estimated_profit_bps":      a.EstimatedProfitBps,
				"confidence":                a.Confidence,
			},
		})
	}

	return a, nil
}

// autoApproves implements spec.md §4.I's exact conjunction: auto
// execution must be globally enabled, the edge must be fully atomic and
// atomic auto-approval allowed, and profit/risk/confidence/size must each
// clear their configured bound.
func (m *Manager) autoApproves(a *approval.PendingApproval) bool {
	return m.cfg.AutoExecutionEnabled &&
		a.Atomicity == edge.AtomicityFully && m.cfg.AutoApproveAtomic &&
		a.EstimatedProfitBps >= m.cfg.AutoApproveMinProfitBps &&
		a.RiskScore <= m.cfg.AutoApproveMaxRiskScore &&
		a.Confidence >= m.cfg.AutoMinConfidence &&
		a.AmountSol <= m.cfg.AutoMaxPositionSol
}

func estimatedProfitBps(ed edge.Edge) int {
	if ed.EstimatedProfitLamports <= 0 {
		return 0
	}
	return int(ed.EstimatedProfitLamports / 10000)
}

// RecordUserDecision applies a manual decision to a Pending approval
// (spec.md §4.I: "Manual: user decision records user_decision +
// timestamp").
func (m *Manager) RecordUserDecision(ctx context.Context, id uuid.UUID, approved bool) (*approval.PendingApproval, error) {
	m.mu.Lock()
	a, ok := m.approvals[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if a.Status != approval.StatusPending {
		m.mu.Unlock()
		return nil, ErrNotPending
	}

	now := time.Now().UTC()
	a.UserDecision = &approved
	a.UserDecisionAt = &now
	if approved {
		a.Status = approval.StatusApproved
	} else {
		a.Status = approval.StatusRejected
	}
	snapshot := *a
	m.mu.Unlock()

	topic := event.TopicApprovalRejected
	if approved {
		topic = event.TopicApprovalApproved
	}
	m.publish(ctx, topic, snapshot)

	return &snapshot, nil
}

// RecordHecateRecommendation attaches an advisory LLM recommendation to a
// Pending approval. Per spec.md §4.I it never auto-approves and only
// transitions state when require_hecate_approval is true AND the
// recommendation's decision is false, in which case the approval is
// Rejected.
func (m *Manager) RecordHecateRecommendation(ctx context.Context, id uuid.UUID, rec approval.HecateRecommendation) (*approval.PendingApproval, error) {
	m.mu.Lock()
	a, ok := m.approvals[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	a.Hecate = &rec
	rejects := m.cfg.RequireHecateApproval && !rec.Decision && a.Status == approval.StatusPending
	if rejects {
		a.Status = approval.StatusRejected
	}
	snapshot := *a
	m.mu.Unlock()

	if rejects {
		m.publish(ctx, event.TopicApprovalRejected, snapshot)
	}

	return &snapshot, nil
}

// Get returns the approval by ID.
func (m *Manager) Get(id uuid.UUID) (approval.PendingApproval, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.approvals[id]
	if !ok {
		return approval.PendingApproval{}, false
	}
	return *a, true
}

// PendingCount returns the number of approvals currently Pending.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pendingCountLocked()
}

func (m *Manager) pendingCountLocked() int {
	count := 0
	for _, a := range m.approvals {
		if a.Status == approval.StatusPending {
			count++
		}
	}
	return count
}

// Start runs the janitor loop that sweeps expired Pending approvals every
// JanitorInterval (spec.md §4.I), grounded on the
// services/automation/automation_service.go ticker pattern.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop halts the janitor loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepExpired(ctx)
		}
	}
}

func (m *Manager) sweepExpired(ctx context.Context) {
	now := time.Now().UTC()

	m.mu.Lock()
	var expired []approval.PendingApproval
	for _, a := range m.approvals {
		if a.Status == approval.StatusPending && a.Expired(now) {
			a.Status = approval.StatusExpired
			expired = append(expired, *a)
		}
	}
	m.mu.Unlock()

	for _, a := range expired {
		m.publish(ctx, event.TopicApprovalExpired, a)
	}
}

func (m *Manager) publish(ctx context.Context, topic string, payload interface{}) {
	eventType := strings.TrimPrefix(topic, "arb.")
	evt, err := event.New(eventType, event.SystemSource(), topic, payload)
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Error("failed to build approval event")
		return
	}
	if err := m.bus.Publish(ctx, evt); err != nil {
		m.log.WithContext(ctx).WithError(err).Error("failed to publish approval event")
	}
}
