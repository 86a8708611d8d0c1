// Package persistence bridges the Event Bus to the durable repositories
// in internal/storage/postgres. Scanner, StrategyEngine, ApprovalManager,
// and the rest of the swarm hold their working state in memory and never
// import internal/domain/*'s Repository interfaces directly (the same
// separation-of-concerns split internal/reporting already draws between
// computing metrics and saving them) — so cmd/arbfarm wires one Listener
// per deployment that projects the events those components already
// publish into their tables, grounded on
// system/events/handlers.go's per-event-type callback-dispatch shape.
package persistence

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/approval"
	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/strategy"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// edgeStatusTopics maps every topic that carries an edge_id-only payload
// to the edge.Status it implies, so the listener can call UpdateStatus
// without needing the full Edge struct on the wire.
var edgeStatusTopics = map[string]edge.Status{
	event.TopicEdgeApproved:   edge.StatusPendingApproval,
	event.TopicEdgeRejected:   edge.StatusRejected,
	event.TopicEdgeExecuting:  edge.StatusExecuting,
	event.TopicEdgeExecuted:   edge.StatusExecuted,
	event.TopicEdgeFailed:     edge.StatusFailed,
	event.TopicEdgeExpired:    edge.StatusExpired,
	event.TopicTradeSubmitted: edge.StatusExecuting,
	event.TopicTradeConfirmed: edge.StatusExecuted,
	event.TopicTradeFailed:    edge.StatusFailed,
}

// Listener subscribes to the bus and persists the entities named by
// spec.md §6 as they're created or transition state.
type Listener struct {
	bus        *eventbus.Bus
	log        *logging.Logger
	edges      edge.Repository
	strategies strategy.Repository
	approvals  approval.Repository

	sub *eventbus.Subscription
}

// New constructs a Listener. Any repository may be nil to skip that
// entity's projection (e.g. a deployment that persists events but not
// strategies).
func New(bus *eventbus.Bus, log *logging.Logger, edges edge.Repository, strategies strategy.Repository, approvals approval.Repository) *Listener {
	return &Listener{bus: bus, log: log, edges: edges, strategies: strategies, approvals: approvals}
}

// Start subscribes to every topic this listener projects and runs until
// ctx is cancelled.
func (l *Listener) Start(ctx context.Context) {
	l.sub = l.bus.Subscribe(
		event.TopicStrategyCreated, event.TopicStrategyUpdated, event.TopicStrategyDeleted,
		event.TopicEdgeDetected, event.TopicEdgeApproved, event.TopicEdgeRejected,
		event.TopicEdgeExecuting, event.TopicEdgeExecuted, event.TopicEdgeFailed, event.TopicEdgeExpired,
		event.TopicTradeSubmitted, event.TopicTradeConfirmed, event.TopicTradeFailed,
		event.TopicApprovalCreated, event.TopicApprovalAutoApproved, event.TopicApprovalApproved,
		event.TopicApprovalRejected, event.TopicApprovalExpired,
	)

	go func() {
		defer l.sub.Unsubscribe()
		for {
			evt, ok := l.sub.Recv(ctx)
			if !ok {
				return
			}
			l.handle(ctx, evt)
		}
	}()
}

func (l *Listener) handle(ctx context.Context, evt event.ArbEvent) {
	switch evt.Topic {
	case event.TopicStrategyCreated, event.TopicStrategyUpdated:
		l.saveStrategy(ctx, evt)
	case event.TopicStrategyDeleted:
		l.deactivateStrategy(ctx, evt)
	case event.TopicEdgeDetected:
		l.saveEdge(ctx, evt)
	case event.TopicApprovalCreated:
		l.saveApproval(ctx, evt)
	case event.TopicApprovalAutoApproved, event.TopicApprovalApproved, event.TopicApprovalRejected, event.TopicApprovalExpired:
		l.updateApprovalStatus(ctx, evt)
	default:
		if status, ok := edgeStatusTopics[evt.Topic]; ok {
			l.updateEdgeStatus(ctx, evt, status)
		}
	}
}

func (l *Listener) saveStrategy(ctx context.Context, evt event.ArbEvent) {
	if l.strategies == nil {
		return
	}
	var s strategy.Strategy
	if err := json.Unmarshal(evt.Payload, &s); err != nil {
		l.warn(ctx, evt, err)
		return
	}
	if err := l.strategies.Save(ctx, s); err != nil {
		l.warn(ctx, evt, err)
	}
}

func (l *Listener) deactivateStrategy(ctx context.Context, evt event.ArbEvent) {
	if l.strategies == nil {
		return
	}
	var s strategy.Strategy
	if err := json.Unmarshal(evt.Payload, &s); err != nil {
		l.warn(ctx, evt, err)
		return
	}
	s.IsActive = false
	if err := l.strategies.Save(ctx, s); err != nil {
		l.warn(ctx, evt, err)
	}
}

func (l *Listener) saveEdge(ctx context.Context, evt event.ArbEvent) {
	if l.edges == nil {
		return
	}
	var e edge.Edge
	if err := json.Unmarshal(evt.Payload, &e); err != nil {
		l.warn(ctx, evt, err)
		return
	}
	if err := l.edges.Save(ctx, e); err != nil {
		l.warn(ctx, evt, err)
	}
}

func (l *Listener) updateEdgeStatus(ctx context.Context, evt event.ArbEvent, status edge.Status) {
	if l.edges == nil {
		return
	}
	var payload struct {
		EdgeID uuid.UUID `json:"edge_id"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		l.warn(ctx, evt, err)
		return
	}
	if err := l.edges.UpdateStatus(ctx, payload.EdgeID, status); err != nil {
		l.warn(ctx, evt, err)
	}
}

func (l *Listener) saveApproval(ctx context.Context, evt event.ArbEvent) {
	if l.approvals == nil {
		return
	}
	var a approval.PendingApproval
	if err := json.Unmarshal(evt.Payload, &a); err != nil {
		l.warn(ctx, evt, err)
		return
	}
	if err := l.approvals.Save(ctx, a); err != nil {
		l.warn(ctx, evt, err)
	}
}

func (l *Listener) updateApprovalStatus(ctx context.Context, evt event.ArbEvent) {
	if l.approvals == nil {
		return
	}
	var a approval.PendingApproval
	if err := json.Unmarshal(evt.Payload, &a); err != nil {
		l.warn(ctx, evt, err)
		return
	}
	if err := l.approvals.UpdateStatus(ctx, a.ID, a.Status); err != nil {
		l.warn(ctx, evt, err)
	}
}

func (l *Listener) warn(ctx context.Context, evt event.ArbEvent, err error) {
	l.log.WithContext(ctx).WithField("topic", evt.Topic).WithError(err).Warn("persistence projection failed")
}
