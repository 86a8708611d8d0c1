// Package strategyengine implements the Strategy Engine (spec.md §4.F):
// matches each Signal against active Strategies in registration order,
// creating an Edge for the first match whose risk parameters the signal
// satisfies.
package strategyengine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/signal"
	"github.com/arbfarm/swarm/internal/domain/strategy"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/platform/metrics"
)

// minConfidence is spec.md §4.F's flat confidence floor, independent of
// any per-strategy threshold.
const minConfidence = 0.1

// MatchResult is the auditable outcome of matching a signal against one
// strategy (spec.md §4.F: "an auditable result is returned" even on
// rejection).
type MatchResult struct {
	StrategyID uuid.UUID
	Approved   bool
	Reason     string
	Edge       *edge.Edge
}

// Engine holds strategies in an ordered registry — a slice of IDs plus a
// map — rather than original_source's HashMap<Uuid, Strategy>, because
// spec.md §4.F requires "iterate strategies in registration order" and a
// Go map provides no iteration-order guarantee (documented divergence,
// SPEC_FULL.md §2.3/Open Questions).
type Engine struct {
	bus *eventbus.Bus
	log *logging.Logger

	mu    sync.RWMutex
	order []uuid.UUID
	byID  map[uuid.UUID]*strategy.Strategy
}

// New constructs an empty Engine.
func New(bus *eventbus.Bus, log *logging.Logger) *Engine {
	return &Engine{bus: bus, log: log, byID: make(map[uuid.UUID]*strategy.Strategy)}
}

// RegisterStrategy appends s to the registration-ordered registry. Emits
// arb.strategy.created (spec.md §4.F).
func (e *Engine) RegisterStrategy(ctx context.Context, s *strategy.Strategy) {
	e.mu.Lock()
	if _, exists := e.byID[s.ID]; !exists {
		e.order = append(e.order, s.ID)
	}
	e.byID[s.ID] = s
	e.mu.Unlock()

	e.publish(ctx, event.TopicStrategyCreated, s)
}

// UpdateStrategy replaces a registered strategy's definition in place,
// preserving its registration order. Emits arb.strategy.updated.
func (e *Engine) UpdateStrategy(ctx context.Context, s *strategy.Strategy) {
	e.mu.Lock()
	_, exists := e.byID[s.ID]
	if !exists {
		e.mu.Unlock()
		return
	}
	e.byID[s.ID] = s
	e.mu.Unlock()

	e.publish(ctx, event.TopicStrategyUpdated, s)
}

// RemoveStrategy drops a strategy from the registry. Emits
// arb.strategy.deleted.
func (e *Engine) RemoveStrategy(ctx context.Context, id uuid.UUID) {
	e.mu.Lock()
	s, exists := e.byID[id]
	if !exists {
		e.mu.Unlock()
		return
	}
	delete(e.byID, id)
	for i, sid := range e.order {
		if sid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.publish(ctx, event.TopicStrategyDeleted, s)
}

// SetActive toggles a strategy's active flag and emits
// arb.strategy.enabled/disabled.
func (e *Engine) SetActive(ctx context.Context, id uuid.UUID, active bool) {
	e.mu.Lock()
	s, exists := e.byID[id]
	if exists {
		s.IsActive = active
	}
	e.mu.Unlock()

	if !exists {
		return
	}
	topic := event.TopicStrategyDisabled
	if active {
		topic = event.TopicStrategyEnabled
	}
	e.publish(ctx, topic, s)
}

func (e *Engine) publish(ctx context.Context, topic string, payload interface{}) {
	evt, err := event.New(topic, event.AgentSource(event.AgentStrategyEngine), topic, payload)
	if err != nil {
		e.log.WithContext(ctx).WithError(err).Error("failed to build strategy event")
		return
	}
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.log.WithContext(ctx).WithError(err).Error("failed to publish strategy event")
	}
}

// venueTypeMatches implements spec.md §4.F's "case-insensitive substring
// match" rule between a strategy's venue_types whitelist and the signal's
// venue type.
func venueTypeMatches(venueTypes []string, venueType string) bool {
	lowerVenue := strings.ToLower(venueType)
	for _, vt := range venueTypes {
		if strings.Contains(lowerVenue, strings.ToLower(vt)) {
			return true
		}
	}
	return false
}

// ProcessSignal matches sig against strategies in registration order and
// returns every MatchResult produced along the way (spec.md §4.F: "first
// strategy whose venue_types ... AND whose RiskParams are satisfied ...
// produces an Edge. Subsequent strategies do not match the same signal").
func (e *Engine) ProcessSignal(ctx context.Context, sig signal.Signal) []MatchResult {
	e.mu.RLock()
	ordered := make([]*strategy.Strategy, 0, len(e.order))
	for _, id := range e.order {
		if s, ok := e.byID[id]; ok {
			ordered = append(ordered, s)
		}
	}
	e.mu.RUnlock()

	var results []MatchResult
	matched := false

	for _, s := range ordered {
		if !s.IsActive {
			continue
		}
		if matched {
			break
		}
		if !venueTypeMatches(s.VenueTypes, string(sig.VenueType)) {
			continue
		}

		if sig.EstimatedProfitBp < s.Risk.MinProfitBps {
			results = append(results, MatchResult{
				StrategyID: s.ID,
				Approved:   false,
				Reason:     "estimated profit below strategy minimum",
			})
			continue
		}
		if sig.Confidence < minConfidence {
			results = append(results, MatchResult{
				StrategyID: s.ID,
				Approved:   false,
				Reason:     "confidence below floor",
			})
			continue
		}

		ed := buildEdge(sig, s)
		results = append(results, MatchResult{StrategyID: s.ID, Approved: true, Edge: &ed})
		matched = true

		metrics.EdgesCreated.WithLabelValues(s.StrategyType).Inc()
		e.publish(ctx, event.TopicEdgeDetected, ed)
	}

	return results
}

// buildEdge implements spec.md §4.F's exact construction formula.
func buildEdge(sig signal.Signal, s *strategy.Strategy) edge.Edge {
	id := s.ID
	return edge.Edge{
		ID:                      uuid.New(),
		StrategyID:              &id,
		EdgeType:                string(sig.SignalType),
		ExecutionMode:           string(s.ExecutionMode),
		Atomicity:               edge.AtomicityNone,
		EstimatedProfitLamports: int64(sig.EstimatedProfitBp) * 10000,
		RiskScore:               round((1 - sig.Confidence) * 100),
		RouteData:               sig.Metadata,
		Status:                  edge.StatusDetected,
		TokenMint:               sig.TokenMint,
		CreatedAt:               time.Now().UTC(),
		ExpiresAt:               sig.ExpiresAt,
	}
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
