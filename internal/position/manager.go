// Package position implements the Position Manager and Position Monitor
// (spec.md §4.L): tracking open positions from Executor confirmation
// through exit, and the ticking exit-trigger loop that watches them.
package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// ErrNotFound is returned for operations against an unknown position.
var ErrNotFound = errors.New("position not found")

// ErrAlreadyClosed is returned when applying an exit to a position that
// has already fully closed.
var ErrAlreadyClosed = errors.New("position already closed")

// Stats mirrors original_source/.../handlers/positions.rs's
// PositionStatsResponse.
type Stats struct {
	TotalPositionsOpened  uint64
	TotalPositionsClosed  uint64
	ActivePositions       uint32
	TotalRealizedPnLSol   float64
	TotalUnrealizedPnLSol float64
	StopLossesTriggered   uint32
	TakeProfitsTriggered  uint32
	TimeExitsTriggered    uint32
}

// Manager owns the open-position book: the set of positions, their P&L,
// and aggregate stats. It does not itself decide when to exit — that's
// the Monitor's job — but it applies exits once triggered.
type Manager struct {
	bus *eventbus.Bus
	log *logging.Logger

	mu        sync.Mutex
	positions map[uuid.UUID]*position.OpenPosition
	stats     Stats
}

// New constructs an empty Manager.
func New(bus *eventbus.Bus, log *logging.Logger) *Manager {
	return &Manager{bus: bus, log: log, positions: make(map[uuid.UUID]*position.OpenPosition)}
}

// Open records a newly confirmed trade as an open position (spec.md §4.L:
// "Position opens on Executor confirmation").
func (m *Manager) Open(ctx context.Context, pos position.OpenPosition) {
	m.mu.Lock()
	cp := pos
	m.positions[pos.ID] = &cp
	m.stats.TotalPositionsOpened++
	m.stats.ActivePositions++
	m.mu.Unlock()

	m.publish(ctx, event.TopicPositionOpened, map[string]interface{}{"position_id": pos.ID, "edge_id": pos.EdgeID})
}

// Get returns a copy of one position, or false if unknown.
func (m *Manager) Get(id uuid.UUID) (position.OpenPosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return position.OpenPosition{}, false
	}
	return *p, true
}

// OpenPositions returns a snapshot of every currently open position.
func (m *Manager) OpenPositions() []position.OpenPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]position.OpenPosition, 0, len(m.positions))
	for _, p := range m.positions {
		if p.IsOpen() {
			out = append(out, *p)
		}
	}
	return out
}

// Stats returns a copy of the manager's running counters.
// TotalUnrealizedPnLSol holds the value set by the last UpdateUnrealized.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// TotalExposureByBase sums the notional SOL committed to open positions
// denominated in baseCurrency (spec.md §4.L: "Exposure query aggregates
// open position notional by base currency").
func (m *Manager) TotalExposureByBase(baseCurrency string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, p := range m.positions {
		if p.IsOpen() && p.BaseCurrency == baseCurrency {
			total += p.EntryAmountSol
		}
	}
	return total
}

// UpdateUnrealized recomputes TotalUnrealizedPnLSol from a per-position
// current-price reading, called once per monitor tick.
func (m *Manager) UpdateUnrealized(prices map[uuid.UUID]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for id, p := range m.positions {
		if !p.IsOpen() {
			continue
		}
		if price, ok := prices[id]; ok {
			total += p.UnrealizedPnLSol(price)
		}
	}
	m.stats.TotalUnrealizedPnLSol = total
}

// ApplyExit settles exitPercent (0..100] of position id at
// exitPriceLamports for reason. A full exit (>=100%) closes the position
// and returns true; a partial exit decrements the position's committed
// SOL/quantity and leaves it open.
func (m *Manager) ApplyExit(ctx context.Context, id uuid.UUID, reason position.ExitReason, exitPercent float64, exitPriceLamports int64, now time.Time) (closedFully bool, err error) {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return false, ErrNotFound
	}
	if !p.IsOpen() {
		m.mu.Unlock()
		return false, ErrAlreadyClosed
	}

	realized := p.RealizedPnLForExit(exitPercent, exitPriceLamports)
	m.stats.TotalRealizedPnLSol += realized
	m.bumpTriggerCounter(reason)

	if exitPercent >= 100.0 {
		p.ClosedAt = &now
		reasonCopy := reason
		p.ExitReason = &reasonCopy
		p.RealizedPnLSol = &realized
		m.stats.TotalPositionsClosed++
		m.stats.ActivePositions--
		closedFully = true
	} else {
		keepFraction := 1.0 - (exitPercent / 100.0)
		p.EntryAmountSol *= keepFraction
		p.Quantity = int64(float64(p.Quantity) * keepFraction)
	}
	snapshot := *p
	m.mu.Unlock()

	m.publish(ctx, event.TopicPositionExited, map[string]interface{}{
		"position_id":  id,
		"reason":       reason,
		"exit_percent": exitPercent,
		"realized_pnl": realized,
		"closed":       closedFully,
		"position":     snapshot,
	})

	return closedFully, nil
}

func (m *Manager) bumpTriggerCounter(reason position.ExitReason) {
	switch reason {
	case position.ExitStopLoss:
		m.stats.StopLossesTriggered++
	case position.ExitTakeProfit:
		m.stats.TakeProfitsTriggered++
	case position.ExitTimeLimit:
		m.stats.TimeExitsTriggered++
	}
}

func (m *Manager) publish(ctx context.Context, topic string, payload interface{}) {
	evt, err := event.New("position.updated", event.AgentSource(event.AgentExecutor), topic, payload)
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Error("failed to build position event")
		return
	}
	if err := m.bus.Publish(ctx, evt); err != nil {
		m.log.WithContext(ctx).WithError(err).Error("failed to publish position event")
	}
}
