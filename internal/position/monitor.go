package position

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// DefaultTickInterval matches original_source/.../handlers/positions.rs's
// price_check_interval_secs default.
const DefaultTickInterval = 30 * time.Second

// DefaultExitSlippageBps matches the original's exit_slippage_bps default.
const DefaultExitSlippageBps = 100

// PriceReader reads a position's current mark price. The venue lookup
// itself (which venue quotes this token) is pushed to the implementation,
// keeping this package decoupled from a venue registry — the same pattern
// threatfilter.WalletThreatChecker and graduationtracker.ProgressFetcher
// use for their own external I/O.
type PriceReader interface {
	CurrentPriceLamports(ctx context.Context, pos position.OpenPosition) (int64, error)
}

// SellExecutor routes an exit back through the Executor's sell path
// (spec.md §4.L: "An exit creates a synthetic Edge with
// execution_mode=Autonomous, routed back through the executor's sell
// path"). Building and executing that synthetic edge is an external
// collaborator's job — internal/position only decides WHEN to exit, not
// HOW the trade is carried out on-chain.
type SellExecutor interface {
	ExecuteSell(ctx context.Context, pos position.OpenPosition, reason position.ExitReason, exitPercent float64, slippageBps int) (fillPriceLamports int64, err error)
}

// Config tunes the Monitor's tick cadence and exit slippage tolerance.
type Config struct {
	TickInterval    time.Duration
	ExitSlippageBps int
}

// DefaultConfig matches the original's defaults.
func DefaultConfig() Config {
	return Config{TickInterval: DefaultTickInterval, ExitSlippageBps: DefaultExitSlippageBps}
}

// Monitor runs the periodic exit-trigger tick over every open position
// (spec.md §4.L).
type Monitor struct {
	cfg     Config
	manager *Manager
	prices  PriceReader
	seller  SellExecutor
	bus     *eventbus.Bus
	log     *logging.Logger

	mu           sync.Mutex
	pendingExits []position.ExitSignal

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor constructs a Monitor over manager, reading prices via prices
// and routing exits through seller.
func NewMonitor(cfg Config, manager *Manager, prices PriceReader, seller SellExecutor, bus *eventbus.Bus, log *logging.Logger) *Monitor {
	return &Monitor{cfg: cfg, manager: manager, prices: prices, seller: seller, bus: bus, log: log}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	m.publishStatus(ctx, event.TopicSwarmAgentStarted)
	go m.run(ctx)
}

func (m *Monitor) publishStatus(ctx context.Context, topic string) {
	evt, err := event.New("position_monitor.status", event.AgentSource(event.AgentExecutor), topic, map[string]interface{}{
		"tick_interval_secs": m.cfg.TickInterval.Seconds(),
	})
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Error("failed to build position monitor status event")
		return
	}
	if err := m.bus.Publish(ctx, evt); err != nil {
		m.log.WithContext(ctx).WithError(err).Error("failed to publish position monitor status event")
	}
}

// Stop halts the tick loop and waits for it to exit.
func (m *Monitor) Stop() {
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
	m.publishStatus(context.Background(), event.TopicSwarmAgentStopped)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick reads a current price for every open position and applies
// whichever exit trigger fires, in precedence order (spec.md §4.L:
// stop-loss, take-profit, time-exit). Exported so callers (and tests) can
// drive a tick deterministically without waiting on the interval timer.
func (m *Monitor) Tick(ctx context.Context) {
	positions := m.manager.OpenPositions()
	now := time.Now().UTC()
	prices := make(map[uuid.UUID]int64, len(positions))

	for _, pos := range positions {
		price, err := m.prices.CurrentPriceLamports(ctx, pos)
		if err != nil {
			m.log.WithContext(ctx).WithField("position_id", pos.ID).WithError(err).Warn("price read failed, skipping tick for position")
			continue
		}
		prices[pos.ID] = price

		if reason, ok := triggeredExit(pos, price, now); ok {
			m.executeExit(ctx, pos, reason, 100.0)
		}
	}

	m.manager.UpdateUnrealized(prices)
}

// triggeredExit evaluates the automatic (non-manual, non-emergency)
// triggers in precedence order and returns the first that fires.
func triggeredExit(pos position.OpenPosition, currentPriceLamports int64, now time.Time) (position.ExitReason, bool) {
	if pos.StopLossTriggered(currentPriceLamports) {
		return position.ExitStopLoss, true
	}
	if pos.TakeProfitTriggered(currentPriceLamports) {
		return position.ExitTakeProfit, true
	}
	if pos.TimeExitDue(now) {
		return position.ExitTimeLimit, true
	}
	return "", false
}

// TriggerManualExit exits exitPercent of position id on external request
// (spec.md §4.L: "external caller via trigger_manual_exit").
func (m *Monitor) TriggerManualExit(ctx context.Context, id uuid.UUID, exitPercent float64) error {
	pos, ok := m.manager.Get(id)
	if !ok {
		return ErrNotFound
	}
	if exitPercent <= 0 {
		exitPercent = 100.0
	}
	return m.executeExit(ctx, pos, position.ExitManual, exitPercent)
}

// EmergencyCloseAll triggers a full exit for every open position (spec.md
// §4.L: "emergency_close_all() triggers exits for every Open position"),
// returning the signals raised.
func (m *Monitor) EmergencyCloseAll(ctx context.Context) []position.ExitSignal {
	positions := m.manager.OpenPositions()
	signals := make([]position.ExitSignal, 0, len(positions))

	for _, pos := range positions {
		if err := m.executeExit(ctx, pos, position.ExitEmergency, 100.0); err != nil {
			m.log.WithContext(ctx).WithField("position_id", pos.ID).WithError(err).Error("emergency exit failed")
			continue
		}
		signals = append(signals, position.ExitSignal{PositionID: pos.ID, Reason: position.ExitEmergency, ExitPercent: 100.0, TriggeredAt: time.Now().UTC()})
	}
	return signals
}

func (m *Monitor) executeExit(ctx context.Context, pos position.OpenPosition, reason position.ExitReason, exitPercent float64) error {
	m.recordPending(pos.ID, reason, exitPercent)
	defer m.clearPending(pos.ID)

	fillPrice, err := m.seller.ExecuteSell(ctx, pos, reason, exitPercent, m.cfg.ExitSlippageBps)
	if err != nil {
		return err
	}

	_, err = m.manager.ApplyExit(ctx, pos.ID, reason, exitPercent, fillPrice, time.Now().UTC())
	return err
}

func (m *Monitor) recordPending(id uuid.UUID, reason position.ExitReason, exitPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingExits = append(m.pendingExits, position.ExitSignal{PositionID: id, Reason: reason, ExitPercent: exitPercent, TriggeredAt: time.Now().UTC()})
}

func (m *Monitor) clearPending(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pendingExits[:0]
	for _, s := range m.pendingExits {
		if s.PositionID != id {
			out = append(out, s)
		}
	}
	m.pendingExits = out
}

// PendingExitSignals returns exit signals currently in flight (submitted
// to the seller but not yet settled) — original_source's
// get_pending_exit_signals.
func (m *Monitor) PendingExitSignals() []position.ExitSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]position.ExitSignal, len(m.pendingExits))
	copy(out, m.pendingExits)
	return out
}
