package position

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbfarm/swarm/internal/domain/event"
	domainposition "github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

type fakeRepo struct{}

func (f *fakeRepo) SaveEvent(ctx context.Context, evt event.ArbEvent) error { return nil }
func (f *fakeRepo) EventsByTopic(ctx context.Context, p string, l int) ([]event.ArbEvent, error) {
	return nil, nil
}
func (f *fakeRepo) EventsSince(ctx context.Context, id string, t []string, l int) ([]event.ArbEvent, error) {
	return nil, nil
}

func newTestManager() *Manager {
	bus := eventbus.New(&fakeRepo{}, logging.New("test", "error", "text"))
	return New(bus, logging.New("test", "error", "text"))
}

func openPosition(entrySol float64, entryPriceLamports int64) domainposition.OpenPosition {
	return domainposition.OpenPosition{
		ID:                 uuid.New(),
		EdgeID:             uuid.New(),
		TokenMint:          "mint1",
		BaseCurrency:       domainposition.BaseCurrencySol,
		EntryAmountSol:     entrySol,
		EntryPriceLamports: entryPriceLamports,
		Quantity:           1_000_000,
		StopLossBps:        500,  // -5%
		TakeProfitBps:      1000, // +10%
		MaxHoldDuration:    time.Hour,
		OpenedAt:           time.Now().UTC(),
	}
}

func TestManager_OpenTracksStatsAndExposure(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)

	stats := m.Stats()
	assert.EqualValues(t, 1, stats.TotalPositionsOpened)
	assert.EqualValues(t, 1, stats.ActivePositions)
	assert.Equal(t, 1.0, m.TotalExposureByBase(domainposition.BaseCurrencySol))
	assert.Equal(t, 0.0, m.TotalExposureByBase(domainposition.BaseCurrencyUsdc))
}

func TestManager_ApplyExitFullCloses(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)

	closed, err := m.ApplyExit(context.Background(), pos.ID, domainposition.ExitTakeProfit, 100.0, 1_100_000, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, closed)

	got, ok := m.Get(pos.ID)
	require.True(t, ok)
	assert.False(t, got.IsOpen())
	require.NotNil(t, got.RealizedPnLSol)
	assert.InDelta(t, 0.1, *got.RealizedPnLSol, 1e-9)

	stats := m.Stats()
	assert.EqualValues(t, 0, stats.ActivePositions)
	assert.EqualValues(t, 1, stats.TotalPositionsClosed)
	assert.EqualValues(t, 1, stats.TakeProfitsTriggered)
}

func TestManager_ApplyExitPartialKeepsOpenAndDecrementsSize(t *testing.T) {
	m := newTestManager()
	pos := openPosition(2.0, 1_000_000)
	m.Open(context.Background(), pos)

	closed, err := m.ApplyExit(context.Background(), pos.ID, domainposition.ExitManual, 50.0, 1_000_000, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, closed)

	got, ok := m.Get(pos.ID)
	require.True(t, ok)
	assert.True(t, got.IsOpen())
	assert.InDelta(t, 1.0, got.EntryAmountSol, 1e-9)
	assert.EqualValues(t, 500_000, got.Quantity)
}

func TestManager_ApplyExitUnknownPositionErrors(t *testing.T) {
	m := newTestManager()
	_, err := m.ApplyExit(context.Background(), uuid.New(), domainposition.ExitManual, 100.0, 1, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ApplyExitAlreadyClosedErrors(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)
	_, err := m.ApplyExit(context.Background(), pos.ID, domainposition.ExitManual, 100.0, 1_000_000, time.Now())
	require.NoError(t, err)

	_, err = m.ApplyExit(context.Background(), pos.ID, domainposition.ExitManual, 100.0, 1_000_000, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

type fakePriceReader struct {
	prices map[uuid.UUID]int64
}

func (f *fakePriceReader) CurrentPriceLamports(ctx context.Context, pos domainposition.OpenPosition) (int64, error) {
	return f.prices[pos.ID], nil
}

type fakeSeller struct {
	calls []domainposition.ExitReason
}

func (f *fakeSeller) ExecuteSell(ctx context.Context, pos domainposition.OpenPosition, reason domainposition.ExitReason, exitPercent float64, slippageBps int) (int64, error) {
	f.calls = append(f.calls, reason)
	return pos.EntryPriceLamports, nil // fill at entry price unless overridden below
}

func TestMonitor_Tick_TriggersStopLossAndCloses(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)

	seller := &fakeSeller{}
	prices := &fakePriceReader{prices: map[uuid.UUID]int64{pos.ID: 940_000}} // -6%, breaches -5% stop
	mon := NewMonitor(DefaultConfig(), m, prices, seller, m.bus, m.log)

	mon.Tick(context.Background())

	assert.Equal(t, []domainposition.ExitReason{domainposition.ExitStopLoss}, seller.calls)
	got, ok := m.Get(pos.ID)
	require.True(t, ok)
	assert.False(t, got.IsOpen())
}

func TestMonitor_Tick_NoTriggerLeavesPositionOpen(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)

	seller := &fakeSeller{}
	prices := &fakePriceReader{prices: map[uuid.UUID]int64{pos.ID: 1_010_000}} // +1%, no trigger
	mon := NewMonitor(DefaultConfig(), m, prices, seller, m.bus, m.log)

	mon.Tick(context.Background())

	assert.Empty(t, seller.calls)
	got, ok := m.Get(pos.ID)
	require.True(t, ok)
	assert.True(t, got.IsOpen())
}

func TestMonitor_TriggerManualExit(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)

	seller := &fakeSeller{}
	mon := NewMonitor(DefaultConfig(), m, &fakePriceReader{}, seller, m.bus, m.log)

	err := mon.TriggerManualExit(context.Background(), pos.ID, 100.0)
	require.NoError(t, err)
	assert.Equal(t, []domainposition.ExitReason{domainposition.ExitManual}, seller.calls)
}

func TestMonitor_EmergencyCloseAllClosesEverything(t *testing.T) {
	m := newTestManager()
	pos1 := openPosition(1.0, 1_000_000)
	pos2 := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos1)
	m.Open(context.Background(), pos2)

	seller := &fakeSeller{}
	mon := NewMonitor(DefaultConfig(), m, &fakePriceReader{}, seller, m.bus, m.log)

	signals := mon.EmergencyCloseAll(context.Background())
	assert.Len(t, signals, 2)
	assert.Zero(t, m.Stats().ActivePositions)
}

func TestMonitor_PendingExitSignalsClearedAfterSettlement(t *testing.T) {
	m := newTestManager()
	pos := openPosition(1.0, 1_000_000)
	m.Open(context.Background(), pos)

	mon := NewMonitor(DefaultConfig(), m, &fakePriceReader{}, &fakeSeller{}, m.bus, m.log)
	require.NoError(t, mon.TriggerManualExit(context.Background(), pos.ID, 100.0))

	assert.Empty(t, mon.PendingExitSignals())
}

func TestTriggeredExit_PriceBelowStopFloorReturnsStopLoss(t *testing.T) {
	// No single price can breach both the stop-loss and the take-profit
	// bound, so this checks the stop-loss branch: 940_000 is 6% below
	// entry, past the 5% stop.
	pos := openPosition(1.0, 1_000_000)
	reason, ok := triggeredExit(pos, 940_000, time.Now())
	assert.True(t, ok)
	assert.Equal(t, domainposition.ExitStopLoss, reason)
}
