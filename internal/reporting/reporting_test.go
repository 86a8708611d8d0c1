package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbfarm/swarm/internal/domain/position"
	domainreporting "github.com/arbfarm/swarm/internal/domain/reporting"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

func pnlPtr(v float64) *float64 { return &v }

func closedPosition(strategyID uuid.UUID, base string, pnl float64) position.OpenPosition {
	now := time.Now().UTC()
	return position.OpenPosition{
		ID:             uuid.New(),
		StrategyID:     &strategyID,
		TokenMint:      "mintaddressvalue",
		BaseCurrency:   base,
		ClosedAt:       &now,
		RealizedPnLSol: pnlPtr(pnl),
	}
}

func TestAggregate_EmptyPeriodReturnsZeroMetrics(t *testing.T) {
	metrics := aggregate("2026-07-29", nil)
	assert.Equal(t, "2026-07-29", metrics.Period)
}

func TestAggregate_ComputesWinRateAndTotals(t *testing.T) {
	strat := uuid.New()
	positions := []position.OpenPosition{
		closedPosition(strat, position.BaseCurrencySol, 1.0),
		closedPosition(strat, position.BaseCurrencySol, -0.5),
		closedPosition(strat, position.BaseCurrencySol, 0.25),
	}

	metrics := aggregate("2026-07-29", positions)
	assert.Equal(t, 3, metrics.TotalTrades)
	assert.Equal(t, 2, metrics.WinningTrades)
	assert.InDelta(t, 66.666, metrics.WinRate, 0.01)
	assert.InDelta(t, 0.75, metrics.TotalPnLSol, 1e-9)
	assert.InDelta(t, 0.25, metrics.AvgTradePnL, 1e-9)
}

func TestAggregate_TracksBestAndWorstTrade(t *testing.T) {
	strat := uuid.New()
	positions := []position.OpenPosition{
		closedPosition(strat, position.BaseCurrencySol, 2.0),
		closedPosition(strat, position.BaseCurrencySol, -1.0),
	}

	metrics := aggregate("2026-07-29", positions)
	require.NotNil(t, metrics.BestTrade)
	require.NotNil(t, metrics.WorstTrade)
	assert.Equal(t, 2.0, metrics.BestTrade.PnLSol)
	assert.Equal(t, -1.0, metrics.WorstTrade.PnLSol)
}

func TestAggregate_GroupsByVenueAndStrategy(t *testing.T) {
	stratA := uuid.New()
	stratB := uuid.New()
	positions := []position.OpenPosition{
		closedPosition(stratA, position.BaseCurrencySol, 1.0),
		closedPosition(stratB, position.BaseCurrencyUsdc, -1.0),
	}

	metrics := aggregate("2026-07-29", positions)
	require.Contains(t, metrics.ByVenue, position.BaseCurrencySol)
	require.Contains(t, metrics.ByVenue, position.BaseCurrencyUsdc)
	assert.Equal(t, 100.0, metrics.ByVenue[position.BaseCurrencySol].WinRate)
	assert.Equal(t, 0.0, metrics.ByVenue[position.BaseCurrencyUsdc].WinRate)

	assert.Contains(t, metrics.ByStrategy, stratA.String())
	assert.Contains(t, metrics.ByStrategy, stratB.String())
}

func TestAggregate_MaxDrawdownTracksPeakToTroughOfCumulativePnL(t *testing.T) {
	strat := uuid.New()
	positions := []position.OpenPosition{
		closedPosition(strat, position.BaseCurrencySol, 1.0),  // cum 1.0, peak 1.0
		closedPosition(strat, position.BaseCurrencySol, -0.6), // cum 0.4, drawdown 60%
		closedPosition(strat, position.BaseCurrencySol, 0.1),  // cum 0.5, drawdown 50%
	}

	metrics := aggregate("2026-07-29", positions)
	assert.InDelta(t, 60.0, metrics.MaxDrawdownPercent, 0.01)
}

type fakeRepo struct {
	positions []position.OpenPosition
	err       error
}

func (f *fakeRepo) ClosedPositionsForPeriod(ctx context.Context, start, end time.Time) ([]position.OpenPosition, error) {
	return f.positions, f.err
}

type fakeSaver struct {
	saved   *domainreporting.DailyMetrics
	wallet  string
}

func (f *fakeSaver) SaveDailyMetrics(ctx context.Context, walletAddress string, metrics domainreporting.DailyMetrics) error {
	f.wallet = walletAddress
	m := metrics
	f.saved = &m
	return nil
}

func TestAggregator_AggregateAndSaveYesterday_SkipsSaveOnZeroTrades(t *testing.T) {
	repo := &fakeRepo{}
	saver := &fakeSaver{}
	agg := New(repo, saver, "wallet1", logging.New("test", "error", "text"))

	err := agg.AggregateAndSaveYesterday(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, saver.saved)
}

func TestAggregator_AggregateAndSaveYesterday_SavesWhenTradesExist(t *testing.T) {
	strat := uuid.New()
	repo := &fakeRepo{positions: []position.OpenPosition{closedPosition(strat, position.BaseCurrencySol, 0.5)}}
	saver := &fakeSaver{}
	agg := New(repo, saver, "wallet1", logging.New("test", "error", "text"))

	err := agg.AggregateAndSaveYesterday(context.Background(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, saver.saved)
	assert.Equal(t, "wallet1", saver.wallet)
	assert.Equal(t, 1, saver.saved.TotalTrades)
}

func TestTimeUntilNextRun_TargetsFiveMinutesPastMidnightUTC(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	d := timeUntilNextRun(now)

	expectedTarget := time.Date(2026, 7, 31, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, expectedTarget.Sub(now), d)
}

func TestTokenDisplay_TruncatesLongMints(t *testing.T) {
	assert.Equal(t, "abcdefgh", tokenDisplay("abcdefghijklmnop"))
	assert.Equal(t, "short", tokenDisplay("short"))
}
