package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/arbfarm/swarm/internal/domain/reporting"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const dailyMetricsTable = "daily_metrics"

// DailyMetricsStore implements internal/reporting's MetricsSaver over the
// daily_metrics table.
type DailyMetricsStore struct {
	db *sql.DB
}

// NewDailyMetricsStore constructs a DailyMetricsStore.
func NewDailyMetricsStore(db *sql.DB) *DailyMetricsStore {
	return &DailyMetricsStore{db: db}
}

// SaveDailyMetrics upserts one wallet's aggregated metrics for a period,
// matching original_source/.../agents/metrics_aggregator.rs's
// EngramsClient.save_daily_metrics call shape.
func (s *DailyMetricsStore) SaveDailyMetrics(ctx context.Context, walletAddress string, metrics reporting.DailyMetrics) (err error) {
	start := time.Now()
	defer func() { observe(dailyMetricsTable, "save", start, err) }()

	byVenue, marshalErr := json.Marshal(metrics.ByVenue)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}
	byStrategy, marshalErr := json.Marshal(metrics.ByStrategy)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}
	bestTrade, marshalErr := json.Marshal(metrics.BestTrade)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}
	worstTrade, marshalErr := json.Marshal(metrics.WorstTrade)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO daily_metrics (
			wallet_address, period, total_trades, winning_trades, win_rate,
			total_pnl_sol, avg_trade_pnl, max_drawdown_percent, best_trade,
			worst_trade, by_venue, by_strategy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (wallet_address, period) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			winning_trades = EXCLUDED.winning_trades,
			win_rate = EXCLUDED.win_rate,
			total_pnl_sol = EXCLUDED.total_pnl_sol,
			avg_trade_pnl = EXCLUDED.avg_trade_pnl,
			max_drawdown_percent = EXCLUDED.max_drawdown_percent,
			best_trade = EXCLUDED.best_trade,
			worst_trade = EXCLUDED.worst_trade,
			by_venue = EXCLUDED.by_venue,
			by_strategy = EXCLUDED.by_strategy
	`,
		walletAddress, metrics.Period, metrics.TotalTrades, metrics.WinningTrades, metrics.WinRate,
		metrics.TotalPnLSol, metrics.AvgTradePnL, metrics.MaxDrawdownPercent, bestTrade,
		worstTrade, byVenue, byStrategy,
	)
	if err != nil {
		return apperr.Database("save_daily_metrics", err)
	}
	return nil
}
