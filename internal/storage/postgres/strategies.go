package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/strategy"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const strategiesTable = "strategies"

// StrategyStore implements strategy.Repository over the strategies table.
type StrategyStore struct {
	db *sql.DB
}

// NewStrategyStore constructs a StrategyStore.
func NewStrategyStore(db *sql.DB) *StrategyStore {
	return &StrategyStore{db: db}
}

// Save upserts a Strategy.
func (s *StrategyStore) Save(ctx context.Context, st strategy.Strategy) (err error) {
	start := time.Now()
	defer func() { observe(strategiesTable, "save", start, err) }()

	venueTypes, marshalErr := json.Marshal(st.VenueTypes)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO strategies (
			id, wallet_address, name, strategy_type, venue_types, execution_mode,
			max_position_sol, daily_loss_limit_sol, min_profit_bps, max_slippage_bps,
			max_risk_score, require_simulation, auto_execute_atomic, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			venue_types = EXCLUDED.venue_types,
			max_position_sol = EXCLUDED.max_position_sol,
			daily_loss_limit_sol = EXCLUDED.daily_loss_limit_sol,
			min_profit_bps = EXCLUDED.min_profit_bps,
			max_slippage_bps = EXCLUDED.max_slippage_bps,
			max_risk_score = EXCLUDED.max_risk_score,
			is_active = EXCLUDED.is_active
	`,
		st.ID, st.WalletAddress, st.Name, st.StrategyType, venueTypes, st.ExecutionMode,
		st.Risk.MaxPositionSol, st.Risk.DailyLossLimitSol, st.Risk.MinProfitBps, st.Risk.MaxSlippageBps,
		st.Risk.MaxRiskScore, st.Risk.RequireSimulation, st.Risk.AutoExecuteAtomic, st.IsActive,
	)
	if err != nil {
		return apperr.Database("save_strategy", err)
	}
	return nil
}

// Get retrieves a single Strategy by ID, with its lifetime Stats joined in.
func (s *StrategyStore) Get(ctx context.Context, id uuid.UUID) (result strategy.Strategy, err error) {
	start := time.Now()
	defer func() { observe(strategiesTable, "get", start, err) }()

	row := s.db.QueryRowContext(ctxOrBackground(ctx), strategySelectQuery+" WHERE id = $1", id)
	result, err = scanStrategy(row)
	if err != nil {
		err = dbError("get_strategy", "strategy", id.String(), err)
		return strategy.Strategy{}, err
	}
	return result, nil
}

// Active returns every strategy currently flagged active.
func (s *StrategyStore) Active(ctx context.Context) (strategies []strategy.Strategy, err error) {
	start := time.Now()
	defer func() { observe(strategiesTable, "active", start, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), strategySelectQuery+" WHERE is_active = true")
	if queryErr != nil {
		err = apperr.Database("active_strategies", queryErr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		st, scanErr := scanStrategy(rows)
		if scanErr != nil {
			err = apperr.Database("scan_strategy", scanErr)
			return nil, err
		}
		strategies = append(strategies, st)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = apperr.Database("active_strategies", rowsErr)
		return nil, err
	}
	return strategies, nil
}

// UpdateStats persists a strategy's accumulated performance counters.
func (s *StrategyStore) UpdateStats(ctx context.Context, id uuid.UUID, stats strategy.Stats) (err error) {
	start := time.Now()
	defer func() { observe(strategiesTable, "update_stats", start, err) }()

	result, execErr := s.db.ExecContext(ctxOrBackground(ctx), `
		UPDATE strategies SET
			signals_matched = $2,
			edges_created = $3,
			edges_executed = $4,
			total_pnl_sol = $5,
			win_count = $6,
			loss_count = $7
		WHERE id = $1
	`, id, stats.SignalsMatched, stats.EdgesCreated, stats.EdgesExecuted, stats.TotalPnLSol, stats.WinCount, stats.LossCount)
	if execErr != nil {
		err = apperr.Database("update_strategy_stats", execErr)
		return err
	}

	n, rowsErr := result.RowsAffected()
	if rowsErr == nil && n == 0 {
		err = apperr.NotFound("strategy", id.String())
		return err
	}
	return nil
}

const strategySelectQuery = `
	SELECT id, wallet_address, name, strategy_type, venue_types, execution_mode,
		max_position_sol, daily_loss_limit_sol, min_profit_bps, max_slippage_bps,
		max_risk_score, require_simulation, auto_execute_atomic, is_active,
		signals_matched, edges_created, edges_executed, total_pnl_sol, win_count, loss_count
	FROM strategies`

func scanStrategy(row rowScanner) (strategy.Strategy, error) {
	var (
		st         strategy.Strategy
		venueTypes []byte
	)

	if err := row.Scan(
		&st.ID, &st.WalletAddress, &st.Name, &st.StrategyType, &venueTypes, &st.ExecutionMode,
		&st.Risk.MaxPositionSol, &st.Risk.DailyLossLimitSol, &st.Risk.MinProfitBps, &st.Risk.MaxSlippageBps,
		&st.Risk.MaxRiskScore, &st.Risk.RequireSimulation, &st.Risk.AutoExecuteAtomic, &st.IsActive,
		&st.Stats.SignalsMatched, &st.Stats.EdgesCreated, &st.Stats.EdgesExecuted, &st.Stats.TotalPnLSol,
		&st.Stats.WinCount, &st.Stats.LossCount,
	); err != nil {
		return strategy.Strategy{}, err
	}

	if len(venueTypes) > 0 {
		_ = json.Unmarshal(venueTypes, &st.VenueTypes)
	}

	return st, nil
}
