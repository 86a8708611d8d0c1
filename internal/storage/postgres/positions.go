package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const positionsTable = "positions"

// PositionStore implements position.Repository over the positions table.
// ClosedPositionsForPeriod also satisfies internal/reporting's
// ClosedPositionRepository, so the Position Manager and the metrics
// aggregator share one store.
type PositionStore struct {
	db *sql.DB
}

// NewPositionStore constructs a PositionStore.
func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{db: db}
}

// Save inserts a newly-opened position.
func (s *PositionStore) Save(ctx context.Context, p position.OpenPosition) (err error) {
	start := time.Now()
	defer func() { observe(positionsTable, "save", start, err) }()

	var strategyID sql.NullString
	if p.StrategyID != nil {
		strategyID = sql.NullString{String: p.StrategyID.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO positions (
			id, edge_id, strategy_id, token_mint, base_currency, entry_amount_sol,
			entry_price_lamports, entry_tx_signature, quantity, stop_loss_bps,
			take_profit_bps, max_hold_duration_secs, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID, p.EdgeID, strategyID, p.TokenMint, p.BaseCurrency, p.EntryAmountSol,
		p.EntryPriceLamports, p.EntryTxSignature, p.Quantity, p.StopLossBps,
		p.TakeProfitBps, int64(p.MaxHoldDuration.Seconds()), p.OpenedAt,
	)
	if err != nil {
		return apperr.Database("save_position", err)
	}
	return nil
}

// Update persists a position's mutable state (partial-exit size reduction,
// final close).
func (s *PositionStore) Update(ctx context.Context, p position.OpenPosition) (err error) {
	start := time.Now()
	defer func() { observe(positionsTable, "update", start, err) }()

	var (
		closedAt      sql.NullTime
		exitReason    sql.NullString
		realizedPnL   sql.NullFloat64
	)
	if p.ClosedAt != nil {
		closedAt = sql.NullTime{Time: *p.ClosedAt, Valid: true}
	}
	if p.ExitReason != nil {
		exitReason = sql.NullString{String: string(*p.ExitReason), Valid: true}
	}
	if p.RealizedPnLSol != nil {
		realizedPnL = sql.NullFloat64{Float64: *p.RealizedPnLSol, Valid: true}
	}

	result, execErr := s.db.ExecContext(ctxOrBackground(ctx), `
		UPDATE positions SET
			entry_amount_sol = $2,
			quantity = $3,
			closed_at = $4,
			exit_reason = $5,
			realized_pnl_sol = $6
		WHERE id = $1
	`, p.ID, p.EntryAmountSol, p.Quantity, closedAt, exitReason, realizedPnL)
	if execErr != nil {
		err = apperr.Database("update_position", execErr)
		return err
	}

	n, rowsErr := result.RowsAffected()
	if rowsErr == nil && n == 0 {
		err = apperr.NotFound("position", p.ID.String())
		return err
	}
	return nil
}

// Get retrieves a position by ID.
func (s *PositionStore) Get(ctx context.Context, id uuid.UUID) (result position.OpenPosition, err error) {
	start := time.Now()
	defer func() { observe(positionsTable, "get", start, err) }()

	row := s.db.QueryRowContext(ctxOrBackground(ctx), positionSelectQuery+" WHERE id = $1", id)
	result, err = scanPosition(row)
	if err != nil {
		err = dbError("get_position", "position", id.String(), err)
		return position.OpenPosition{}, err
	}
	return result, nil
}

// Open returns every position not yet closed.
func (s *PositionStore) Open(ctx context.Context) (positions []position.OpenPosition, err error) {
	start := time.Now()
	defer func() { observe(positionsTable, "open", start, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), positionSelectQuery+" WHERE closed_at IS NULL ORDER BY opened_at ASC")
	if queryErr != nil {
		err = apperr.Database("open_positions", queryErr)
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ClosedPositionsForPeriod returns positions closed within [start, end).
func (s *PositionStore) ClosedPositionsForPeriod(ctx context.Context, start, end time.Time) (positions []position.OpenPosition, err error) {
	queryStart := time.Now()
	defer func() { observe(positionsTable, "closed_for_period", queryStart, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx),
		positionSelectQuery+" WHERE closed_at >= $1 AND closed_at < $2 ORDER BY closed_at ASC", start, end)
	if queryErr != nil {
		err = apperr.Database("closed_positions_for_period", queryErr)
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

const positionSelectQuery = `
	SELECT id, edge_id, strategy_id, token_mint, base_currency, entry_amount_sol,
		entry_price_lamports, entry_tx_signature, quantity, stop_loss_bps,
		take_profit_bps, max_hold_duration_secs, opened_at, closed_at, exit_reason, realized_pnl_sol
	FROM positions`

func scanPosition(row rowScanner) (position.OpenPosition, error) {
	var (
		p              position.OpenPosition
		strategyID     sql.NullString
		maxHoldSecs    int64
		closedAt       sql.NullTime
		exitReason     sql.NullString
		realizedPnL    sql.NullFloat64
	)

	if err := row.Scan(
		&p.ID, &p.EdgeID, &strategyID, &p.TokenMint, &p.BaseCurrency, &p.EntryAmountSol,
		&p.EntryPriceLamports, &p.EntryTxSignature, &p.Quantity, &p.StopLossBps,
		&p.TakeProfitBps, &maxHoldSecs, &p.OpenedAt, &closedAt, &exitReason, &realizedPnL,
	); err != nil {
		return position.OpenPosition{}, err
	}

	if strategyID.Valid {
		if id, err := uuid.Parse(strategyID.String); err == nil {
			p.StrategyID = &id
		}
	}
	p.MaxHoldDuration = time.Duration(maxHoldSecs) * time.Second
	if closedAt.Valid {
		p.ClosedAt = &closedAt.Time
	}
	if exitReason.Valid {
		reason := position.ExitReason(exitReason.String)
		p.ExitReason = &reason
	}
	if realizedPnL.Valid {
		p.RealizedPnLSol = &realizedPnL.Float64
	}

	return p, nil
}

func scanPositions(rows *sql.Rows) ([]position.OpenPosition, error) {
	var out []position.OpenPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, apperr.Database("scan_position", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("scan_positions", err)
	}
	return out, nil
}
