package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const edgesTable = "arb_trades"

// EdgeStore implements edge.Repository over the arb_trades table — the
// trade-opportunity ledger (detected edges through their terminal outcome).
type EdgeStore struct {
	db *sql.DB
}

// NewEdgeStore constructs an EdgeStore.
func NewEdgeStore(db *sql.DB) *EdgeStore {
	return &EdgeStore{db: db}
}

// Save upserts an Edge, matching the teacher's insert-with-conflict-update
// idiom from services/automation/supabase/repository.go's CreateTrigger.
func (s *EdgeStore) Save(ctx context.Context, e edge.Edge) (err error) {
	start := time.Now()
	defer func() { observe(edgesTable, "save", start, err) }()

	routeData, marshalErr := json.Marshal(e.RouteData)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}

	var strategyID sql.NullString
	if e.StrategyID != nil {
		strategyID = sql.NullString{String: e.StrategyID.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO arb_trades (
			id, strategy_id, edge_type, execution_mode, atomicity,
			simulated_profit_guaranteed, estimated_profit_lamports, risk_score,
			route_data, status, token_mint, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			estimated_profit_lamports = EXCLUDED.estimated_profit_lamports,
			risk_score = EXCLUDED.risk_score
	`,
		e.ID, strategyID, e.EdgeType, e.ExecutionMode, e.Atomicity,
		e.SimulatedProfitGuaranteed, e.EstimatedProfitLamports, e.RiskScore,
		routeData, e.Status, e.TokenMint, e.CreatedAt, e.ExpiresAt,
	)
	if err != nil {
		return apperr.Database("save_edge", err)
	}
	return nil
}

// Get retrieves a single Edge by ID.
func (s *EdgeStore) Get(ctx context.Context, id uuid.UUID) (result edge.Edge, err error) {
	start := time.Now()
	defer func() { observe(edgesTable, "get", start, err) }()

	row := s.db.QueryRowContext(ctxOrBackground(ctx), `
		SELECT id, strategy_id, edge_type, execution_mode, atomicity,
			simulated_profit_guaranteed, estimated_profit_lamports, risk_score,
			route_data, status, token_mint, created_at, expires_at
		FROM arb_trades
		WHERE id = $1
	`, id)

	result, err = scanEdge(row)
	if err != nil {
		err = dbError("get_edge", "edge", id.String(), err)
		return edge.Edge{}, err
	}
	return result, nil
}

// UpdateStatus transitions a persisted edge's status.
func (s *EdgeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status edge.Status) (err error) {
	start := time.Now()
	defer func() { observe(edgesTable, "update_status", start, err) }()

	result, execErr := s.db.ExecContext(ctxOrBackground(ctx), `
		UPDATE arb_trades SET status = $2 WHERE id = $1
	`, id, status)
	if execErr != nil {
		err = apperr.Database("update_edge_status", execErr)
		return err
	}

	n, rowsErr := result.RowsAffected()
	if rowsErr == nil && n == 0 {
		err = apperr.NotFound("edge", id.String())
		return err
	}
	return nil
}

// Active returns edges that have not yet reached a terminal status.
func (s *EdgeStore) Active(ctx context.Context) (edges []edge.Edge, err error) {
	start := time.Now()
	defer func() { observe(edgesTable, "active", start, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), `
		SELECT id, strategy_id, edge_type, execution_mode, atomicity,
			simulated_profit_guaranteed, estimated_profit_lamports, risk_score,
			route_data, status, token_mint, created_at, expires_at
		FROM arb_trades
		WHERE status NOT IN ('executed', 'failed', 'rejected', 'expired')
		ORDER BY created_at ASC
	`)
	if queryErr != nil {
		err = apperr.Database("active_edges", queryErr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, scanErr := scanEdge(rows)
		if scanErr != nil {
			err = apperr.Database("scan_edge", scanErr)
			return nil, err
		}
		edges = append(edges, e)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = apperr.Database("active_edges", rowsErr)
		return nil, err
	}
	return edges, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanEdge serves both Get
// and Active without duplicating the column list.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdge(row rowScanner) (edge.Edge, error) {
	var (
		e          edge.Edge
		strategyID sql.NullString
		routeData  []byte
	)

	if err := row.Scan(
		&e.ID, &strategyID, &e.EdgeType, &e.ExecutionMode, &e.Atomicity,
		&e.SimulatedProfitGuaranteed, &e.EstimatedProfitLamports, &e.RiskScore,
		&routeData, &e.Status, &e.TokenMint, &e.CreatedAt, &e.ExpiresAt,
	); err != nil {
		return edge.Edge{}, err
	}

	if strategyID.Valid {
		if id, err := uuid.Parse(strategyID.String); err == nil {
			e.StrategyID = &id
		}
	}
	if len(routeData) > 0 {
		_ = json.Unmarshal(routeData, &e.RouteData)
	}

	return e, nil
}
