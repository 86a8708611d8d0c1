package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/approval"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const approvalsTable = "approvals"

// ApprovalStore implements approval.Repository over the approvals table.
type ApprovalStore struct {
	db *sql.DB
}

// NewApprovalStore constructs an ApprovalStore.
func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Save upserts a PendingApproval.
func (s *ApprovalStore) Save(ctx context.Context, a approval.PendingApproval) (err error) {
	start := time.Now()
	defer func() { observe(approvalsTable, "save", start, err) }()

	var (
		edgeID, positionID sql.NullString
		hecate             []byte
		userDecision       sql.NullBool
		userDecisionAt     sql.NullTime
	)
	if a.EdgeID != nil {
		edgeID = sql.NullString{String: a.EdgeID.String(), Valid: true}
	}
	if a.PositionID != nil {
		positionID = sql.NullString{String: a.PositionID.String(), Valid: true}
	}
	if a.Hecate != nil {
		marshaled, marshalErr := json.Marshal(a.Hecate)
		if marshalErr != nil {
			return apperr.Serialization(marshalErr)
		}
		hecate = marshaled
	}
	if a.UserDecision != nil {
		userDecision = sql.NullBool{Bool: *a.UserDecision, Valid: true}
	}
	if a.UserDecisionAt != nil {
		userDecisionAt = sql.NullTime{Time: *a.UserDecisionAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO approvals (
			id, edge_id, position_id, approval_type, status, atomicity, amount_sol,
			risk_score, estimated_profit_bps, estimated_profit_lamports, confidence,
			expires_at, hecate, user_decision, user_decision_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			hecate = EXCLUDED.hecate,
			user_decision = EXCLUDED.user_decision,
			user_decision_at = EXCLUDED.user_decision_at
	`,
		a.ID, edgeID, positionID, a.ApprovalType, a.Status, a.Atomicity, a.AmountSol,
		a.RiskScore, a.EstimatedProfitBps, a.EstimatedProfitLamports, a.Confidence,
		a.ExpiresAt, hecate, userDecision, userDecisionAt,
	)
	if err != nil {
		return apperr.Database("save_approval", err)
	}
	return nil
}

// Get retrieves a PendingApproval by ID.
func (s *ApprovalStore) Get(ctx context.Context, id uuid.UUID) (result approval.PendingApproval, err error) {
	start := time.Now()
	defer func() { observe(approvalsTable, "get", start, err) }()

	row := s.db.QueryRowContext(ctxOrBackground(ctx), approvalSelectQuery+" WHERE id = $1", id)
	result, err = scanApproval(row)
	if err != nil {
		err = dbError("get_approval", "approval", id.String(), err)
		return approval.PendingApproval{}, err
	}
	return result, nil
}

// Pending returns every approval still in the pending status, for the
// janitor's timeout sweep.
func (s *ApprovalStore) Pending(ctx context.Context) (approvals []approval.PendingApproval, err error) {
	start := time.Now()
	defer func() { observe(approvalsTable, "pending", start, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), approvalSelectQuery+" WHERE status = $1", approval.StatusPending)
	if queryErr != nil {
		err = apperr.Database("pending_approvals", queryErr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, scanErr := scanApproval(rows)
		if scanErr != nil {
			err = apperr.Database("scan_approval", scanErr)
			return nil, err
		}
		approvals = append(approvals, a)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = apperr.Database("pending_approvals", rowsErr)
		return nil, err
	}
	return approvals, nil
}

// UpdateStatus transitions a persisted approval's status.
func (s *ApprovalStore) UpdateStatus(ctx context.Context, id uuid.UUID, status approval.Status) (err error) {
	start := time.Now()
	defer func() { observe(approvalsTable, "update_status", start, err) }()

	result, execErr := s.db.ExecContext(ctxOrBackground(ctx), `
		UPDATE approvals SET status = $2 WHERE id = $1
	`, id, status)
	if execErr != nil {
		err = apperr.Database("update_approval_status", execErr)
		return err
	}

	n, rowsErr := result.RowsAffected()
	if rowsErr == nil && n == 0 {
		err = apperr.NotFound("approval", id.String())
		return err
	}
	return nil
}

const approvalSelectQuery = `
	SELECT id, edge_id, position_id, approval_type, status, atomicity, amount_sol,
		risk_score, estimated_profit_bps, estimated_profit_lamports, confidence,
		expires_at, hecate, user_decision, user_decision_at
	FROM approvals`

func scanApproval(row rowScanner) (approval.PendingApproval, error) {
	var (
		a                  approval.PendingApproval
		edgeID, positionID sql.NullString
		hecate             []byte
		userDecision       sql.NullBool
		userDecisionAt     sql.NullTime
	)

	if err := row.Scan(
		&a.ID, &edgeID, &positionID, &a.ApprovalType, &a.Status, &a.Atomicity, &a.AmountSol,
		&a.RiskScore, &a.EstimatedProfitBps, &a.EstimatedProfitLamports, &a.Confidence,
		&a.ExpiresAt, &hecate, &userDecision, &userDecisionAt,
	); err != nil {
		return approval.PendingApproval{}, err
	}

	if edgeID.Valid {
		if id, err := uuid.Parse(edgeID.String); err == nil {
			a.EdgeID = &id
		}
	}
	if positionID.Valid {
		if id, err := uuid.Parse(positionID.String); err == nil {
			a.PositionID = &id
		}
	}
	if len(hecate) > 0 {
		var rec approval.HecateRecommendation
		if err := json.Unmarshal(hecate, &rec); err == nil {
			a.Hecate = &rec
		}
	}
	if userDecision.Valid {
		a.UserDecision = &userDecision.Bool
	}
	if userDecisionAt.Valid {
		a.UserDecisionAt = &userDecisionAt.Time
	}

	return a, nil
}
