package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/approval"
)

func TestApprovalStore_PendingScansHecateRecommendation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	edgeID := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "edge_id", "position_id", "approval_type", "status", "atomicity", "amount_sol",
		"risk_score", "estimated_profit_bps", "estimated_profit_lamports", "confidence",
		"expires_at", "hecate", "user_decision", "user_decision_at",
	}).AddRow(
		uuid.New(), edgeID.String(), nil, "entry", "pending", "fully_atomic", 0.5,
		20, 120, 50000, 0.9,
		time.Now().Add(5*time.Minute), []byte(`{"decision":true,"reasoning":"looks good","confidence":0.9}`), nil, nil,
	)

	mock.ExpectQuery("SELECT .* FROM approvals").WithArgs(approval.StatusPending).WillReturnRows(rows)

	store := NewApprovalStore(db)
	pending, err := store.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending approvals: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending approval, got %d", len(pending))
	}
	if pending[0].Hecate == nil || !pending[0].Hecate.Decision {
		t.Fatalf("expected hecate recommendation to be parsed, got %+v", pending[0].Hecate)
	}
	if pending[0].EdgeID == nil || *pending[0].EdgeID != edgeID {
		t.Fatalf("expected edge id %s, got %+v", edgeID, pending[0].EdgeID)
	}
}
