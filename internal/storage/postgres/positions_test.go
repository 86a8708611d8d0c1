package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/position"
)

func TestPositionStore_SaveInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	p := position.OpenPosition{
		ID:                 uuid.New(),
		EdgeID:             uuid.New(),
		TokenMint:          "mintaddress",
		BaseCurrency:       position.BaseCurrencySol,
		EntryAmountSol:     1.0,
		EntryPriceLamports: 1_000_000,
		Quantity:           100,
		OpenedAt:           time.Now(),
	}

	mock.ExpectExec("INSERT INTO positions").WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPositionStore(db)
	if err := store.Save(context.Background(), p); err != nil {
		t.Fatalf("save position: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPositionStore_ClosedPositionsForPeriodScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	closedAt := start.Add(time.Hour)
	pnl := 0.5

	rows := sqlmock.NewRows([]string{
		"id", "edge_id", "strategy_id", "token_mint", "base_currency", "entry_amount_sol",
		"entry_price_lamports", "entry_tx_signature", "quantity", "stop_loss_bps",
		"take_profit_bps", "max_hold_duration_secs", "opened_at", "closed_at", "exit_reason", "realized_pnl_sol",
	}).AddRow(
		uuid.New(), uuid.New(), nil, "mintaddress", "SOL", 1.0,
		1_000_000, "sig", 100, 500,
		1000, 3600, start, closedAt, "take_profit", pnl,
	)

	mock.ExpectQuery("SELECT .* FROM positions").WithArgs(start, end).WillReturnRows(rows)

	store := NewPositionStore(db)
	positions, err := store.ClosedPositionsForPeriod(context.Background(), start, end)
	if err != nil {
		t.Fatalf("closed positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions[0].RealizedPnLSol == nil || *positions[0].RealizedPnLSol != pnl {
		t.Fatalf("unexpected realized pnl: %+v", positions[0].RealizedPnLSol)
	}
	if positions[0].ExitReason == nil || *positions[0].ExitReason != position.ExitTakeProfit {
		t.Fatalf("unexpected exit reason: %+v", positions[0].ExitReason)
	}
}
