package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/domain/venue"
)

// Default exit thresholds applied to every position this adapter opens.
// spec.md §4.L's stop_loss_percent/take_profit_percent/max_hold_seconds are
// per-position fields but nothing upstream of executor.PositionOpener sets
// them yet (Strategy's RiskParams stops at MaxSlippageBps) — until a
// strategy-level override lands, these swarm-wide defaults apply
// uniformly.
const (
	DefaultStopLossBps     = 2000
	DefaultTakeProfitBps   = 5000
	DefaultMaxHoldDuration = 4 * time.Hour
)

// PositionStore is the subset of internal/storage/postgres.PositionStore
// this adapter needs.
type PositionStore interface {
	Save(ctx context.Context, p position.OpenPosition) error
}

// PositionManager is the subset of internal/position.Manager this adapter
// needs.
type PositionManager interface {
	Open(ctx context.Context, pos position.OpenPosition)
}

// PositionOpener adapts position.Manager.Open (in-memory bookkeeping) and a
// PositionStore (durable persistence) into the single executor.PositionOpener
// collaborator the Executor calls once a trade confirms. executor.go's own
// doc comment frames PositionOpener as existing "so internal/executor does
// not need to own position persistence" — this is that persistence.
type PositionOpener struct {
	manager PositionManager
	store   PositionStore
}

// NewPositionOpener constructs a PositionOpener. store may be nil to skip
// durable persistence and keep positions in-memory only.
func NewPositionOpener(manager PositionManager, store PositionStore) *PositionOpener {
	return &PositionOpener{manager: manager, store: store}
}

// Open builds an OpenPosition from a confirmed trade, records it against
// the in-memory Manager, and persists it.
func (o *PositionOpener) Open(ctx context.Context, ed edge.Edge, quote venue.Quote, signature string) (position.OpenPosition, error) {
	pos := position.OpenPosition{
		ID:                 uuid.New(),
		EdgeID:             ed.ID,
		StrategyID:         ed.StrategyID,
		TokenMint:          ed.TokenMint,
		BaseCurrency:       "SOL",
		EntryAmountSol:     lamportsToSol(quote.InputAmount),
		EntryPriceLamports: entryPriceLamports(quote),
		EntryTxSignature:   signature,
		Quantity:           quote.OutputAmount,
		StopLossBps:        DefaultStopLossBps,
		TakeProfitBps:      DefaultTakeProfitBps,
		MaxHoldDuration:    DefaultMaxHoldDuration,
		OpenedAt:           time.Now().UTC(),
	}

	o.manager.Open(ctx, pos)

	if o.store != nil {
		if err := o.store.Save(ctx, pos); err != nil {
			return pos, err
		}
	}

	return pos, nil
}

// lamportsPerSol matches internal/execution's convention for the
// lamports-per-SOL constant.
const lamportsPerSol = 1_000_000_000

func lamportsToSol(lamports int64) float64 {
	return float64(lamports) / lamportsPerSol
}

// entryPriceLamports derives a per-token entry price (lamports per output
// unit) from the quote, guarding against a zero-output quote.
func entryPriceLamports(q venue.Quote) int64 {
	if q.OutputAmount == 0 {
		return 0
	}
	return q.InputAmount / q.OutputAmount
}
