// Package position defines OpenPosition and the exit taxonomy for the
// Position Manager (spec.md §4.L).
package position

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExitReason enumerates why a position was closed (spec.md §3, §4.L). Order
// matters: it is also the precedence used to pick among simultaneously
// triggered exits (StopLoss first, Emergency last — spec.md §4.L).
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTimeLimit  ExitReason = "time_limit"
	ExitManual     ExitReason = "manual"
	ExitEmergency  ExitReason = "emergency"
)

// exitPrecedence ranks reasons lowest-first for tie-breaking when more than
// one exit trigger fires on the same monitor tick (spec.md §4.L).
var exitPrecedence = map[ExitReason]int{
	ExitStopLoss:   0,
	ExitTakeProfit: 1,
	ExitTimeLimit:  2,
	ExitManual:     3,
	ExitEmergency:  4,
}

// HigherPriority reports whether a should win over b when both trigger at
// once.
func HigherPriority(a, b ExitReason) bool {
	return exitPrecedence[a] < exitPrecedence[b]
}

// OpenPosition is a held, unrealized trade awaiting an exit trigger
// (spec.md §3).
type OpenPosition struct {
	ID               uuid.UUID
	EdgeID           uuid.UUID
	StrategyID       *uuid.UUID
	TokenMint         string
	BaseCurrency     string // e.g. "SOL", "USDC"
	EntryAmountSol   float64
	EntryPriceLamports int64
	EntryTxSignature string
	Quantity         int64
	StopLossBps      int
	TakeProfitBps    int
	MaxHoldDuration  time.Duration
	OpenedAt         time.Time
	ClosedAt         *time.Time
	ExitReason       *ExitReason
	RealizedPnLSol   *float64
}

// IsOpen reports whether the position has not yet closed.
func (p OpenPosition) IsOpen() bool { return p.ClosedAt == nil }

// HoldDuration returns how long the position has been open as of now.
func (p OpenPosition) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// TimeExitDue reports whether the position has exceeded its max hold
// duration and should be exited on that basis.
func (p OpenPosition) TimeExitDue(now time.Time) bool {
	if p.MaxHoldDuration <= 0 {
		return false
	}
	return p.HoldDuration(now) >= p.MaxHoldDuration
}

// StopLossTriggered reports whether currentPriceLamports has fallen far
// enough below entry to trigger the stop loss.
func (p OpenPosition) StopLossTriggered(currentPriceLamports int64) bool {
	if p.StopLossBps <= 0 || p.EntryPriceLamports == 0 {
		return false
	}
	floor := p.EntryPriceLamports - (p.EntryPriceLamports*int64(p.StopLossBps))/10000
	return currentPriceLamports <= floor
}

// TakeProfitTriggered reports whether currentPriceLamports has risen far
// enough above entry to trigger the take profit.
func (p OpenPosition) TakeProfitTriggered(currentPriceLamports int64) bool {
	if p.TakeProfitBps <= 0 || p.EntryPriceLamports == 0 {
		return false
	}
	ceiling := p.EntryPriceLamports + (p.EntryPriceLamports*int64(p.TakeProfitBps))/10000
	return currentPriceLamports >= ceiling
}

// UnrealizedPnLSol estimates the position's current mark-to-market P&L in
// SOL from currentPriceLamports, scaled against the SOL still committed to
// the position (spec.md §4.L: "unrealized_pnl updated each monitor tick").
func (p OpenPosition) UnrealizedPnLSol(currentPriceLamports int64) float64 {
	if p.EntryPriceLamports == 0 {
		return 0
	}
	priceDelta := float64(currentPriceLamports-p.EntryPriceLamports) / float64(p.EntryPriceLamports)
	return p.EntryAmountSol * priceDelta
}

// RealizedPnLForExit computes the SOL P&L locked in by exiting exitPercent
// (0..100) of the position at exitPriceLamports, proportional to the SOL
// currently committed.
func (p OpenPosition) RealizedPnLForExit(exitPercent float64, exitPriceLamports int64) float64 {
	if p.EntryPriceLamports == 0 {
		return 0
	}
	priceDelta := float64(exitPriceLamports-p.EntryPriceLamports) / float64(p.EntryPriceLamports)
	exitedSol := p.EntryAmountSol * (exitPercent / 100.0)
	return exitedSol * priceDelta
}

// ExitSignal records an exit trigger raised for a position, queued for the
// monitor loop or an external caller to act on (spec.md §4.L;
// original_source/.../handlers/positions.rs's "pending_exit_signals").
type ExitSignal struct {
	PositionID  uuid.UUID
	Reason      ExitReason
	ExitPercent float64
	TriggeredAt time.Time
}

// Base currencies a position's notional can be denominated in
// (original_source/.../handlers/positions.rs's BaseCurrency enum).
const (
	BaseCurrencySol  = "SOL"
	BaseCurrencyUsdc = "USDC"
	BaseCurrencyUsdt = "USDT"
)

// Repository persists OpenPosition records (spec.md §6's positions table).
// ClosedPositionsForPeriod doubles as internal/reporting's
// ClosedPositionRepository so one store backs both.
type Repository interface {
	Save(ctx context.Context, p OpenPosition) error
	Update(ctx context.Context, p OpenPosition) error
	Get(ctx context.Context, id uuid.UUID) (OpenPosition, error)
	Open(ctx context.Context) ([]OpenPosition, error)
	ClosedPositionsForPeriod(ctx context.Context, start, end time.Time) ([]OpenPosition, error)
}
