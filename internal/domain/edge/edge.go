// Package edge defines the Edge entity and its lifecycle (spec.md §3).
package edge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Atomicity describes whether a trade's profit is guaranteed by
// single-transaction construction (GLOSSARY).
type Atomicity string

const (
	AtomicityFully    Atomicity = "fully_atomic"
	AtomicityPartial  Atomicity = "partially_atomic"
	AtomicityNone     Atomicity = "non_atomic"
)

// Status enumerates the Edge lifecycle states (spec.md §3).
type Status string

const (
	StatusDetected      Status = "detected"
	StatusPendingApproval Status = "pending_approval"
	StatusExecuting     Status = "executing"
	StatusExecuted      Status = "executed"
	StatusExpired       Status = "expired"
	StatusFailed        Status = "failed"
	StatusRejected      Status = "rejected"
)

// Terminal reports whether status is one of Edge's terminal states (spec.md
// §3: "Terminal states: Executed, Failed, Rejected, Expired").
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusFailed, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Edge is a concrete, time-bounded, executable trade opportunity derived
// from a Signal and a Strategy (GLOSSARY, spec.md §3).
type Edge struct {
	ID                          uuid.UUID
	StrategyID                  *uuid.UUID
	EdgeType                    string
	ExecutionMode               string
	Atomicity                   Atomicity
	SimulatedProfitGuaranteed   bool
	EstimatedProfitLamports     int64
	RiskScore                   int // 0..100
	RouteData                   map[string]interface{}
	Status                      Status
	TokenMint                   string
	CreatedAt                   time.Time
	ExpiresAt                   time.Time
}

// Expired reports whether the edge has passed its expiry.
func (e Edge) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// validTransitions encodes the lifecycle graph from spec.md §3:
// Detected → (PendingApproval → Approved/Rejected) | (auto) → Executing →
// Executed | Failed | Expired. "Approved" is represented by a transition
// straight to Executing (the Approval Manager owns the Approved/Rejected
// distinction on its own PendingApproval record; once approved, the edge
// itself moves directly to Executing).
var validTransitions = map[Status]map[Status]bool{
	StatusDetected: {
		StatusPendingApproval: true,
		StatusExecuting:       true, // auto-approved path
		StatusRejected:        true, // threat filter rejects pre-approval
		StatusExpired:         true,
	},
	StatusPendingApproval: {
		StatusExecuting: true,
		StatusRejected:  true,
		StatusExpired:   true,
	},
	StatusExecuting: {
		StatusExecuted: true,
		StatusFailed:   true,
	},
}

// CanTransition reports whether moving from e.Status to next is legal.
func (e Edge) CanTransition(next Status) bool {
	allowed, ok := validTransitions[e.Status]
	if !ok {
		return false
	}
	return allowed[next]
}

// Repository persists Edge records (spec.md §6's arb_trades table; this is
// the edge/trade-opportunity ledger, distinct from the positions table).
// Implemented by internal/storage/postgres.
type Repository interface {
	Save(ctx context.Context, e Edge) error
	Get(ctx context.Context, id uuid.UUID) (Edge, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	Active(ctx context.Context) ([]Edge, error)
}
