// Package strategy defines the Strategy entity and risk parameters (spec.md
// §3).
package strategy

import (
	"context"

	"github.com/google/uuid"
)

// ExecutionMode enumerates how an edge produced under a strategy may be
// executed (spec.md §3).
type ExecutionMode string

const (
	ExecutionAutonomous   ExecutionMode = "autonomous"
	ExecutionAgentDirected ExecutionMode = "agent_directed"
	ExecutionHybrid       ExecutionMode = "hybrid"
)

// RiskParams bounds what a strategy is allowed to do, ground-truthed on
// original_source/.../models/strategy.rs's RiskParams default.
type RiskParams struct {
	MaxPositionSol    float64
	DailyLossLimitSol float64
	MinProfitBps      int
	MaxSlippageBps    int
	MaxRiskScore      int
	RequireSimulation bool
	AutoExecuteAtomic bool
}

// DefaultRiskParams matches original_source/.../models/strategy.rs's
// Default impl: max_position_sol=1.0, daily_loss_limit_sol=0.5,
// min_profit_bps=50, max_slippage_bps=100, max_risk_score=50,
// require_simulation=true, auto_execute_atomic=true.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		MaxPositionSol:    1.0,
		DailyLossLimitSol: 0.5,
		MinProfitBps:      50,
		MaxSlippageBps:    100,
		MaxRiskScore:      50,
		RequireSimulation: true,
		AutoExecuteAtomic: true,
	}
}

// Stats tracks a strategy's lifetime performance, ground-truthed on
// original_source/.../models/strategy.rs's StrategyStats.
type Stats struct {
	SignalsMatched  uint64
	EdgesCreated    uint64
	EdgesExecuted   uint64
	TotalPnLSol     float64
	WinCount        uint64
	LossCount       uint64
}

// Strategy is a named policy that turns Signals into Edges within declared
// risk limits (spec.md §3, GLOSSARY).
type Strategy struct {
	ID             uuid.UUID
	WalletAddress  string
	Name           string
	StrategyType   string
	VenueTypes     []string // whitelist, matched case-insensitively (spec.md §4.F)
	ExecutionMode  ExecutionMode
	Risk           RiskParams
	IsActive       bool
	Stats          Stats
}

// Repository persists Strategy records (spec.md §6's strategies table).
type Repository interface {
	Save(ctx context.Context, s Strategy) error
	Get(ctx context.Context, id uuid.UUID) (Strategy, error)
	Active(ctx context.Context) ([]Strategy, error)
	UpdateStats(ctx context.Context, id uuid.UUID, stats Stats) error
}
