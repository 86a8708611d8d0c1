// Package policy defines ArbFarmPolicy, the hard-coded guardrails the
// Executor enforces before any transaction leaves the swarm (spec.md §4.K).
// Values are ground-truthed on original_source/.../wallet/policy.rs.
package policy

import "time"

// ArbFarmPolicy bounds what the Executor is ever allowed to sign, independent
// of strategy- or approval-level risk checks.
type ArbFarmPolicy struct {
	Name                   string
	MaxTransactionSol      float64
	MaxDailyVolumeSol      float64
	MaxDailyTransactions   int
	AllowedPrograms        []string
	RequireSimulation      bool
	MaxSlippageBps         int
	MinSolReserveBalance   float64
}

// ALLOWED_PROGRAMS lists the Solana program IDs all three presets admit, ground-truthed on original_source/.../wallet/policy.rs.
var ALLOWED_PROGRAMS = []string{
	"11111111111111111111111111111111",             // System Program
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",    // SPL Token
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",   // Associated Token Account
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",    // Jupiter Aggregator v6
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",   // Raydium AMM v4
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",    // Orca Whirlpools
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",    // Pump.fun bonding curve
	"EhhTKczWMGQt46ynNeRX1WfeagwwJd7ufHvCDjRxjo5Q",   // Pump.fun fee authority
	"4MangoMjqJ2firMokCjjGgoK8d4MXcrgL7XJaL3w6fVg",   // Mango Markets v4
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",   // Serum/OpenBook DEX
}

// Default matches original_source/.../wallet/policy.rs's Default impl.
func Default() ArbFarmPolicy {
	return ArbFarmPolicy{
		Name:                 "default",
		MaxTransactionSol:    0.5,
		MaxDailyVolumeSol:    10.0,
		MaxDailyTransactions: 200,
		AllowedPrograms:      append([]string(nil), ALLOWED_PROGRAMS...),
		RequireSimulation:    true,
		MaxSlippageBps:       150,
		MinSolReserveBalance: 0.1,
	}
}

// DevTesting is deliberately looser than Default — original_source uses it
// for local devnet runs where caution costs nothing and iteration speed
// matters, hence the counterintuitively larger per-transaction ceiling but
// much smaller daily volume cap (devnet SOL is worthless but rate-limited).
func DevTesting() ArbFarmPolicy {
	return ArbFarmPolicy{
		Name:                 "dev_testing",
		MaxTransactionSol:    2.0,
		MaxDailyVolumeSol:    5.0,
		MaxDailyTransactions: 500,
		AllowedPrograms:      append([]string(nil), ALLOWED_PROGRAMS...),
		RequireSimulation:    false,
		MaxSlippageBps:       500,
		MinSolReserveBalance: 0.01,
	}
}

// Conservative matches original_source/.../wallet/policy.rs's conservative
// preset: tight per-trade and daily caps for running live with real capital
// at reduced risk appetite.
func Conservative() ArbFarmPolicy {
	return ArbFarmPolicy{
		Name:                 "conservative",
		MaxTransactionSol:    0.1,
		MaxDailyVolumeSol:    2.0,
		MaxDailyTransactions: 50,
		AllowedPrograms:      append([]string(nil), ALLOWED_PROGRAMS...),
		RequireSimulation:    true,
		MaxSlippageBps:       75,
		MinSolReserveBalance: 0.2,
	}
}

// ProgramAllowed reports whether programID may be invoked under p.
func (p ArbFarmPolicy) ProgramAllowed(programID string) bool {
	for _, id := range p.AllowedPrograms {
		if id == programID {
			return true
		}
	}
	return false
}

// DailyUsage tracks rolling same-UTC-day consumption against a policy's
// daily caps, ground-truthed on original_source/.../wallet/policy.rs's
// DailyUsage.
type DailyUsage struct {
	Day               time.Time // truncated to UTC midnight
	VolumeSol         float64
	TransactionCount  int
}

// resetIfNewDay zeroes usage when now has crossed into a new UTC day.
func (u *DailyUsage) resetIfNewDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !u.Day.Equal(day) {
		u.Day = day
		u.VolumeSol = 0
		u.TransactionCount = 0
	}
}

// CanExecute reports whether a transaction of amountSol is admissible under
// p's daily caps, given u's current usage at now. It does not mutate u.
func (u DailyUsage) CanExecute(p ArbFarmPolicy, amountSol float64, now time.Time) bool {
	u.resetIfNewDay(now)
	if u.TransactionCount+1 > p.MaxDailyTransactions {
		return false
	}
	if u.VolumeSol+amountSol > p.MaxDailyVolumeSol {
		return false
	}
	return amountSol <= p.MaxTransactionSol
}

// RecordTransaction commits amountSol against u's running daily totals,
// rolling u.Day forward first if needed.
func (u *DailyUsage) RecordTransaction(amountSol float64, now time.Time) {
	u.resetIfNewDay(now)
	u.VolumeSol += amountSol
	u.TransactionCount++
}

// Violation describes why the Executor refused to sign (spec.md §4.K).
type Violation struct {
	PolicyName string
	Reason     string
}

func (v Violation) Error() string {
	return "policy " + v.PolicyName + ": " + v.Reason
}
