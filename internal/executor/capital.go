// Package executor implements the Executor, Capital Manager, and Policy
// enforcement pipeline (spec.md §4.K): the final hop that turns an
// Approved edge into a submitted, confirmed trade and an open position.
package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CapitalManager reserves and releases capital against a wallet-level
// budget and a per-day quota (spec.md §4.K). Reservations are tracked per
// position so a double-release or a release of an unknown position is a
// no-op rather than corrupting the pool.
type CapitalManager struct {
	mu sync.Mutex

	totalBudgetSol float64
	reservedSol    float64

	dailyQuotaSol float64
	dailyUsedSol  float64
	day           string

	reservations map[uuid.UUID]float64
}

// NewCapitalManager constructs a manager with a fixed wallet budget and
// daily quota, both in SOL.
func NewCapitalManager(totalBudgetSol, dailyQuotaSol float64) *CapitalManager {
	return &CapitalManager{
		totalBudgetSol: totalBudgetSol,
		dailyQuotaSol:  dailyQuotaSol,
		reservations:   make(map[uuid.UUID]float64),
	}
}

func (c *CapitalManager) resetIfNewDayLocked(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != c.day {
		c.day = day
		c.dailyUsedSol = 0
	}
}

// ReserveCapital reserves amountSol against positionID, returning false
// (without reserving anything) if the remaining budget or the per-day
// quota would be exceeded.
func (c *CapitalManager) ReserveCapital(positionID uuid.UUID, amountSol float64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetIfNewDayLocked(now)

	if c.reservedSol+amountSol > c.totalBudgetSol {
		return false
	}
	if c.dailyUsedSol+amountSol > c.dailyQuotaSol {
		return false
	}

	c.reservedSol += amountSol
	c.dailyUsedSol += amountSol
	c.reservations[positionID] = amountSol
	return true
}

// ReleaseCapital returns positionID's reservation to the pool (but not
// the day's used-quota, which is cumulative for the day regardless of
// whether the trade ultimately succeeded) and reports the amount
// released. A position with no active reservation releases 0.
func (c *CapitalManager) ReleaseCapital(positionID uuid.UUID) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount, ok := c.reservations[positionID]
	if !ok {
		return 0
	}
	delete(c.reservations, positionID)
	c.reservedSol -= amount
	return amount
}

// AvailableSol reports the unreserved portion of the wallet budget.
func (c *CapitalManager) AvailableSol() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBudgetSol - c.reservedSol
}

// DailyUsedSol reports how much of today's quota has been reserved so
// far (reservations count immediately, independent of trade outcome).
func (c *CapitalManager) DailyUsedSol(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfNewDayLocked(now)
	return c.dailyUsedSol
}
