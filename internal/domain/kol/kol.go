// Package kol tracks known-influential wallets ("key opinion leaders") for
// the KolCopy strategy. This is a feature supplemented from
// original_source/.../agents/strategies/kol_copy.rs per SPEC_FULL.md §2.3 —
// spec.md's distillation dropped KOL registry management. The KolCopy
// strategy does not read this registry: it takes trust scores from the
// KolTradeEvents pushed into its buffer.
package kol

import (
	"sync"
	"time"
)

// maxRecentTrades caps per-wallet trade history to bound memory, matching
// original_source/.../agents/strategies/kol_copy.rs's ring-buffer limit.
const maxRecentTrades = 1000

// Trade is one observed on-chain action by a tracked wallet.
type Trade struct {
	TokenMint string
	Side      string // "buy" or "sell"
	AmountSol float64
	Timestamp time.Time
}

// Wallet is a tracked KOL with a bounded recent-trade history.
type Wallet struct {
	Address      string
	Label        string
	WinRate      float64
	TrackedSince time.Time
	recent       []Trade
}

// RecentTrades returns a copy of w's trade history, most recent last.
func (w *Wallet) RecentTrades() []Trade {
	out := make([]Trade, len(w.recent))
	copy(out, w.recent)
	return out
}

func (w *Wallet) record(t Trade) {
	w.recent = append(w.recent, t)
	if len(w.recent) > maxRecentTrades {
		w.recent = w.recent[len(w.recent)-maxRecentTrades:]
	}
}

// Tracker is a concurrency-safe registry of tracked KOL wallets.
type Tracker struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{wallets: make(map[string]*Wallet)}
}

// Add registers a wallet for tracking, or updates its label if already
// tracked.
func (t *Tracker) Add(address, label string, trackedSince time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.wallets[address]; ok {
		w.Label = label
		return
	}
	t.wallets[address] = &Wallet{Address: address, Label: label, TrackedSince: trackedSince}
}

// Remove stops tracking a wallet.
func (t *Tracker) Remove(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.wallets, address)
}

// RecordTrade appends a trade to a tracked wallet's history. It is a no-op
// if address isn't tracked.
func (t *Tracker) RecordTrade(address string, trade Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.wallets[address]; ok {
		w.record(trade)
	}
}

// Get returns the tracked wallet, if any.
func (t *Tracker) Get(address string) (*Wallet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.wallets[address]
	return w, ok
}

// IsTracked reports whether address is a registered KOL.
func (t *Tracker) IsTracked(address string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.wallets[address]
	return ok
}

// Len returns the number of tracked wallets.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.wallets)
}
