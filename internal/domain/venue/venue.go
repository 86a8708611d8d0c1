// Package venue defines the Venue capability (spec.md §4.B) and the market
// data shapes it produces. No concrete HTTP-backed implementation lives in
// this repo — venue-specific clients are an external collaborator per
// spec.md §1 — but the interface and an in-memory fake (for tests) do.
package venue

import (
	"context"
	"time"
)

// Kind enumerates the venue types named by spec.md §3.
type Kind string

const (
	KindDexAmm       Kind = "dex_amm"
	KindBondingCurve Kind = "bonding_curve"
	KindLending      Kind = "lending"
	KindOrderbook    Kind = "orderbook"
)

// TokenData is an immutable-within-a-snapshot observation about one token
// (spec.md §3).
type TokenData struct {
	Mint               string
	Name               string
	Symbol             string
	GraduationProgress float64 // 0..100
	BondingCurveAddr   string
	MarketCapSol       float64
	Volume24hSol       float64
	Volume1hSol        float64
	HolderCount        int
	CreatedAt          time.Time
	LastTradeAt        time.Time
	Metadata           map[string]interface{}
}

// Signal is declared in package signal; VenueSnapshot references it by the
// minimal shape needed here to avoid an import cycle (venue is a leaf
// package per spec.md §3's ownership rules: Scanner/StrategyEngine own
// signals, Venue only produces raw observations scanners can turn into
// them).
type RawSignal struct {
	SignalType string
	TokenMint  string
	Metadata   map[string]interface{}
}

// Snapshot is an immutable, single-use-by-strategies view of one venue at a
// point in time (spec.md §3).
type Snapshot struct {
	VenueID   string
	VenueType Kind
	VenueName string
	Tokens    []TokenData
	Raw       []RawSignal
	Timestamp time.Time
	IsHealthy bool
}

// ProfitEstimate is returned by estimate_profit (spec.md §4.B).
type ProfitEstimate struct {
	ProfitBps      int
	ProfitLamports int64
}

// Quote is the contract returned by get_quote (spec.md §4.B).
type Quote struct {
	InputMint     string
	OutputMint    string
	InputAmount   int64
	OutputAmount  int64
	PriceImpactBp int
	RouteData     []byte
	ExpiresAt     time.Time
}

// Expired reports whether the quote may no longer be used.
func (q Quote) Expired(now time.Time) bool { return now.After(q.ExpiresAt) }

// QuoteParams parameterizes get_quote.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	InputAmount int64
	SlippageBps int
}

// Venue is the uniform capability every market-data source exposes (spec.md
// §4.B). Health must resolve in under 5s; implementations are expected to
// enforce that themselves via ctx.
type Venue interface {
	ID() string
	Type() Kind
	Name() string
	ScanForSignals(ctx context.Context) ([]RawSignal, error)
	EstimateProfit(ctx context.Context, sig RawSignal) (ProfitEstimate, error)
	GetQuote(ctx context.Context, params QuoteParams) (Quote, error)
	IsHealthy(ctx context.Context) bool
}

// HealthProbeTimeout is the floor from spec.md §5.
const HealthProbeTimeout = 5 * time.Second

// QuoteTimeout is the floor from spec.md §5.
const QuoteTimeout = 15 * time.Second

// MinQuoteValidity is spec.md §4.B's "expires_at (≥ 15s from now)" floor.
const MinQuoteValidity = 15 * time.Second
