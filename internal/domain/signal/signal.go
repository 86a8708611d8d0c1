// Package signal defines the Signal entity (spec.md §3).
package signal

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/venue"
)

// Type enumerates the signal types named by spec.md §3.
type Type string

const (
	TypePriceDiscrepancy Type = "price_discrepancy"
	TypeVolumeSpike      Type = "volume_spike"
	TypeLiquidityChange  Type = "liquidity_change"
	TypeNewToken         Type = "new_token"
	TypeCurveGraduation  Type = "curve_graduation"
	TypeLargeOrder       Type = "large_order"
	TypeLiquidation      Type = "liquidation"
	TypePoolImbalance    Type = "pool_imbalance"
	TypeDexArb           Type = "dex_arb"
	TypeJitLiquidity     Type = "jit_liquidity"
	TypeBackrun          Type = "backrun"
	TypeKolTrade         Type = "kol_trade"
)

// Significance enumerates the tiers named by spec.md §3.
type Significance string

const (
	SignificanceLow      Significance = "low"
	SignificanceMedium   Significance = "medium"
	SignificanceHigh     Significance = "high"
	SignificanceCritical Significance = "critical"
)

// Signal is a time-bounded observation about market state (spec.md §3).
type Signal struct {
	ID                uuid.UUID
	SignalType        Type
	VenueID           string
	VenueType         venue.Kind
	TokenMint         string // optional, empty if not applicable
	PoolAddress       string // optional
	EstimatedProfitBp int    // can be negative
	Confidence        float64
	Significance      Significance
	Metadata          map[string]interface{}
	DetectedAt        time.Time
	ExpiresAt         time.Time
}

// Valid enforces spec.md §3's signal invariants: detected_at ≤ expires_at and
// 0 ≤ confidence ≤ 1.
func (s Signal) Valid() bool {
	if s.DetectedAt.After(s.ExpiresAt) {
		return false
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return false
	}
	return true
}

// Expired reports whether the signal has passed its expiry at the given
// instant. Expired signals MUST NOT produce edges (spec.md §3).
func (s Signal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// DedupKey is the Scanner's deduplication key (spec.md §4.E):
// (signal_type, venue_id, token_mint, pool_address).
type DedupKey struct {
	SignalType  Type
	VenueID     string
	TokenMint   string
	PoolAddress string
}

func (s Signal) Key() DedupKey {
	return DedupKey{
		SignalType:  s.SignalType,
		VenueID:     s.VenueID,
		TokenMint:   s.TokenMint,
		PoolAddress: s.PoolAddress,
	}
}
