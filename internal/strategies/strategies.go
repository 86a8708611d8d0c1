// Package strategies implements the Behavioral Strategies (spec.md §4.D):
// pluggable scanners that turn a venue snapshot (or, for push-fed
// strategies, a buffered event) into Signals. Grounded on
// original_source/.../agents/strategies/*.rs, each strategy carried over
// as a distinct Go type implementing the same BehavioralStrategy shape.
package strategies

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/signal"
	"github.com/arbfarm/swarm/internal/domain/venue"
)

// BehavioralStrategy is the uniform capability every strategy exposes to
// the Scanner (spec.md §4.D).
type BehavioralStrategy interface {
	StrategyType() string
	Name() string
	SupportedVenues() []venue.Kind
	Scan(ctx context.Context, snapshot venue.Snapshot) ([]signal.Signal, error)
	IsActive() bool
	SetActive(active bool)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// VolumeHunter flags tokens mid-curve with healthy trading volume (spec.md
// §4.D, ground-truthed on
// original_source/.../agents/strategies/volume_hunter.rs).
type VolumeHunter struct {
	active      atomic.Bool
	MinProgress float64
	MaxProgress float64
	MinVolumeSol float64
}

// NewVolumeHunter returns a VolumeHunter with original_source's defaults
// (min_progress=30.0, max_progress=85.0, min_volume_sol=1.0).
func NewVolumeHunter() *VolumeHunter {
	return &VolumeHunter{MinProgress: 30.0, MaxProgress: 85.0, MinVolumeSol: 1.0}
}

func (s *VolumeHunter) StrategyType() string { return "volume_hunter" }
func (s *VolumeHunter) Name() string         { return "Volume Hunter" }
func (s *VolumeHunter) SupportedVenues() []venue.Kind {
	return []venue.Kind{venue.KindBondingCurve}
}
func (s *VolumeHunter) IsActive() bool        { return s.active.Load() }
func (s *VolumeHunter) SetActive(active bool) { s.active.Store(active) }

func volumeHunterConfidence(progress, volumeSol float64, holders int) float64 {
	progressFactor := minF(progress/100.0, 1.0)
	volumeFactor := minF(volumeSol/10.0, 1.0)
	holderFactor := minF(float64(holders)/100.0, 1.0)
	return minF(progressFactor*0.5+volumeFactor*0.3+holderFactor*0.2, 1.0)
}

func volumeHunterProfitBps(progress float64) int {
	switch {
	case progress >= 80.0:
		return 500
	case progress >= 60.0:
		return 300
	case progress >= 40.0:
		return 200
	default:
		return 100
	}
}

func (s *VolumeHunter) Scan(ctx context.Context, snap venue.Snapshot) ([]signal.Signal, error) {
	var signals []signal.Signal
	now := time.Now().UTC()

	for _, token := range snap.Tokens {
		if token.GraduationProgress < s.MinProgress || token.GraduationProgress > s.MaxProgress {
			continue
		}
		if token.Volume24hSol < s.MinVolumeSol {
			continue
		}

		confidence := volumeHunterConfidence(token.GraduationProgress, token.Volume24hSol, token.HolderCount)

		var sig signal.Significance
		switch {
		case token.GraduationProgress >= 70.0 && confidence >= 0.7:
			sig = signal.SignificanceHigh
		case token.GraduationProgress >= 50.0 && confidence >= 0.5:
			sig = signal.SignificanceMedium
		default:
			sig = signal.SignificanceLow
		}

		signals = append(signals, signal.Signal{
			ID:                uuid.New(),
			SignalType:        signal.TypeCurveGraduation,
			VenueID:           snap.VenueID,
			VenueType:         snap.VenueType,
			TokenMint:         token.Mint,
			PoolAddress:       token.BondingCurveAddr,
			EstimatedProfitBp: volumeHunterProfitBps(token.GraduationProgress),
			Confidence:        confidence,
			Significance:      sig,
			Metadata: map[string]interface{}{
				"token_name":      token.Name,
				"token_symbol":    token.Symbol,
				"progress_percent": token.GraduationProgress,
				"volume_24h_sol":  token.Volume24hSol,
				"market_cap_sol":  token.MarketCapSol,
				"holder_count":    token.HolderCount,
				"strategy":        "volume_hunter",
			},
			DetectedAt: now,
			ExpiresAt:  now.Add(10 * time.Minute),
		})
	}

	return signals, nil
}

// GraduationSniper flags tokens on the verge of graduating (spec.md §4.D,
// ground-truthed on
// original_source/.../agents/strategies/graduation_sniper_strategy.rs).
type GraduationSniper struct {
	active               atomic.Bool
	MinProgress          float64
	MinVelocityThreshold float64
}

// NewGraduationSniper returns a GraduationSniper with original_source's
// defaults (min_progress=85.0, min_velocity_threshold=0.1), active by
// default (unlike VolumeHunter).
func NewGraduationSniper() *GraduationSniper {
	s := &GraduationSniper{MinProgress: 85.0, MinVelocityThreshold: 0.1}
	s.active.Store(true)
	return s
}

func (s *GraduationSniper) StrategyType() string { return "graduation_snipe" }
func (s *GraduationSniper) Name() string         { return "Graduation Sniper" }
func (s *GraduationSniper) SupportedVenues() []venue.Kind {
	return []venue.Kind{venue.KindBondingCurve}
}
func (s *GraduationSniper) IsActive() bool        { return s.active.Load() }
func (s *GraduationSniper) SetActive(active bool) { s.active.Store(active) }

func snipeConfidence(progress, velocity float64, holders int) float64 {
	progressFactor := clamp01((progress - 85.0) / 15.0)
	velocityFactor := minF(velocity*5.0, 1.0)

	if holders == 0 {
		return minF(progressFactor*0.75+velocityFactor*0.25, 1.0)
	}
	holderFactor := minF(float64(holders)/50.0, 1.0)
	return minF(progressFactor*0.6+velocityFactor*0.25+holderFactor*0.15, 1.0)
}

func snipeProfitBps(progress float64) int {
	switch {
	case progress >= 98.0:
		return 1500
	case progress >= 95.0:
		return 1000
	case progress >= 90.0:
		return 750
	default:
		return 500
	}
}

func (s *GraduationSniper) Scan(ctx context.Context, snap venue.Snapshot) ([]signal.Signal, error) {
	var signals []signal.Signal
	now := time.Now().UTC()

	for _, token := range snap.Tokens {
		if token.GraduationProgress < s.MinProgress || token.GraduationProgress > 100.0 {
			continue
		}

		var velocity float64
		if token.MarketCapSol > 0 {
			velocity = token.Volume24hSol / token.MarketCapSol
		}

		volumeAvailable := token.Volume24hSol > 0
		if volumeAvailable && velocity < s.MinVelocityThreshold && token.GraduationProgress < 95.0 {
			continue
		}

		confidence := snipeConfidence(token.GraduationProgress, velocity, token.HolderCount)

		var sig signal.Significance
		switch {
		case token.GraduationProgress >= 95.0:
			sig = signal.SignificanceCritical
		case token.GraduationProgress >= 90.0:
			sig = signal.SignificanceHigh
		default:
			sig = signal.SignificanceMedium
		}

		signals = append(signals, signal.Signal{
			ID:                uuid.New(),
			SignalType:        signal.TypeCurveGraduation,
			VenueID:           snap.VenueID,
			VenueType:         snap.VenueType,
			TokenMint:         token.Mint,
			PoolAddress:       token.BondingCurveAddr,
			EstimatedProfitBp: snipeProfitBps(token.GraduationProgress),
			Confidence:        confidence,
			Significance:      sig,
			Metadata: map[string]interface{}{
				"token_name":       token.Name,
				"token_symbol":     token.Symbol,
				"progress_percent": token.GraduationProgress,
				"velocity":         velocity,
				"volume_24h_sol":   token.Volume24hSol,
				"market_cap_sol":   token.MarketCapSol,
				"holder_count":     token.HolderCount,
				"strategy":         "graduation_sniper",
				"is_imminent":      token.GraduationProgress >= 95.0,
			},
			DetectedAt: now,
			ExpiresAt:  now.Add(5 * time.Minute),
		})
	}

	return signals, nil
}

// GraduationEvent is the push-fed trigger for RaydiumSnipe: a token has
// just graduated and its Raydium pool is live (ground-truthed on
// original_source/.../agents/strategies/raydium_snipe_strategy.rs).
type GraduationEvent struct {
	Mint         string
	Symbol       string
	Name         string
	RaydiumPool  string
	LastProgress float64
}

// RaydiumSnipe reacts to graduation events pushed by the Graduation
// Tracker rather than polling a venue snapshot (spec.md §4.D, ground-
// truthed on
// original_source/.../agents/strategies/raydium_snipe_strategy.rs).
type RaydiumSnipe struct {
	mu     sync.Mutex
	active atomic.Bool
	buffer []GraduationEvent
}

// NewRaydiumSnipe returns a RaydiumSnipe, active by default.
func NewRaydiumSnipe() *RaydiumSnipe {
	s := &RaydiumSnipe{}
	s.active.Store(true)
	return s
}

func (s *RaydiumSnipe) StrategyType() string { return "raydium_snipe" }
func (s *RaydiumSnipe) Name() string         { return "Raydium Snipe" }
func (s *RaydiumSnipe) SupportedVenues() []venue.Kind {
	return []venue.Kind{venue.KindDexAmm}
}
func (s *RaydiumSnipe) IsActive() bool        { return s.active.Load() }
func (s *RaydiumSnipe) SetActive(active bool) { s.active.Store(active) }

// PushGraduation buffers a graduation event for the next Scan to drain.
func (s *RaydiumSnipe) PushGraduation(evt GraduationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, evt)
}

// Scan ignores snap — RaydiumSnipe is entirely push-fed — and drains the
// buffered graduation events into signals.
func (s *RaydiumSnipe) Scan(ctx context.Context, snap venue.Snapshot) ([]signal.Signal, error) {
	s.mu.Lock()
	events := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	now := time.Now().UTC()
	signals := make([]signal.Signal, 0, len(events))
	for _, evt := range events {
		signals = append(signals, signal.Signal{
			ID:                uuid.New(),
			SignalType:        signal.TypeCurveGraduation,
			VenueID:           "",
			VenueType:         venue.KindDexAmm,
			TokenMint:         evt.Mint,
			PoolAddress:       evt.RaydiumPool,
			EstimatedProfitBp: 500,
			Confidence:        0.85,
			Significance:      signal.SignificanceCritical,
			Metadata: map[string]interface{}{
				"signal_source":    "raydium_snipe",
				"symbol":           evt.Symbol,
				"name":             evt.Name,
				"raydium_pool":     evt.RaydiumPool,
				"last_progress":    evt.LastProgress,
				"progress_percent": 100.0,
			},
			DetectedAt: now,
			ExpiresAt:  now.Add(60 * time.Second),
		})
	}

	return signals, nil
}

// TradeDirection enumerates a KOL trade's side.
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// KolTradeEvent is the push-fed trigger for KolCopy, mirroring the webhook
// payload shape in original_source/.../agents/strategies/
// kol_copy_strategy.rs.
type KolTradeEvent struct {
	KolWallet    string
	TokenMint    string
	Direction    TradeDirection
	AmountSol    float64
	TrustScore   float64
	KolName      string
	TxSignature  string
	DetectedAt   time.Time
}

// KolCopy mirrors tracked-wallet trades into signals, gated by trust
// score (spec.md §4.D, ground-truthed on
// original_source/.../agents/strategies/kol_copy_strategy.rs — including
// its deliberate choice to ship disabled-by-default/observation-mode
// until the unified Scanner→StrategyEngine→Executor pipeline is
// validated against the legacy direct-execution bypass it replaces).
type KolCopy struct {
	mu            sync.Mutex
	active        atomic.Bool
	buffer        []KolTradeEvent
	MinTrustScore float64
}

// NewKolCopy returns a KolCopy with original_source's default
// min_trust_score=60.0, disabled by default.
func NewKolCopy() *KolCopy {
	return &KolCopy{MinTrustScore: 60.0}
}

func (s *KolCopy) StrategyType() string { return "copy_trade" }
func (s *KolCopy) Name() string         { return "KOL Copy Trading" }
func (s *KolCopy) SupportedVenues() []venue.Kind {
	return []venue.Kind{venue.KindBondingCurve, venue.KindDexAmm}
}
func (s *KolCopy) IsActive() bool        { return s.active.Load() }
func (s *KolCopy) SetActive(active bool) { s.active.Store(active) }

// PushTrade buffers a KOL trade event for the next Scan to drain. This is
// the bridge between push-based wallet-activity webhooks and the Scanner's
// pull-based polling loop.
func (s *KolCopy) PushTrade(evt KolTradeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, evt)
}

func (s *KolCopy) Scan(ctx context.Context, snap venue.Snapshot) ([]signal.Signal, error) {
	s.mu.Lock()
	events := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	var signals []signal.Signal
	for _, evt := range events {
		if evt.TrustScore < s.MinTrustScore {
			continue
		}

		confidence := minF(evt.TrustScore/100.0, 1.0)

		var sig signal.Significance
		switch {
		case evt.TrustScore >= 90.0:
			sig = signal.SignificanceCritical
		case evt.TrustScore >= 75.0:
			sig = signal.SignificanceHigh
		default:
			sig = signal.SignificanceMedium
		}

		signals = append(signals, signal.Signal{
			ID:                uuid.New(),
			SignalType:        signal.TypeKolTrade,
			VenueID:           "",
			VenueType:         venue.KindBondingCurve,
			TokenMint:         evt.TokenMint,
			EstimatedProfitBp: 500,
			Confidence:        confidence,
			Significance:      sig,
			Metadata: map[string]interface{}{
				"signal_source":   "kol_copy",
				"kol_wallet":      evt.KolWallet,
				"kol_name":        evt.KolName,
				"trade_direction": string(evt.Direction),
				"amount_sol":      evt.AmountSol,
				"trust_score":     evt.TrustScore,
				"tx_signature":    evt.TxSignature,
			},
			DetectedAt: evt.DetectedAt,
			ExpiresAt:  evt.DetectedAt.Add(30 * time.Second),
		})
	}

	return signals, nil
}
