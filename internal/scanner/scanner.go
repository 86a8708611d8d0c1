// Package scanner implements the Scanner (spec.md §4.E): a ticker-driven
// loop that polls every registered Venue, runs each active strategy over
// the resulting snapshot, deduplicates signals, and publishes the survivors
// to the Event Bus. Grounded on services/automation/automation_service.go's
// ticker/stopCh scheduler-loop pattern and
// original_source/.../handlers/scanner.rs's status/stats shape and
// operations (start/stop/scan_once/get_signals_by_venue/
// get_high_confidence_signals).
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/signal"
	"github.com/arbfarm/swarm/internal/domain/venue"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/platform/metrics"
	"github.com/arbfarm/swarm/internal/strategies"
)

// DefaultScanInterval is the Scanner's default poll cadence (spec.md §4.E).
const DefaultScanInterval = 1000 * time.Millisecond

// dedupTTL bounds how long a signal's dedup key stays remembered, so a
// stale entry for a token that hasn't resurfaced doesn't leak memory
// forever (spec.md §4.E only specifies the dedup key shape, not a TTL; we
// pick one tied to the longest strategy signal TTL observed, 10 minutes,
// with headroom).
const dedupTTL = 15 * time.Minute

// Stats mirrors original_source/.../handlers/scanner.rs's ScannerStats.
type Stats struct {
	TotalScans           uint64
	TotalSignalsDetected uint64
	LastScanAt           time.Time
	HealthyVenues        int
	TotalVenues          int
}

// VenueStatus mirrors original_source/.../handlers/scanner.rs's
// VenueStatus.
type VenueStatus struct {
	ID        string
	Name      string
	VenueType venue.Kind
	IsHealthy bool
}

type dedupEntry struct {
	seenAt       time.Time
	confidence   float64
	significance signal.Significance
}

// significanceRank orders signal.Significance for the "significance
// increases" re-publish rule (spec.md §4.E).
var significanceRank = map[signal.Significance]int{
	signal.SignificanceLow:      0,
	signal.SignificanceMedium:   1,
	signal.SignificanceHigh:     2,
	signal.SignificanceCritical: 3,
}

// Scanner owns the venue/strategy registries and the poll loop.
type Scanner struct {
	bus  *eventbus.Bus
	log  *logging.Logger
	interval time.Duration

	mu         sync.RWMutex
	venues     map[string]venue.Venue
	strategies []strategies.BehavioralStrategy
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}

	statsMu sync.Mutex
	stats   Stats

	dedupMu sync.Mutex
	dedup   map[signal.DedupKey]dedupEntry

	recentMu sync.Mutex
	recent   []signal.Signal // bounded ring of the most recent signals, for get_signals_by_venue-style queries
}

const maxRecentSignals = 1000

// New constructs a Scanner polling every interval (DefaultScanInterval if
// zero).
func New(bus *eventbus.Bus, log *logging.Logger, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scanner{
		bus:      bus,
		log:      log,
		interval: interval,
		venues:   make(map[string]venue.Venue),
		dedup:    make(map[signal.DedupKey]dedupEntry),
	}
}

// RegisterVenue adds a venue to be polled each scan tick.
func (s *Scanner) RegisterVenue(v venue.Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.venues[v.ID()] = v
}

// UnregisterVenue removes a venue from the poll set.
func (s *Scanner) UnregisterVenue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.venues, id)
}

// RegisterStrategy adds a strategy to be run over every venue snapshot
// whose type it supports.
func (s *Scanner) RegisterStrategy(strat strategies.BehavioralStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = append(s.strategies, strat)
}

// Start begins the poll loop in a background goroutine, returning once
// it's running. Stop via ctx cancellation or Stop().
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the poll loop and waits for it to exit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil {
				s.log.WithContext(ctx).WithError(err).Error("scan tick failed")
			}
		}
	}
}

// ScanOnce runs one full poll+strategy+dedup+publish cycle and returns the
// newly surfaced (non-duplicate) signals.
func (s *Scanner) ScanOnce(ctx context.Context) ([]signal.Signal, error) {
	start := time.Now()
	defer func() {
		metrics.ScanTickDuration.Observe(time.Since(start).Seconds())
	}()

	s.mu.RLock()
	venues := make([]venue.Venue, 0, len(s.venues))
	for _, v := range s.venues {
		venues = append(venues, v)
	}
	strats := make([]strategies.BehavioralStrategy, len(s.strategies))
	copy(strats, s.strategies)
	s.mu.RUnlock()

	healthy := 0
	var candidates []signal.Signal
	now := time.Now().UTC()

	for _, v := range venues {
		healthCtx, cancel := context.WithTimeout(ctx, venue.HealthProbeTimeout)
		ok := v.IsHealthy(healthCtx)
		cancel()
		if ok {
			healthy++
		}

		rawSignals, err := v.ScanForSignals(ctx)
		if err != nil {
			s.log.WithContext(ctx).WithField("venue", v.ID()).WithError(err).Warn("venue scan failed")
			continue
		}

		snap := venue.Snapshot{
			VenueID:   v.ID(),
			VenueType: v.Type(),
			VenueName: v.Name(),
			Raw:       rawSignals,
			Timestamp: now,
			IsHealthy: ok,
		}

		for _, strat := range strats {
			if !strat.IsActive() {
				continue
			}
			if !supportsVenue(strat, v.Type()) {
				continue
			}
			sigs, err := strat.Scan(ctx, snap)
			if err != nil {
				s.log.WithContext(ctx).WithField("strategy", strat.StrategyType()).WithError(err).Warn("strategy scan failed")
				continue
			}
			for _, sig := range sigs {
				if !sig.Valid() || sig.Expired(now) {
					continue
				}
				candidates = append(candidates, sig)
			}
		}
	}

	fresh := s.dedupTick(candidates, now)
	s.publishAndRecord(ctx, fresh)

	s.statsMu.Lock()
	s.stats.TotalScans++
	s.stats.TotalSignalsDetected += uint64(len(fresh))
	s.stats.LastScanAt = now
	s.stats.HealthyVenues = healthy
	s.stats.TotalVenues = len(venues)
	s.statsMu.Unlock()

	return fresh, nil
}

func supportsVenue(strat strategies.BehavioralStrategy, kind venue.Kind) bool {
	for _, k := range strat.SupportedVenues() {
		if k == kind {
			return true
		}
	}
	return false
}

// dedupTick applies spec.md §4.E's two-stage deduplication to one tick's
// candidate signals. Within the tick, same-key candidates are collapsed to
// the highest-confidence one. Across ticks, a same-key signal still within
// dedupTTL of its last publish is suppressed unless its confidence rose by
// at least 0.1 or its significance increased — otherwise it is republished
// and becomes the new baseline for the key.
func (s *Scanner) dedupTick(candidates []signal.Signal, now time.Time) []signal.Signal {
	byKey := make(map[signal.DedupKey]signal.Signal, len(candidates))
	order := make([]signal.DedupKey, 0, len(candidates))
	for _, sig := range candidates {
		key := sig.Key()
		best, ok := byKey[key]
		if !ok {
			order = append(order, key)
			byKey[key] = sig
			continue
		}
		if sig.Confidence > best.Confidence {
			byKey[key] = sig
		}
	}

	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()

	for k, entry := range s.dedup {
		if now.Sub(entry.seenAt) > dedupTTL {
			delete(s.dedup, k)
		}
	}

	fresh := make([]signal.Signal, 0, len(order))
	for _, key := range order {
		sig := byKey[key]

		prev, seen := s.dedup[key]
		if seen {
			confidenceRose := sig.Confidence-prev.confidence >= 0.1
			significanceRose := significanceRank[sig.Significance] > significanceRank[prev.significance]
			if !confidenceRose && !significanceRose {
				continue
			}
		}

		s.dedup[key] = dedupEntry{seenAt: now, confidence: sig.Confidence, significance: sig.Significance}
		fresh = append(fresh, sig)
	}
	return fresh
}

func (s *Scanner) publishAndRecord(ctx context.Context, sigs []signal.Signal) {
	if len(sigs) == 0 {
		return
	}

	s.recentMu.Lock()
	s.recent = append(s.recent, sigs...)
	if len(s.recent) > maxRecentSignals {
		s.recent = s.recent[len(s.recent)-maxRecentSignals:]
	}
	s.recentMu.Unlock()

	for _, sig := range sigs {
		metrics.SignalsPublished.WithLabelValues(string(sig.SignalType)).Inc()

		evt, err := event.New(string(sig.SignalType), event.AgentSource(event.AgentScanner), event.TopicScannerSignalDetect, sig)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Error("failed to build signal event")
			continue
		}
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.log.WithContext(ctx).WithError(err).Error("failed to publish signal event")
		}
	}
}

// Status returns the Scanner's current stats and the registered venues,
// mirroring original_source/.../handlers/scanner.rs's get_scanner_status.
// VenueStatus.IsHealthy is not filled in and stays false; the number of
// venues that were healthy at the last scan is Stats.HealthyVenues.
func (s *Scanner) Status() ([]VenueStatus, Stats) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]VenueStatus, 0, len(s.venues))
	for _, v := range s.venues {
		statuses = append(statuses, VenueStatus{ID: v.ID(), Name: v.Name(), VenueType: v.Type()})
	}

	s.statsMu.Lock()
	stats := s.stats
	s.statsMu.Unlock()

	return statuses, stats
}

// SignalsByVenueType returns the most recent buffered signals for a given
// venue type, matching original_source/.../handlers/scanner.rs's
// get_signals_by_venue.
func (s *Scanner) SignalsByVenueType(kind venue.Kind) []signal.Signal {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	var out []signal.Signal
	for _, sig := range s.recent {
		if sig.VenueType == kind {
			out = append(out, sig)
		}
	}
	return out
}

// HighConfidenceSignals returns the most recent buffered signals whose
// confidence is at least minConfidence, matching
// original_source/.../handlers/scanner.rs's get_high_confidence_signals.
func (s *Scanner) HighConfidenceSignals(minConfidence float64) []signal.Signal {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	var out []signal.Signal
	for _, sig := range s.recent {
		if sig.Confidence >= minConfidence {
			out = append(out, sig)
		}
	}
	return out
}

// IsRunning reports whether the poll loop is active.
func (s *Scanner) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
