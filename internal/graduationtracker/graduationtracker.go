// Package graduationtracker implements the Graduation Tracker (spec.md
// §4.C): a tiered-cadence poll loop over bonding-curve tokens approaching
// graduation. Grounded on services/automation/automation_service.go's
// ticker/stopCh scheduler loop, with a tiered dispatch in the spirit of its
// runScheduler/runChainTriggerChecker split (fast vs. normal cadence
// instead of time- vs. chain-triggers).
package graduationtracker

import (
	"context"
	"sync"
	"time"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/graduation"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/strategies"
)

// ProgressFetcher queries a token's current graduation progress and, once
// graduated, its Raydium pool address. This is the "on-chain-fetcher
// collaborator" spec.md §4.C defers to an external component.
type ProgressFetcher interface {
	FetchProgress(ctx context.Context, mint string) (progress float64, raydiumPool string, err error)
}

// Config bounds the tracker's polling behavior (spec.md §6 defaults).
type Config struct {
	GraduationThreshold float64       // default 85.0; Fast tier kicks in at threshold-5
	FastPollInterval    time.Duration // default 500ms
	NormalPollInterval  time.Duration // default 5000ms
	EvictionWindow      time.Duration // default 24h
}

// DefaultConfig matches spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		GraduationThreshold: 85.0,
		FastPollInterval:    500 * time.Millisecond,
		NormalPollInterval:  5000 * time.Millisecond,
		EvictionWindow:      24 * time.Hour,
	}
}

// Tracker polls tracked tokens on a tiered cadence and raises graduation
// events.
type Tracker struct {
	cfg     Config
	fetcher ProgressFetcher
	bus     *eventbus.Bus
	snipe   *strategies.RaydiumSnipe
	log     *logging.Logger

	mu     sync.Mutex
	tokens map[string]*graduation.TrackedToken

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Tracker. snipe is the RaydiumSnipeStrategy whose buffer
// receives GraduationEvents on full graduation (spec.md §4.C).
func New(cfg Config, fetcher ProgressFetcher, bus *eventbus.Bus, snipe *strategies.RaydiumSnipe, log *logging.Logger) *Tracker {
	return &Tracker{
		cfg:     cfg,
		fetcher: fetcher,
		bus:     bus,
		snipe:   snipe,
		log:     log,
		tokens:  make(map[string]*graduation.TrackedToken),
	}
}

// Track begins watching mint at the Normal tier. A no-op if already
// tracked.
func (t *Tracker) Track(mint, bondingCurveAddr string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tokens[mint]; ok {
		return
	}
	t.tokens[mint] = &graduation.TrackedToken{
		Mint:             mint,
		BondingCurveAddr: bondingCurveAddr,
		Tier:             graduation.TierNormal,
		FirstSeenAt:      now,
		LastPolledAt:     now,
		LastProgressAt:   now,
	}
}

// Start runs the tiered poll loop until ctx is cancelled or Stop is
// called.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	go t.run(ctx)
}

// Stop halts the poll loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	doneCh := t.doneCh
	t.mu.Unlock()

	<-doneCh
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.doneCh)

	fastTicker := time.NewTicker(t.cfg.FastPollInterval)
	defer fastTicker.Stop()
	normalTicker := time.NewTicker(t.cfg.NormalPollInterval)
	defer normalTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-fastTicker.C:
			t.pollTier(ctx, graduation.TierFast)
		case <-normalTicker.C:
			t.pollTier(ctx, graduation.TierNormal)
			t.evict(time.Now().UTC())
		}
	}
}

func (t *Tracker) pollTier(ctx context.Context, tier graduation.Tier) {
	t.mu.Lock()
	var mints []string
	for mint, tok := range t.tokens {
		if tok.Tier == tier {
			mints = append(mints, mint)
		}
	}
	t.mu.Unlock()

	for _, mint := range mints {
		t.pollOne(ctx, mint)
	}
}

func (t *Tracker) pollOne(ctx context.Context, mint string) {
	progress, raydiumPool, err := t.fetcher.FetchProgress(ctx, mint)
	if err != nil {
		t.log.WithContext(ctx).WithField("mint", mint).WithError(err).Warn("graduation progress fetch failed")
		return
	}

	now := time.Now().UTC()

	t.mu.Lock()
	tok, ok := t.tokens[mint]
	if !ok {
		t.mu.Unlock()
		return
	}

	prevProgress := tok.GraduationProgress
	graduatedNow := prevProgress < 100.0 && progress >= 100.0

	*tok = tok.WithVelocity(progress, now)
	tok.LastPolledAt = now
	tok.GraduationProgress = progress
	if progress != prevProgress {
		tok.LastProgressAt = now
	}

	if graduatedNow {
		tok.GraduatedAt = &now
		tok.Tier = graduation.TierEvicted
	} else if progress >= t.cfg.GraduationThreshold-5.0 {
		tok.Tier = graduation.TierFast
	}
	snapshot := *tok
	t.mu.Unlock()

	if graduatedNow {
		t.snipe.PushGraduation(strategies.GraduationEvent{
			Mint:         mint,
			RaydiumPool:  raydiumPool,
			LastProgress: prevProgress,
		})

		evt, err := event.New("curve.graduated", event.AgentSource(event.AgentOverseer), event.TopicCurveGraduated, snapshot)
		if err == nil {
			if pubErr := t.bus.Publish(ctx, evt); pubErr != nil {
				t.log.WithContext(ctx).WithError(pubErr).Error("failed to publish graduation event")
			}
		}
	}
}

// evict drops tokens that have gone stale (spec.md §4.C: progress < 30% and
// last_checked older than eviction_hours).
func (t *Tracker) evict(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for mint, tok := range t.tokens {
		if tok.GraduationProgress >= 30.0 {
			continue
		}
		if tok.ShouldEvict(now, t.cfg.EvictionWindow) {
			delete(t.tokens, mint)
		}
	}
}

// Snapshot returns a copy of the current tracked-token set, for reporting.
func (t *Tracker) Snapshot() []graduation.TrackedToken {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]graduation.TrackedToken, 0, len(t.tokens))
	for _, tok := range t.tokens {
		out = append(out, *tok)
	}
	return out
}
