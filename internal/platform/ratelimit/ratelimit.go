// Package ratelimit provides per-venue and per-consensus-provider throttling.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig is conservative enough for a single venue's quote endpoint.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Limiter wraps golang.org/x/time/rate with a second-tier per-minute cap, so
// a venue that tolerates short bursts but not a sustained high rate can still
// be protected.
type Limiter struct {
	mu        sync.RWMutex
	perSecond *rate.Limiter
	perMinute *rate.Limiter
	config    Config
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{
		perSecond: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		perMinute: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond*60), cfg.Burst*2),
		config:    cfg,
	}
}

func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.perSecond.Allow() && l.perMinute.Allow()
}

// Wait blocks until a token is available or ctx is cancelled — used by
// internal/llmclient before each provider request.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.perSecond.Wait(ctx); err != nil {
		return err
	}
	return l.perMinute.Wait(ctx)
}

func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perSecond = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
	l.perMinute = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond*60), l.config.Burst*2)
}
