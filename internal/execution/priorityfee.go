package execution

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultPriorityFeePollInterval matches spec.md §4.J's default polling
// cadence for getPriorityFeeEstimate.
const DefaultPriorityFeePollInterval = 10 * time.Second

// PriorityLevel is one of the six priority-fee tiers
// (original_source/.../helius/priority_fee.rs's PriorityLevel).
type PriorityLevel string

const (
	PriorityMin       PriorityLevel = "min"
	PriorityLow       PriorityLevel = "low"
	PriorityMedium    PriorityLevel = "medium"
	PriorityHigh      PriorityLevel = "high"
	PriorityVeryHigh  PriorityLevel = "veryHigh"
	PriorityUnsafeMax PriorityLevel = "unsafeMax"
)

// PriorityFees holds the six fee-per-compute-unit estimates for one poll.
type PriorityFees struct {
	Min          uint64
	Low          uint64
	Medium       uint64
	High         uint64
	VeryHigh     uint64
	UnsafeMax    uint64
	Recommended  uint64
	FetchedAt    time.Time
}

// Get returns the fee for one tier.
func (f PriorityFees) Get(level PriorityLevel) uint64 {
	switch level {
	case PriorityMin:
		return f.Min
	case PriorityLow:
		return f.Low
	case PriorityMedium:
		return f.Medium
	case PriorityHigh:
		return f.High
	case PriorityVeryHigh:
		return f.VeryHigh
	case PriorityUnsafeMax:
		return f.UnsafeMax
	default:
		return f.Min
	}
}

// PriorityFeeMonitor polls getPriorityFeeEstimate on an interval and
// caches the last result (spec.md §4.J). Grounded on
// original_source/.../helius/priority_fee.rs's PriorityFeeMonitor.
type PriorityFeeMonitor struct {
	httpClient   *http.Client
	rpcURL       string
	pollInterval time.Duration

	mu     sync.RWMutex
	cached *PriorityFees

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPriorityFeeMonitor constructs a monitor against rpcURL with the
// default poll interval.
func NewPriorityFeeMonitor(rpcURL string) *PriorityFeeMonitor {
	return &PriorityFeeMonitor{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		rpcURL:       rpcURL,
		pollInterval: DefaultPriorityFeePollInterval,
	}
}

// WithPollInterval overrides the monitor's poll cadence.
func (m *PriorityFeeMonitor) WithPollInterval(interval time.Duration) *PriorityFeeMonitor {
	m.pollInterval = interval
	return m
}

// Fetch calls getPriorityFeeEstimate once and caches the result.
func (m *PriorityFeeMonitor) Fetch(ctx context.Context) (PriorityFees, error) {
	body, err := rpcCall(ctx, m.httpClient, m.rpcURL, "getPriorityFeeEstimate", []interface{}{
		map[string]interface{}{
			"options": map[string]interface{}{
				"recommended":             true,
				"includeAllPriorityFeeLevels": true,
			},
		},
	})
	if err != nil {
		// The original returns a flat 5000-lamport default rather than
		// propagating the error on a non-success status; fetch-loop
		// callers treat a failed poll the same way by simply keeping the
		// last cached value, so we surface the error here and let Cached
		// fall back to whatever was last cached (or the hard default).
		return PriorityFees{}, err
	}

	levels := gjson.GetBytes(body, "result.priorityFeeLevels")
	fees := PriorityFees{
		Min:         levels.Get("min").Uint(),
		Low:         levels.Get("low").Uint(),
		Medium:      levels.Get("medium").Uint(),
		High:        levels.Get("high").Uint(),
		VeryHigh:    levels.Get("veryHigh").Uint(),
		UnsafeMax:   levels.Get("unsafeMax").Uint(),
		Recommended: gjson.GetBytes(body, "result.priorityFeeEstimate").Uint(),
		FetchedAt:   time.Now(),
	}
	if fees.Recommended == 0 {
		fees.Recommended = fees.Medium
	}

	m.mu.Lock()
	m.cached = &fees
	m.mu.Unlock()

	return fees, nil
}

// Cached returns the last successfully fetched fees, or defaultFees
// (5000 lamports flat, per the original's fallback) if nothing has been
// fetched yet.
func (m *PriorityFeeMonitor) Cached() PriorityFees {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cached == nil {
		return defaultFees()
	}
	return *m.cached
}

func defaultFees() PriorityFees {
	return PriorityFees{Min: 5000, Low: 5000, Medium: 5000, High: 5000, VeryHigh: 5000, UnsafeMax: 5000, Recommended: 5000}
}

// Start runs the polling loop until ctx is cancelled or Stop is called.
func (m *PriorityFeeMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop halts the polling loop and waits for it to exit.
func (m *PriorityFeeMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh
}

func (m *PriorityFeeMonitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			_, _ = m.Fetch(ctx)
		}
	}
}

// SelectTierForProfit picks a priority-fee tier from expected profit in
// SOL, per spec.md §4.J's exact thresholds.
func SelectTierForProfit(estimatedProfitLamports int64, fees PriorityFees) (PriorityLevel, uint64) {
	profitSol := float64(estimatedProfitLamports) / 1_000_000_000.0

	switch {
	case profitSol >= 1.0:
		return PriorityVeryHigh, fees.VeryHigh
	case profitSol >= 0.5:
		return PriorityHigh, fees.High
	case profitSol >= 0.1:
		return PriorityMedium, fees.Medium
	case profitSol >= 0.01:
		return PriorityLow, fees.Low
	default:
		return PriorityMin, fees.Min
	}
}
