package graduationtracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/graduation"
	"github.com/arbfarm/swarm/internal/domain/venue"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/strategies"
)

type fakeRepo struct{}

func (f *fakeRepo) SaveEvent(ctx context.Context, evt event.ArbEvent) error { return nil }
func (f *fakeRepo) EventsByTopic(ctx context.Context, p string, l int) ([]event.ArbEvent, error) {
	return nil, nil
}
func (f *fakeRepo) EventsSince(ctx context.Context, id string, t []string, l int) ([]event.ArbEvent, error) {
	return nil, nil
}

type stepFetcher struct {
	steps map[string][]float64
	calls map[string]int
}

func (f *stepFetcher) FetchProgress(ctx context.Context, mint string) (float64, string, error) {
	seq := f.steps[mint]
	i := f.calls[mint]
	if i >= len(seq) {
		i = len(seq) - 1
	}
	f.calls[mint]++
	progress := seq[i]
	pool := ""
	if progress >= 100 {
		pool = "raydium-pool-" + mint
	}
	return progress, pool, nil
}

func newTracker(fetcher ProgressFetcher) (*Tracker, *strategies.RaydiumSnipe) {
	bus := eventbus.New(&fakeRepo{}, logging.New("test", "error", "text"))
	snipe := strategies.NewRaydiumSnipe()
	tr := New(DefaultConfig(), fetcher, bus, snipe, logging.New("test", "error", "text"))
	return tr, snipe
}

func TestTracker_MovesToFastTierNearThreshold(t *testing.T) {
	fetcher := &stepFetcher{steps: map[string][]float64{"M": {92.0}}, calls: map[string]int{}}
	tr, _ := newTracker(fetcher)
	now := time.Now().UTC()
	tr.Track("M", "curve-addr", now)

	tr.pollOne(context.Background(), "M")

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, graduation.TierFast, snap[0].Tier)
}

func TestTracker_GraduationPushesSnipeEventAndEvicts(t *testing.T) {
	fetcher := &stepFetcher{steps: map[string][]float64{"M": {100.0}}, calls: map[string]int{}}
	tr, snipe := newTracker(fetcher)
	now := time.Now().UTC()
	tr.Track("M", "curve-addr", now)

	tr.pollOne(context.Background(), "M")

	sigs, err := snipe.Scan(context.Background(), venue.Snapshot{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "M", sigs[0].TokenMint)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, graduation.TierEvicted, snap[0].Tier)
	assert.NotNil(t, snap[0].GraduatedAt)
}

func TestTracker_PollUpdatesVelocity(t *testing.T) {
	fetcher := &stepFetcher{steps: map[string][]float64{"M": {40.0, 52.0}}, calls: map[string]int{}}
	tr, _ := newTracker(fetcher)
	now := time.Now().UTC().Add(-30 * time.Minute)
	tr.Track("M", "curve-addr", now)

	tr.pollOne(context.Background(), "M")
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	// Track left GraduationProgress at 0 and LastPolledAt ~30min ago, so this
	// first poll's velocity is (40-0)/0.5h = 80 progress points/hour.
	assert.InDelta(t, 80.0, snap[0].Velocity, 5.0)

	tr.pollOne(context.Background(), "M")
	snap = tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Greater(t, snap[0].Velocity, 0.0, "velocity must reflect the most recent Δprogress/Δtime")
}

func TestTracker_StaleLowProgressTokenIsEvicted(t *testing.T) {
	tr, _ := newTracker(&stepFetcher{steps: map[string][]float64{}, calls: map[string]int{}})
	old := time.Now().UTC().Add(-48 * time.Hour)
	tr.Track("stale", "addr", old)
	tr.tokens["stale"].LastProgressAt = old
	tr.tokens["stale"].GraduationProgress = 5.0

	tr.evict(time.Now().UTC())

	assert.Empty(t, tr.Snapshot())
}
