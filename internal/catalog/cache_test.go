package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCacheSingleFlightOnColdCache(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	f := FetcherFunc(func(ctx context.Context) ([]Project, error) {
		calls.Add(1)
		<-release
		return []Project{{Key: "AIT", Name: "AITECH"}}, nil
	})
	c := NewCache(f, time.Hour)

	const n = 32
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]*Snapshot, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = c.Get(context.Background())
		}(i)
	}
	started.Wait()
	// Give the goroutines time to join the flight before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, "AITECH", results[0].Projects["AIT"].Name)
}

func TestCacheServesWithinTTLAndRefetchesAfter(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	f := FetcherFunc(func(ctx context.Context) ([]Project, error) {
		calls.Add(1)
		return []Project{{Key: "A", Name: "Alpha"}}, nil
	})
	c := NewCache(f, time.Hour, WithClock(clock.Now))

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(59 * time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheKeepsStaleSnapshotOnFailure(t *testing.T) {
	clock := newClock()
	boom := errors.New("boom")
	var fail atomic.Bool
	f := FetcherFunc(func(ctx context.Context) ([]Project, error) {
		if fail.Load() {
			return nil, boom
		}
		return []Project{{Key: "A", Name: "Alpha"}}, nil
	})
	c := NewCache(f, time.Minute, WithClock(clock.Now))

	first, err := c.Get(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	clock.Advance(2 * time.Minute)
	stale, err := c.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, first, stale)
	assert.Same(t, first, c.Peek())

	// Recovery on the next call.
	fail.Store(false)
	fresh, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
}

func TestCacheFailureWithoutSnapshot(t *testing.T) {
	c := NewCache(FetcherFunc(func(ctx context.Context) ([]Project, error) {
		return nil, errors.New("down")
	}), 0)

	snap, err := c.Get(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Nil(t, c.Peek())
	assert.Equal(t, DefaultTTL, c.TTL())
}

func TestCacheClearForcesRefetch(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(FetcherFunc(func(ctx context.Context) ([]Project, error) {
		calls.Add(1)
		return []Project{{Key: "A", Name: "Alpha"}}, nil
	}), time.Hour)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	c.Clear()
	assert.NotNil(t, c.Peek(), "clear keeps the last snapshot readable")
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(2), c.Fetches())
}

func TestCacheWaiterHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := NewCache(FetcherFunc(func(ctx context.Context) ([]Project, error) {
		<-release
		return nil, nil
	}), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestSnapshotNormalizesProjects(t *testing.T) {
	c := NewCache(FetcherFunc(func(ctx context.Context) ([]Project, error) {
		return []Project{
			{Key: "ZED", Name: "Zed"},
			{Key: "", Name: "no key"},
			{Key: " AIT ", Name: " Old "},
			{Key: "AIT", Name: "AITECH"},
			{Key: "BIL", Name: "Billing", Description: "  Payments  "},
		}, nil
	}), time.Hour)

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, []string{"AIT", "BIL", "ZED"}, snap.Keys())
	assert.Equal(t, "AITECH", snap.Projects["AIT"].Name, "last duplicate wins")
	assert.Equal(t, "Payments", snap.Projects["BIL"].Description)

	sorted := snap.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "BIL", sorted[1].Key)
	assert.Contains(t, snap.Variants["BIL"], "Payments")
}

func TestBuildVariants(t *testing.T) {
	v := BuildVariants(Project{Key: "AIT", Name: "AITECH"})
	assert.Equal(t, VariantSet{"AIT", "ait", "AITECH", "aitech", "АИТЕЧ", "аитеч", "АИТ", "аит"}, v)

	v = BuildVariants(Project{Key: "MSK", Name: "Москва"})
	assert.Contains(t, v, "Москва")
	assert.Contains(t, v, "москва")
	assert.Contains(t, v, "Moskva")
	assert.Contains(t, v, "moskva")
	assert.Contains(t, v, "MOSKVA")

	seen := map[string]bool{}
	for _, s := range v {
		assert.False(t, seen[s], "duplicate variant %q", s)
		seen[s] = true
	}
}

func TestSnapshotExpiredNil(t *testing.T) {
	var s *Snapshot
	assert.True(t, s.Expired(time.Now()))
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Keys())
}
