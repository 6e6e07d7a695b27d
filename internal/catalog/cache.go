package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/golovatskygroup/jira-lens/internal/logging"
)

// ErrUpstreamUnavailable wraps every failed catalog fetch.
var ErrUpstreamUnavailable = errors.New("project catalog unavailable")

const (
	DefaultTTL          = time.Hour
	defaultFetchTimeout = 2 * time.Minute
)

// Fetcher returns every project visible to the configured account.
type Fetcher interface {
	FetchProjects(ctx context.Context) ([]Project, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]Project, error)

func (f FetcherFunc) FetchProjects(ctx context.Context) ([]Project, error) { return f(ctx) }

// Cache serves catalog snapshots for up to TTL and coalesces concurrent refetches into one
// upstream call. A failed fetch never replaces the last good snapshot.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	group      singleflight.Group
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	fetches    atomic.Int64
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFetchTimeout bounds a single upstream fetch. Waiting callers still honor their own context.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrDiscard(l) }
}

// NewCache builds a cache over f. A non-positive ttl selects DefaultTTL.
func NewCache(f Fetcher, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		fetcher:      f,
		ttl:          ttl,
		fetchTimeout: defaultFetchTimeout,
		logger:       logging.Discard(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns a fresh snapshot, fetching when the cache is empty, expired or cleared.
// On failure it returns the previous snapshot (nil if none) together with an error wrapping
// ErrUpstreamUnavailable, so callers may choose to serve stale data.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	gen := c.generation.Load()
	if s := c.current.Load(); s != nil && s.generation == gen && !s.Expired(c.now()) {
		return s, nil
	}

	ch := c.group.DoChan("projects:"+strconv.FormatUint(gen, 10), func() (any, error) {
		return c.fetch(ctx, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return c.current.Load(), res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return c.current.Load(), fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctx.Err())
	}
}

// The fetch outlives any single waiter: it is detached from the caller's cancellation and
// bounded by fetchTimeout instead.
func (c *Cache) fetch(ctx context.Context, gen uint64) (*Snapshot, error) {
	// A flight that finished between the caller's check and DoChan already stored a result.
	if s := c.current.Load(); s != nil && s.generation >= gen && !s.Expired(c.now()) {
		return s, nil
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	c.fetches.Add(1)
	started := c.now()
	projects, err := c.fetcher.FetchProjects(fctx)
	if err != nil {
		c.logger.Warn("catalog fetch failed", "error", err, "stale_available", c.current.Load() != nil)
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	snap := newSnapshot(projects, c.now(), c.ttl, gen)
	for {
		prev := c.current.Load()
		if prev != nil && prev.generation > gen {
			// A fetch started after Clear already landed.
			return snap, nil
		}
		if c.current.CompareAndSwap(prev, snap) {
			break
		}
	}
	c.logger.Debug("catalog refreshed", "projects", snap.Len(), "took", c.now().Sub(started))
	return snap, nil
}

// Peek returns the last good snapshot, possibly expired, without fetching.
func (c *Cache) Peek() *Snapshot {
	return c.current.Load()
}

// Clear makes the next Get refetch regardless of TTL. The current snapshot stays readable via
// Peek until a fetch succeeds.
func (c *Cache) Clear() {
	c.generation.Add(1)
}

// Fetches reports how many upstream fetches have been started.
func (c *Cache) Fetches() int64 {
	return c.fetches.Load()
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
