package fetch

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Options sizes the two cache tiers and the worker pool.
type Options struct {
	PositiveCapacity int
	PositiveTTL      time.Duration // since last access
	NegativeCapacity int
	NegativeTTL      time.Duration // since the failure
	Workers          int
	ResolveTimeout   time.Duration // how long Resolve waits for a fetch
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		PositiveCapacity: 128,
		PositiveTTL:      30 * time.Minute,
		NegativeCapacity: 256,
		NegativeTTL:      10 * time.Minute,
		Workers:          4,
		ResolveTimeout:   750 * time.Millisecond,
	}
}

type positiveEntry struct {
	img        image.Image
	lastAccess time.Time
}

// Stats describes fetch cache activity.
type Stats struct {
	Positive     int    `json:"positive"`
	Negative     int    `json:"negative"`
	Hits         uint64 `json:"hits"`
	NegativeHits uint64 `json:"negativeHits"`
	Fetches      uint64 `json:"fetches"`
	Failures     uint64 `json:"failures"`
}

// Cache resolves remote images for the compositor. Successful fetches are
// kept in an access-expiring positive tier, failures in a write-expiring
// negative tier so a dead URL is not retried on every composition.
// Fetches run on a bounded worker pool and never surface errors.
type Cache struct {
	fetcher Fetcher
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	positive *lru[positiveEntry]
	negative *lru[time.Time]

	flights singleflight.Group
	workers *semaphore.Weighted

	hits         atomic.Uint64
	negativeHits atomic.Uint64
	fetches      atomic.Uint64
	failures     atomic.Uint64
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(fetcher Fetcher, opts Options, options ...Option) *Cache {
	def := DefaultOptions()
	if opts.PositiveCapacity < 1 {
		opts.PositiveCapacity = def.PositiveCapacity
	}
	if opts.NegativeCapacity < 1 {
		opts.NegativeCapacity = def.NegativeCapacity
	}
	if opts.PositiveTTL <= 0 {
		opts.PositiveTTL = def.PositiveTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = def.NegativeTTL
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = def.ResolveTimeout
	}
	c := &Cache{
		fetcher:  fetcher,
		opts:     opts,
		now:      time.Now,
		positive: newLRU[positiveEntry](opts.PositiveCapacity),
		negative: newLRU[time.Time](opts.NegativeCapacity),
		workers:  semaphore.NewWeighted(int64(opts.Workers)),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Resolve returns the image behind rawURL, or nil when the URL is blank,
// recently failed, fails now, or does not arrive within the resolve timeout
// or ctx. A fetch that outlives the wait keeps running and fills the cache.
func (c *Cache) Resolve(ctx context.Context, rawURL string) image.Image {
	url := NormalizeURL(rawURL)
	if url == "" {
		return nil
	}

	if img, known := c.lookup(url); known {
		return img
	}

	ch := c.flights.DoChan(url, func() (any, error) {
		return c.fetch(url), nil
	})

	timer := time.NewTimer(c.opts.ResolveTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		img, _ := res.Val.(image.Image)
		return img
	case <-timer.C:
		logger.WithComponent("fetch").Debugf("image %s still loading, rendering without it", url)
		return nil
	case <-ctx.Done():
		return nil
	}
}

// lookup reports known=true when url is settled in either tier.
func (c *Cache) lookup(url string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	if e, ok := c.positive.get(url); ok {
		if now.Sub(e.lastAccess) < c.opts.PositiveTTL {
			e.lastAccess = now
			c.positive.put(url, e)
			c.hits.Add(1)
			return e.img, true
		}
		c.positive.remove(url)
	}
	if failedAt, ok := c.negative.peek(url); ok {
		if now.Sub(failedAt) < c.opts.NegativeTTL {
			c.negativeHits.Add(1)
			return nil, true
		}
		c.negative.remove(url)
	}
	return nil, false
}

func (c *Cache) fetch(url string) image.Image {
	// The caller may have stopped waiting; the fetch is bounded by the
	// fetcher's own timeouts instead.
	ctx := context.Background()
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer c.workers.Release(1)

	c.fetches.Add(1)
	img, err := c.fetcher.Fetch(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || img == nil {
		c.failures.Add(1)
		c.negative.put(url, c.now())
		logger.WithComponent("fetch").Debugf("image %s unavailable: %v", url, err)
		return nil
	}
	c.negative.remove(url)
	c.positive.put(url, positiveEntry{img: img, lastAccess: c.now()})
	return img
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	positive, negative := c.positive.size(), c.negative.size()
	c.mu.Unlock()
	return Stats{
		Positive:     positive,
		Negative:     negative,
		Hits:         c.hits.Load(),
		NegativeHits: c.negativeHits.Load(),
		Fetches:      c.fetches.Load(),
		Failures:     c.failures.Load(),
	}
}
