package render

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	"golang.org/x/sync/singleflight"
)

// Key identifies one cached composition.
type Key struct {
	ScreenID string
	Locale   string
}

// RenderFunc composes a full image on a cache miss.
type RenderFunc func(ctx context.Context) (*FullImage, error)

type cacheEntry struct {
	key        Key
	version    uint64
	image      *FullImage
	lastAccess time.Time
}

// CacheStats describes the cache contents.
type CacheStats struct {
	Entries       int    `json:"entries"`
	Bytes         int64  `json:"bytes"`
	Budget        int64  `json:"budget"`
	Evictions     uint64 `json:"evictions"`
	IdleEvictions uint64 `json:"idleEvictions"`
}

// Cache holds composed images keyed by (screen, locale), weighted by pixel
// buffer size. Entries are evicted least recently used first once the byte
// budget is exceeded, and independently once they sit unused for idleTTL.
// Recomputation is collapsed per (key, version) so concurrent readers of a
// stale entry trigger one composition.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	idleTTL time.Duration
	now     func() time.Time

	entries map[Key]*list.Element
	lru     *list.List // front is most recently used
	total   int64

	evictions     uint64
	idleEvictions uint64

	// generations advances per screen on every invalidation. A composition
	// is only stored when the generation it started under is still current.
	generations map[string]uint64
	genSeq      uint64

	flights singleflight.Group
}

type CacheOption func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(budget int64, idleTTL time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		budget:      budget,
		idleTTL:     idleTTL,
		now:         time.Now,
		entries:     make(map[Key]*list.Element),
		lru:         list.New(),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key when it was rendered at exactly version
// and has not gone idle.
func (c *Cache) Get(key Key, version uint64) (*FullImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key, version)
}

func (c *Cache) getLocked(key Key, version uint64) (*FullImage, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*cacheEntry)
	now := c.now()
	if c.idleTTL > 0 && now.Sub(e.lastAccess) >= c.idleTTL {
		c.removeLocked(elem)
		c.idleEvictions++
		return nil, false
	}
	if e.version != version {
		return nil, false
	}
	e.lastAccess = now
	c.lru.MoveToFront(elem)
	return e.image, true
}

// Generation returns the invalidation generation of screenID. Read it before
// the screen state so a removal or bump in between is detected.
func (c *Cache) Generation(screenID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[screenID]
}

// GetOrRender returns the cached image for (key, version), composing it with
// render on a miss. hit is false whenever this call had to wait for a
// composition. A failed composition stores nothing. gen is the screen's
// Generation read before the state being rendered; the result reaches the
// waiters in any case but is only cached while gen is current.
func (c *Cache) GetOrRender(ctx context.Context, key Key, version, gen uint64, render RenderFunc) (img *FullImage, hit bool, err error) {
	if img, ok := c.Get(key, version); ok {
		return img, true, nil
	}

	flightKey := key.ScreenID + "\x00" + key.Locale + "\x00" + strconv.FormatUint(version, 10)
	// The composition is shared by every waiter, so it must outlive the
	// caller that happened to start it.
	renderCtx := context.WithoutCancel(ctx)
	v, err, _ := c.flights.Do(flightKey, func() (any, error) {
		if img, ok := c.Get(key, version); ok {
			return img, nil
		}
		img, err := render(renderCtx)
		if err != nil {
			return nil, err
		}
		c.put(key, version, gen, img)
		return img, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*FullImage), false, nil
}

// put stores img unless the screen was invalidated or removed since gen, a
// newer version is already cached, or img alone exceeds the budget.
func (c *Cache) put(key Key, version, gen uint64, img *FullImage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.ScreenID] != gen {
		logger.WithComponent("render").Debugf("discarding render of %s v%d, screen changed while composing", key.ScreenID, version)
		return
	}
	c.putLocked(key, version, img)
}

func (c *Cache) putLocked(key Key, version uint64, img *FullImage) {
	if img == nil {
		return
	}

	if elem, ok := c.entries[key]; ok {
		if elem.Value.(*cacheEntry).version > version {
			return
		}
		c.removeLocked(elem)
	}
	if img.SizeBytes > c.budget {
		logger.WithComponent("render").Warnf("image for %s/%s is %d bytes, larger than the %d byte cache budget; not cached",
			key.ScreenID, key.Locale, img.SizeBytes, c.budget)
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, version: version, image: img, lastAccess: c.now()})
	c.entries[key] = elem
	c.total += img.SizeBytes

	for c.total > c.budget {
		back := c.lru.Back()
		if back == nil || back == elem {
			break
		}
		c.removeLocked(back)
		c.evictions++
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, e.key)
	c.total -= e.image.SizeBytes
}

// InvalidateScreen drops every locale variant of screenID and advances its
// generation, so compositions still running for it are not stored.
func (c *Cache) InvalidateScreen(screenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genSeq++
	c.generations[screenID] = c.genSeq
	for key, elem := range c.entries {
		if key.ScreenID == screenID {
			c.removeLocked(elem)
		}
	}
}

// Sweep removes entries idle for at least idleTTL as of now and returns how
// many were removed.
func (c *Cache) Sweep(now time.Time) int {
	if c.idleTTL <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	// Walk from the least recently used end; stop at the first fresh entry.
	for elem := c.lru.Back(); elem != nil; {
		e := elem.Value.(*cacheEntry)
		if now.Sub(e.lastAccess) < c.idleTTL {
			break
		}
		prev := elem.Prev()
		c.removeLocked(elem)
		c.idleEvictions++
		removed++
		elem = prev
	}
	return removed
}

// StartJanitor sweeps idle entries every interval until ctx is cancelled.
// The returned channel is closed once the goroutine has exited.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	log := logger.WithComponent("render")
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("render cache janitor stopped")
				return
			case <-ticker.C:
				if n := c.Sweep(c.now()); n > 0 {
					log.Debugf("evicted %d idle render cache entries", n)
				}
			}
		}
	}()
	return done
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:       len(c.entries),
		Bytes:         c.total,
		Budget:        c.budget,
		Evictions:     c.evictions,
		IdleEvictions: c.idleEvictions,
	}
}
