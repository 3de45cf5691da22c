// Package lookup serves public tag views from a TTL cache that coalesces
// concurrent misses into a single store query.
package lookup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL           = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Fetcher loads the public projection of a tag.
type Fetcher interface {
	FindPublicByCode(ctx context.Context, code string) (*tag.PublicView, error)
}

// Config tunes a Cache.
type Config struct {
	TTL           time.Duration
	StoreTimeout  time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

type entry struct {
	view       *tag.PublicView
	insertedAt time.Time
}

// invalidation marks the latest eviction of a code.
type invalidation struct {
	gen uint64
	at  time.Time
}

// Stats counts cache activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
	Entries int   `json:"entries"`
}

// Cache is a TTL cache in front of the record store for public lookups.
type Cache struct {
	fetcher Fetcher
	logger  *slog.Logger

	ttl           time.Duration
	storeTimeout  time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu          sync.Mutex
	entries     map[string]entry
	generations map[string]invalidation
	lastSweep   time.Time

	inflight singleflight.Group

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
}

// New creates a cache over fetcher.
func New(fetcher Fetcher, cfg Config, logger *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = tag.DefaultStoreTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		fetcher:       fetcher,
		logger:        logger,
		ttl:           cfg.TTL,
		storeTimeout:  cfg.StoreTimeout,
		sweepInterval: cfg.SweepInterval,
		now:           cfg.Now,
		entries:       make(map[string]entry),
		generations:   make(map[string]invalidation),
		lastSweep:     cfg.Now(),
	}
}

// Lookup returns the public view of code, from memory when fresh.
// Concurrent misses for the same code share one store query. ctx only bounds
// how long this caller waits; the shared query runs to completion or timeout.
func (c *Cache) Lookup(ctx context.Context, code string) (*tag.PublicView, error) {
	code = tag.NormalizeCode(code)
	if code == "" {
		return nil, tag.ErrInvalidInput
	}

	if view, ok := c.get(code); ok {
		c.hits.Add(1)
		return view, nil
	}
	c.misses.Add(1)

	ch := c.inflight.DoChan(code, func() (any, error) {
		return c.fetch(code)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tag.PublicView), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate evicts code so the next lookup reads fresh state.
// A fetch already in flight for code will not populate the cache.
func (c *Cache) Invalidate(code string) {
	code = tag.NormalizeCode(code)
	c.mu.Lock()
	delete(c.entries, code)
	c.generations[code] = invalidation{gen: c.generations[code].gen + 1, at: c.now()}
	c.mu.Unlock()
	c.inflight.Forget(code)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Run sweeps on a ticker until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("lookup cache swept", "expired", n)
			}
		}
	}
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fetches: c.fetches.Load(),
		Entries: n,
	}
}

func (c *Cache) get(code string) (*tag.PublicView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[code]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, code)
		return nil, false
	}
	return e.view, true
}

func (c *Cache) fetch(code string) (*tag.PublicView, error) {
	c.mu.Lock()
	gen := c.generations[code].gen
	c.mu.Unlock()

	c.fetches.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), c.storeTimeout)
	defer cancel()

	view, err := c.fetcher.FindPublicByCode(ctx, code)
	if err != nil {
		return nil, tag.TranslateStoreError(err, "fetching public view")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[code].gen == gen {
		now := c.now()
		c.entries[code] = entry{view: view, insertedAt: now}
		if now.Sub(c.lastSweep) >= c.sweepInterval {
			c.sweepLocked(now)
		}
	}
	return view, nil
}

func (c *Cache) sweepLocked(now time.Time) int {
	c.lastSweep = now
	removed := 0
	for code, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, code)
			removed++
		}
	}
	// A fetch never outlives storeTimeout, so older marks cannot race anything.
	for code, inv := range c.generations {
		if now.Sub(inv.at) > c.storeTimeout {
			delete(c.generations, code)
		}
	}
	return removed
}
