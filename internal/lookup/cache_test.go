package lookup_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/lookup"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves views by code. When gate is set, every fetch waits on it
// (or on its context) before answering.
type stubFetcher struct {
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}

	mu    sync.Mutex
	views map[string]*tag.PublicView
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{views: map[string]*tag.PublicView{}, started: make(chan struct{}, 100)}
}

func (f *stubFetcher) set(code, message string) {
	f.mu.Lock()
	f.views[code] = &tag.PublicView{Code: code, Message: message}
	f.mu.Unlock()
}

func (f *stubFetcher) FindPublicByCode(ctx context.Context, code string) (*tag.PublicView, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	view, ok := f.views[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *view
	return &cp, nil
}

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

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("HOT123", "v1")
	fetcher.gate = make(chan struct{})
	cache := lookup.New(fetcher, lookup.Config{}, nil)

	const n = 50
	type result struct {
		view *tag.PublicView
		err  error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			view, err := cache.Lookup(context.Background(), "hot123")
			results <- result{view, err}
		}()
	}

	<-fetcher.started
	require.Eventually(t, func() bool { return cache.Stats().Misses == n }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fetcher.gate)

	for i := 0; i < n; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.Equal(t, "v1", r.view.Message)
	}
	require.EqualValues(t, 1, fetcher.calls.Load())
	require.EqualValues(t, 1, cache.Stats().Fetches)
}

func TestCache_ServesHitsUntilTTL(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("C1", "v1")
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := lookup.New(fetcher, lookup.Config{TTL: 10 * time.Minute, Now: clock.Now}, nil)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "C1")
	require.NoError(t, err)
	require.EqualValues(t, 1, fetcher.calls.Load())

	clock.Advance(10*time.Minute - time.Nanosecond)
	_, err = cache.Lookup(ctx, "C1")
	require.NoError(t, err)
	require.EqualValues(t, 1, fetcher.calls.Load(), "fresh entry is a hit")

	clock.Advance(time.Nanosecond)
	fetcher.set("C1", "v2")
	view, err := cache.Lookup(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, "v2", view.Message, "entry at TTL is never served")
	require.EqualValues(t, 2, fetcher.calls.Load())

	stats := cache.Stats()
	require.EqualValues(t, 1, stats.Hits)
	require.EqualValues(t, 2, stats.Misses)
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("C1", "old")
	cache := lookup.New(fetcher, lookup.Config{}, nil)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "C1")
	require.NoError(t, err)

	fetcher.set("C1", "new")
	cache.Invalidate("c1")

	view, err := cache.Lookup(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, "new", view.Message)
	require.EqualValues(t, 2, fetcher.calls.Load())
}

func TestCache_InvalidateDuringFetchDoesNotCacheStaleValue(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("C1", "stale")
	fetcher.gate = make(chan struct{})
	cache := lookup.New(fetcher, lookup.Config{}, nil)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Lookup(ctx, "C1")
		errCh <- err
	}()

	<-fetcher.started
	fetcher.set("C1", "fresh")
	cache.Invalidate("C1")
	close(fetcher.gate)
	require.NoError(t, <-errCh)

	require.Equal(t, 0, cache.Stats().Entries)
	view, err := cache.Lookup(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, "fresh", view.Message)
	require.EqualValues(t, 2, fetcher.calls.Load())
}

func TestCache_TimeoutReachesAllWaiters(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("SLOW", "v")
	fetcher.gate = make(chan struct{})
	cache := lookup.New(fetcher, lookup.Config{StoreTimeout: 30 * time.Millisecond}, nil)

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := cache.Lookup(context.Background(), "SLOW")
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			require.ErrorIs(t, err, tag.ErrStoreTimeout)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter left hanging")
		}
	}

	// The registry was cleared: the next miss starts a new fetch.
	close(fetcher.gate)
	view, err := cache.Lookup(context.Background(), "SLOW")
	require.NoError(t, err)
	require.Equal(t, "v", view.Message)
}

func TestCache_AbandonedWaiterDoesNotCancelFetch(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("C1", "v")
	fetcher.gate = make(chan struct{})
	cache := lookup.New(fetcher, lookup.Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Lookup(ctx, "C1")
		errCh <- err
	}()

	<-fetcher.started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(fetcher.gate)
	require.Eventually(t, func() bool { return cache.Stats().Entries == 1 }, time.Second, time.Millisecond)

	_, err := cache.Lookup(context.Background(), "C1")
	require.NoError(t, err)
	require.EqualValues(t, 1, fetcher.calls.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	fetcher := newStubFetcher()
	cache := lookup.New(fetcher, lookup.Config{}, nil)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "MISSING")
	require.ErrorIs(t, err, tag.ErrNotFound)

	fetcher.set("MISSING", "now here")
	view, err := cache.Lookup(ctx, "MISSING")
	require.NoError(t, err)
	require.Equal(t, "now here", view.Message)
}

func TestCache_RejectsBlankCode(t *testing.T) {
	cache := lookup.New(newStubFetcher(), lookup.Config{}, nil)
	_, err := cache.Lookup(context.Background(), "  ")
	require.ErrorIs(t, err, tag.ErrInvalidInput)
}

func TestCache_Sweep(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("A", "a")
	fetcher.set("B", "b")
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := lookup.New(fetcher, lookup.Config{TTL: time.Minute, SweepInterval: time.Hour, Now: clock.Now}, nil)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "A")
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = cache.Lookup(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, 2, cache.Stats().Entries)

	clock.Advance(45 * time.Second)
	require.Equal(t, 1, cache.Sweep())
	require.Equal(t, 1, cache.Stats().Entries)
}

func TestCache_SweepsOpportunisticallyOnInsert(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("A", "a")
	fetcher.set("B", "b")
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := lookup.New(fetcher, lookup.Config{TTL: time.Minute, SweepInterval: time.Minute, Now: clock.Now}, nil)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, "A")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = cache.Lookup(ctx, "B")
	require.NoError(t, err)

	require.Equal(t, 1, cache.Stats().Entries, "expired A removed when B was inserted")
}
