package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	resolverNow = at("2025-01-01T12:00:00Z")
	ethKey      = domain.AssetKey{Chain: "ethereum", Symbol: "ETH"}
)

func newTestResolver(recent, historical []domain.PriceSource, cache domain.PriceCache) *PriceResolver {
	return NewPriceResolver(PriceSources{Recent: recent, Historical: historical}, cache, ResolverOptions{
		BatchSize: 2,
		Now:       func() time.Time { return resolverNow },
	})
}

func TestResolve_RecentSourceFirstInsideWindow(t *testing.T) {
	recent := &funcSource{name: "recent", fn: fixed("10")}
	historical := &funcSource{name: "historical", fn: fixed("20")}
	r := newTestResolver([]domain.PriceSource{recent}, []domain.PriceSource{historical}, newMapCache())

	q := r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.Add(-time.Hour)})
	require.True(t, q.Found)
	assert.Equal(t, "10", q.Price.String())
	assert.Equal(t, "recent", q.Source)
	assert.False(t, q.Approximate)
	assert.Equal(t, int32(0), historical.calls.Load())
}

func TestResolve_HistoricalFirstOutsideWindow(t *testing.T) {
	recent := &funcSource{name: "recent", fn: fixed("10")}
	historical := &funcSource{name: "historical", fn: fixed("20")}
	r := newTestResolver([]domain.PriceSource{recent}, []domain.PriceSource{historical}, newMapCache())

	q := r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -6, 0)})
	require.True(t, q.Found)
	assert.Equal(t, "20", q.Price.String())
	assert.Equal(t, "historical", q.Source)
	assert.Equal(t, int32(0), recent.calls.Load())
}

func TestResolve_ApproximateFallback(t *testing.T) {
	recent := &funcSource{name: "recent", fn: fixed("10")}
	historical := &funcSource{name: "historical", fn: missing}
	r := newTestResolver([]domain.PriceSource{recent}, []domain.PriceSource{historical}, newMapCache())

	q := r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(-1, 0, 0)})
	require.True(t, q.Found)
	assert.True(t, q.Approximate)
	assert.Equal(t, "recent~approx", q.Source)
}

func TestResolve_UpstreamErrorDegradesToNextSource(t *testing.T) {
	broken := &funcSource{name: "broken", fn: func(domain.PriceRequest) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("connection reset")
	}}
	second := &funcSource{name: "second", fn: fixed("7")}
	r := newTestResolver(nil, []domain.PriceSource{broken, second}, newMapCache())

	q := r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -1, 0)})
	require.True(t, q.Found)
	assert.Equal(t, "second", q.Source)
}

func TestResolve_UnavailableIsNotCached(t *testing.T) {
	cache := newMapCache()
	src := &funcSource{name: "none", fn: missing}
	r := newTestResolver(nil, []domain.PriceSource{src}, cache)

	req := domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -1, 0)}
	assert.False(t, r.Resolve(context.Background(), req).Found)
	assert.False(t, r.Resolve(context.Background(), req).Found)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolve_ZeroPriceIsAMiss(t *testing.T) {
	src := &funcSource{name: "zero", fn: fixed("0")}
	r := newTestResolver(nil, []domain.PriceSource{src}, newMapCache())

	q := r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -1, 0)})
	assert.False(t, q.Found)
}

func TestResolve_CacheKeyIsExactInstant(t *testing.T) {
	ts := resolverNow.AddDate(0, -1, 0)
	src := &funcSource{name: "exact", fn: func(req domain.PriceRequest) (decimal.Decimal, error) {
		if req.Timestamp.Equal(ts) {
			return dec("5"), nil
		}
		return decimal.Zero, domain.ErrPriceUnavailable
	}}
	cache := newMapCache()
	r := newTestResolver(nil, []domain.PriceSource{src}, cache)

	assert.True(t, r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: ts}).Found)
	// One millisecond later is a different question.
	assert.False(t, r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: ts.Add(time.Millisecond)}).Found)

	// A repeat at the exact instant is answered from the cache.
	assert.True(t, r.Resolve(context.Background(), domain.PriceRequest{Asset: ethKey, Timestamp: ts}).Found)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestResolve_CoalescesInFlightRequests(t *testing.T) {
	src := &funcSource{name: "slow", delay: 50 * time.Millisecond, fn: fixed("3")}
	r := newTestResolver(nil, []domain.PriceSource{src}, newMapCache())
	req := domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -1, 0)}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, r.Resolve(context.Background(), req).Found)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestResolveBatch_DedupesAndKeysResults(t *testing.T) {
	src := &funcSource{name: "h", fn: fixed("2")}
	r := newTestResolver(nil, []domain.PriceSource{src}, newMapCache())
	ts := resolverNow.AddDate(0, -1, 0)
	usdcKey := domain.AssetKey{Chain: "ethereum", Symbol: "USDC", Contract: usdc}

	reqs := []domain.PriceRequest{
		{Asset: ethKey, Timestamp: ts},
		{Asset: ethKey, Timestamp: ts},
		{Asset: usdcKey, Timestamp: ts},
	}
	var batches [][2]int
	quotes, err := r.ResolveBatch(context.Background(), reqs, nil, func(done, total int) {
		batches = append(batches, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.True(t, quotes[reqs[0].Key()].Found)
	assert.True(t, quotes[reqs[2].Key()].Found)
	assert.Equal(t, [][2]int{{2, 2}}, batches)
}

func TestResolveBatch_CancelBetweenBatches(t *testing.T) {
	src := &funcSource{name: "h", fn: fixed("2")}
	r := newTestResolver(nil, []domain.PriceSource{src}, newMapCache())

	var reqs []domain.PriceRequest
	for i := 0; i < 5; i++ {
		reqs = append(reqs, domain.PriceRequest{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -1, i)})
	}

	flag := NewCancelFlag()
	quotes, err := r.ResolveBatch(context.Background(), reqs, flag, func(done, total int) {
		flag.Cancel()
	})
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Nil(t, quotes)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolveBatch_ContextCancelledAbortsBatch(t *testing.T) {
	src := &funcSource{name: "h", fn: missing}
	r := newTestResolver(nil, []domain.PriceSource{src}, newMapCache())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	quotes, err := r.ResolveBatch(ctx, []domain.PriceRequest{
		{Asset: ethKey, Timestamp: resolverNow.AddDate(0, -1, 0)},
	}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Nil(t, quotes)
}
