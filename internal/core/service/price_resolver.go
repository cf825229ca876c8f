package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const approximateSuffix = "~approx"

// PriceSources groups the upstream sources by how far back they can answer.
type PriceSources struct {
	// Recent sources only know the present, such as live oracles and DEX snapshots.
	Recent []domain.PriceSource
	// Historical sources answer for any past instant.
	Historical []domain.PriceSource
}

// ResolverOptions tunes batching and the recency window.
type ResolverOptions struct {
	RecencyWindow time.Duration
	BatchSize     int
	BatchDelay    time.Duration
	Now           func() time.Time
}

func (o *ResolverOptions) ensureDefaults() {
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = 24 * time.Hour
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// PriceResolver answers "what was asset X worth at instant T" by asking the
// sources in a fixed order. One resolver belongs to one run, together with
// its cache.
type PriceResolver struct {
	sources PriceSources
	cache   domain.PriceCache
	opts    ResolverOptions
	group   singleflight.Group
}

func NewPriceResolver(sources PriceSources, cache domain.PriceCache, opts ResolverOptions) *PriceResolver {
	opts.ensureDefaults()
	return &PriceResolver{
		sources: sources,
		cache:   cache,
		opts:    opts,
	}
}

// Resolve returns the quote for one request. An unavailable quote is a
// normal outcome, not an error. Concurrent calls for the same key share a
// single upstream lookup.
func (r *PriceResolver) Resolve(ctx context.Context, req domain.PriceRequest) domain.PriceQuote {
	key := req.Key()
	if q, ok := r.cached(ctx, key); ok {
		return q
	}

	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		if q, ok := r.cached(ctx, key); ok {
			return q, nil
		}
		q := r.lookup(ctx, req)
		if q.Found {
			if err := r.cache.Set(ctx, key, q); err != nil {
				log.WithFields(log.Fields{
					"package": "service",
					"func":    "Resolve",
					"key":     key,
				}).Warnf("price cache write failed: %v", err)
			}
		}
		return q, nil
	})
	return v.(domain.PriceQuote)
}

// ResolveBatch resolves every distinct request, batch by batch. Requests in
// a batch run concurrently; batches are separated by the configured delay.
// cancel is polled between batches.
func (r *PriceResolver) ResolveBatch(ctx context.Context, reqs []domain.PriceRequest, cancel domain.Canceller, onBatch func(done, total int)) (map[string]domain.PriceQuote, error) {
	if cancel == nil {
		cancel = Never
	}
	l := log.WithFields(log.Fields{
		"package": "service",
		"func":    "ResolveBatch",
	})

	unique := make([]domain.PriceRequest, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		key := req.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, req)
	}

	results := make(map[string]domain.PriceQuote, len(unique))
	var mu sync.Mutex
	for start := 0; start < len(unique); start += r.opts.BatchSize {
		if cancel.Cancelled() {
			l.Info("cancelled between price batches")
			return nil, domain.ErrCancelled
		}
		if start > 0 && r.opts.BatchDelay > 0 {
			timer := time.NewTimer(r.opts.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, domain.ErrCancelled
			case <-timer.C:
			}
		}

		end := min(start+r.opts.BatchSize, len(unique))
		var g errgroup.Group
		for _, req := range unique[start:end] {
			g.Go(func() error {
				q := r.Resolve(ctx, req)
				// a miss under a dead context says nothing about the price
				if err := ctx.Err(); err != nil {
					return err
				}
				mu.Lock()
				results[req.Key()] = q
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			l.Infof("price batch aborted: %v", err)
			return nil, domain.ErrCancelled
		}

		l.Debugf("resolved price batch %d-%d of %d", start, end, len(unique))
		if onBatch != nil {
			onBatch(end, len(unique))
		}
	}
	if cancel.Cancelled() {
		return nil, domain.ErrCancelled
	}
	return results, nil
}

// lookup walks the sources: recent ones inside the window, historical ones,
// then recent ones again outside the window as an approximate answer.
func (r *PriceResolver) lookup(ctx context.Context, req domain.PriceRequest) domain.PriceQuote {
	recent := r.withinWindow(req.Timestamp)
	if recent {
		for _, src := range r.sources.Recent {
			if q, ok := r.try(ctx, src, req); ok {
				return q
			}
		}
	}
	for _, src := range r.sources.Historical {
		if q, ok := r.try(ctx, src, req); ok {
			return q
		}
	}
	if !recent {
		for _, src := range r.sources.Recent {
			if q, ok := r.try(ctx, src, req); ok {
				q.Approximate = true
				q.Source += approximateSuffix
				return q
			}
		}
	}
	return domain.PriceQuote{Found: false}
}

func (r *PriceResolver) try(ctx context.Context, src domain.PriceSource, req domain.PriceRequest) (domain.PriceQuote, bool) {
	q, err := src.FetchPrice(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrPriceUnavailable) {
			log.WithFields(log.Fields{
				"package": "service",
				"func":    "try",
				"source":  src.Name(),
				"asset":   req.Asset.String(),
			}).Warnf("price source failed: %v", err)
		}
		return domain.PriceQuote{}, false
	}
	if !q.Price.IsPositive() {
		return domain.PriceQuote{}, false
	}
	q.Found = true
	if q.Source == "" {
		q.Source = src.Name()
	}
	return q, true
}

func (r *PriceResolver) withinWindow(ts time.Time) bool {
	age := r.opts.Now().Sub(ts)
	if age < 0 {
		age = -age
	}
	return age <= r.opts.RecencyWindow
}

func (r *PriceResolver) cached(ctx context.Context, key string) (domain.PriceQuote, bool) {
	q, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.WithFields(log.Fields{
			"package": "service",
			"func":    "cached",
			"key":     key,
		}).Warnf("price cache read failed: %v", err)
		return domain.PriceQuote{}, false
	}
	return q, ok
}
