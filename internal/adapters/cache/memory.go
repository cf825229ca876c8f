package cache

import (
	"context"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process price cache owned by a single run.
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (domain.PriceQuote, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return domain.PriceQuote{}, false, nil
	}
	q, ok := v.(domain.PriceQuote)
	return q, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, quote domain.PriceQuote) error {
	m.c.Set(key, quote, gocache.NoExpiration)
	return nil
}

func (m *MemoryCache) Reset(_ context.Context) error {
	m.c.Flush()
	return nil
}

// Len is the number of cached quotes.
func (m *MemoryCache) Len() int {
	return m.c.ItemCount()
}
