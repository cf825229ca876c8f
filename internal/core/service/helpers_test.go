package service

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

const (
	wallet   = "0x1111111111111111111111111111111111111111"
	router   = "0x2222222222222222222222222222222222222222"
	stranger = "0x3333333333333333333333333333333333333333"
	usdc     = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	weth     = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func walletTx(hash string, ts time.Time, functionName string) domain.RawTransaction {
	return domain.RawTransaction{
		Hash:         hash,
		Timestamp:    ts,
		From:         wallet,
		To:           router,
		Value:        big.NewInt(0),
		GasUsed:      big.NewInt(21000),
		GasPrice:     big.NewInt(20_000_000_000),
		FunctionName: functionName,
	}
}

func transfer(hash string, ts time.Time, from, to, contract, symbol, raw string, decimals int) domain.TokenTransferEvent {
	return domain.TokenTransferEvent{
		Hash:      hash,
		Timestamp: ts,
		From:      from,
		To:        to,
		Contract:  contract,
		Symbol:    symbol,
		RawAmount: raw,
		Decimals:  decimals,
	}
}

func movement(asset, symbol, amount string) domain.NetMovement {
	contract := asset
	if asset == domain.NativeAsset {
		contract = ""
	}
	return domain.NetMovement{Asset: asset, Symbol: symbol, Contract: contract, Amount: dec(amount)}
}

// mapCache is a minimal run cache for tests.
type mapCache struct {
	mu sync.Mutex
	m  map[string]domain.PriceQuote
}

func newMapCache() *mapCache {
	return &mapCache{m: make(map[string]domain.PriceQuote)}
}

func (c *mapCache) Get(_ context.Context, key string) (domain.PriceQuote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.m[key]
	return q, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, q domain.PriceQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = q
	return nil
}

func (c *mapCache) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]domain.PriceQuote)
	return nil
}

func (c *mapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// funcSource answers from fn and counts calls.
type funcSource struct {
	name  string
	delay time.Duration
	fn    func(domain.PriceRequest) (decimal.Decimal, error)
	calls atomic.Int32
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) FetchPrice(_ context.Context, req domain.PriceRequest) (domain.PriceQuote, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	p, err := s.fn(req)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{Price: p}, nil
}

func fixed(price string) func(domain.PriceRequest) (decimal.Decimal, error) {
	return func(domain.PriceRequest) (decimal.Decimal, error) { return dec(price), nil }
}

func missing(domain.PriceRequest) (decimal.Decimal, error) {
	return decimal.Zero, domain.ErrPriceUnavailable
}

// staticHistory serves a fixed history.
type staticHistory struct {
	history *domain.History
	err     error
}

func (h staticHistory) FetchHistory(_ context.Context, _ string, cancel domain.Canceller) (*domain.History, error) {
	if cancel != nil && cancel.Cancelled() {
		return nil, domain.ErrCancelled
	}
	if h.err != nil {
		return nil, h.err
	}
	return h.history, nil
}
