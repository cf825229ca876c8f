package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const sourcePyth = "pyth"

type PythConfig struct {
	BaseURL string
	// Lookback is how far before the instant a bar may start.
	Lookback time.Duration
	RPS      float64
}

// PythService reads the Pyth benchmarks TradingView shim. Feeds are
// cross-chain and keyed by symbol, so only trusted symbols are asked for.
type PythService struct {
	cfg     PythConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewPythService(cfg PythConfig) *PythService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://benchmarks.pyth.network"
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	return &PythService{
		cfg:     cfg,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: newLimiter(cfg.RPS),
	}
}

func (s *PythService) Name() string { return sourcePyth }

func (s *PythService) FetchPrice(ctx context.Context, req domain.PriceRequest) (domain.PriceQuote, error) {
	sym, ok := CanonicalSymbol(req.Asset)
	if !ok {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}
	// Wrapped assets track their underlying feed.
	switch sym {
	case "WETH":
		sym = "ETH"
	case "WBTC":
		sym = "BTC"
	}

	to := req.Timestamp.Unix()
	from := req.Timestamp.Add(-s.cfg.Lookback).Unix()
	params := url.Values{}
	params.Set("symbol", "Crypto."+sym+"/USD")
	params.Set("resolution", "1")
	params.Set("from", strconv.FormatInt(from, 10))
	params.Set("to", strconv.FormatInt(to, 10))
	endpoint := fmt.Sprintf("%s/v1/shims/tradingview/history?%s", strings.TrimRight(s.cfg.BaseURL, "/"), params.Encode())

	var bars struct {
		Status string            `json:"s"`
		Times  []int64           `json:"t"`
		Closes []decimal.Decimal `json:"c"`
	}
	if err := getJSON(ctx, s.client, s.limiter, endpoint, &bars); err != nil {
		return domain.PriceQuote{}, err
	}
	if bars.Status != "ok" {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}

	// Latest bar at or before the instant.
	idx := -1
	for i, t := range bars.Times {
		if t <= to && i < len(bars.Closes) && (idx < 0 || t > bars.Times[idx]) {
			idx = i
		}
	}
	if idx < 0 || !bars.Closes[idx].IsPositive() {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}
	return domain.PriceQuote{Price: bars.Closes[idx], Source: sourcePyth}, nil
}
