package price

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const sourceDefiLlama = "defillama"

type DefiLlamaConfig struct {
	BaseURL string
	// SearchWidth bounds how far from the instant a data point may be.
	SearchWidth time.Duration
	RPS         float64
}

// DefiLlamaService is the historical aggregator. Assets are keyed as
// chain:contract when a contract is known, otherwise by CoinGecko id.
type DefiLlamaService struct {
	cfg     DefiLlamaConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewDefiLlamaService(cfg DefiLlamaConfig) *DefiLlamaService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://coins.llama.fi"
	}
	if cfg.SearchWidth <= 0 {
		cfg.SearchWidth = 4 * time.Hour
	}
	return &DefiLlamaService{
		cfg:     cfg,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: newLimiter(cfg.RPS),
	}
}

func (s *DefiLlamaService) Name() string { return sourceDefiLlama }

// coinKey returns the aggregator key of an asset, if it can be named.
func coinKey(asset domain.AssetKey) (string, bool) {
	if asset.Contract != "" && asset.Contract != domain.NativeAsset && asset.Chain != "" {
		return asset.Chain + ":" + strings.ToLower(asset.Contract), true
	}
	if id, ok := CoinGeckoID(asset); ok {
		return "coingecko:" + id, true
	}
	return "", false
}

func (s *DefiLlamaService) FetchPrice(ctx context.Context, req domain.PriceRequest) (domain.PriceQuote, error) {
	key, ok := coinKey(req.Asset)
	if !ok {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}

	url := fmt.Sprintf("%s/prices/historical/%d/%s?searchWidth=%ds",
		strings.TrimRight(s.cfg.BaseURL, "/"), req.Timestamp.Unix(), key, int64(s.cfg.SearchWidth.Seconds()))

	var result struct {
		Coins map[string]struct {
			Price     decimal.Decimal `json:"price"`
			Timestamp int64           `json:"timestamp"`
		} `json:"coins"`
	}
	if err := getJSON(ctx, s.client, s.limiter, url, &result); err != nil {
		return domain.PriceQuote{}, err
	}

	coin, ok := result.Coins[key]
	if !ok || !coin.Price.IsPositive() {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}
	if coin.Timestamp > 0 {
		gap := math.Abs(float64(coin.Timestamp - req.Timestamp.Unix()))
		if gap > s.cfg.SearchWidth.Seconds() {
			return domain.PriceQuote{}, domain.ErrPriceUnavailable
		}
	}
	return domain.PriceQuote{Price: coin.Price, Source: sourceDefiLlama}, nil
}
