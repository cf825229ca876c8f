package price

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const sourceDexScreener = "dexscreener"

type DexScreenerConfig struct {
	BaseURL string
	// ChainID is DexScreener's chain slug, e.g. "ethereum" or "base".
	ChainID      string
	NativeSymbol string
	// WrappedNative prices the native asset.
	WrappedNative string
	RPS           float64
}

// DexScreenerService quotes the current DEX price of a token. It only knows
// the present, so the resolver treats it as a recency source.
type DexScreenerService struct {
	cfg     DexScreenerConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewDexScreenerService(cfg DexScreenerConfig) *DexScreenerService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dexscreener.com"
	}
	return &DexScreenerService{
		cfg:     cfg,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: newLimiter(cfg.RPS),
	}
}

func (s *DexScreenerService) Name() string { return sourceDexScreener }

func (s *DexScreenerService) FetchPrice(ctx context.Context, req domain.PriceRequest) (domain.PriceQuote, error) {
	contract := strings.ToLower(req.Asset.Contract)
	if contract == "" || contract == domain.NativeAsset {
		if s.cfg.WrappedNative == "" || !strings.EqualFold(req.Asset.Symbol, s.cfg.NativeSymbol) {
			return domain.PriceQuote{}, domain.ErrPriceUnavailable
		}
		contract = strings.ToLower(s.cfg.WrappedNative)
	}

	// URL: https://api.dexscreener.com/latest/dex/tokens/{tokenAddresses}
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", strings.TrimRight(s.cfg.BaseURL, "/"), contract)

	var result struct {
		Pairs []struct {
			ChainID   string `json:"chainId"`
			PriceUsd  string `json:"priceUsd"`
			BaseToken struct {
				Address string `json:"address"`
			} `json:"baseToken"`
			Liquidity struct {
				Usd float64 `json:"usd"`
			} `json:"liquidity"`
		} `json:"pairs"`
	}
	if err := getJSON(ctx, s.client, s.limiter, url, &result); err != nil {
		return domain.PriceQuote{}, err
	}

	// Most liquid pair on this chain where the token is the base side.
	var best decimal.Decimal
	var bestLiquidity float64 = -1
	for _, p := range result.Pairs {
		if s.cfg.ChainID != "" && p.ChainID != s.cfg.ChainID {
			continue
		}
		if !strings.EqualFold(p.BaseToken.Address, contract) {
			continue
		}
		price, err := decimal.NewFromString(p.PriceUsd)
		if err != nil || !price.IsPositive() {
			continue
		}
		if p.Liquidity.Usd > bestLiquidity {
			best, bestLiquidity = price, p.Liquidity.Usd
		}
	}
	if bestLiquidity < 0 {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}
	return domain.PriceQuote{Price: best, Source: sourceDexScreener}, nil
}
