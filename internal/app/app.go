// Package app wires configuration into a ready ledger service.
package app

import (
	"context"
	"fmt"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/adapters/cache"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/adapters/chain"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/adapters/price"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/adapters/token"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/config"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/service"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// Build constructs the ledger service and returns a cleanup func that
// releases its connections.
func Build(ctx context.Context, cfg *config.Config) (*service.LedgerService, func(), error) {
	l := log.WithFields(log.Fields{
		"package": "app",
		"func":    "Build",
		"chain":   cfg.ChainName,
	})
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	history := chain.NewExplorerService(chain.ExplorerConfig{
		BaseURL:  cfg.ExplorerAPIURL,
		APIKey:   cfg.ExplorerAPIKey,
		ChainID:  cfg.ChainID,
		PageSize: cfg.HistoryPageSize,
		MaxPages: cfg.HistoryMaxPages,
		RPS:      cfg.HistoryRPS,
		Retries:  3,
	})

	var rpc *ethclient.Client
	if cfg.RPCURL != "" {
		c, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to RPC: %w", err)
		}
		rpc = c
		closers = append(closers, c.Close)
	}

	sources := service.PriceSources{
		Recent: []domain.PriceSource{
			price.NewDexScreenerService(price.DexScreenerConfig{
				BaseURL:       cfg.DexScreenerURL,
				ChainID:       cfg.ChainName,
				NativeSymbol:  cfg.NativeSymbol,
				WrappedNative: cfg.WrappedNativeAddress,
				RPS:           cfg.PriceRPS,
			}),
		},
		Historical: []domain.PriceSource{
			price.NewDefiLlamaService(price.DefiLlamaConfig{BaseURL: cfg.DefiLlamaURL, RPS: cfg.PriceRPS}),
			price.NewPythService(price.PythConfig{BaseURL: cfg.PythURL, RPS: cfg.PriceRPS}),
		},
	}
	if rpc != nil && cfg.ChainlinkFeeds != "" {
		feeds, err := price.ParseFeeds(cfg.ChainlinkFeeds)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("CHAINLINK_FEEDS: %w", err)
		}
		cl, err := price.NewChainlinkService(rpc, feeds, cfg.PriceRPS)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		// Oracles answer first for the present.
		sources.Recent = append([]domain.PriceSource{cl}, sources.Recent...)
	} else if cfg.ChainlinkFeeds != "" {
		l.Warn("CHAINLINK_FEEDS ignored without RPC_URL")
	}

	newCache := func(string) domain.PriceCache { return cache.NewMemoryCache() }
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		newCache = func(runID string) domain.PriceCache { return cache.NewRedisCache(redisClient, runID, 0) }
		l.Infof("price cache backed by redis at %s", cfg.RedisAddr)
	}

	var caller token.ContractCaller
	if rpc != nil {
		caller = rpc
	}
	newTokens := func() domain.TokenResolver {
		r, err := token.NewResolver(cfg.ChainName, caller, cfg.TokenCacheSize)
		if err != nil {
			l.Warnf("token resolver unavailable: %v", err)
			return noTokens{}
		}
		return r
	}

	svc := service.NewLedgerService(history, sources, newCache, newTokens, service.LedgerConfig{
		ChainName:    cfg.ChainName,
		NativeSymbol: cfg.NativeSymbol,
		Resolver: service.ResolverOptions{
			RecencyWindow: cfg.PriceRecencyWindow,
			BatchSize:     cfg.PriceBatchSize,
			BatchDelay:    cfg.PriceBatchDelay,
		},
	})
	l.Infof("ledger service ready: %d recent and %d historical price sources",
		len(sources.Recent), len(sources.Historical))
	return svc, cleanup, nil
}

type noTokens struct{}

func (noTokens) Lookup(context.Context, string) (*domain.TokenMetadata, error) {
	return nil, token.ErrNotFound
}
