package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds application-level configuration loaded from environment variables.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// Chain
	ChainName            string
	ChainID              int64
	NativeSymbol         string
	WrappedNativeAddress string
	RPCURL               string

	// Transaction history
	ExplorerAPIURL  string
	ExplorerAPIKey  string
	HistoryPageSize int
	HistoryMaxPages int
	HistoryRPS      float64

	// Prices
	ChainlinkFeeds     string
	PriceBatchSize     int
	PriceBatchDelay    time.Duration
	PriceRecencyWindow time.Duration
	PriceRPS           float64
	DefiLlamaURL       string
	PythURL            string
	DexScreenerURL     string

	// Caches
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	TokenCacheSize int

	// API
	JWTSecret          string
	CORSAllowedOrigins []string
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded, relying on the environment")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		ChainName:            strings.ToLower(getEnv("CHAIN_NAME", "ethereum")),
		ChainID:              int64(getEnvAsInt("CHAIN_ID", 1)),
		NativeSymbol:         strings.ToUpper(getEnv("NATIVE_SYMBOL", "ETH")),
		WrappedNativeAddress: getEnv("WRAPPED_NATIVE_ADDRESS", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		RPCURL:               getEnv("RPC_URL", ""),

		ExplorerAPIURL:  getEnv("EXPLORER_API_URL", "https://api.etherscan.io/v2/api"),
		ExplorerAPIKey:  getEnv("EXPLORER_API_KEY", ""),
		HistoryPageSize: getEnvAsInt("HISTORY_PAGE_SIZE", 1000),
		HistoryMaxPages: getEnvAsInt("HISTORY_MAX_PAGES", 10),
		HistoryRPS:      getEnvAsFloat("HISTORY_RPS", 4),

		ChainlinkFeeds:     getEnv("CHAINLINK_FEEDS", ""),
		PriceBatchSize:     getEnvAsInt("PRICE_BATCH_SIZE", 10),
		PriceBatchDelay:    getEnvAsDuration("PRICE_BATCH_DELAY", 500*time.Millisecond),
		PriceRecencyWindow: getEnvAsDuration("PRICE_RECENCY_WINDOW", 24*time.Hour),
		PriceRPS:           getEnvAsFloat("PRICE_RPS", 5),
		DefiLlamaURL:       getEnv("DEFILLAMA_URL", "https://coins.llama.fi"),
		PythURL:            getEnv("PYTH_URL", "https://benchmarks.pyth.network"),
		DexScreenerURL:     getEnv("DEXSCREENER_URL", "https://api.dexscreener.com"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		TokenCacheSize: getEnvAsInt("TOKEN_CACHE_SIZE", 1024),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.PriceBatchSize <= 0 {
		return nil, fmt.Errorf("PRICE_BATCH_SIZE must be positive, got %d", cfg.PriceBatchSize)
	}
	if cfg.HistoryPageSize <= 0 {
		return nil, fmt.Errorf("HISTORY_PAGE_SIZE must be positive, got %d", cfg.HistoryPageSize)
	}
	if cfg.ExplorerAPIKey == "" {
		log.Warn("EXPLORER_API_KEY is not set, explorer requests will be heavily rate limited")
	}
	return cfg, nil
}

// SetupLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func SetupLogging(level, format string) {
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("invalid LOG_LEVEL %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warnf("invalid integer for %s %q, using default %d", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Warnf("invalid number for %s %q, using default %g", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warnf("invalid duration for %s %q, using default %s", key, valueStr, fallback)
		return fallback
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
