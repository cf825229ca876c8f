package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "ethereum", cfg.ChainName)
	assert.Equal(t, int64(1), cfg.ChainID)
	assert.Equal(t, "ETH", cfg.NativeSymbol)
	assert.Equal(t, 10, cfg.PriceBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.PriceBatchDelay)
	assert.Equal(t, 24*time.Hour, cfg.PriceRecencyWindow)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CHAIN_NAME", "Base")
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("NATIVE_SYMBOL", "eth")
	t.Setenv("PRICE_BATCH_SIZE", "25")
	t.Setenv("PRICE_BATCH_DELAY", "2s")
	t.Setenv("PRICE_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "base", cfg.ChainName)
	assert.Equal(t, int64(8453), cfg.ChainID)
	assert.Equal(t, "ETH", cfg.NativeSymbol)
	assert.Equal(t, 25, cfg.PriceBatchSize)
	assert.Equal(t, 2*time.Second, cfg.PriceBatchDelay)
	assert.Equal(t, 2.5, cfg.PriceRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HISTORY_MAX_PAGES", "many")
	t.Setenv("PRICE_RECENCY_WINDOW", "a day")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HistoryMaxPages)
	assert.Equal(t, 24*time.Hour, cfg.PriceRecencyWindow)
}

func TestLoad_RejectsNonPositiveBatch(t *testing.T) {
	t.Setenv("PRICE_BATCH_SIZE", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	SetupLogging("debug", "json")
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	SetupLogging("loud", "text")
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
