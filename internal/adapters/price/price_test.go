package price

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	spam = "0x9999999999999999999999999999999999999999"
)

var instant = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestCanonicalSymbol(t *testing.T) {
	sym, ok := CanonicalSymbol(domain.AssetKey{Chain: "ethereum", Symbol: "eth"})
	assert.True(t, ok)
	assert.Equal(t, "ETH", sym)

	sym, ok = CanonicalSymbol(domain.AssetKey{Chain: "ethereum", Symbol: "whatever", Contract: strings.ToUpper(usdc)})
	assert.True(t, ok)
	assert.Equal(t, "USDC", sym)

	// A token calling itself USDC is not USDC.
	_, ok = CanonicalSymbol(domain.AssetKey{Chain: "ethereum", Symbol: "USDC", Contract: spam})
	assert.False(t, ok)

	id, ok := CoinGeckoID(domain.AssetKey{Chain: "ethereum", Symbol: "WETH", Contract: weth})
	assert.True(t, ok)
	assert.Equal(t, "weth", id)
}

func TestDefiLlama_FetchPrice(t *testing.T) {
	var gotPath, gotWidth string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotWidth = r.URL.Path, r.URL.Query().Get("searchWidth")
		key := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		fmt.Fprintf(w, `{"coins":{%q:{"price":3012.5,"timestamp":%d,"symbol":"X"}}}`, key, instant.Unix()+60)
	})
	svc := NewDefiLlamaService(DefiLlamaConfig{BaseURL: srv.URL})

	q, err := svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset:     domain.AssetKey{Chain: "ethereum", Symbol: "WETH", Contract: weth},
		Timestamp: instant,
	})
	require.NoError(t, err)
	assert.Equal(t, "3012.5", q.Price.String())
	assert.Equal(t, sourceDefiLlama, q.Source)
	assert.Equal(t, fmt.Sprintf("/prices/historical/%d/ethereum:%s", instant.Unix(), weth), gotPath)
	assert.Equal(t, "14400s", gotWidth)

	_, err = svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset:     domain.AssetKey{Chain: "ethereum", Symbol: "ETH"},
		Timestamp: instant,
	})
	require.NoError(t, err)
	assert.Contains(t, gotPath, "/coingecko:ethereum")
}

func TestDefiLlama_Misses(t *testing.T) {
	var calls atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.Contains(r.URL.Path, usdc) {
			fmt.Fprintf(w, `{"coins":{"ethereum:%s":{"price":1,"timestamp":%d}}}`, usdc, instant.Add(-6*time.Hour).Unix())
			return
		}
		fmt.Fprint(w, `{"coins":{}}`)
	})
	svc := NewDefiLlamaService(DefiLlamaConfig{BaseURL: srv.URL})

	// data point too far from the instant
	_, err := svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "USDC", Contract: usdc}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "DAI", Contract: "0x6b175474e89094c44da98b954eedeac495271d0f"}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	// an unknown symbol without a contract is never sent upstream
	_, err = svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "PEPE"}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetJSON_StatusHandling(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "teneo-tax-ledger")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})
	var out struct{}
	lim := newLimiter(0)

	err := getJSON(context.Background(), srv.Client(), lim, srv.URL+"/missing", &out)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	err = getJSON(context.Background(), srv.Client(), lim, srv.URL+"/broken", &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrPriceUnavailable))
}

func TestDexScreener_PicksMostLiquidPair(t *testing.T) {
	var gotPath string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprintf(w, `{"pairs":[
			{"chainId":"ethereum","priceUsd":"3000","baseToken":{"address":%[1]q},"liquidity":{"usd":1000}},
			{"chainId":"ethereum","priceUsd":"3100","baseToken":{"address":%[1]q},"liquidity":{"usd":900000}},
			{"chainId":"base","priceUsd":"9999","baseToken":{"address":%[1]q},"liquidity":{"usd":99999999}},
			{"chainId":"ethereum","priceUsd":"0.0003","baseToken":{"address":%[2]q},"liquidity":{"usd":99999999}}
		]}`, strings.ToUpper(weth), usdc)
	})
	svc := NewDexScreenerService(DexScreenerConfig{
		BaseURL:       srv.URL,
		ChainID:       "ethereum",
		NativeSymbol:  "ETH",
		WrappedNative: weth,
	})

	q, err := svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "ETH"}, Timestamp: instant,
	})
	require.NoError(t, err)
	assert.Equal(t, "3100", q.Price.String())
	assert.Equal(t, "/latest/dex/tokens/"+weth, gotPath)
}

func TestDexScreener_UnknownNativeSymbol(t *testing.T) {
	svc := NewDexScreenerService(DexScreenerConfig{BaseURL: "http://127.0.0.1:1", NativeSymbol: "ETH", WrappedNative: weth})
	_, err := svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "BNB"}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPyth_LatestBarAtOrBefore(t *testing.T) {
	var gotSymbol string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		to := instant.Unix()
		fmt.Fprintf(w, `{"s":"ok","t":[%d,%d,%d],"c":[3000.1,3001.2,3999]}`, to-120, to-60, to+60)
	})
	svc := NewPythService(PythConfig{BaseURL: srv.URL})

	q, err := svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "WETH", Contract: weth}, Timestamp: instant,
	})
	require.NoError(t, err)
	assert.Equal(t, "Crypto.ETH/USD", gotSymbol)
	assert.Equal(t, "3001.2", q.Price.String())
	assert.Equal(t, sourcePyth, q.Source)
}

func TestPyth_NoData(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s":"no_data"}`)
	})
	svc := NewPythService(PythConfig{BaseURL: srv.URL})

	_, err := svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Symbol: "ETH"}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "ETH", Contract: spam}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

// fakeAggregator answers decimals() and latestRoundData() like a feed.
type fakeAggregator struct {
	abi           abi.ABI
	answer        *big.Int
	decimals      uint8
	decimalsCalls atomic.Int32
}

func newFakeAggregator(t *testing.T, answer int64, decimals uint8) *fakeAggregator {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	require.NoError(t, err)
	return &fakeAggregator{abi: parsed, answer: big.NewInt(answer), decimals: decimals}
}

func (f *fakeAggregator) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	switch {
	case bytes.Equal(msg.Data[:4], f.abi.Methods["decimals"].ID):
		f.decimalsCalls.Add(1)
		return f.abi.Methods["decimals"].Outputs.Pack(f.decimals)
	case bytes.Equal(msg.Data[:4], f.abi.Methods["latestRoundData"].ID):
		now := big.NewInt(instant.Unix())
		return f.abi.Methods["latestRoundData"].Outputs.Pack(big.NewInt(1), f.answer, now, now, big.NewInt(1))
	}
	return nil, errors.New("execution reverted")
}

func TestParseFeeds(t *testing.T) {
	feeds, err := ParseFeeds("eth=0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419, " + strings.ToUpper(usdc[:2]) + usdc[2:] + "=0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6")
	require.NoError(t, err)
	assert.Equal(t, "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", feeds["ETH"])
	assert.Contains(t, feeds, usdc)

	_, err = ParseFeeds("ETH")
	assert.ErrorIs(t, err, domain.ErrMalformed)
	_, err = ParseFeeds("ETH=nothex")
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestChainlink_FetchPrice(t *testing.T) {
	agg := newFakeAggregator(t, 345678000000, 8)
	svc, err := NewChainlinkService(agg, map[string]string{"eth": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"}, 0)
	require.NoError(t, err)

	req := domain.PriceRequest{Asset: domain.AssetKey{Chain: "ethereum", Symbol: "ETH"}, Timestamp: instant}
	q, err := svc.FetchPrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "3456.78", q.Price.String())
	assert.Equal(t, sourceChainlink, q.Source)

	_, err = svc.FetchPrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), agg.decimalsCalls.Load(), "decimals are read once per feed")

	_, err = svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "USDC", Contract: usdc}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestChainlink_NonPositiveAnswer(t *testing.T) {
	agg := newFakeAggregator(t, -1, 8)
	svc, err := NewChainlinkService(agg, map[string]string{usdc: "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"}, 0)
	require.NoError(t, err)

	_, err = svc.FetchPrice(context.Background(), domain.PriceRequest{
		Asset: domain.AssetKey{Chain: "ethereum", Symbol: "USDC", Contract: strings.ToUpper(usdc)}, Timestamp: instant,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
