package price

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const sourceChainlink = "chainlink"

const aggregatorABI = `[
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the read-only part of an ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkService reads the latest answer of Chainlink aggregators. Feeds
// are keyed by contract address, or by symbol for the native asset.
type ChainlinkService struct {
	caller  ContractCaller
	feeds   map[string]common.Address
	abi     abi.ABI
	limiter *rate.Limiter

	mu       sync.Mutex
	decimals map[common.Address]int32
}

// ParseFeeds parses "ETH=0x5f4e...,0xa0b8...=0x8fff..." into a feed map.
func ParseFeeds(list string) (map[string]string, error) {
	feeds := make(map[string]string)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || !common.IsHexAddress(strings.TrimSpace(v)) {
			return nil, fmt.Errorf("feed %q: %w", part, domain.ErrMalformed)
		}
		feeds[feedKey(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return feeds, nil
}

func feedKey(k string) string {
	if common.IsHexAddress(k) {
		return strings.ToLower(k)
	}
	return strings.ToUpper(k)
}

func NewChainlinkService(caller ContractCaller, feeds map[string]string, rps float64) (*ChainlinkService, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}
	addrs := make(map[string]common.Address, len(feeds))
	for k, v := range feeds {
		addrs[feedKey(k)] = common.HexToAddress(v)
	}
	return &ChainlinkService{
		caller:   caller,
		feeds:    addrs,
		abi:      parsed,
		limiter:  newLimiter(rps),
		decimals: make(map[common.Address]int32),
	}, nil
}

func (s *ChainlinkService) Name() string { return sourceChainlink }

func (s *ChainlinkService) FetchPrice(ctx context.Context, req domain.PriceRequest) (domain.PriceQuote, error) {
	feed, ok := s.feedFor(req.Asset)
	if !ok {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.PriceQuote{}, err
	}

	dec, err := s.feedDecimals(ctx, feed)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	out, err := s.call(ctx, feed, "latestRoundData")
	if err != nil {
		return domain.PriceQuote{}, err
	}
	values, err := s.abi.Unpack("latestRoundData", out)
	if err != nil || len(values) < 2 {
		return domain.PriceQuote{}, fmt.Errorf("failed to unpack latestRoundData: %v", err)
	}
	answer, ok := values[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return domain.PriceQuote{}, domain.ErrPriceUnavailable
	}
	return domain.PriceQuote{
		Price:  decimal.NewFromBigInt(answer, -dec),
		Source: sourceChainlink,
	}, nil
}

func (s *ChainlinkService) feedFor(asset domain.AssetKey) (common.Address, bool) {
	if asset.Contract != "" && asset.Contract != domain.NativeAsset {
		addr, ok := s.feeds[strings.ToLower(asset.Contract)]
		return addr, ok
	}
	addr, ok := s.feeds[strings.ToUpper(asset.Symbol)]
	return addr, ok
}

func (s *ChainlinkService) feedDecimals(ctx context.Context, feed common.Address) (int32, error) {
	s.mu.Lock()
	d, ok := s.decimals[feed]
	s.mu.Unlock()
	if ok {
		return d, nil
	}

	out, err := s.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	var raw uint8
	if err := s.abi.UnpackIntoInterface(&raw, "decimals", out); err != nil {
		return 0, fmt.Errorf("failed to unpack decimals: %w", err)
	}

	s.mu.Lock()
	s.decimals[feed] = int32(raw)
	s.mu.Unlock()
	return int32(raw), nil
}

func (s *ChainlinkService) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := s.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	return out, nil
}
