package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("token metadata not found")

const erc20ABI = `[
{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the read-only part of an ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver answers token metadata from the static list first, then from the
// token contract itself. Answers are kept in an LRU.
type Resolver struct {
	chain  string
	caller ContractCaller
	abi    abi.ABI
	cache  *lru.Cache[string, domain.TokenMetadata]
}

// NewResolver builds a resolver for one chain. caller may be nil, in which
// case only the static list is consulted.
func NewResolver(chain string, caller ContractCaller, size int) (*Resolver, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, domain.TokenMetadata](size)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &Resolver{
		chain:  chain,
		caller: caller,
		abi:    parsed,
		cache:  cache,
	}, nil
}

func (r *Resolver) Lookup(ctx context.Context, contract string) (*domain.TokenMetadata, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("contract %q: %w", contract, domain.ErrMalformed)
	}
	key := strings.ToLower(contract)
	if meta, ok := r.cache.Get(key); ok {
		return &meta, nil
	}
	if meta, ok := staticTokens[r.chain+":"+key]; ok {
		r.cache.Add(key, meta)
		return &meta, nil
	}
	if r.caller == nil {
		return nil, ErrNotFound
	}

	meta, err := r.onChain(ctx, common.HexToAddress(contract))
	if err != nil {
		log.WithFields(log.Fields{
			"package":  "token",
			"func":     "Lookup",
			"contract": key,
		}).Debugf("on-chain lookup failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	r.cache.Add(key, meta)
	return &meta, nil
}

func (r *Resolver) onChain(ctx context.Context, addr common.Address) (domain.TokenMetadata, error) {
	out, err := r.call(ctx, addr, "decimals")
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	var decimals uint8
	if err := r.abi.UnpackIntoInterface(&decimals, "decimals", out); err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("failed to unpack decimals: %w", err)
	}

	out, err = r.call(ctx, addr, "symbol")
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	symbol := r.decodeString("symbol", out)
	if symbol == "" {
		return domain.TokenMetadata{}, errors.New("empty symbol")
	}

	var name string
	if out, err := r.call(ctx, addr, "name"); err == nil {
		name = r.decodeString("name", out)
	}
	return domain.TokenMetadata{Symbol: symbol, Decimals: int(decimals), Name: name}, nil
}

// decodeString accepts both ABI strings and the bytes32 returned by some
// older tokens.
func (r *Resolver) decodeString(method string, out []byte) string {
	var s string
	if err := r.abi.UnpackIntoInterface(&s, method, out); err == nil {
		return strings.TrimSpace(s)
	}
	if len(out) == 32 {
		return strings.TrimSpace(string(bytes.TrimRight(out, "\x00")))
	}
	return ""
}

func (r *Resolver) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s returned no data", method, to.Hex())
	}
	return out, nil
}
