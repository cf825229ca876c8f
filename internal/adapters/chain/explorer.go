package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/pkg/version"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	actionTxList   = "txlist"
	actionTokenTx  = "tokentx"
	actionInternal = "txlistinternal"
)

var errRateLimited = errors.New("explorer rate limit reached")

// ExplorerConfig configures an Etherscan-compatible account API.
type ExplorerConfig struct {
	BaseURL    string
	APIKey     string
	ChainID    int64
	PageSize   int
	MaxPages   int
	RPS        float64
	Retries    int
	RetryDelay time.Duration
}

// ExplorerService implements domain.HistoryService on top of an
// Etherscan v2 style API (txlist, tokentx, txlistinternal).
type ExplorerService struct {
	cfg     ExplorerConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewExplorerService(cfg ExplorerConfig) *ExplorerService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 4
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &ExplorerService{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type txRow struct {
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	MethodID        string `json:"methodId"`
	FunctionName    string `json:"functionName"`
	Input           string `json:"input"`
}

type tokenRow struct {
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

type internalRow struct {
	TimeStamp string `json:"timeStamp"`
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	IsError   string `json:"isError"`
}

// FetchHistory returns the wallet's normal transactions, token transfers and
// internal native transfers. The hash of a row that cannot be parsed is
// reported in History.Malformed so the whole transaction is skipped. Any
// endpoint that stays unreachable after retries makes the whole history
// unavailable.
func (s *ExplorerService) FetchHistory(ctx context.Context, wallet string, cancel domain.Canceller) (*domain.History, error) {
	l := log.WithFields(log.Fields{
		"package": "chain",
		"func":    "FetchHistory",
		"wallet":  wallet,
	})

	history := &historyBuilder{}

	txRows, err := s.fetchAll(ctx, actionTxList, wallet, cancel)
	if err != nil {
		return nil, err
	}
	for _, raw := range txRows {
		var row txRow
		if err := json.Unmarshal(raw, &row); err != nil {
			l.Warnf("skipping undecodable transaction row: %v", err)
			continue
		}
		tx, err := parseTransaction(row)
		if err != nil {
			l.Warn(err)
			history.skip(row.Hash)
			continue
		}
		history.Transactions = append(history.Transactions, tx)
	}

	tokenRows, err := s.fetchAll(ctx, actionTokenTx, wallet, cancel)
	if err != nil {
		return nil, err
	}
	for _, raw := range tokenRows {
		var row tokenRow
		if err := json.Unmarshal(raw, &row); err != nil {
			l.Warnf("skipping undecodable token transfer row: %v", err)
			continue
		}
		ev, err := parseTokenTransfer(row)
		if err != nil {
			l.Warn(err)
			history.skip(row.Hash)
			continue
		}
		history.Transfers = append(history.Transfers, ev)
	}

	internalRows, err := s.fetchAll(ctx, actionInternal, wallet, cancel)
	if err != nil {
		return nil, err
	}
	for _, raw := range internalRows {
		var row internalRow
		if err := json.Unmarshal(raw, &row); err != nil {
			l.Warnf("skipping undecodable internal transfer row: %v", err)
			continue
		}
		if row.IsError == "1" {
			continue
		}
		ev, err := parseInternalTransfer(row)
		if err != nil {
			l.Warn(err)
			history.skip(row.Hash)
			continue
		}
		history.Transfers = append(history.Transfers, ev)
	}

	l.Infof("fetched %d transactions and %d transfers, %d malformed",
		len(history.Transactions), len(history.Transfers), len(history.Malformed))
	return &history.History, nil
}

type historyBuilder struct {
	domain.History
	seen map[string]bool
}

// skip records the hash of an unparseable row once.
func (b *historyBuilder) skip(hash string) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return
	}
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	if !b.seen[hash] {
		b.seen[hash] = true
		b.Malformed = append(b.Malformed, hash)
	}
}

// fetchAll pages through one action until a short page or the page cap.
func (s *ExplorerService) fetchAll(ctx context.Context, action, wallet string, cancel domain.Canceller) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; page <= s.cfg.MaxPages; page++ {
		if cancel != nil && cancel.Cancelled() {
			return nil, domain.ErrCancelled
		}
		rows, err := s.fetchPageWithRetry(ctx, action, wallet, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrCancelled
			}
			return nil, fmt.Errorf("%s page %d: %v: %w", action, page, err, domain.ErrHistoryUnavailable)
		}
		all = append(all, rows...)

		log.WithFields(log.Fields{
			"package": "chain",
			"func":    "fetchAll",
			"action":  action,
		}).Debugf("fetched page %d: %d rows (%d total)", page, len(rows), len(all))

		if len(rows) < s.cfg.PageSize {
			return all, nil
		}
	}
	log.WithFields(log.Fields{
		"package": "chain",
		"func":    "fetchAll",
		"action":  action,
	}).Warnf("stopped at page cap %d, history may be truncated", s.cfg.MaxPages)
	return all, nil
}

func (s *ExplorerService) fetchPageWithRetry(ctx context.Context, action, wallet string, page int) ([]json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		rows, err := s.fetchPage(ctx, action, wallet, page)
		if err == nil || !errors.Is(err, errRateLimited) || attempt >= s.cfg.Retries {
			return rows, err
		}
		delay := s.cfg.RetryDelay * time.Duration(attempt+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *ExplorerService) fetchPage(ctx context.Context, action, wallet string, page int) ([]json.RawMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	if s.cfg.ChainID > 0 {
		params.Set("chainid", strconv.FormatInt(s.cfg.ChainID, 10))
	}
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", wallet)
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(s.cfg.PageSize))
	params.Set("sort", "asc")
	if s.cfg.APIKey != "" {
		params.Set("apikey", s.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("explorer returned status %d: %s", resp.StatusCode, string(body))
	}

	var out explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(out.Result, &rows); err == nil {
		return rows, nil
	}

	// Errors come back as status "0" with a string result.
	var msg string
	_ = json.Unmarshal(out.Result, &msg)
	if strings.Contains(strings.ToLower(msg), "rate limit") {
		return nil, errRateLimited
	}
	if strings.Contains(strings.ToLower(out.Message), "no transactions found") {
		return nil, nil
	}
	return nil, fmt.Errorf("explorer error: %s %s", out.Message, msg)
}

func parseTransaction(row txRow) (domain.RawTransaction, error) {
	ts, err := parseUnix(row.TimeStamp)
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("transaction %s: %w", row.Hash, err)
	}
	value, err := parseBig(row.Value)
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("transaction %s value: %w", row.Hash, err)
	}
	gasUsed, err := parseBig(row.GasUsed)
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("transaction %s gasUsed: %w", row.Hash, err)
	}
	gasPrice, err := parseBig(row.GasPrice)
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("transaction %s gasPrice: %w", row.Hash, err)
	}

	methodID := strings.ToLower(row.MethodID)
	if methodID == "" && len(row.Input) >= 10 {
		methodID = strings.ToLower(row.Input[:10])
	}
	functionName := row.FunctionName
	if functionName == "" && methodID != "" {
		if sig, ok := LookupSelector(methodID); ok {
			functionName = sig
		}
	}

	return domain.RawTransaction{
		Hash:         row.Hash,
		Timestamp:    ts,
		From:         row.From,
		To:           row.To,
		Value:        value,
		GasUsed:      gasUsed,
		GasPrice:     gasPrice,
		FunctionName: functionName,
		MethodID:     methodID,
		Failed:       row.IsError == "1" || row.TxReceiptStatus == "0",
	}, nil
}

func parseTokenTransfer(row tokenRow) (domain.TokenTransferEvent, error) {
	ts, err := parseUnix(row.TimeStamp)
	if err != nil {
		return domain.TokenTransferEvent{}, fmt.Errorf("token transfer %s: %w", row.Hash, err)
	}
	decimals := -1
	if d, err := strconv.Atoi(strings.TrimSpace(row.TokenDecimal)); err == nil && d >= 0 {
		decimals = d
	}
	return domain.TokenTransferEvent{
		Hash:      row.Hash,
		Timestamp: ts,
		From:      row.From,
		To:        row.To,
		Contract:  strings.ToLower(row.ContractAddress),
		Symbol:    row.TokenSymbol,
		RawAmount: row.Value,
		Decimals:  decimals,
	}, nil
}

func parseInternalTransfer(row internalRow) (domain.TokenTransferEvent, error) {
	ts, err := parseUnix(row.TimeStamp)
	if err != nil {
		return domain.TokenTransferEvent{}, fmt.Errorf("internal transfer %s: %w", row.Hash, err)
	}
	return domain.TokenTransferEvent{
		Hash:      row.Hash,
		Timestamp: ts,
		From:      row.From,
		To:        row.To,
		Contract:  domain.NativeAsset,
		RawAmount: row.Value,
		Decimals:  18,
	}, nil
}

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, domain.ErrMalformed)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("integer %q: %w", s, domain.ErrMalformed)
	}
	return v, nil
}
