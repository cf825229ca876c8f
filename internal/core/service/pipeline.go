package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Run stages reported through RunOptions.Progress.
const (
	StageHistory  = "history"
	StageClassify = "classify"
	StagePrices   = "prices"
	StageLedger   = "ledger"
	StageDone     = "done"
)

// PriceCacheFactory builds the cache of a single run.
type PriceCacheFactory func(runID string) domain.PriceCache

// TokenResolverFactory builds the token lookup of a single run.
type TokenResolverFactory func() domain.TokenResolver

type LedgerConfig struct {
	ChainName    string
	NativeSymbol string
	Resolver     ResolverOptions
}

// LedgerService runs the whole pipeline for a wallet: history, movements,
// classification, prices and the cost-basis pass.
type LedgerService struct {
	history   domain.HistoryService
	sources   PriceSources
	newCache  PriceCacheFactory
	newTokens TokenResolverFactory
	cfg       LedgerConfig
}

func NewLedgerService(
	history domain.HistoryService,
	sources PriceSources,
	newCache PriceCacheFactory,
	newTokens TokenResolverFactory,
	cfg LedgerConfig,
) *LedgerService {
	return &LedgerService{
		history:   history,
		sources:   sources,
		newCache:  newCache,
		newTokens: newTokens,
		cfg:       cfg,
	}
}

func (s *LedgerService) Run(ctx context.Context, input domain.LedgerInput, opts domain.RunOptions) (*domain.LedgerOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	cancel := WithContext(ctx, opts.Cancel)
	l := log.WithFields(log.Fields{
		"package": "service",
		"func":    "Run",
		"run_id":  runID,
		"wallet":  input.Wallet,
	})
	report := func(stage string, done, total int) {
		if opts.Progress != nil {
			opts.Progress(domain.Progress{RunID: runID, Stage: stage, Done: done, Total: total})
		}
	}

	// 1. History
	report(StageHistory, 0, 0)
	history, err := s.history.FetchHistory(ctx, input.Wallet, cancel)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) || cancel.Cancelled() {
			return nil, domain.ErrCancelled
		}
		if !errors.Is(err, domain.ErrHistoryUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrHistoryUnavailable, err)
		}
		return nil, err
	}
	history = truncateHistory(history, input)
	stats := domain.RunStats{
		Transactions:   len(history.Transactions),
		TransferEvents: len(history.Transfers),
	}
	report(StageHistory, stats.Transactions, stats.Transactions)

	if s.newTokens != nil {
		s.enrichTransfers(ctx, history)
	}

	// 2. Movements, classification, events
	extracted, skipped := ExtractMovements(input.Wallet, s.cfg.NativeSymbol, history)
	stats.Skipped = skipped
	var events []domain.ClassifiedEvent
	for i, tm := range extracted {
		if !relevant(input.Wallet, tm) {
			continue
		}
		c := Classify(ClassifierInput{Wallet: input.Wallet, Tx: tm.Tx, Movements: tm.Movements})
		if c.Tag == domain.TagUnknown {
			stats.UnknownEvents++
		}
		events = append(events, BuildEvents(input.Wallet, s.cfg.NativeSymbol, tm, c)...)
		if (i+1)%100 == 0 {
			report(StageClassify, i+1, len(extracted))
		}
	}
	report(StageClassify, len(extracted), len(extracted))
	sortAscending(events)
	stats.Events = len(events)

	if cancel.Cancelled() {
		return nil, domain.ErrCancelled
	}

	// 3. Prices, pre-resolved before the ledger pass
	reqs := s.priceRequests(events)
	cache := s.newCache(runID)
	defer func() {
		if err := cache.Reset(context.Background()); err != nil {
			l.Warnf("price cache reset failed: %v", err)
		}
	}()
	resolver := NewPriceResolver(s.sources, cache, s.cfg.Resolver)
	quotes, err := resolver.ResolveBatch(ctx, reqs, cancel, func(done, total int) {
		report(StagePrices, done, total)
	})
	if err != nil {
		return nil, err
	}
	stats.PriceRequests = len(quotes)
	for _, q := range quotes {
		if !q.Found {
			stats.PricesMissing++
		}
	}
	if cancel.Cancelled() {
		return nil, domain.ErrCancelled
	}

	// 4. Single ascending ledger pass
	report(StageLedger, 0, len(events))
	ledger := NewCostBasisLedger()
	rows := make([]domain.LedgerRow, 0, len(events))
	for _, ev := range events {
		row := s.apply(ledger, ev, quotes)
		if keep(input, ev) {
			rows = append(rows, row)
		}
	}

	// 5. Presentation order
	rows = newestFirst(rows)
	report(StageDone, len(rows), len(rows))

	l.Infof("ledger built: %d events, %d rows, %d/%d prices missing",
		stats.Events, len(rows), stats.PricesMissing, stats.PriceRequests)

	return &domain.LedgerOutput{
		RunID:  runID,
		Wallet: input.Wallet,
		Rows:   rows,
		Stats:  stats,
	}, nil
}

// newestFirst reverses ascending rows transaction by transaction. Rows of one
// transaction keep their order so the primary row precedes its legs.
func newestFirst(rows []domain.LedgerRow) []domain.LedgerRow {
	out := make([]domain.LedgerRow, 0, len(rows))
	end := len(rows)
	for end > 0 {
		start := end - 1
		for start > 0 && rows[start-1].Hash == rows[end-1].Hash {
			start--
		}
		out = append(out, rows[start:end]...)
		end = start
	}
	return out
}

// apply feeds one event to the ledger. Sent legs and the fee are disposed
// before the received leg is acquired. Only the sent leg realizes a gain.
func (s *LedgerService) apply(ledger *CostBasisLedger, ev domain.ClassifiedEvent, quotes map[string]domain.PriceQuote) domain.LedgerRow {
	row := domain.LedgerRow{
		Timestamp: ev.Timestamp,
		Hash:      ev.Hash,
		Note:      ev.Note,
		Tag:       ev.Tag,
	}
	var sources []string
	price := func(leg *domain.Leg) *decimal.Decimal {
		q, ok := quotes[s.priceRequest(ev, leg).Key()]
		if !ok || !q.Found {
			return nil
		}
		sources = appendSource(sources, q.Source)
		p := q.Price
		return &p
	}

	if ev.Sent != nil {
		p := price(ev.Sent)
		qty := ev.Sent.Quantity
		row.SentQty, row.SentAsset = &qty, ev.Sent.Asset
		row.SentFiat = fiat(qty, p)
		d := ledger.Dispose(s.assetKey(ev.Sent).String(), qty, p)
		row.RealizedGain = d.RoundedGain()
	}
	if ev.Fee != nil {
		p := price(ev.Fee)
		qty := ev.Fee.Quantity
		row.FeeQty, row.FeeAsset = &qty, ev.Fee.Asset
		row.FeeFiat = fiat(qty, p)
		ledger.Dispose(s.assetKey(ev.Fee).String(), qty, p)
	}
	if ev.Received != nil {
		p := price(ev.Received)
		qty := ev.Received.Quantity
		row.ReceivedQty, row.ReceivedAsset = &qty, ev.Received.Asset
		row.ReceivedFiat = fiat(qty, p)
		ledger.Acquire(s.assetKey(ev.Received).String(), qty, p, ev.Timestamp)
	}
	row.PriceSources = sources
	return row
}

func (s *LedgerService) priceRequests(events []domain.ClassifiedEvent) []domain.PriceRequest {
	var reqs []domain.PriceRequest
	for _, ev := range events {
		for _, leg := range []*domain.Leg{ev.Sent, ev.Received, ev.Fee} {
			if leg != nil {
				reqs = append(reqs, s.priceRequest(ev, leg))
			}
		}
	}
	return reqs
}

func (s *LedgerService) priceRequest(ev domain.ClassifiedEvent, leg *domain.Leg) domain.PriceRequest {
	return domain.PriceRequest{Asset: s.assetKey(leg), Timestamp: ev.Timestamp}
}

func (s *LedgerService) assetKey(leg *domain.Leg) domain.AssetKey {
	return domain.AssetKey{Chain: s.cfg.ChainName, Symbol: leg.Asset, Contract: leg.Contract}
}

// enrichTransfers fills symbol and decimals of token transfers that arrived
// without them. Each contract is looked up once per run.
func (s *LedgerService) enrichTransfers(ctx context.Context, history *domain.History) {
	tokens := s.newTokens()
	found := make(map[string]*domain.TokenMetadata)
	for i := range history.Transfers {
		ev := &history.Transfers[i]
		if ev.Contract == "" || ev.Contract == domain.NativeAsset {
			continue
		}
		if ev.Decimals >= 0 && ev.Symbol != "" {
			continue
		}
		contract := strings.ToLower(ev.Contract)
		meta, seen := found[contract]
		if !seen {
			m, err := tokens.Lookup(ctx, contract)
			if err != nil {
				log.WithFields(log.Fields{
					"package":  "service",
					"func":     "enrichTransfers",
					"contract": contract,
				}).Debugf("token lookup failed: %v", err)
			}
			found[contract] = m
			meta = m
		}
		if meta == nil {
			continue
		}
		if ev.Symbol == "" {
			ev.Symbol = meta.Symbol
		}
		if ev.Decimals < 0 {
			ev.Decimals = meta.Decimals
		}
	}
}

func validateInput(input domain.LedgerInput) error {
	if strings.TrimSpace(input.Wallet) == "" {
		return fmt.Errorf("wallet is required: %w", domain.ErrMalformed)
	}
	if !input.From.IsZero() && !input.To.IsZero() && input.From.After(input.To) {
		return fmt.Errorf("from %s is after to %s: %w", input.From, input.To, domain.ErrMalformed)
	}
	return nil
}

// truncateHistory copies the history without activity after the upper
// bound. Activity before the lower bound is kept: it carries the basis of
// later disposals.
func truncateHistory(h *domain.History, input domain.LedgerInput) *domain.History {
	within := func(ts time.Time) bool {
		return input.To.IsZero() || !ts.After(input.To)
	}
	out := &domain.History{Malformed: append([]string(nil), h.Malformed...)}
	for _, tx := range h.Transactions {
		if within(tx.Timestamp) {
			out.Transactions = append(out.Transactions, tx)
		}
	}
	for _, ev := range h.Transfers {
		if within(ev.Timestamp) {
			out.Transfers = append(out.Transfers, ev)
		}
	}
	return out
}

// relevant drops transactions the wallet did not initiate when they leave it
// untouched or failed.
func relevant(wallet string, tm TransactionMovements) bool {
	if SameAddress(tm.Tx.From, wallet) {
		return true
	}
	return !tm.Tx.Failed && len(tm.Movements) > 0
}

func keep(input domain.LedgerInput, ev domain.ClassifiedEvent) bool {
	if !input.From.IsZero() && ev.Timestamp.Before(input.From) {
		return false
	}
	if len(input.Tags) == 0 {
		return true
	}
	for _, t := range input.Tags {
		if t == ev.Tag {
			return true
		}
	}
	return false
}

func sortAscending(events []domain.ClassifiedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Hash < b.Hash
	})
}

func fiat(qty decimal.Decimal, price *decimal.Decimal) *decimal.Decimal {
	if price == nil {
		return nil
	}
	v := qty.Mul(*price).Round(2)
	return &v
}

func appendSource(sources []string, src string) []string {
	for _, s := range sources {
		if s == src {
			return sources
		}
	}
	return append(sources, src)
}
