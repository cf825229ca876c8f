package domain

import "context"

// Canceller is the cooperative cancellation contract. Batch loops poll it
// between batches; in-flight calls are allowed to finish.
type Canceller interface {
	Cancelled() bool
}

// HistoryService fetches the raw activity of a wallet.
type HistoryService interface {
	// FetchHistory returns normal transactions and transfer events for the wallet.
	// Implementations poll cancel between pages and return ErrCancelled when set.
	FetchHistory(ctx context.Context, wallet string, cancel Canceller) (*History, error)
}

// PriceSource is one upstream price provider.
type PriceSource interface {
	Name() string

	// FetchPrice returns the fiat price of the asset at the instant, or
	// ErrPriceUnavailable when the source has no answer.
	FetchPrice(ctx context.Context, req PriceRequest) (PriceQuote, error)
}

// PriceCache stores resolved quotes for the lifetime of one run.
type PriceCache interface {
	Get(ctx context.Context, key string) (PriceQuote, bool, error)
	Set(ctx context.Context, key string, quote PriceQuote) error

	// Reset drops everything the run stored.
	Reset(ctx context.Context) error
}

// TokenResolver looks up token metadata for transfer events that lack it.
type TokenResolver interface {
	Lookup(ctx context.Context, contract string) (*TokenMetadata, error)
}

// LedgerRunner runs the full pipeline for one wallet.
type LedgerRunner interface {
	Run(ctx context.Context, input LedgerInput, opts RunOptions) (*LedgerOutput, error)
}

// RunOptions carries per-run collaborators that are not part of the input.
type RunOptions struct {
	Cancel   Canceller
	Progress func(Progress)
}

// Progress is reported at stage boundaries and after each price batch.
type Progress struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}
