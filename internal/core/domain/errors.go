package domain

import "errors"

var (
	// ErrPriceUnavailable is returned by a price source that has no answer.
	// The resolver turns it into an unavailable quote.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrHistoryUnavailable aborts a run: without history there is no ledger.
	ErrHistoryUnavailable = errors.New("transaction history unavailable")

	// ErrMalformed marks a single unparseable input item.
	ErrMalformed = errors.New("malformed input")

	// ErrCancelled is returned when a run observes its cancellation flag.
	ErrCancelled = errors.New("run cancelled")
)
