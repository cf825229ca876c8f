package service

import (
	"context"
	"sync/atomic"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
)

// CancelFlag is a polled cancellation flag shared between a run and whoever
// may stop it.
type CancelFlag struct {
	set atomic.Bool
}

func NewCancelFlag() *CancelFlag {
	return &CancelFlag{}
}

func (f *CancelFlag) Cancel() {
	f.set.Store(true)
}

func (f *CancelFlag) Cancelled() bool {
	return f.set.Load()
}

// contextCanceller reports cancellation once either the context is done or
// the wrapped flag is set.
type contextCanceller struct {
	ctx   context.Context
	inner domain.Canceller
}

// WithContext combines a canceller with a context. A nil canceller is allowed.
func WithContext(ctx context.Context, c domain.Canceller) domain.Canceller {
	return contextCanceller{ctx: ctx, inner: c}
}

func (c contextCanceller) Cancelled() bool {
	if c.ctx.Err() != nil {
		return true
	}
	return c.inner != nil && c.inner.Cancelled()
}

// Never is a canceller that is never set.
var Never domain.Canceller = neverCancel{}

type neverCancel struct{}

func (neverCancel) Cancelled() bool { return false }
