package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
)

const dateLayout = "2006-01-02"

// LedgerRequest is the JSON body of a ledger run. Dates accept RFC 3339 or
// a plain date; a plain "to" date includes the whole day.
type LedgerRequest struct {
	Wallet string   `json:"wallet"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func (r LedgerRequest) Input() (domain.LedgerInput, error) {
	in := domain.LedgerInput{Wallet: strings.TrimSpace(r.Wallet)}
	if in.Wallet == "" {
		return in, fmt.Errorf("wallet is required: %w", domain.ErrMalformed)
	}

	var err error
	if in.From, err = ParseBound(r.From, false); err != nil {
		return in, err
	}
	if in.To, err = ParseBound(r.To, true); err != nil {
		return in, err
	}
	if len(r.Tags) > 0 {
		if in.Tags, err = domain.ParseTags(strings.Join(r.Tags, ",")); err != nil {
			return in, err
		}
	}
	return in, nil
}

// ParseBound parses a date bound. An empty string is unbounded.
func ParseBound(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, domain.ErrMalformed)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}
