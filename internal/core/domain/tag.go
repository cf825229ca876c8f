package domain

import (
	"fmt"
	"strings"
)

// Tag is the economic kind of a classified event.
type Tag int

const (
	TagUnknown Tag = iota
	TagSwap
	TagTransferIn
	TagTransferOut
	TagStakingDeposit
	TagStakingReturn
	TagStakingClaim
	TagAddLiquidity
	TagRemoveLiquidity
	TagOpenPosition
	TagClosePosition
	TagReward
	TagFee
)

var tagNames = [...]string{
	"Unknown",
	"Swap",
	"TransferIn",
	"TransferOut",
	"StakingDeposit",
	"StakingReturn",
	"StakingClaim",
	"AddLiquidity",
	"RemoveLiquidity",
	"OpenPosition",
	"ClosePosition",
	"Reward",
	"Fee",
}

func (t Tag) String() string {
	if t < 0 || int(t) >= len(tagNames) {
		return tagNames[TagUnknown]
	}
	return tagNames[t]
}

// ParseTag accepts tag names case-insensitively.
func ParseTag(s string) (Tag, error) {
	for i, name := range tagNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Tag(i), nil
		}
	}
	return TagUnknown, fmt.Errorf("unknown tag %q: %w", s, ErrMalformed)
}

// ParseTags parses a comma separated tag list. Empty input yields nil.
func ParseTags(s string) ([]Tag, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var tags []Tag
	for _, part := range strings.Split(s, ",") {
		t, err := ParseTag(part)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tag) UnmarshalText(b []byte) error {
	parsed, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
