package domain

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NativeAsset marks the chain's native currency wherever a contract address would go.
const NativeAsset = "native"

// LedgerInput represents the parameters of one ledger run.
type LedgerInput struct {
	Wallet string    `json:"wallet"`
	From   time.Time `json:"from,omitempty"` // zero means unbounded
	To     time.Time `json:"to,omitempty"`   // zero means unbounded
	Tags   []Tag     `json:"tags,omitempty"` // empty means every tag
}

// LedgerOutput is the result of a completed ledger run, newest row first.
type LedgerOutput struct {
	RunID  string      `json:"run_id"`
	Wallet string      `json:"wallet"`
	Rows   []LedgerRow `json:"rows"`
	Stats  RunStats    `json:"stats"`
}

// RunStats summarizes what a run did.
type RunStats struct {
	Transactions   int `json:"transactions"`
	TransferEvents int `json:"transfer_events"`
	Events         int `json:"events"`
	PriceRequests  int `json:"price_requests"`
	PricesMissing  int `json:"prices_missing"`
	UnknownEvents  int `json:"unknown_events"`
	Skipped        int `json:"skipped"` // malformed transactions
}

// RawTransaction is a normal transaction as reported by the history source.
type RawTransaction struct {
	Hash         string    `json:"hash"`
	Timestamp    time.Time `json:"timestamp"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Value        *big.Int  `json:"value"` // wei
	GasUsed      *big.Int  `json:"gas_used"`
	GasPrice     *big.Int  `json:"gas_price"`
	FunctionName string    `json:"function_name"`
	MethodID     string    `json:"method_id"`
	Failed       bool      `json:"failed"`
}

// TokenTransferEvent is one transfer reported for a transaction hash.
// Internal native transfers use NativeAsset as Contract.
type TokenTransferEvent struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Contract  string    `json:"contract"`
	Symbol    string    `json:"symbol"`
	RawAmount string    `json:"raw_amount"`
	Decimals  int       `json:"decimals"` // -1 when the source did not report it
}

// History is everything the history source returned for one wallet.
type History struct {
	Transactions []RawTransaction
	Transfers    []TokenTransferEvent

	// Malformed lists hashes with a row the source could not parse. Those
	// transactions are skipped whole.
	Malformed []string
}

// NetMovement is the wallet's signed change in one asset within one transaction.
type NetMovement struct {
	Hash     string          `json:"hash"`
	Asset    string          `json:"asset"` // contract address or NativeAsset
	Symbol   string          `json:"symbol"`
	Contract string          `json:"contract,omitempty"`
	Amount   decimal.Decimal `json:"amount"` // positive = gained
}

// Leg is one side of a classified event.
type Leg struct {
	Quantity decimal.Decimal `json:"quantity"`
	Asset    string          `json:"asset"`
	Contract string          `json:"contract,omitempty"`
}

// ClassifiedEvent is one economic row of a transaction.
type ClassifiedEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Hash         string    `json:"hash"`
	Tag          Tag       `json:"tag"`
	Sent         *Leg      `json:"sent,omitempty"`
	Received     *Leg      `json:"received,omitempty"`
	Fee          *Leg      `json:"fee,omitempty"`
	Note         string    `json:"note,omitempty"`
	Continuation bool      `json:"continuation,omitempty"`
}

// AssetKey identifies an asset for pricing. Symbol alone is not enough
// when several contracts share it.
type AssetKey struct {
	Chain    string `json:"chain"`
	Symbol   string `json:"symbol"`
	Contract string `json:"contract,omitempty"`
}

func (k AssetKey) String() string {
	if k.Contract != "" && k.Contract != NativeAsset {
		return k.Chain + ":" + strings.ToLower(k.Contract)
	}
	return "symbol:" + strings.ToUpper(k.Symbol)
}

// PriceRequest asks for the fiat price of an asset at an exact instant.
type PriceRequest struct {
	Asset     AssetKey  `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
}

// Key is the exact (asset, millisecond) cache key.
func (r PriceRequest) Key() string {
	return r.Asset.String() + "@" + strconv.FormatInt(r.Timestamp.UnixMilli(), 10)
}

// PriceQuote is the outcome of a price resolution. Found=false means unavailable.
type PriceQuote struct {
	Price       decimal.Decimal `json:"price"`
	Source      string          `json:"source,omitempty"`
	Found       bool            `json:"found"`
	Approximate bool            `json:"approximate,omitempty"`
}

// Lot is an open acquisition in the cost-basis ledger.
type Lot struct {
	Asset     string          `json:"asset"`
	Remaining decimal.Decimal `json:"remaining"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Acquired  time.Time       `json:"acquired"`
}

// RealizedDisposal is the ledger's answer to one disposal. Gain is nil when
// the basis is unknown.
type RealizedDisposal struct {
	Asset     string           `json:"asset"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Covered   decimal.Decimal  `json:"covered"`
	Proceeds  decimal.Decimal  `json:"proceeds"`
	CostBasis decimal.Decimal  `json:"cost_basis"`
	Gain      *decimal.Decimal `json:"gain"`
}

// RoundedGain returns the gain rounded to cents, or nil when unknown.
func (d RealizedDisposal) RoundedGain() *decimal.Decimal {
	if d.Gain == nil {
		return nil
	}
	r := d.Gain.Round(2)
	return &r
}

// LedgerRow is the presentation row handed to formatting collaborators.
// Nil fiat values are rendered empty, never as zero.
type LedgerRow struct {
	Timestamp     time.Time        `json:"timestamp"`
	ReceivedQty   *decimal.Decimal `json:"received_qty,omitempty"`
	ReceivedAsset string           `json:"received_asset,omitempty"`
	ReceivedFiat  *decimal.Decimal `json:"received_fiat"`
	SentQty       *decimal.Decimal `json:"sent_qty,omitempty"`
	SentAsset     string           `json:"sent_asset,omitempty"`
	SentFiat      *decimal.Decimal `json:"sent_fiat"`
	FeeQty        *decimal.Decimal `json:"fee_qty,omitempty"`
	FeeAsset      string           `json:"fee_asset,omitempty"`
	FeeFiat       *decimal.Decimal `json:"fee_fiat"`
	Hash          string           `json:"hash"`
	Note          string           `json:"note,omitempty"`
	Tag           Tag              `json:"tag"`
	RealizedGain  *decimal.Decimal `json:"realized_gain"`
	PriceSources  []string         `json:"price_sources,omitempty"`
}

// TokenMetadata holds basic information about a token.
type TokenMetadata struct {
	Symbol   string
	Decimals int
	Name     string
}
