package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies which upstream export or ledger stream a record came from
type Kind string

const (
	// KindPaymentRequest is a row of the payment status export
	KindPaymentRequest Kind = "PAYMENT_REQUEST"
	// KindPaymentReceipt is a row of the receipt export
	KindPaymentReceipt Kind = "PAYMENT_RECEIPT"
	// KindBankMovement is a reconcilable debit line of a bank ledger
	KindBankMovement Kind = "BANK_MOVEMENT"
	// KindTreasuryTransfer is a ledger line against the treasury counterparty
	KindTreasuryTransfer Kind = "TREASURY_TRANSFER"
	// KindMarketMovement is a ledger line against a market-clearing counterparty
	KindMarketMovement Kind = "MARKET_MOVEMENT"
)

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known record kinds
func (k Kind) IsValid() bool {
	switch k {
	case KindPaymentRequest, KindPaymentReceipt, KindBankMovement, KindTreasuryTransfer, KindMarketMovement:
		return true
	}
	return false
}

// IDPrefix returns the prefix used for record identifiers of this kind
func (k Kind) IDPrefix() string {
	switch k {
	case KindPaymentRequest:
		return "REQ"
	case KindPaymentReceipt:
		return "REC"
	case KindBankMovement:
		return "MOV"
	case KindTreasuryTransfer:
		return "TRF"
	case KindMarketMovement:
		return "MKT"
	default:
		return "REC"
	}
}

// Currency is a canonical currency bucket. Labels the normalizer cannot map
// are carried as-is and behave as their own bucket.
type Currency string

const (
	CurrencyLocal    Currency = "LOCAL"
	CurrencyUSD      Currency = "USD"
	CurrencyUSDCable Currency = "USD_CABLE"
)

// String returns the string representation of Currency
func (c Currency) String() string {
	return string(c)
}

// IsCanonical reports whether the currency is one of the fixed buckets
func (c Currency) IsCanonical() bool {
	return c == CurrencyLocal || c == CurrencyUSD || c == CurrencyUSDCable
}

// CanonicalCurrencies lists the fixed buckets in reporting order
func CanonicalCurrencies() []Currency {
	return []Currency{CurrencyLocal, CurrencyUSD, CurrencyUSDCable}
}

// Record is a normalized row of any of the five kinds. Records are built once
// at ingestion and never modified afterwards; match results are kept in
// MatchState values held alongside them.
type Record struct {
	ID                string            `json:"id"`
	Kind              Kind              `json:"kind"`
	Date              string            `json:"date"`
	CounterpartyTaxID string            `json:"counterpartyTaxId"`
	Counterparty      string            `json:"counterparty,omitempty"`
	Currency          Currency          `json:"currency"`
	Amount            decimal.Decimal   `json:"amount"`
	SpecialFlag       bool              `json:"specialFlag"`
	Restricted        bool              `json:"restricted,omitempty"`
	Source            string            `json:"source,omitempty"`
	Origin            map[string]string `json:"origin,omitempty"`
}

// Validate performs basic validation on the Record
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid record kind: %s", r.Kind)
	}

	if r.Amount.IsNegative() {
		return fmt.Errorf("record %s has negative amount %s", r.ID, r.Amount.String())
	}

	return nil
}

// String returns a string representation of the Record
func (r Record) String() string {
	return fmt.Sprintf("Record{ID: %s, Kind: %s, Date: %s, TaxID: %s, Currency: %s, Amount: %s, Flag: %t}",
		r.ID, r.Kind, r.Date, r.CounterpartyTaxID, r.Currency, r.Amount.StringFixed(2), r.SpecialFlag)
}

// MarshalJSON renders the amount with two decimals
func (r Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Alias
	}{
		Amount: r.Amount.StringFixed(2),
		Alias:  Alias(r),
	})
}

// Family is one of the three reconcilable record families
type Family int

const (
	FamilyRequests Family = iota
	FamilyReceipts
	FamilyMovements
)

// FamilyCount is the number of reconcilable families
const FamilyCount = 3

// Families lists the reconcilable families in matching order
func Families() []Family {
	return []Family{FamilyRequests, FamilyReceipts, FamilyMovements}
}

// String returns the string representation of Family
func (f Family) String() string {
	switch f {
	case FamilyRequests:
		return "requests"
	case FamilyReceipts:
		return "receipts"
	case FamilyMovements:
		return "movements"
	default:
		return "unknown"
	}
}

// Counterparts returns the two families a record of f must be matched against
func (f Family) Counterparts() [2]Family {
	switch f {
	case FamilyRequests:
		return [2]Family{FamilyReceipts, FamilyMovements}
	case FamilyReceipts:
		return [2]Family{FamilyRequests, FamilyMovements}
	default:
		return [2]Family{FamilyRequests, FamilyReceipts}
	}
}

// FamilyOf maps a record kind to its family. Treasury transfers and market
// movements belong to no family.
func FamilyOf(kind Kind) (Family, bool) {
	switch kind {
	case KindPaymentRequest:
		return FamilyRequests, true
	case KindPaymentReceipt:
		return FamilyReceipts, true
	case KindBankMovement:
		return FamilyMovements, true
	default:
		return 0, false
	}
}

// Sequence hands out run-scoped record identifiers of the form PREFIX-000001.
// Each prefix has its own counter. A Sequence is not safe for concurrent use.
type Sequence struct {
	counters map[string]int
}

// NewSequence creates a sequence starting at 1 for every prefix
func NewSequence() *Sequence {
	return &Sequence{counters: make(map[string]int)}
}

// Next returns the next identifier for the given kind
func (s *Sequence) Next(kind Kind) string {
	prefix := kind.IDPrefix()
	s.counters[prefix]++
	return fmt.Sprintf("%s-%06d", prefix, s.counters[prefix])
}

// Issued returns how many identifiers were issued for the given kind
func (s *Sequence) Issued(kind Kind) int {
	return s.counters[kind.IDPrefix()]
}
