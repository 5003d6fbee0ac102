package reconciler

import (
	"time"

	"golang-conciliation-service/internal/classifier"
	"golang-conciliation-service/internal/matcher"
	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/parsers"

	"github.com/shopspring/decimal"
)

// AmountTotals sums record amounts per status
type AmountTotals struct {
	Full       decimal.Decimal `json:"full" yaml:"full"`
	AmountOnly decimal.Decimal `json:"amount_only" yaml:"amount_only"`
	Unmatched  decimal.Decimal `json:"unmatched" yaml:"unmatched"`
}

// Total returns the sum over all statuses
func (at *AmountTotals) Total() decimal.Decimal {
	return at.Full.Add(at.AmountOnly).Add(at.Unmatched)
}

// FamilySummary counts the statuses of one family. Amounts are kept per
// currency since buckets are never converted.
type FamilySummary struct {
	Total      int                               `json:"total" yaml:"total"`
	Full       int                               `json:"full" yaml:"full"`
	AmountOnly int                               `json:"amount_only" yaml:"amount_only"`
	Unmatched  int                               `json:"unmatched" yaml:"unmatched"`
	Amounts    map[models.Currency]*AmountTotals `json:"amounts" yaml:"amounts"`
}

// Count returns the number of records with the given status
func (fs *FamilySummary) Count(status models.Status) int {
	switch status {
	case models.StatusFull:
		return fs.Full
	case models.StatusAmountOnly:
		return fs.AmountOnly
	default:
		return fs.Unmatched
	}
}

// FullRate returns the share of FULL records, 0 for an empty family
func (fs *FamilySummary) FullRate() float64 {
	if fs.Total == 0 {
		return 0
	}
	return float64(fs.Full) / float64(fs.Total)
}

func (fs *FamilySummary) add(r models.Record, status models.Status) {
	if fs.Amounts == nil {
		fs.Amounts = make(map[models.Currency]*AmountTotals)
	}
	totals, ok := fs.Amounts[r.Currency]
	if !ok {
		totals = &AmountTotals{}
		fs.Amounts[r.Currency] = totals
	}

	fs.Total++
	switch status {
	case models.StatusFull:
		fs.Full++
		totals.Full = totals.Full.Add(r.Amount)
	case models.StatusAmountOnly:
		fs.AmountOnly++
		totals.AmountOnly = totals.AmountOnly.Add(r.Amount)
	default:
		fs.Unmatched++
		totals.Unmatched = totals.Unmatched.Add(r.Amount)
	}
}

// StreamSummary counts a classification-only stream
type StreamSummary struct {
	Count   int                                 `json:"count" yaml:"count"`
	Amounts map[models.Currency]decimal.Decimal `json:"amounts" yaml:"amounts"`
}

func summarizeStream(records []models.Record) StreamSummary {
	s := StreamSummary{Count: len(records), Amounts: make(map[models.Currency]decimal.Decimal)}
	for _, r := range records {
		s.Amounts[r.Currency] = s.Amounts[r.Currency].Add(r.Amount)
	}
	return s
}

// StageTiming records how long a pipeline stage took
type StageTiming struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Summary aggregates a reconciliation run
type Summary struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	GeneratedAt    time.Time     `json:"generated_at" yaml:"generated_at"`
	ProcessingTime time.Duration `json:"processing_time" yaml:"processing_time"`

	Requests  FamilySummary `json:"requests" yaml:"requests"`
	Receipts  FamilySummary `json:"receipts" yaml:"receipts"`
	Movements FamilySummary `json:"movements" yaml:"movements"`

	Transfers StreamSummary `json:"transfers" yaml:"transfers"`
	Market    StreamSummary `json:"market" yaml:"market"`

	ExactPairs    int `json:"exact_pairs" yaml:"exact_pairs"`
	FallbackPairs int `json:"fallback_pairs" yaml:"fallback_pairs"`
	Comparisons   int `json:"comparisons" yaml:"comparisons"`

	LedgerFiles        int `json:"ledger_files" yaml:"ledger_files"`
	SkippedLedgerFiles int `json:"skipped_ledger_files" yaml:"skipped_ledger_files"`
	Discrepancies      int `json:"discrepancies" yaml:"discrepancies"`

	Stages []StageTiming `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// Family returns the summary of family f
func (s *Summary) Family(f models.Family) *FamilySummary {
	switch f {
	case models.FamilyRequests:
		return &s.Requests
	case models.FamilyReceipts:
		return &s.Receipts
	default:
		return &s.Movements
	}
}

// Entry pairs a record with its match state
type Entry struct {
	Record models.Record
	State  models.MatchState
}

// FamilyResult holds the records of one family and their states, by position
type FamilyResult struct {
	Family  models.Family
	Records []models.Record
	States  []models.MatchState
}

// Len returns the number of records
func (fr *FamilyResult) Len() int {
	return len(fr.Records)
}

// Entries returns records and states side by side
func (fr *FamilyResult) Entries() []Entry {
	entries := make([]Entry, len(fr.Records))
	for i := range fr.Records {
		entries[i] = Entry{Record: fr.Records[i], State: fr.States[i]}
	}
	return entries
}

// WithStatus returns the entries having the given status
func (fr *FamilyResult) WithStatus(status models.Status) []Entry {
	var entries []Entry
	for i := range fr.Records {
		if fr.States[i].Status == status {
			entries = append(entries, Entry{Record: fr.Records[i], State: fr.States[i]})
		}
	}
	return entries
}

// Result is the complete output of a run
type Result struct {
	Summary *Summary

	Requests  FamilyResult
	Receipts  FamilyResult
	Movements FamilyResult

	Transfers []models.Record
	Market    []models.Record

	Ledgers       []classifier.FileReport
	Exports       []*parsers.ExportReport
	Discrepancies []Discrepancy
	Stats         matcher.Stats
}

// Family returns the result of family f
func (r *Result) Family(f models.Family) *FamilyResult {
	switch f {
	case models.FamilyRequests:
		return &r.Requests
	case models.FamilyReceipts:
		return &r.Receipts
	default:
		return &r.Movements
	}
}

// Aggregate derives summary counts from a match outcome. The record slices
// must be the ones passed to the matcher. Transfers and market movements are
// passed through untouched.
func Aggregate(requests, receipts, movements []models.Record, outcome *matcher.Outcome, transfers, market []models.Record) *Result {
	result := &Result{
		Summary:   &Summary{},
		Transfers: transfers,
		Market:    market,
		Stats:     outcome.Stats,
	}

	arenas := [models.FamilyCount][]models.Record{requests, receipts, movements}
	for _, f := range models.Families() {
		fr := result.Family(f)
		fr.Family = f
		fr.Records = arenas[f]
		fr.States = outcome.States(f)

		summary := result.Summary.Family(f)
		summary.Amounts = make(map[models.Currency]*AmountTotals)
		for i, state := range fr.States {
			summary.add(fr.Records[i], state.Status)
		}
	}

	result.Summary.Transfers = summarizeStream(transfers)
	result.Summary.Market = summarizeStream(market)
	result.Summary.ExactPairs = outcome.Stats.Matched(matcher.PhaseExact)
	result.Summary.FallbackPairs = outcome.Stats.Matched(matcher.PhaseFallback)
	result.Summary.Comparisons = outcome.Stats.Compared()

	return result
}
