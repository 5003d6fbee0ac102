package reporter

import (
	"golang-conciliation-service/internal/classifier"
	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/parsers"
	"golang-conciliation-service/internal/reconciler"
)

// Match labels used in reports
const (
	MatchExact    = "exact"
	MatchFallback = "fallback"
)

// MatchRef describes how a record matched one counterpart family
type MatchRef struct {
	Type string `json:"type" yaml:"type"`
	Peer string `json:"peer,omitempty" yaml:"peer,omitempty"`
}

// RecordRow is the flattened form of a record used by every output format
type RecordRow struct {
	ID           string              `json:"id" yaml:"id"`
	Kind         string              `json:"kind" yaml:"kind"`
	Date         string              `json:"date" yaml:"date"`
	TaxID        string              `json:"tax_id,omitempty" yaml:"tax_id,omitempty"`
	Counterparty string              `json:"counterparty,omitempty" yaml:"counterparty,omitempty"`
	Currency     string              `json:"currency" yaml:"currency"`
	Amount       string              `json:"amount" yaml:"amount"`
	SpecialFlag  bool                `json:"special_flag" yaml:"special_flag"`
	Status       string              `json:"status,omitempty" yaml:"status,omitempty"`
	Matches      map[string]MatchRef `json:"matches,omitempty" yaml:"matches,omitempty"`
	Source       string              `json:"source,omitempty" yaml:"source,omitempty"`
	Origin       map[string]string   `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// LedgerRow summarizes one classified ledger file
type LedgerRow struct {
	File       string `json:"file" yaml:"file"`
	Currency   string `json:"currency" yaml:"currency"`
	Restricted bool   `json:"restricted" yaml:"restricted"`
	HeaderRow  int    `json:"header_row" yaml:"header_row"`
	Rows       int    `json:"rows" yaml:"rows"`
	Movements  int    `json:"movements" yaml:"movements"`
	Transfers  int    `json:"transfers" yaml:"transfers"`
	Market     int    `json:"market" yaml:"market"`
	Discarded  int    `json:"discarded" yaml:"discarded"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Document is the serializable view of a result
type Document struct {
	Summary       *reconciler.Summary      `json:"summary" yaml:"summary"`
	Requests      []RecordRow              `json:"requests,omitempty" yaml:"requests,omitempty"`
	Receipts      []RecordRow              `json:"receipts,omitempty" yaml:"receipts,omitempty"`
	Movements     []RecordRow              `json:"movements,omitempty" yaml:"movements,omitempty"`
	Transfers     []RecordRow              `json:"transfers,omitempty" yaml:"transfers,omitempty"`
	Market        []RecordRow              `json:"market,omitempty" yaml:"market,omitempty"`
	Ledgers       []LedgerRow              `json:"ledgers,omitempty" yaml:"ledgers,omitempty"`
	Exports       []*parsers.ExportReport  `json:"exports,omitempty" yaml:"exports,omitempty"`
	Discrepancies []reconciler.Discrepancy `json:"discrepancies,omitempty" yaml:"discrepancies,omitempty"`
}

// buildDocument flattens result according to the configuration
func (rg *ReportGenerator) buildDocument(result *reconciler.Result) *Document {
	doc := &Document{Summary: result.Summary}

	doc.Requests = rg.familyRows(&result.Requests)
	doc.Receipts = rg.familyRows(&result.Receipts)
	doc.Movements = rg.familyRows(&result.Movements)

	if rg.config.IncludeStreams {
		doc.Transfers = rg.streamRows(result.Transfers)
		doc.Market = rg.streamRows(result.Market)
	}

	if rg.config.IncludeProcessingStats {
		for _, report := range result.Ledgers {
			doc.Ledgers = append(doc.Ledgers, ledgerRow(report))
		}
		doc.Exports = result.Exports
	}

	if rg.config.IncludeDiscrepancies {
		doc.Discrepancies = result.Discrepancies
	}

	return doc
}

// familyRows returns the rows of a family, skipping FULL records unless
// matched records were requested
func (rg *ReportGenerator) familyRows(fr *reconciler.FamilyResult) []RecordRow {
	var rows []RecordRow
	for _, entry := range fr.Entries() {
		if entry.State.Status == models.StatusFull && !rg.config.IncludeMatched {
			continue
		}
		if entry.State.Status != models.StatusFull && !rg.config.IncludeUnmatched {
			continue
		}
		row := rg.recordRow(entry.Record)
		row.Status = entry.State.Status.String()
		row.Matches = matchRefs(fr.Family, entry.State)
		rows = append(rows, row)
	}
	return rows
}

func (rg *ReportGenerator) streamRows(records []models.Record) []RecordRow {
	rows := make([]RecordRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, rg.recordRow(r))
	}
	return rows
}

func (rg *ReportGenerator) recordRow(r models.Record) RecordRow {
	row := RecordRow{
		ID:           r.ID,
		Kind:         r.Kind.String(),
		Date:         r.Date,
		TaxID:        r.CounterpartyTaxID,
		Counterparty: r.Counterparty,
		Currency:     r.Currency.String(),
		Amount:       r.Amount.StringFixed(2),
		SpecialFlag:  r.SpecialFlag,
		Source:       r.Source,
	}
	if rg.config.IncludeOrigin {
		row.Origin = r.Origin
	}
	return row
}

func matchRefs(own models.Family, state models.MatchState) map[string]MatchRef {
	refs := make(map[string]MatchRef)
	for _, f := range own.Counterparts() {
		if label := matchLabel(state, f); label != "" {
			refs[f.String()] = MatchRef{Type: label, Peer: state.Peer(f)}
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// matchLabel returns exact, fallback or an empty string
func matchLabel(state models.MatchState, f models.Family) string {
	switch {
	case state.Exact[f]:
		return MatchExact
	case state.Fallback[f]:
		return MatchFallback
	default:
		return ""
	}
}

func ledgerRow(report classifier.FileReport) LedgerRow {
	row := LedgerRow{
		File:       report.File,
		Currency:   report.Currency.String(),
		Restricted: report.Restricted,
		HeaderRow:  report.HeaderRow,
		Rows:       report.Rows,
		Movements:  report.Movements,
		Transfers:  report.Transfers,
		Market:     report.Market,
		Discarded:  report.Discarded(),
	}
	if report.Err != nil {
		row.Error = report.Err.Error()
	}
	return row
}
