package reconciler

import (
	"fmt"
	"strings"

	"golang-conciliation-service/internal/models"
)

// DiscrepancyType represents the type of data problem found in a record
type DiscrepancyType string

const (
	DiscrepancyInvalidRecord   DiscrepancyType = "invalid_record"
	DiscrepancyMissingDate     DiscrepancyType = "missing_date"
	DiscrepancyUnparsedDate    DiscrepancyType = "unparsed_date"
	DiscrepancyMissingTaxID    DiscrepancyType = "missing_tax_id"
	DiscrepancyUnknownCurrency DiscrepancyType = "unknown_currency"
	DiscrepancyZeroAmount      DiscrepancyType = "zero_amount"
	DiscrepancyDuplicate       DiscrepancyType = "duplicate_record"
)

// Severity represents the severity level of a discrepancy
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Discrepancy is a data quality finding. Findings never change match
// results; they explain why a record may have stayed unmatched.
type Discrepancy struct {
	Type        DiscrepancyType `json:"type" yaml:"type"`
	Severity    Severity        `json:"severity" yaml:"severity"`
	Family      string          `json:"family" yaml:"family"`
	RecordID    string          `json:"record_id" yaml:"record_id"`
	Description string          `json:"description" yaml:"description"`
}

// Inspect reports data quality findings for the three reconcilable families,
// in family then record order
func Inspect(requests, receipts, movements []models.Record) []Discrepancy {
	var found []Discrepancy
	arenas := [models.FamilyCount][]models.Record{requests, receipts, movements}
	for _, f := range models.Families() {
		found = append(found, inspectFamily(f, arenas[f])...)
	}
	return found
}

func inspectFamily(f models.Family, records []models.Record) []Discrepancy {
	var found []Discrepancy
	add := func(t DiscrepancyType, sev Severity, id, format string, args ...interface{}) {
		found = append(found, Discrepancy{
			Type:        t,
			Severity:    sev,
			Family:      f.String(),
			RecordID:    id,
			Description: fmt.Sprintf(format, args...),
		})
	}

	seen := make(map[string]string)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			add(DiscrepancyInvalidRecord, SeverityHigh, r.ID, "%v", err)
		}

		switch {
		case strings.TrimSpace(r.Date) == "":
			add(DiscrepancyMissingDate, SeverityHigh, r.ID, "record %s has no date", r.ID)
		case !isCanonicalDate(r.Date):
			add(DiscrepancyUnparsedDate, SeverityMedium, r.ID, "record %s has unrecognized date %q", r.ID, r.Date)
		}

		if r.CounterpartyTaxID == "" {
			add(DiscrepancyMissingTaxID, SeverityLow, r.ID, "record %s has no counterparty tax id and can only match by amount", r.ID)
		}
		if !r.Currency.IsCanonical() {
			add(DiscrepancyUnknownCurrency, SeverityMedium, r.ID, "record %s has unmapped currency %q", r.ID, r.Currency)
		}
		if r.Amount.IsZero() {
			add(DiscrepancyZeroAmount, SeverityMedium, r.ID, "record %s has a zero amount", r.ID)
		}

		key := fmt.Sprintf("%s_%s_%s_%s_%t", r.Date, r.CounterpartyTaxID, r.Currency, r.Amount.StringFixed(2), r.SpecialFlag)
		if first, exists := seen[key]; exists {
			add(DiscrepancyDuplicate, SeverityLow, r.ID, "record %s duplicates %s", r.ID, first)
		} else {
			seen[key] = r.ID
		}
	}
	return found
}

// isCanonicalDate reports whether date has the DD/MM/YYYY shape
func isCanonicalDate(date string) bool {
	if len(date) != 10 || date[2] != '/' || date[5] != '/' {
		return false
	}
	for i, c := range date {
		if i == 2 || i == 5 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
