// Package reporter renders conciliation results.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON and YAML: structured documents for programmatic consumption
//   - CSV: one line per record for spreadsheet applications
//   - XLSX: a workbook with a summary sheet and one sheet per record stream
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/reconciler"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format should not be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// FormatForPath guesses the format from a file extension, falling back to def
func FormatForPath(path string, def OutputFormat) OutputFormat {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".json"):
		return FormatJSON
	case strings.HasSuffix(strings.ToLower(path), ".yaml"), strings.HasSuffix(strings.ToLower(path), ".yml"):
		return FormatYAML
	case strings.HasSuffix(strings.ToLower(path), ".csv"):
		return FormatCSV
	case strings.HasSuffix(strings.ToLower(path), ".xlsx"):
		return FormatXLSX
	default:
		return def
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `mapstructure:"format" json:"format"`

	// Detail level options
	IncludeMatched         bool `mapstructure:"include_matched" json:"include_matched"`
	IncludeUnmatched       bool `mapstructure:"include_unmatched" json:"include_unmatched"`
	IncludeStreams         bool `mapstructure:"include_streams" json:"include_streams"`
	IncludeDiscrepancies   bool `mapstructure:"include_discrepancies" json:"include_discrepancies"`
	IncludeProcessingStats bool `mapstructure:"include_processing_stats" json:"include_processing_stats"`
	IncludeOrigin          bool `mapstructure:"include_origin" json:"include_origin"`

	// MaxListItems caps record lists in console output, 0 means no limit
	MaxListItems int `mapstructure:"max_list_items" json:"max_list_items"`

	// CSV options
	CSVDelimiter string `mapstructure:"csv_delimiter" json:"csv_delimiter"`
	CSVHeaders   bool   `mapstructure:"csv_headers" json:"csv_headers"`

	SortByAmount bool `mapstructure:"sort_by_amount" json:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatched:         false,
		IncludeUnmatched:       true,
		IncludeStreams:         true,
		IncludeDiscrepancies:   true,
		IncludeProcessingStats: true,
		IncludeOrigin:          false,
		MaxListItems:           10,
		CSVDelimiter:           ",",
		CSVHeaders:             true,
		SortByAmount:           false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}

	if utf8.RuneCountInString(c.CSVDelimiter) != 1 {
		return fmt.Errorf("csv delimiter must be a single character, got %q", c.CSVDelimiter)
	}

	return nil
}

func (c *ReportConfig) delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.CSVDelimiter)
	return r
}

// ReportGenerator generates conciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport renders result in the configured format into writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return fmt.Errorf("conciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// Configuration returns the current configuration
func (rg *ReportGenerator) Configuration() *ReportConfig {
	return rg.config
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	summary := result.Summary

	fmt.Fprintf(writer, "CONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run ID: %s\n", summary.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", summary.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", summary.ProcessingTime)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	for _, f := range models.Families() {
		rg.printFamilySummary(f, summary.Family(f), writer)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== AMOUNTS ===\n")
	for _, f := range models.Families() {
		rg.printFamilyAmounts(f, summary.Family(f), writer)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCHING ===\n")
	fmt.Fprintf(writer, "Exact Pairs:    %d\n", summary.ExactPairs)
	fmt.Fprintf(writer, "Fallback Pairs: %d\n", summary.FallbackPairs)
	fmt.Fprintf(writer, "Comparisons:    %d\n\n", summary.Comparisons)

	if rg.config.IncludeStreams {
		fmt.Fprintf(writer, "=== CLASSIFICATION ONLY ===\n")
		rg.printStream("Treasury Transfers", summary.Transfers, writer)
		rg.printStream("Market Movements", summary.Market, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched {
		for _, f := range models.Families() {
			fr := result.Family(f)
			entries := append(fr.WithStatus(models.StatusAmountOnly), fr.WithStatus(models.StatusUnmatched)...)
			if len(entries) == 0 {
				continue
			}
			fmt.Fprintf(writer, "=== PENDING %s ===\n", strings.ToUpper(f.String()))
			rg.printEntries(f, entries, writer)
			fmt.Fprintf(writer, "\n")
		}
	}

	if rg.config.IncludeDiscrepancies && len(result.Discrepancies) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCIES ===\n")
		rg.printDiscrepancies(result.Discrepancies, writer)
	}

	if rg.config.IncludeProcessingStats {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(result, writer)
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.buildDocument(result))
}

func (rg *ReportGenerator) generateYAMLReport(result *reconciler.Result, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)

	if err := encoder.Encode(rg.buildDocument(result)); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return encoder.Close()
}

// csvHeaders are the columns of the CSV report and of the xlsx record sheets
var csvHeaders = []string{
	"Family",
	"ID",
	"Kind",
	"Date",
	"Tax_ID",
	"Counterparty",
	"Currency",
	"Amount",
	"Special_Flag",
	"Status",
	"Requests_Match",
	"Receipts_Match",
	"Movements_Match",
	"Source",
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.delimiter()

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	doc := rg.buildDocument(result)
	sections := []struct {
		name string
		rows []RecordRow
	}{
		{models.FamilyRequests.String(), doc.Requests},
		{models.FamilyReceipts.String(), doc.Receipts},
		{models.FamilyMovements.String(), doc.Movements},
		{"transfers", doc.Transfers},
		{"market", doc.Market},
	}

	for _, section := range sections {
		for _, row := range section.rows {
			if err := csvWriter.Write(recordCells(section.name, row)); err != nil {
				return fmt.Errorf("failed to write %s record: %w", section.name, err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// recordCells lays a row out in csvHeaders order
func recordCells(family string, row RecordRow) []string {
	match := func(f models.Family) string {
		ref, ok := row.Matches[f.String()]
		if !ok {
			return ""
		}
		return ref.Type + ":" + ref.Peer
	}

	return []string{
		family,
		row.ID,
		row.Kind,
		row.Date,
		row.TaxID,
		row.Counterparty,
		row.Currency,
		row.Amount,
		fmt.Sprintf("%t", row.SpecialFlag),
		row.Status,
		match(models.FamilyRequests),
		match(models.FamilyReceipts),
		match(models.FamilyMovements),
		row.Source,
	}
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printFamilySummary(f models.Family, fs *reconciler.FamilySummary, writer io.Writer) {
	fmt.Fprintf(writer, "%s:\n", titleCase(f.String()))
	fmt.Fprintf(writer, "  Total:       %d\n", fs.Total)
	for _, status := range models.Statuses() {
		count := fs.Count(status)
		fmt.Fprintf(writer, "  %-12s %d (%.1f%%)\n", status.String()+":", count, calculatePercentage(count, fs.Total))
	}
}

func (rg *ReportGenerator) printFamilyAmounts(f models.Family, fs *reconciler.FamilySummary, writer io.Writer) {
	for _, currency := range sortedCurrencies(fs.Amounts) {
		totals := fs.Amounts[currency]
		fmt.Fprintf(writer, "%-10s %-10s full %s, amount only %s, unmatched %s\n",
			titleCase(f.String()),
			currency,
			totals.Full.StringFixed(2),
			totals.AmountOnly.StringFixed(2),
			totals.Unmatched.StringFixed(2))
	}
}

func (rg *ReportGenerator) printStream(name string, stream reconciler.StreamSummary, writer io.Writer) {
	fmt.Fprintf(writer, "%s: %d\n", name, stream.Count)
	currencies := make([]models.Currency, 0, len(stream.Amounts))
	for currency := range stream.Amounts {
		currencies = append(currencies, currency)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })
	for _, currency := range currencies {
		fmt.Fprintf(writer, "  %-10s %s\n", currency, stream.Amounts[currency].StringFixed(2))
	}
}

func (rg *ReportGenerator) printEntries(f models.Family, entries []reconciler.Entry, writer io.Writer) {
	if rg.config.SortByAmount {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Record.Amount.GreaterThan(entries[j].Record.Amount)
		})
	}

	fmt.Fprintf(writer, "Total: %d\n", len(entries))
	for i, entry := range entries {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(entries)-i)
			break
		}

		r := entry.Record
		var matches []string
		for _, c := range f.Counterparts() {
			label := matchLabel(entry.State, c)
			if label == "" {
				label = "none"
			}
			matches = append(matches, c.String()+"="+label)
		}

		fmt.Fprintf(writer, "  %d. %s  %s  %s  %s %s  %s  [%s]\n",
			i+1,
			r.ID,
			r.Date,
			taxIDOrDash(r.CounterpartyTaxID),
			r.Currency,
			r.Amount.StringFixed(2),
			entry.State.Status,
			strings.Join(matches, ", "))
	}
}

func (rg *ReportGenerator) printDiscrepancies(discrepancies []reconciler.Discrepancy, writer io.Writer) {
	fmt.Fprintf(writer, "Total Discrepancies Found: %d\n\n", len(discrepancies))

	groups := make(map[reconciler.Severity][]reconciler.Discrepancy)
	for _, d := range discrepancies {
		groups[d.Severity] = append(groups[d.Severity], d)
	}

	severities := []reconciler.Severity{
		reconciler.SeverityHigh,
		reconciler.SeverityMedium,
		reconciler.SeverityLow,
	}

	for _, severity := range severities {
		group := groups[severity]
		if len(group) == 0 {
			continue
		}

		fmt.Fprintf(writer, "%s Severity (%d):\n", strings.ToUpper(string(severity)), len(group))
		for i, d := range group {
			if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
				fmt.Fprintf(writer, "  ... and %d more\n", len(group)-i)
				break
			}
			fmt.Fprintf(writer, "  - %s: %s\n", d.Type, d.Description)
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) printProcessingStats(result *reconciler.Result, writer io.Writer) {
	summary := result.Summary
	fmt.Fprintf(writer, "Ledger Files:         %d\n", summary.LedgerFiles)
	fmt.Fprintf(writer, "Skipped Ledger Files: %d\n", summary.SkippedLedgerFiles)
	for _, report := range result.Ledgers {
		if report.Err != nil {
			fmt.Fprintf(writer, "  - %s: %v\n", report.File, report.Err)
		}
	}
	for _, report := range result.Exports {
		fmt.Fprintf(writer, "Export %s: %d records, %d excluded, %d blank\n",
			report.File, report.Emitted, report.Excluded, report.Blank)
	}
	for _, stage := range summary.Stages {
		fmt.Fprintf(writer, "Stage %-10s %v\n", stage.Stage+":", stage.Duration)
	}
}

// Helper functions

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func sortedCurrencies(amounts map[models.Currency]*reconciler.AmountTotals) []models.Currency {
	currencies := make([]models.Currency, 0, len(amounts))
	for currency := range amounts {
		currencies = append(currencies, currency)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })
	return currencies
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func taxIDOrDash(taxID string) string {
	if taxID == "" {
		return "-"
	}
	return taxID
}
