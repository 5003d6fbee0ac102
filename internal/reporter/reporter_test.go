package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang-conciliation-service/internal/matcher"
	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/reconciler"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

func record(id string, kind models.Kind, taxID, amount string) models.Record {
	return models.Record{
		ID:                id,
		Kind:              kind,
		Date:              "01/06/2025",
		CounterpartyTaxID: taxID,
		Currency:          models.CurrencyLocal,
		Amount:            decimal.RequireFromString(amount),
		Source:            "test.xlsx",
	}
}

func createTestResult() *reconciler.Result {
	requests := []models.Record{
		record("REQ-1", models.KindPaymentRequest, "20123456789", "100"),
		record("REQ-2", models.KindPaymentRequest, "", "5"),
	}
	receipts := []models.Record{record("REC-1", models.KindPaymentReceipt, "20123456789", "100")}
	movements := []models.Record{record("MOV-1", models.KindBankMovement, "20123456789", "100")}
	transfers := []models.Record{record("TRF-1", models.KindTreasuryTransfer, "33693450239", "300")}

	outcome := matcher.NewEngine(matcher.DefaultMatchingConfig(), logger.Discard()).Match(requests, receipts, movements)
	result := reconciler.Aggregate(requests, receipts, movements, outcome, transfers, nil)
	result.Discrepancies = reconciler.Inspect(requests, receipts, movements)
	result.Summary.RunID = "run-1"
	return result
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "invalid", CSVDelimiter: ","},
			expectError: true,
		},
		{
			name:        "multi character delimiter",
			config:      &ReportConfig{Format: FormatCSV, CSVDelimiter: ";;"},
			expectError: true,
		},
		{
			name:        "negative list size",
			config:      &ReportConfig{Format: FormatConsole, CSVDelimiter: ",", MaxListItems: -1},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatYAML, true},
		{FormatCSV, true},
		{FormatXLSX, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}

	paths := map[string]OutputFormat{
		"out/report.JSON": FormatJSON,
		"report.yml":      FormatYAML,
		"report.csv":      FormatCSV,
		"report.xlsx":     FormatXLSX,
		"report.txt":      FormatConsole,
	}
	for path, expected := range paths {
		if got := FormatForPath(path, FormatConsole); got != expected {
			t.Errorf("%s: expected %s, got %s", path, expected, got)
		}
	}
}

func generate(t *testing.T, config *ReportConfig, result *reconciler.Result) []byte {
	t.Helper()
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	return buf.Bytes()
}

func TestConsoleReport(t *testing.T) {
	output := string(generate(t, DefaultReportConfig(), createTestResult()))

	expected := []string{
		"CONCILIATION REPORT",
		"Run ID: run-1",
		"=== SUMMARY ===",
		"=== PENDING REQUESTS ===",
		"REQ-2",
		"Treasury Transfers: 1",
		"=== DISCREPANCIES ===",
		"missing_tax_id",
		"=== PROCESSING STATISTICS ===",
	}
	for _, s := range expected {
		if !strings.Contains(output, s) {
			t.Errorf("expected console output to contain %q", s)
		}
	}
	if strings.Contains(output, "PENDING RECEIPTS") {
		t.Error("expected no pending receipts section when every receipt is FULL")
	}
}

func TestJSONReport(t *testing.T) {
	output := generate(t, &ReportConfig{Format: FormatJSON, IncludeUnmatched: true, IncludeStreams: true, CSVDelimiter: ","}, createTestResult())

	var doc Document
	if err := json.Unmarshal(output, &doc); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if doc.Summary.RunID != "run-1" {
		t.Errorf("expected run id run-1, got %s", doc.Summary.RunID)
	}
	if len(doc.Requests) != 1 || doc.Requests[0].ID != "REQ-2" {
		t.Fatalf("expected only the unmatched request, got %v", doc.Requests)
	}
	if doc.Requests[0].Status != string(models.StatusUnmatched) || doc.Requests[0].Amount != "5.00" {
		t.Errorf("unexpected request row %+v", doc.Requests[0])
	}
	if len(doc.Receipts) != 0 {
		t.Errorf("expected FULL receipts to be left out, got %d", len(doc.Receipts))
	}
	if len(doc.Transfers) != 1 {
		t.Errorf("expected 1 transfer, got %d", len(doc.Transfers))
	}
	if doc.Discrepancies != nil {
		t.Errorf("expected discrepancies to be left out, got %d", len(doc.Discrepancies))
	}
	if doc.Requests[0].TaxID != "" {
		t.Errorf("expected empty tax id, got %s", doc.Requests[0].TaxID)
	}
}

func TestJSONReportMatchedRecords(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	config.IncludeMatched = true
	output := generate(t, config, createTestResult())

	var doc Document
	if err := json.Unmarshal(output, &doc); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(doc.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(doc.Requests))
	}

	expected := map[string]MatchRef{
		"receipts":  {Type: MatchExact, Peer: "REC-1"},
		"movements": {Type: MatchExact, Peer: "MOV-1"},
	}
	if !reflect.DeepEqual(doc.Requests[0].Matches, expected) {
		t.Errorf("expected matches %v, got %v", expected, doc.Requests[0].Matches)
	}
}

func TestYAMLReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatYAML
	output := generate(t, config, createTestResult())

	var doc map[string]interface{}
	if err := yaml.Unmarshal(output, &doc); err != nil {
		t.Fatalf("invalid YAML output: %v", err)
	}
	summary, ok := doc["summary"].(map[string]interface{})
	if !ok || summary["run_id"] != "run-1" {
		t.Errorf("expected summary with run id, got %v", doc["summary"])
	}
	requests, ok := doc["requests"].([]interface{})
	if !ok || len(requests) != 1 {
		t.Errorf("expected 1 request, got %v", doc["requests"])
	}
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVDelimiter = ";"
	output := generate(t, config, createTestResult())

	reader := csv.NewReader(bytes.NewReader(output))
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected header, 1 request and 1 transfer, got %d rows", len(rows))
	}
	if !reflect.DeepEqual(rows[0], csvHeaders) {
		t.Errorf("unexpected headers %v", rows[0])
	}
	if rows[1][0] != "requests" || rows[1][1] != "REQ-2" || rows[1][9] != "UNMATCHED" {
		t.Errorf("unexpected request row %v", rows[1])
	}
	if rows[2][0] != "transfers" || rows[2][9] != "" {
		t.Errorf("unexpected transfer row %v", rows[2])
	}
}

func TestXLSXReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatXLSX
	output := generate(t, config, createTestResult())

	f, err := excelize.OpenReader(bytes.NewReader(output))
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer f.Close()

	expected := []string{SheetSummary, SheetRequests, SheetReceipts, SheetMovements, SheetTransfers, SheetMarket}
	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, expected) {
		t.Errorf("expected sheets %v, got %v", expected, sheets)
	}

	id, err := f.GetCellValue(SheetRequests, "B2")
	if err != nil || id != "REQ-2" {
		t.Errorf("expected REQ-2 in Requests!B2, got %q (%v)", id, err)
	}
	total, err := f.GetCellValue(SheetSummary, "B2")
	if err != nil || total != "2" {
		t.Errorf("expected 2 requests in Summary!B2, got %q (%v)", total, err)
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestSafeReportGenerator(t *testing.T) {
	generator, err := NewSafeReportGenerator(DefaultReportConfig(), logger.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = generator.GenerateReportSafely(nil, &bytes.Buffer{})
	appErr, ok := errors.AsConciliationError(err)
	if !ok || appErr.Code != errors.CodeMissingField {
		t.Errorf("expected missing field error, got %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReportSafely(createTestResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "CONCILIATION REPORT") {
		t.Error("expected console report")
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, logger.Discard()); err == nil {
		t.Error("expected configuration error")
	}
}

func TestSafeReportGeneratorWriteFile(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatXLSX
	generator, err := NewSafeReportGenerator(config, logger.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "reports", "conciliacion.xlsx")
	written, err := generator.WriteFile(createTestResult(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != path {
		t.Errorf("expected %s, got %s", path, written)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected report file to exist, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("failed to list directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the report in the directory, got %d entries", len(entries))
	}
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/readonly/out/report.csv"); got != "report_backup.csv" {
		t.Errorf("expected report_backup.csv, got %s", got)
	}
}
