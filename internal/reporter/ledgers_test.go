package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"golang-conciliation-service/internal/classifier"
	"golang-conciliation-service/internal/models"

	"github.com/xuri/excelize/v2"
)

func createTestBatch() *classifier.Batch {
	return &classifier.Batch{
		Movements: []models.Record{record("MOV-1", models.KindBankMovement, "20123456789", "100")},
		Transfers: []models.Record{record("TRF-1", models.KindTreasuryTransfer, "33693450239", "300")},
		Reports: []classifier.FileReport{
			{File: "banco_pesos.xlsx", Currency: models.CurrencyLocal, Rows: 4, Movements: 1, Transfers: 1, DiscardedCredit: 2},
			{File: "banco_usd.xlsx", Currency: models.CurrencyUSD, Restricted: true, Err: fmt.Errorf("columns not found: importe")},
		},
	}
}

func generateLedger(t *testing.T, config *ReportConfig) []byte {
	t.Helper()
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	var buf bytes.Buffer
	if err := generator.GenerateLedgerReport(createTestBatch(), &buf); err != nil {
		t.Fatalf("failed to generate ledger report: %v", err)
	}
	return buf.Bytes()
}

func TestLedgerConsoleReport(t *testing.T) {
	output := string(generateLedger(t, DefaultReportConfig()))

	expected := []string{
		"LEDGER CLASSIFICATION",
		"banco_pesos.xlsx: LOCAL, header row 0, 4 rows",
		"Discarded: 2",
		"banco_usd.xlsx [restricted]: SKIPPED (columns not found: importe)",
		"=== MOVEMENTS ===",
		"MOV-1",
		"=== TREASURY TRANSFERS ===",
		"TRF-1",
	}
	for _, s := range expected {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestLedgerJSONReportWithoutStreams(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	config.IncludeStreams = false

	var doc LedgerDocument
	if err := json.Unmarshal(generateLedger(t, config), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.Ledgers) != 2 || doc.Ledgers[1].Error == "" {
		t.Errorf("expected two ledgers with the second failed, got %+v", doc.Ledgers)
	}
	if len(doc.Movements) != 1 {
		t.Errorf("expected 1 movement, got %d", len(doc.Movements))
	}
	if len(doc.Transfers) != 0 {
		t.Errorf("expected transfers to be omitted, got %d", len(doc.Transfers))
	}
}

func TestLedgerCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV

	rows, err := csv.NewReader(bytes.NewReader(generateLedger(t, config))).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "movements" || rows[2][0] != "transfers" {
		t.Errorf("expected movements before transfers, got %q and %q", rows[1][0], rows[2][0])
	}
}

func TestLedgerXLSXReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatXLSX

	f, err := excelize.OpenReader(bytes.NewReader(generateLedger(t, config)))
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 4 || sheets[0] != SheetLedgers {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	if v, _ := f.GetCellValue(SheetLedgers, "J3"); v != "columns not found: importe" {
		t.Errorf("expected error cell for the failed ledger, got %q", v)
	}
	if v, _ := f.GetCellValue(SheetMovements, "B2"); v != "MOV-1" {
		t.Errorf("expected MOV-1 on the movements sheet, got %q", v)
	}
}

func TestLedgerReportNilBatch(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateLedgerReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil batch")
	}
}
