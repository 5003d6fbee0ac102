package classifier

import (
	"errors"
	"testing"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/normalizer"
	apperrors "golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"
)

func newTestClassifier() *Classifier {
	return New(DefaultConfig(), normalizer.New(normalizer.DefaultConfig()), logger.Discard())
}

func sampleLedger() [][]string {
	return [][]string{
		{"Banco Ejemplo - Extracto de cuenta"},
		{"", ""},
		{"Fecha", "Descripción", "D/C", "Importe"},
		{"01/06/2025", "PAGO 20-12345678-9 PROVEEDOR", "D", "1,000.00"},
		{"01/06/2025", "TRANSF 33693450239 TESORO", "D", "500"},
		{"02/06/2025", "MERCADO 30711610126", "C", "700"},
		{"02/06/2025", "---", "D", "10"},
		{"", "", "", ""},
		{"03/06/2025", "COBRO 20111111112", "C", "300"},
		{"03/06/2025", "IMPUESTO 30500010084", "Débito", "25"},
		{"04/06/2025", "PAGO RESTRINGIDO 20222222223", "DB", "99.5"},
	}
}

func TestClassify(t *testing.T) {
	c := newTestClassifier()
	result := c.Classify(LedgerFile{Name: "banco_pesos.xlsx", Rows: sampleLedger()}, models.NewSequence())

	report := result.Report
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}
	if report.HeaderRow != 2 {
		t.Errorf("expected header row 2, got %d", report.HeaderRow)
	}
	if report.Columns.Direction != 2 {
		t.Errorf("expected direction column 2, got %d", report.Columns.Direction)
	}
	if report.Rows != 8 {
		t.Errorf("expected 8 data rows, got %d", report.Rows)
	}

	checks := []struct {
		name     string
		got      int
		expected int
	}{
		{"movements", len(result.Movements), 2},
		{"transfers", len(result.Transfers), 1},
		{"market", len(result.Market), 1},
		{"blank", report.DiscardedBlank, 1},
		{"separator", report.DiscardedSeparator, 1},
		{"credit", report.DiscardedCredit, 1},
		{"excluded", report.DiscardedExcluded, 1},
	}
	for _, check := range checks {
		if check.got != check.expected {
			t.Errorf("expected %d %s, got %d", check.expected, check.name, check.got)
		}
	}
	if report.Emitted()+report.Discarded() != report.Rows {
		t.Errorf("expected every row to be accounted for, got %d emitted + %d discarded of %d",
			report.Emitted(), report.Discarded(), report.Rows)
	}

	first := result.Movements[0]
	if first.ID != "MOV-000001" {
		t.Errorf("expected MOV-000001, got %s", first.ID)
	}
	if first.CounterpartyTaxID != "20123456789" {
		t.Errorf("expected tax id 20123456789, got %s", first.CounterpartyTaxID)
	}
	if first.Amount.StringFixed(2) != "1000.00" {
		t.Errorf("expected amount 1000.00, got %s", first.Amount.StringFixed(2))
	}
	if first.Currency != models.CurrencyLocal || first.Kind != models.KindBankMovement {
		t.Errorf("unexpected record %v", first)
	}
	if first.SpecialFlag {
		t.Error("expected no special flag on unmarked movement")
	}
	if first.Origin["Descripción"] != "PAGO 20-12345678-9 PROVEEDOR" {
		t.Errorf("expected origin row to be kept, got %v", first.Origin)
	}

	if !result.Movements[1].SpecialFlag {
		t.Error("expected marker in counterparty text to set the special flag")
	}
}

func TestClassifyTreasuryBeatsDebit(t *testing.T) {
	c := newTestClassifier()
	rows := [][]string{
		{"Fecha", "Descripcion", "Debito/Credito", "Importe"},
		{"01/06/2025", "TRANSFERENCIA 33-69345023-9", "Debito", "1500"},
	}

	result := c.Classify(LedgerFile{Name: "ledger.xlsx", Rows: rows}, nil)

	if len(result.Transfers) != 1 {
		t.Fatalf("expected 1 treasury transfer, got %d", len(result.Transfers))
	}
	if len(result.Movements) != 0 {
		t.Errorf("expected no movements, got %d", len(result.Movements))
	}
	if result.Transfers[0].Kind != models.KindTreasuryTransfer {
		t.Errorf("expected treasury kind, got %s", result.Transfers[0].Kind)
	}
}

func TestClassifyMissingColumns(t *testing.T) {
	c := newTestClassifier()
	rows := [][]string{
		{"Fecha", "Concepto", "Monto"},
		{"01/06/2025", "PAGO 20123456789", "100"},
	}

	result := c.Classify(LedgerFile{Name: "broken.xlsx", Rows: rows}, nil)

	if result.Report.Err == nil {
		t.Fatal("expected missing columns error")
	}
	if !errors.Is(result.Report.Err, ErrMissingColumns) {
		t.Errorf("expected ErrMissingColumns cause, got %v", result.Report.Err)
	}
	appErr, ok := apperrors.AsConciliationError(result.Report.Err)
	if !ok || appErr.Category != apperrors.CategoryClassification {
		t.Errorf("expected classification error, got %v", result.Report.Err)
	}
	if len(result.Movements)+len(result.Transfers)+len(result.Market) != 0 {
		t.Error("expected empty streams")
	}
}

func TestClassifyWithoutDirectionColumn(t *testing.T) {
	c := newTestClassifier()
	rows := [][]string{
		{"Fecha", "Descripcion", "Importe"},
		{"01/06/2025", "PAGO 20123456789", "-100"},
		{"01/06/2025", "COBRO 20123456789", "100"},
	}

	result := c.Classify(LedgerFile{Name: "ledger.csv", Rows: rows, Restricted: true}, nil)

	if len(result.Movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(result.Movements))
	}
	if result.Report.DiscardedCredit != 1 {
		t.Errorf("expected 1 credit, got %d", result.Report.DiscardedCredit)
	}
	m := result.Movements[0]
	if !m.Amount.Equal(m.Amount.Abs()) || m.Amount.String() != "100" {
		t.Errorf("expected magnitude 100, got %s", m.Amount)
	}
	if !m.Restricted || !m.SpecialFlag {
		t.Error("expected restricted file to flag its records")
	}
}

func TestInferCurrency(t *testing.T) {
	c := newTestClassifier()
	tests := map[string]models.Currency{
		"banco_pesos.xlsx":     models.CurrencyLocal,
		"banco_USD.xlsx":       models.CurrencyUSD,
		"Cuenta Dólares.xlsx":  models.CurrencyUSD,
		"extracto_junio.csv":   models.CurrencyLocal,
	}

	for name, expected := range tests {
		if got := c.InferCurrency(name); got != expected {
			t.Errorf("%s: expected %s, got %s", name, expected, got)
		}
	}
}

func TestClassifyAllBucketOrder(t *testing.T) {
	c := newTestClassifier()
	ledger := func(taxID string) [][]string {
		return [][]string{
			{"Fecha", "Descripcion", "D/C", "Importe"},
			{"01/06/2025", "PAGO " + taxID, "D", "100"},
		}
	}

	files := []LedgerFile{
		{Name: "banco_usd.xlsx", Rows: ledger("20000000001")},
		{Name: "banco_pesos.xlsx", Rows: ledger("20000000002")},
		{Name: "cuenta_euros.xlsx", Rows: ledger("20000000003"), Currency: models.Currency("EUR")},
		{Name: "broken.xlsx", Rows: [][]string{{"nothing"}}},
		{Name: "banco_pesos_2.xlsx", Rows: ledger("20000000004")},
	}

	batch := c.ClassifyAll(files, models.NewSequence())

	expected := []string{"20000000002", "20000000004", "20000000001", "20000000003"}
	if len(batch.Movements) != len(expected) {
		t.Fatalf("expected %d movements, got %d", len(expected), len(batch.Movements))
	}
	for i, taxID := range expected {
		if batch.Movements[i].CounterpartyTaxID != taxID {
			t.Errorf("position %d: expected %s, got %s", i, taxID, batch.Movements[i].CounterpartyTaxID)
		}
	}

	if len(batch.Reports) != len(files) {
		t.Errorf("expected one report per file, got %d", len(batch.Reports))
	}
	failed := batch.Failed()
	if len(failed) != 1 || failed[0].File != "broken.xlsx" {
		t.Errorf("expected broken.xlsx to fail, got %v", failed)
	}

	seen := make(map[string]bool)
	for _, m := range batch.Movements {
		if seen[m.ID] {
			t.Errorf("duplicate record id %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}

	cfg.HeaderScanRows = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero header scan rows")
	}

	cfg = DefaultConfig()
	cfg.MarketTaxIDs = append(cfg.MarketTaxIDs, cfg.TreasuryTaxID)
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for overlapping treasury and market ids")
	}
}
