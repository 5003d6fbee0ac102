package parsers

import (
	"testing"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/normalizer"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"
)

func newTestMapper() *ExportMapper {
	return NewExportMapper(DefaultExportConfig(), normalizer.New(normalizer.DefaultConfig()), logger.Discard())
}

func statusTable() *Table {
	return &Table{
		Name: "estado_pagos.xlsx",
		Rows: [][]string{
			{"Reporte de solicitudes"},
			{"Nro Solicitud", "Fecha", "CUIT", "Beneficiario", "Moneda", "Importe", "Estado", "Observaciones"},
			{"1001", "45809", "20-12345678-9", "PROVEEDOR SA", "Pesos", "$1,000.00", "Pagada", ""},
			{"1002", "02/06/2025", "", "OTRO SRL 30712345678", "Dólar MEP", "250", "Pagada", "RESTRINGIDO"},
			{"1003", "02/06/2025", "20111111112", "TERCERO", "Pesos", "99", "Rechazada", ""},
			{"", "", "", "", "", "", "", ""},
			{"1004", "03/06/2025", "20222222223", "CUARTO", "Pesos", "10", "ANULADA", ""},
		},
	}
}

func TestMapRequests(t *testing.T) {
	m := newTestMapper()
	seq := models.NewSequence()

	records, report, err := m.Requests(statusTable(), nil, seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.HeaderRow != 1 {
		t.Errorf("expected header row 1, got %d", report.HeaderRow)
	}
	if len(records) != 2 || report.Emitted != 2 {
		t.Fatalf("expected 2 requests, got %d", len(records))
	}
	if report.Excluded != 2 {
		t.Errorf("expected 2 excluded rows, got %d", report.Excluded)
	}
	if report.Blank != 1 {
		t.Errorf("expected 1 blank row, got %d", report.Blank)
	}

	first := records[0]
	if first.ID != "REQ-000001" || first.Kind != models.KindPaymentRequest {
		t.Errorf("unexpected identity %s %s", first.ID, first.Kind)
	}
	if first.Date != "01/06/2025" {
		t.Errorf("expected serial date converted, got %s", first.Date)
	}
	if first.CounterpartyTaxID != "20123456789" {
		t.Errorf("expected cleaned tax id, got %s", first.CounterpartyTaxID)
	}
	if first.Amount.StringFixed(2) != "1000.00" {
		t.Errorf("expected 1000.00, got %s", first.Amount.StringFixed(2))
	}
	if first.Currency != models.CurrencyLocal {
		t.Errorf("expected LOCAL, got %s", first.Currency)
	}
	if first.Origin["Beneficiario"] != "PROVEEDOR SA" {
		t.Errorf("expected origin row, got %v", first.Origin)
	}

	second := records[1]
	if second.CounterpartyTaxID != "30712345678" {
		t.Errorf("expected tax id extracted from beneficiary, got %s", second.CounterpartyTaxID)
	}
	if !second.SpecialFlag {
		t.Error("expected special flag from notes")
	}
	if second.Currency != models.CurrencyUSD {
		t.Errorf("expected USD, got %s", second.Currency)
	}
}

func TestConfirmationsOverrideDate(t *testing.T) {
	m := newTestMapper()

	confirmations := &Table{
		Name: "confirmaciones.csv",
		Rows: [][]string{
			{"Nro Solicitud", "Fecha Pago"},
			{"1001", "05/06/2025"},
			{"", ""},
		},
	}

	dates, report, err := m.Confirmations(confirmations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dates["1001"] != "05/06/2025" || report.Emitted != 1 {
		t.Fatalf("unexpected confirmations %v", dates)
	}

	records, reqReport, err := m.Requests(statusTable(), dates, models.NewSequence())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Date != "05/06/2025" {
		t.Errorf("expected payment date to replace request date, got %s", records[0].Date)
	}
	if records[1].Date != "02/06/2025" {
		t.Errorf("expected unconfirmed request to keep its date, got %s", records[1].Date)
	}
	if reqReport.Confirmed != 1 {
		t.Errorf("expected 1 confirmed request, got %d", reqReport.Confirmed)
	}
}

func TestMapReceipts(t *testing.T) {
	m := newTestMapper()
	table := &Table{
		Name: "cobranzas.xlsx",
		Rows: [][]string{
			{"Fecha", "CUIT", "Razón Social", "Moneda", "Importe", "Detalle"},
			{"01/06/2025", "20123456789", "PROVEEDOR SA", "Pesos", "1000", "Factura A 0001"},
			{"01/06/2025", "", "CLIENTE", "USD Cable", "US$ 300", "ref 20-99999999-1 RESTRINGIDO"},
		},
	}

	records, report, err := m.Receipts(table, models.NewSequence())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || report.Emitted != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(records))
	}
	if records[0].ID != "REC-000001" || records[0].Counterparty != "PROVEEDOR SA" {
		t.Errorf("unexpected first receipt %v", records[0])
	}

	second := records[1]
	if second.CounterpartyTaxID != "20999999991" {
		t.Errorf("expected tax id from detail, got %s", second.CounterpartyTaxID)
	}
	if second.Currency != models.CurrencyUSDCable {
		t.Errorf("expected USD_CABLE, got %s", second.Currency)
	}
	if second.Amount.String() != "300" {
		t.Errorf("expected 300, got %s", second.Amount)
	}
	if !second.SpecialFlag {
		t.Error("expected special flag from detail")
	}
}

func TestMissingExportColumns(t *testing.T) {
	m := newTestMapper()
	table := &Table{
		Name: "cobranzas.csv",
		Rows: [][]string{
			{"Cliente", "Detalle"},
			{"X", "Y"},
		},
	}

	_, _, err := m.Receipts(table, models.NewSequence())
	if err == nil {
		t.Fatal("expected missing column error")
	}
	appErr, ok := errors.AsConciliationError(err)
	if !ok || appErr.Code != errors.CodeMissingColumn {
		t.Errorf("expected missing column error, got %v", err)
	}

	_, _, err = m.Receipts(&Table{Name: "empty.csv"}, models.NewSequence())
	if appErr, ok := errors.AsConciliationError(err); !ok || appErr.Code != errors.CodeEmptySheet {
		t.Errorf("expected empty sheet error, got %v", err)
	}
}

func TestResolveColumnsPrefersExact(t *testing.T) {
	header := []string{"Fecha Pago", "Fecha", "Importe Total"}
	columns := resolveColumns(header, ColumnAliases{
		FieldDate:   {"fecha"},
		FieldAmount: {"importe"},
	})

	if columns[FieldDate] != 1 {
		t.Errorf("expected exact 'Fecha' column, got %d", columns[FieldDate])
	}
	if columns[FieldAmount] != 2 {
		t.Errorf("expected containment match for amount, got %d", columns[FieldAmount])
	}
}

func TestExportConfigValidate(t *testing.T) {
	cfg := DefaultExportConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}

	cfg.Receipts.Columns = ColumnAliases{FieldDate: {"fecha"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for required field without aliases")
	}
}
