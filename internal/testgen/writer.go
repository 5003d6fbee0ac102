package testgen

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"golang-conciliation-service/internal/models"

	"go.uber.org/multierr"
)

// TreasuryTaxID is the counterparty of the transfer row added to each ledger
const TreasuryTaxID = "33693450239"

// Files are the paths of a scenario written to disk
type Files struct {
	Status        string
	Confirmations string
	Receipts      string
	Ledgers       []string
}

var currencyLabels = map[models.Currency]string{
	models.CurrencyLocal:    "Pesos",
	models.CurrencyUSD:      "USD",
	models.CurrencyUSDCable: "USD Cable",
}

// WriteFiles writes s as a status export, a confirmation export, a receipt
// export and one ledger per currency present among the movements. Each
// ledger also carries one treasury transfer.
func WriteFiles(dir string, s *Scenario) (*Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := &Files{
		Status:        filepath.Join(dir, "estado_pagos.csv"),
		Confirmations: filepath.Join(dir, "confirmaciones.csv"),
		Receipts:      filepath.Join(dir, "cobranzas.csv"),
	}

	status := [][]string{{"Nro Solicitud", "Fecha", "CUIT", "Beneficiario", "Moneda", "Importe", "Estado", "Observaciones"}}
	confirmations := [][]string{{"Nro Solicitud", "Fecha Pago"}}
	for i, r := range s.Requests {
		number := fmt.Sprintf("%d", 1001+i)
		status = append(status, []string{number, r.Date, r.CounterpartyTaxID, r.Counterparty, currencyLabels[r.Currency], r.Amount.StringFixed(2), "Pagada", ""})
		confirmations = append(confirmations, []string{number, r.Date})
	}

	receipts := [][]string{{"Fecha", "CUIT", "Razón Social", "Moneda", "Importe", "Detalle"}}
	for _, r := range s.Receipts {
		receipts = append(receipts, []string{r.Date, r.CounterpartyTaxID, r.Counterparty, currencyLabels[r.Currency], r.Amount.StringFixed(2), "Cobranza " + r.ID})
	}

	var err error
	err = multierr.Append(err, writeCSV(files.Status, status))
	err = multierr.Append(err, writeCSV(files.Confirmations, confirmations))
	err = multierr.Append(err, writeCSV(files.Receipts, receipts))

	ledgers := make(map[models.Currency][][]string)
	var order []models.Currency
	for _, r := range s.Movements {
		if _, ok := ledgers[r.Currency]; !ok {
			order = append(order, r.Currency)
			ledgers[r.Currency] = [][]string{
				{"Fecha", "Descripción", "D/C", "Importe"},
				{r.Date, "TRANSF " + TreasuryTaxID, "D", "500.00"},
			}
		}
		ledgers[r.Currency] = append(ledgers[r.Currency], []string{r.Date, "PAGO " + r.CounterpartyTaxID + " " + r.Counterparty, "D", r.Amount.StringFixed(2)})
	}
	for _, currency := range order {
		name := "banco_pesos.csv"
		if currency != models.CurrencyLocal {
			name = "banco_usd.csv"
		}
		path := filepath.Join(dir, name)
		err = multierr.Append(err, writeCSV(path, ledgers[currency]))
		files.Ledgers = append(files.Ledgers, path)
	}

	if err != nil {
		return nil, err
	}
	return files, nil
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
