package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"golang-conciliation-service/internal/classifier"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// SheetLedgers lists the classified ledger files in a classification workbook
const SheetLedgers = "Ledgers"

// LedgerDocument is the serializable view of a classification batch
type LedgerDocument struct {
	Ledgers   []LedgerRow `json:"ledgers" yaml:"ledgers"`
	Movements []RecordRow `json:"movements,omitempty" yaml:"movements,omitempty"`
	Transfers []RecordRow `json:"transfers,omitempty" yaml:"transfers,omitempty"`
	Market    []RecordRow `json:"market,omitempty" yaml:"market,omitempty"`
}

func (rg *ReportGenerator) buildLedgerDocument(batch *classifier.Batch) *LedgerDocument {
	doc := &LedgerDocument{
		Ledgers:   make([]LedgerRow, 0, len(batch.Reports)),
		Movements: rg.streamRows(batch.Movements),
	}
	for _, report := range batch.Reports {
		doc.Ledgers = append(doc.Ledgers, ledgerRow(report))
	}
	if rg.config.IncludeStreams {
		doc.Transfers = rg.streamRows(batch.Transfers)
		doc.Market = rg.streamRows(batch.Market)
	}
	return doc
}

// GenerateLedgerReport renders the outcome of classifying ledger files
// without matching them
func (rg *ReportGenerator) GenerateLedgerReport(batch *classifier.Batch, writer io.Writer) error {
	if batch == nil {
		return fmt.Errorf("classification batch cannot be nil")
	}

	doc := rg.buildLedgerDocument(batch)

	switch rg.config.Format {
	case FormatConsole:
		return rg.writeLedgerConsole(doc, writer)
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	case FormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode YAML report: %w", err)
		}
		return encoder.Close()
	case FormatCSV:
		return rg.writeLedgerCSV(doc, writer)
	case FormatXLSX:
		return rg.writeLedgerXLSX(doc, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) writeLedgerConsole(doc *LedgerDocument, writer io.Writer) error {
	fmt.Fprintf(writer, "LEDGER CLASSIFICATION\n\n")

	fmt.Fprintf(writer, "=== FILES ===\n")
	for _, l := range doc.Ledgers {
		tag := ""
		if l.Restricted {
			tag = " [restricted]"
		}
		if l.Error != "" {
			fmt.Fprintf(writer, "%s%s: SKIPPED (%s)\n", l.File, tag, l.Error)
			continue
		}
		fmt.Fprintf(writer, "%s%s: %s, header row %d, %d rows\n", l.File, tag, l.Currency, l.HeaderRow, l.Rows)
		fmt.Fprintf(writer, "  Movements: %d  Transfers: %d  Market: %d  Discarded: %d\n",
			l.Movements, l.Transfers, l.Market, l.Discarded)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MOVEMENTS ===\n")
	rg.printRows(doc.Movements, writer)

	if rg.config.IncludeStreams {
		fmt.Fprintf(writer, "=== TREASURY TRANSFERS ===\n")
		rg.printRows(doc.Transfers, writer)
		fmt.Fprintf(writer, "=== MARKET MOVEMENTS ===\n")
		rg.printRows(doc.Market, writer)
	}
	return nil
}

func (rg *ReportGenerator) printRows(rows []RecordRow, writer io.Writer) {
	for i, row := range rows {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(rows)-i)
			break
		}
		fmt.Fprintf(writer, "  %s  %s  %-13s %-9s %12s  %s\n",
			row.ID, row.Date, taxIDOrDash(row.TaxID), row.Currency, row.Amount, row.Counterparty)
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) writeLedgerCSV(doc *LedgerDocument, writer io.Writer) error {
	w := csv.NewWriter(writer)
	w.Comma = rg.config.delimiter()

	if rg.config.CSVHeaders {
		if err := w.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, stream := range ledgerStreams(doc) {
		for _, row := range stream.rows {
			if err := w.Write(recordCells(stream.name, row)); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	w.Flush()
	return w.Error()
}

func (rg *ReportGenerator) writeLedgerXLSX(doc *LedgerDocument, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetLedgers); err != nil {
		return fmt.Errorf("failed to name ledger sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	table := [][]string{{"File", "Currency", "Restricted", "Header Row", "Rows", "Movements", "Transfers", "Market", "Discarded", "Error"}}
	for _, l := range doc.Ledgers {
		table = append(table, []string{
			l.File,
			l.Currency,
			fmt.Sprint(l.Restricted),
			fmt.Sprint(l.HeaderRow),
			fmt.Sprint(l.Rows),
			fmt.Sprint(l.Movements),
			fmt.Sprint(l.Transfers),
			fmt.Sprint(l.Market),
			fmt.Sprint(l.Discarded),
			l.Error,
		})
	}
	if err := writeRows(f, SheetLedgers, header, table); err != nil {
		return err
	}

	for _, stream := range ledgerStreams(doc) {
		if _, err := f.NewSheet(stream.sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", stream.sheet, err)
		}
		rows := [][]string{csvHeaders}
		for _, row := range stream.rows {
			rows = append(rows, recordCells(stream.name, row))
		}
		if err := writeRows(f, stream.sheet, header, rows); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type ledgerStream struct {
	name  string
	sheet string
	rows  []RecordRow
}

func ledgerStreams(doc *LedgerDocument) []ledgerStream {
	return []ledgerStream{
		{"movements", SheetMovements, doc.Movements},
		{"transfers", SheetTransfers, doc.Transfers},
		{"market", SheetMarket, doc.Market},
	}
}
