package reporter

import (
	"fmt"
	"io"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/reconciler"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names
const (
	SheetSummary   = "Summary"
	SheetRequests  = "Requests"
	SheetReceipts  = "Receipts"
	SheetMovements = "Movements"
	SheetTransfers = "Transfers"
	SheetMarket    = "Market"
)

// generateXLSXReport writes a workbook with a summary sheet followed by one
// sheet per record stream
func (rg *ReportGenerator) generateXLSXReport(result *reconciler.Result, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummarySheet(f, header, result.Summary); err != nil {
		return err
	}

	doc := rg.buildDocument(result)
	sheets := []struct {
		name   string
		family string
		rows   []RecordRow
	}{
		{SheetRequests, models.FamilyRequests.String(), doc.Requests},
		{SheetReceipts, models.FamilyReceipts.String(), doc.Receipts},
		{SheetMovements, models.FamilyMovements.String(), doc.Movements},
		{SheetTransfers, "transfers", doc.Transfers},
		{SheetMarket, "market", doc.Market},
	}

	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}

		table := make([][]string, 0, len(sheet.rows)+1)
		table = append(table, csvHeaders)
		for _, row := range sheet.rows {
			table = append(table, recordCells(sheet.family, row))
		}
		if err := writeRows(f, sheet.name, header, table); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, header int, summary *reconciler.Summary) error {
	table := [][]string{
		{"Family", "Total", "FULL", "AMOUNT_ONLY", "UNMATCHED", "Currency", "Full Amount", "Amount Only Amount", "Unmatched Amount"},
	}
	for _, family := range models.Families() {
		fs := summary.Family(family)
		counts := []string{
			family.String(),
			fmt.Sprint(fs.Total),
			fmt.Sprint(fs.Full),
			fmt.Sprint(fs.AmountOnly),
			fmt.Sprint(fs.Unmatched),
		}
		currencies := sortedCurrencies(fs.Amounts)
		if len(currencies) == 0 {
			table = append(table, counts)
			continue
		}
		for _, currency := range currencies {
			totals := fs.Amounts[currency]
			table = append(table, append(append([]string{}, counts...),
				currency.String(),
				totals.Full.StringFixed(2),
				totals.AmountOnly.StringFixed(2),
				totals.Unmatched.StringFixed(2)))
		}
	}

	table = append(table,
		[]string{},
		[]string{"Run ID", summary.RunID},
		[]string{"Exact Pairs", fmt.Sprint(summary.ExactPairs)},
		[]string{"Fallback Pairs", fmt.Sprint(summary.FallbackPairs)},
		[]string{"Treasury Transfers", fmt.Sprint(summary.Transfers.Count)},
		[]string{"Market Movements", fmt.Sprint(summary.Market.Count)},
		[]string{"Ledger Files", fmt.Sprint(summary.LedgerFiles)},
		[]string{"Skipped Ledger Files", fmt.Sprint(summary.SkippedLedgerFiles)},
		[]string{"Discrepancies", fmt.Sprint(summary.Discrepancies)},
	)

	return writeRows(f, SheetSummary, header, table)
}

// writeRows writes table from A1 and styles its first row as a header
func writeRows(f *excelize.File, sheet string, header int, table [][]string) error {
	for i, row := range table {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}

		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}

	if len(table) == 0 || len(table[0]) == 0 {
		return nil
	}

	last, err := excelize.ColumnNumberToName(len(table[0]))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", header); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return f.SetColWidth(sheet, "A", last, 18)
}
