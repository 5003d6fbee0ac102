package parsers

import (
	"fmt"
	"sort"
	"strings"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/normalizer"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"
)

// ExportReport counts what happened to the rows of one export
type ExportReport struct {
	File      string `json:"file" yaml:"file"`
	HeaderRow int    `json:"header_row" yaml:"header_row"`
	Rows      int    `json:"rows" yaml:"rows"`
	Emitted   int    `json:"emitted" yaml:"emitted"`
	Blank     int    `json:"blank" yaml:"blank"`
	Excluded  int    `json:"excluded" yaml:"excluded"`
	Confirmed int    `json:"confirmed,omitempty" yaml:"confirmed,omitempty"`
}

// ExportMapper turns export tables into records
type ExportMapper struct {
	config ExportConfig
	norm   *normalizer.Normalizer
	logger logger.Logger
}

// NewExportMapper creates a mapper. A nil normalizer or logger gets the default.
func NewExportMapper(config ExportConfig, norm *normalizer.Normalizer, log logger.Logger) *ExportMapper {
	if norm == nil {
		norm = normalizer.New(normalizer.DefaultConfig())
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ExportMapper{
		config: config,
		norm:   norm,
		logger: log.WithComponent("export_mapper"),
	}
}

// layoutMatch is a resolved header: its row and the column of each field
type layoutMatch struct {
	row     int
	columns map[string]int
	names   []string
}

func (lm *layoutMatch) value(row []string, field string) string {
	idx, ok := lm.columns[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (lm *layoutMatch) origin(row []string) map[string]string {
	origin := make(map[string]string, len(row))
	for i, v := range row {
		name := fmt.Sprintf("col_%d", i+1)
		if i < len(lm.names) && lm.names[i] != "" {
			name = lm.names[i]
		}
		origin[name] = v
	}
	return origin
}

// locate finds the header row of table for layout
func (m *ExportMapper) locate(table *Table, layout ExportLayout) (*layoutMatch, error) {
	if table.IsEmpty() {
		return nil, errors.ParseError(errors.CodeEmptySheet, table.Name, 0, "", nil)
	}

	limit := m.config.HeaderScanRows
	if limit > len(table.Rows) {
		limit = len(table.Rows)
	}

	var firstMissing []string
	for i := 0; i < limit; i++ {
		columns := resolveColumns(table.Rows[i], layout.Columns)

		var missing []string
		for _, field := range layout.Required {
			if _, ok := columns[field]; !ok {
				missing = append(missing, field)
			}
		}
		if len(missing) == 0 {
			names := make([]string, len(table.Rows[i]))
			for j, h := range table.Rows[i] {
				names[j] = strings.TrimSpace(h)
			}
			return &layoutMatch{row: i, columns: columns, names: names}, nil
		}
		if i == 0 {
			firstMissing = missing
		}
	}

	return nil, errors.ParseError(errors.CodeMissingColumn, table.Name, 1, strings.Join(firstMissing, ", "), nil)
}

// resolveColumns maps fields to columns, trying exact alias matches for every
// field before falling back to containment. A column serves one field only.
func resolveColumns(header []string, aliases ColumnAliases) map[string]int {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = normalizer.Fold(strings.TrimSpace(h))
	}

	fields := make([]string, 0, len(aliases))
	for field := range aliases {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	columns := make(map[string]int)
	used := make(map[int]bool)

	match := func(exact bool) {
		for _, field := range fields {
			if _, done := columns[field]; done {
				continue
			}
		search:
			for _, alias := range aliases[field] {
				alias = normalizer.Fold(strings.TrimSpace(alias))
				for i, h := range folded {
					if used[i] || h == "" {
						continue
					}
					if (exact && h == alias) || (!exact && strings.Contains(h, alias)) {
						columns[field] = i
						used[i] = true
						break search
					}
				}
			}
		}
	}

	match(true)
	match(false)

	return columns
}

// Confirmations reads the confirmation export into request number -> payment date
func (m *ExportMapper) Confirmations(table *Table) (map[string]string, *ExportReport, error) {
	lm, err := m.locate(table, m.config.Confirmations)
	if err != nil {
		return nil, nil, err
	}

	report := &ExportReport{File: table.Name, HeaderRow: lm.row}
	dates := make(map[string]string)

	for _, row := range table.Rows[lm.row+1:] {
		report.Rows++
		if isEmptyRow(row) {
			report.Blank++
			continue
		}

		number := lm.value(row, FieldNumber)
		date := m.norm.ParseDate(lm.value(row, FieldPaymentDate))
		if number == "" || date == "" {
			report.Blank++
			continue
		}
		dates[number] = date
		report.Emitted++
	}

	return dates, report, nil
}

// Requests maps the status export into payment requests. When confirmations
// is not nil, a confirmed payment date replaces the request date.
func (m *ExportMapper) Requests(status *Table, confirmations map[string]string, seq *models.Sequence) ([]models.Record, *ExportReport, error) {
	lm, err := m.locate(status, m.config.Requests)
	if err != nil {
		return nil, nil, err
	}

	report := &ExportReport{File: status.Name, HeaderRow: lm.row}
	var records []models.Record

	for _, row := range status.Rows[lm.row+1:] {
		report.Rows++
		if isEmptyRow(row) {
			report.Blank++
			continue
		}

		if m.excludedStatus(lm.value(row, FieldStatus)) {
			report.Excluded++
			continue
		}

		beneficiary := lm.value(row, FieldBeneficiary)
		notes := lm.value(row, FieldNotes)

		taxID := m.norm.CleanTaxID(lm.value(row, FieldTaxID))
		if taxID == "" {
			taxID = m.norm.ExtractTaxID(beneficiary)
		}

		date := m.norm.ParseDate(lm.value(row, FieldDate))
		if number := lm.value(row, FieldNumber); number != "" {
			if paid, ok := confirmations[number]; ok {
				date = paid
				report.Confirmed++
			}
		}

		records = append(records, models.Record{
			ID:                seq.Next(models.KindPaymentRequest),
			Kind:              models.KindPaymentRequest,
			Date:              date,
			CounterpartyTaxID: taxID,
			Counterparty:      beneficiary,
			Currency:          m.norm.ParseCurrency(lm.value(row, FieldCurrency)),
			Amount:            m.norm.ParseAmount(lm.value(row, FieldAmount)).Abs(),
			SpecialFlag:       m.norm.DetectSpecialFlag(notes + " " + beneficiary),
			Source:            status.Name,
			Origin:            lm.origin(row),
		})
		report.Emitted++
	}

	m.logger.WithFields(logger.Fields{
		"file":      status.Name,
		"requests":  report.Emitted,
		"excluded":  report.Excluded,
		"confirmed": report.Confirmed,
	}).Debug("Status export mapped")

	return records, report, nil
}

// Receipts maps the receipt export into payment receipts
func (m *ExportMapper) Receipts(table *Table, seq *models.Sequence) ([]models.Record, *ExportReport, error) {
	lm, err := m.locate(table, m.config.Receipts)
	if err != nil {
		return nil, nil, err
	}

	report := &ExportReport{File: table.Name, HeaderRow: lm.row}
	var records []models.Record

	for _, row := range table.Rows[lm.row+1:] {
		report.Rows++
		if isEmptyRow(row) {
			report.Blank++
			continue
		}

		counterparty := lm.value(row, FieldCounterparty)
		detail := lm.value(row, FieldDetail)

		taxID := m.norm.CleanTaxID(lm.value(row, FieldTaxID))
		if taxID == "" {
			taxID = m.norm.ExtractTaxID(counterparty + " " + detail)
		}

		records = append(records, models.Record{
			ID:                seq.Next(models.KindPaymentReceipt),
			Kind:              models.KindPaymentReceipt,
			Date:              m.norm.ParseDate(lm.value(row, FieldDate)),
			CounterpartyTaxID: taxID,
			Counterparty:      counterparty,
			Currency:          m.norm.ParseCurrency(lm.value(row, FieldCurrency)),
			Amount:            m.norm.ParseAmount(lm.value(row, FieldAmount)).Abs(),
			SpecialFlag:       m.norm.DetectSpecialFlag(detail + " " + counterparty),
			Source:            table.Name,
			Origin:            lm.origin(row),
		})
		report.Emitted++
	}

	m.logger.WithFields(logger.Fields{
		"file":     table.Name,
		"receipts": report.Emitted,
	}).Debug("Receipt export mapped")

	return records, report, nil
}

func (m *ExportMapper) excludedStatus(status string) bool {
	if status == "" {
		return false
	}
	folded := normalizer.Fold(status)
	for _, excluded := range m.config.ExcludedStatuses {
		if strings.Contains(folded, normalizer.Fold(excluded)) {
			return true
		}
	}
	return false
}
