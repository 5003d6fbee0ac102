// Package classifier splits raw bank ledger rows into three disjoint record
// streams: treasury transfers, market-clearing movements and reconcilable
// debit movements. Classification is per file and keeps no state between
// files; ClassifyAll concatenates the per-file streams by currency bucket.
package classifier

import (
	"fmt"
	"strings"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/normalizer"
	apperrors "golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrMissingColumns is the cause attached to a file whose date, counterparty
// or amount column cannot be located
var ErrMissingColumns = errors.New("required ledger columns not found")

// LedgerFile is one bank ledger export as a grid of raw cells
type LedgerFile struct {
	Name       string
	Rows       [][]string
	Restricted bool

	// Currency overrides the bucket inferred from Name when set
	Currency models.Currency
}

// Columns holds the located column indexes of a ledger; -1 means absent
type Columns struct {
	Date         int `json:"date"`
	Counterparty int `json:"counterparty"`
	Direction    int `json:"direction"`
	Amount       int `json:"amount"`
}

// FileReport summarizes what happened to each row of a ledger file
type FileReport struct {
	File       string          `json:"file"`
	Currency   models.Currency `json:"currency"`
	Restricted bool            `json:"restricted"`
	HeaderRow  int             `json:"header_row"`
	Columns    Columns         `json:"columns"`
	Rows       int             `json:"rows"`

	Transfers int `json:"transfers"`
	Market    int `json:"market"`
	Movements int `json:"movements"`

	DiscardedBlank     int `json:"discarded_blank"`
	DiscardedSeparator int `json:"discarded_separator"`
	DiscardedCredit    int `json:"discarded_credit"`
	DiscardedExcluded  int `json:"discarded_excluded"`

	// Err is set when the file could not be classified; its streams are empty
	Err error `json:"-"`
}

// Emitted returns the number of records produced from the file
func (r FileReport) Emitted() int {
	return r.Transfers + r.Market + r.Movements
}

// Discarded returns the number of rows dropped by the rules
func (r FileReport) Discarded() int {
	return r.DiscardedBlank + r.DiscardedSeparator + r.DiscardedCredit + r.DiscardedExcluded
}

// Result holds the three streams of a single file
type Result struct {
	Transfers []models.Record
	Market    []models.Record
	Movements []models.Record
	Report    FileReport
}

// Batch holds the concatenated streams of several files
type Batch struct {
	Transfers []models.Record
	Market    []models.Record
	Movements []models.Record
	Reports   []FileReport
}

// Failed returns the reports of files that could not be classified
func (b *Batch) Failed() []FileReport {
	var failed []FileReport
	for _, r := range b.Reports {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

type rule int

const (
	ruleBlank rule = iota
	ruleSeparator
	ruleTreasury
	ruleMarket
	ruleMovement
	ruleExcluded
	ruleCredit
)

// Classifier applies the ledger rules of a Config
type Classifier struct {
	config   Config
	norm     *normalizer.Normalizer
	logger   logger.Logger
	treasury string
	market   map[string]bool
	excluded map[string]bool
}

// New creates a classifier. A nil normalizer or logger gets the default.
func New(config Config, norm *normalizer.Normalizer, log logger.Logger) *Classifier {
	if norm == nil {
		norm = normalizer.New(normalizer.DefaultConfig())
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	c := &Classifier{
		config:   config,
		norm:     norm,
		logger:   log.WithComponent("classifier"),
		treasury: normalizer.CleanTaxID(config.TreasuryTaxID),
		market:   make(map[string]bool),
		excluded: make(map[string]bool),
	}
	for _, id := range config.MarketTaxIDs {
		c.market[normalizer.CleanTaxID(id)] = true
	}
	for _, id := range config.ExcludedTaxIDs {
		c.excluded[normalizer.CleanTaxID(id)] = true
	}
	return c
}

// InferCurrency derives the currency bucket of a ledger from its file name
func (c *Classifier) InferCurrency(name string) models.Currency {
	folded := normalizer.Fold(name)
	for _, token := range c.config.USDFileTokens {
		if strings.Contains(folded, token) {
			return models.CurrencyUSD
		}
	}
	return models.CurrencyLocal
}

// Classify splits one ledger file into its streams. Identifiers are drawn
// from seq in row order.
func (c *Classifier) Classify(file LedgerFile, seq *models.Sequence) Result {
	if seq == nil {
		seq = models.NewSequence()
	}

	currency := file.Currency
	if currency == "" {
		currency = c.InferCurrency(file.Name)
	}

	result := Result{Report: FileReport{
		File:       file.Name,
		Currency:   currency,
		Restricted: file.Restricted,
	}}

	headerRow := c.findHeader(file.Rows)
	result.Report.HeaderRow = headerRow

	var header []string
	if headerRow < len(file.Rows) {
		header = file.Rows[headerRow]
	}

	cols, missing := c.findColumns(header)
	result.Report.Columns = cols
	if len(missing) > 0 {
		err := apperrors.ClassificationError(apperrors.CodeMissingColumn, file.Name, missing)
		err.Cause = ErrMissingColumns
		result.Report.Err = err
		return result
	}

	names := columnNames(header)

	for i := headerRow + 1; i < len(file.Rows); i++ {
		row := file.Rows[i]
		result.Report.Rows++

		r, record := c.classifyRow(row, cols, currency, file.Restricted)
		switch r {
		case ruleBlank:
			result.Report.DiscardedBlank++
			continue
		case ruleSeparator:
			result.Report.DiscardedSeparator++
			continue
		case ruleExcluded:
			result.Report.DiscardedExcluded++
			continue
		case ruleCredit:
			result.Report.DiscardedCredit++
			continue
		}

		record.ID = seq.Next(record.Kind)
		record.Source = file.Name
		record.Origin = originOf(names, row)

		switch r {
		case ruleTreasury:
			result.Transfers = append(result.Transfers, record)
			result.Report.Transfers++
		case ruleMarket:
			result.Market = append(result.Market, record)
			result.Report.Market++
		case ruleMovement:
			result.Movements = append(result.Movements, record)
			result.Report.Movements++
		}
	}

	return result
}

// ClassifyAll classifies each file independently and concatenates the
// streams grouped by currency bucket (LOCAL, USD, USD_CABLE, then other
// labels in first-seen order), keeping file order within a bucket.
// Files that cannot be classified are logged and contribute nothing.
func (c *Classifier) ClassifyAll(files []LedgerFile, seq *models.Sequence) *Batch {
	if seq == nil {
		seq = models.NewSequence()
	}

	batch := &Batch{Reports: make([]FileReport, 0, len(files))}
	buckets := make(map[models.Currency][]Result)
	var extra []models.Currency

	for _, file := range files {
		result := c.Classify(file, seq)
		batch.Reports = append(batch.Reports, result.Report)

		if result.Report.Err != nil {
			c.logger.WithError(result.Report.Err).WithField("file", file.Name).Warn("Ledger file skipped")
			continue
		}

		c.logger.WithFields(logger.Fields{
			"file":      file.Name,
			"currency":  result.Report.Currency,
			"movements": result.Report.Movements,
			"transfers": result.Report.Transfers,
			"market":    result.Report.Market,
			"discarded": result.Report.Discarded(),
		}).Debug("Ledger file classified")

		currency := result.Report.Currency
		if _, seen := buckets[currency]; !seen && !currency.IsCanonical() {
			extra = append(extra, currency)
		}
		buckets[currency] = append(buckets[currency], result)
	}

	order := append(models.CanonicalCurrencies(), extra...)
	for _, currency := range order {
		for _, result := range buckets[currency] {
			batch.Transfers = append(batch.Transfers, result.Transfers...)
			batch.Market = append(batch.Market, result.Market...)
			batch.Movements = append(batch.Movements, result.Movements...)
		}
	}

	return batch
}

// findHeader returns the first scanned row whose folded text carries the
// date, counterparty and amount tokens
func (c *Classifier) findHeader(rows [][]string) int {
	limit := c.config.HeaderScanRows
	if limit > len(rows) {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		text := normalizer.Fold(strings.Join(rows[i], " "))
		if strings.Contains(text, c.config.DateToken) &&
			strings.Contains(text, c.config.CounterpartyToken) &&
			strings.Contains(text, c.config.AmountToken) {
			return i
		}
	}

	return c.config.DefaultHeaderRow
}

func (c *Classifier) findColumns(header []string) (Columns, []string) {
	cols := Columns{Date: -1, Counterparty: -1, Direction: -1, Amount: -1}
	used := make(map[int]bool)

	locate := func(tokens ...string) int {
		for i, cell := range header {
			if used[i] {
				continue
			}
			folded := normalizer.Fold(strings.TrimSpace(cell))
			for _, token := range tokens {
				if strings.Contains(folded, token) {
					used[i] = true
					return i
				}
			}
		}
		return -1
	}

	cols.Date = locate(c.config.DateToken)
	cols.Direction = locate(c.config.DirectionTokens...)
	cols.Counterparty = locate(c.config.CounterpartyToken)
	cols.Amount = locate(c.config.AmountToken)

	var missing []string
	if cols.Date < 0 {
		missing = append(missing, c.config.DateToken)
	}
	if cols.Counterparty < 0 {
		missing = append(missing, c.config.CounterpartyToken)
	}
	if cols.Amount < 0 {
		missing = append(missing, c.config.AmountToken)
	}

	return cols, missing
}

func (c *Classifier) classifyRow(row []string, cols Columns, currency models.Currency, restricted bool) (rule, models.Record) {
	if isBlank(row) {
		return ruleBlank, models.Record{}
	}

	date := c.norm.ParseDate(cell(row, cols.Date))
	counterparty := strings.TrimSpace(cell(row, cols.Counterparty))
	amount := c.norm.ParseAmount(cell(row, cols.Amount))

	if date == "" && counterparty == "" && amount.IsZero() {
		return ruleBlank, models.Record{}
	}

	if isSeparator(counterparty) {
		return ruleSeparator, models.Record{}
	}

	taxID := c.norm.ExtractTaxID(counterparty)
	record := models.Record{
		Date:              date,
		CounterpartyTaxID: taxID,
		Counterparty:      counterparty,
		Currency:          currency,
		Amount:            amount.Abs(),
		SpecialFlag:       restricted || c.norm.DetectSpecialFlag(counterparty),
		Restricted:        restricted,
	}

	switch {
	case taxID != "" && taxID == c.treasury:
		record.Kind = models.KindTreasuryTransfer
		return ruleTreasury, record
	case c.market[taxID]:
		record.Kind = models.KindMarketMovement
		return ruleMarket, record
	}

	if !c.isDebit(row, cols, amount) {
		return ruleCredit, models.Record{}
	}
	if c.excluded[taxID] {
		return ruleExcluded, models.Record{}
	}

	record.Kind = models.KindBankMovement
	return ruleMovement, record
}

// isDebit reads the direction column; ledgers without one carry debits as
// negative amounts
func (c *Classifier) isDebit(row []string, cols Columns, amount decimal.Decimal) bool {
	if cols.Direction < 0 {
		return amount.IsNegative()
	}
	direction := normalizer.Fold(strings.TrimSpace(cell(row, cols.Direction)))
	return strings.HasPrefix(direction, c.config.DebitPrefix)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isSeparator(text string) bool {
	return text != "" && strings.Trim(text, "-‐‑‒–—") == ""
}

func columnNames(header []string) []string {
	names := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}
		names[i] = name
	}
	return names
}

func originOf(names []string, row []string) map[string]string {
	origin := make(map[string]string, len(row))
	for i, v := range row {
		name := fmt.Sprintf("col_%d", i+1)
		if i < len(names) {
			name = names[i]
		}
		origin[name] = v
	}
	return origin
}
