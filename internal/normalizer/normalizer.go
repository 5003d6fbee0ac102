// Package normalizer converts raw spreadsheet cell values into the canonical
// values used by records: DD/MM/YYYY dates, decimal amounts, currency buckets,
// digits-only tax ids and the restricted-counterparty flag.
//
// None of the functions fail. Unparseable dates are returned unchanged,
// unparseable amounts become zero and unknown currency labels pass through as
// their own bucket.
//
// Example usage:
//
//	n := normalizer.New(normalizer.DefaultConfig())
//	date := n.ParseDate(45809)        // "01/06/2025"
//	amount := n.ParseAmount("$1,500") // 1500
//	currency := n.ParseCurrency("Dólar MEP")
package normalizer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang-conciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SerialEpochOffset is the number of days between the spreadsheet epoch
// (1899-12-30) and 1970-01-01.
const SerialEpochOffset = 25569

// DateLayout is the canonical date format
const DateLayout = "02/01/2006"

var (
	canonicalDate = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	looseDate     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	textualDate   = regexp.MustCompile(`^([A-Za-z]{3})[A-Za-z]*\.?\s+(\d{1,2}),?\s+(\d{4})`)
	taxIDPattern  = regexp.MustCompile(`\d{2}-\d{8}-\d|\d{11}`)
	amountChars   = regexp.MustCompile(`[^0-9.,\-]`)
)

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Config holds the table-driven values of the normalizer
type Config struct {
	// SpecialMarker is the literal substring that flags a restricted counterparty
	SpecialMarker string `mapstructure:"special_marker" json:"special_marker"`

	// CurrencyLabels maps exact export labels to currency buckets
	CurrencyLabels map[string]models.Currency `mapstructure:"currency_labels" json:"currency_labels"`

	// USDTokens and LocalTokens drive the folded containment fallback
	USDTokens   []string `mapstructure:"usd_tokens" json:"usd_tokens"`
	LocalTokens []string `mapstructure:"local_tokens" json:"local_tokens"`
}

// DefaultConfig returns the labels and marker used by the upstream exports
func DefaultConfig() Config {
	return Config{
		SpecialMarker: "RESTRINGIDO",
		CurrencyLabels: map[string]models.Currency{
			"Pesos":       models.CurrencyLocal,
			"ARS":         models.CurrencyLocal,
			"Dólar MEP":   models.CurrencyUSD,
			"USD":         models.CurrencyUSD,
			"Dólar Cable": models.CurrencyUSDCable,
			"USD Cable":   models.CurrencyUSDCable,
		},
		USDTokens:   []string{"usd", "us$", "dolar"},
		LocalTokens: []string{"peso", "$"},
	}
}

// Validate rejects an empty marker and labels that differ only in case but
// map to different buckets
func (c Config) Validate() error {
	if strings.TrimSpace(c.SpecialMarker) == "" {
		return fmt.Errorf("special marker cannot be empty")
	}

	seen := make(map[string]string, len(c.CurrencyLabels))
	for _, label := range sortedLabels(c.CurrencyLabels) {
		key := strings.ToLower(label)
		if other, ok := seen[key]; ok && c.CurrencyLabels[other] != c.CurrencyLabels[label] {
			return fmt.Errorf("currency labels %q and %q differ only in case but map to %s and %s",
				other, label, c.CurrencyLabels[other], c.CurrencyLabels[label])
		}
		seen[key] = label
	}
	return nil
}

func sortedLabels(labels map[string]models.Currency) []string {
	keys := make([]string, 0, len(labels))
	for label := range labels {
		keys = append(keys, label)
	}
	sort.Strings(keys)
	return keys
}

// Normalizer converts raw values according to a Config
type Normalizer struct {
	config Config

	// lowered maps lowercased labels to buckets; on a case collision the
	// label sorting first wins
	lowered map[string]models.Currency
}

// New creates a normalizer. Empty config fields fall back to the defaults.
func New(config Config) *Normalizer {
	defaults := DefaultConfig()
	if config.SpecialMarker == "" {
		config.SpecialMarker = defaults.SpecialMarker
	}
	if len(config.CurrencyLabels) == 0 {
		config.CurrencyLabels = defaults.CurrencyLabels
	}
	if len(config.USDTokens) == 0 {
		config.USDTokens = defaults.USDTokens
	}
	if len(config.LocalTokens) == 0 {
		config.LocalTokens = defaults.LocalTokens
	}

	lowered := make(map[string]models.Currency, len(config.CurrencyLabels))
	for _, label := range sortedLabels(config.CurrencyLabels) {
		key := strings.ToLower(label)
		if _, ok := lowered[key]; !ok {
			lowered[key] = config.CurrencyLabels[label]
		}
	}
	return &Normalizer{config: config, lowered: lowered}
}

// Config returns the effective configuration
func (n *Normalizer) Config() Config {
	return n.config
}

// ParseDate converts a raw cell to DD/MM/YYYY. Accepted shapes are an already
// canonical date (D/M/YYYY is zero-padded), "Mon D YYYY ..." text, a
// spreadsheet serial number and a time.Time. Anything else is returned as is.
func (n *Normalizer) ParseDate(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(DateLayout)
	case string:
		return parseDateText(v)
	}

	if serial, err := cast.ToFloat64E(raw); err == nil {
		if date, ok := serialToDate(serial); ok {
			return date
		}
	}
	return cast.ToString(raw)
}

func parseDateText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if canonicalDate.MatchString(s) {
		return s
	}

	if m := looseDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return padDate(day, month, m[3])
	}

	if m := textualDate.FindStringSubmatch(s); m != nil {
		month, ok := months[strings.ToLower(m[1])]
		if !ok {
			return raw
		}
		day, _ := strconv.Atoi(m[2])
		return padDate(day, month, m[3])
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if date, ok := serialToDate(serial); ok {
			return date
		}
	}

	return raw
}

func padDate(day, month int, year string) string {
	return strconv.Itoa(100 + day)[1:] + "/" + strconv.Itoa(100 + month)[1:] + "/" + year
}

// MaxSerial is the first serial past 31/12/9999, the last spreadsheet date
const MaxSerial = 2958466

// serialToDate rounds to the nearest second so that time-of-day fractions and
// float error never push the value across a day boundary incorrectly. Values
// outside (0, MaxSerial) are not serials.
func serialToDate(serial float64) (string, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 || serial >= MaxSerial {
		return "", false
	}
	seconds := math.Round((serial - SerialEpochOffset) * 86400)
	return time.Unix(int64(seconds), 0).UTC().Format(DateLayout), true
}

// ParseAmount converts a raw cell to a decimal. Currency symbols and thousands
// separators are removed. The sign is preserved; unparseable input yields zero.
func (n *Normalizer) ParseAmount(raw any) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return decimal.NewFromInt(cast.ToInt64(v))
	}

	s := strings.TrimSpace(cast.ToString(raw))
	s = strings.TrimPrefix(s, "US$")
	s = strings.TrimPrefix(s, "$")
	s = amountChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// ParseCurrency maps an export label to a currency bucket. Exact labels are
// tried first, then the same labels ignoring case, then a folded substring
// match; unknown labels pass through.
func (n *Normalizer) ParseCurrency(raw any) models.Currency {
	label := strings.TrimSpace(cast.ToString(raw))
	if currency, ok := n.config.CurrencyLabels[label]; ok {
		return currency
	}
	// configuration files deliver lowercased keys
	if currency, ok := n.lowered[strings.ToLower(label)]; ok {
		return currency
	}

	folded := Fold(label)
	for _, token := range n.config.USDTokens {
		if strings.Contains(folded, token) {
			return models.CurrencyUSD
		}
	}
	for _, token := range n.config.LocalTokens {
		if strings.Contains(folded, token) {
			return models.CurrencyLocal
		}
	}

	return models.Currency(label)
}

// CleanTaxID removes hyphens and whitespace
func (n *Normalizer) CleanTaxID(raw any) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cast.ToString(raw))
}

// ExtractTaxID finds the first 11-digit or 2-8-1 grouped tax id in free text
func (n *Normalizer) ExtractTaxID(text string) string {
	match := taxIDPattern.FindString(text)
	if match == "" {
		return ""
	}
	return n.CleanTaxID(match)
}

// DetectSpecialFlag reports whether the text carries the restricted marker
func (n *Normalizer) DetectSpecialFlag(text string) bool {
	return strings.Contains(text, n.config.SpecialMarker)
}

// Fold lowercases text and strips diacritics, so "Débito" becomes "debito"
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return strings.ToLower(folded)
}

var std = New(DefaultConfig())

// ParseDate converts a raw value with the default configuration
func ParseDate(raw any) string { return std.ParseDate(raw) }

// ParseAmount converts a raw value with the default configuration
func ParseAmount(raw any) decimal.Decimal { return std.ParseAmount(raw) }

// ParseCurrency converts a raw value with the default configuration
func ParseCurrency(raw any) models.Currency { return std.ParseCurrency(raw) }

// CleanTaxID removes hyphens and whitespace
func CleanTaxID(raw any) string { return std.CleanTaxID(raw) }

// ExtractTaxID finds a tax id in free text
func ExtractTaxID(text string) string { return std.ExtractTaxID(text) }

// DetectSpecialFlag reports whether the text carries the default marker
func DetectSpecialFlag(text string) bool { return std.DetectSpecialFlag(text) }
