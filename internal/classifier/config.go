package classifier

import (
	"fmt"
	"strings"
)

// Config holds the header tokens and counterparty constants used to split
// ledger rows into streams. Tokens are compared against folded (lowercase,
// accent-free) header text.
type Config struct {
	// HeaderScanRows is how many leading rows are searched for the header
	HeaderScanRows int `mapstructure:"header_scan_rows" json:"header_scan_rows"`

	// DefaultHeaderRow is used when no scanned row carries all required tokens
	DefaultHeaderRow int `mapstructure:"default_header_row" json:"default_header_row"`

	DateToken         string   `mapstructure:"date_token" json:"date_token"`
	CounterpartyToken string   `mapstructure:"counterparty_token" json:"counterparty_token"`
	AmountToken       string   `mapstructure:"amount_token" json:"amount_token"`
	DirectionTokens   []string `mapstructure:"direction_tokens" json:"direction_tokens"`

	// DebitPrefix is the folded prefix of a direction cell that denotes a debit
	DebitPrefix string `mapstructure:"debit_prefix" json:"debit_prefix"`

	// TreasuryTaxID routes rows to the treasury transfer stream
	TreasuryTaxID string `mapstructure:"treasury_tax_id" json:"treasury_tax_id"`

	// MarketTaxIDs route rows to the market movement stream
	MarketTaxIDs []string `mapstructure:"market_tax_ids" json:"market_tax_ids"`

	// ExcludedTaxIDs are debit counterparties that never enter reconciliation
	ExcludedTaxIDs []string `mapstructure:"excluded_tax_ids" json:"excluded_tax_ids"`

	// USDFileTokens mark a ledger file name as a USD account
	USDFileTokens []string `mapstructure:"usd_file_tokens" json:"usd_file_tokens"`
}

// DefaultConfig returns the settings matching the bank ledger exports
func DefaultConfig() Config {
	return Config{
		HeaderScanRows:    10,
		DefaultHeaderRow:  0,
		DateToken:         "fecha",
		CounterpartyToken: "descrip",
		AmountToken:       "importe",
		DirectionTokens:   []string{"d/c", "debito/credito", "tipo", "sentido"},
		DebitPrefix:       "d",
		TreasuryTaxID:     "33693450239",
		MarketTaxIDs:      []string{"30711610126", "30604796357"},
		ExcludedTaxIDs:    []string{"30500010084"},
		USDFileTokens:     []string{"usd", "dolar"},
	}
}

// Validate checks the configuration for values the classifier cannot use
func (c Config) Validate() error {
	if c.HeaderScanRows <= 0 {
		return fmt.Errorf("header scan rows must be positive, got %d", c.HeaderScanRows)
	}
	if c.DefaultHeaderRow < 0 {
		return fmt.Errorf("default header row cannot be negative, got %d", c.DefaultHeaderRow)
	}
	if strings.TrimSpace(c.DateToken) == "" || strings.TrimSpace(c.CounterpartyToken) == "" || strings.TrimSpace(c.AmountToken) == "" {
		return fmt.Errorf("date, counterparty and amount header tokens are required")
	}
	if strings.TrimSpace(c.DebitPrefix) == "" {
		return fmt.Errorf("debit prefix cannot be empty")
	}
	for _, id := range c.MarketTaxIDs {
		if id == c.TreasuryTaxID {
			return fmt.Errorf("tax id %s is configured as both treasury and market", id)
		}
	}
	return nil
}
