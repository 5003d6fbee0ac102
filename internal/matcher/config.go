// Package matcher implements the two-phase greedy matching engine that pairs
// payment requests, payment receipts and bank movements.
//
// Matching runs over the three family pairs (requests-receipts,
// requests-movements, receipts-movements) in two phases:
//  1. Exact: equal date, tax id, currency and special flag, amounts within
//     the tolerance
//  2. Fallback: the same rule without the tax id, for records still unpaired
//     in that family after phase 1
//
// Within a pair the left side is visited in array order and each record takes
// the first eligible right-side record in array order. Results therefore
// depend on input order; this is intentional.
//
// Records are never modified. The engine returns a MatchState per record,
// held in slices parallel to the input slices.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.Strategy = matcher.StrategyScan
//
//	engine := matcher.NewEngine(config, log)
//	outcome := engine.Match(requests, receipts, movements)
//	for i, state := range outcome.States(models.FamilyRequests) {
//		fmt.Println(requests[i].ID, state.Status)
//	}
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Strategy selects how right-side candidates are enumerated
type Strategy string

const (
	// StrategyScan compares every left record with every right record
	StrategyScan Strategy = "scan"

	// StrategyIndexed pre-buckets the right side by date, currency, flag and
	// amount in cents, and only visits buckets within the tolerance.
	// Candidates are visited in original order, so outcomes equal StrategyScan.
	StrategyIndexed Strategy = "indexed"
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	return string(s)
}

// IsValid checks if the strategy is known
func (s Strategy) IsValid() bool {
	return s == StrategyScan || s == StrategyIndexed
}

// MatchingConfig holds configuration parameters for matching
type MatchingConfig struct {
	// Tolerance is the strict upper bound of |a-b| for two amounts to match
	Tolerance decimal.Decimal `mapstructure:"tolerance" json:"tolerance"`

	// Strategy controls candidate enumeration. It never changes the outcome.
	Strategy Strategy `mapstructure:"strategy" json:"strategy"`
}

// DefaultMatchingConfig returns the standard configuration: one cent
// tolerance and the indexed strategy
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Tolerance: decimal.NewFromFloat(0.01),
		Strategy:  StrategyIndexed,
	}
}

// Validate checks if the configuration is valid
func (c *MatchingConfig) Validate() error {
	if !c.Tolerance.IsPositive() {
		return fmt.Errorf("tolerance must be positive, got %s", c.Tolerance.String())
	}

	if !c.Strategy.IsValid() {
		return fmt.Errorf("invalid matching strategy: %s", c.Strategy)
	}

	return nil
}

// Clone returns a copy so a service never shares its settings with the caller
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}
