// Package testgen builds reproducible conciliation scenarios whose outcome is
// known in advance, and writes them as the CSV exports the service reads.
package testgen

import (
	"fmt"
	"math/rand"
	"time"

	"golang-conciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// GroupKind describes how the records of one generated group relate
type GroupKind string

const (
	// GroupFull is a request, a receipt and a movement sharing every key
	GroupFull GroupKind = "full"

	// GroupFallback drops the receipt's tax id so two pairs match on amount only
	GroupFallback GroupKind = "fallback"

	// GroupOrphan is one record per family with unrelated amounts
	GroupOrphan GroupKind = "orphan"
)

// Config controls scenario generation
type Config struct {
	Seed  int64
	Count int

	// FullRatio and FallbackRatio split groups; the rest are orphans
	FullRatio     float64
	FallbackRatio float64

	// USDRatio is the share of groups in US dollars
	USDRatio float64

	Start time.Time
	Days  int
}

// DefaultConfig returns a small mixed scenario
func DefaultConfig() Config {
	return Config{
		Seed:          1,
		Count:         30,
		FullRatio:     0.5,
		FallbackRatio: 0.25,
		USDRatio:      0.2,
		Start:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Days:          20,
	}
}

// Validate checks the ratios and sizes
func (c Config) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", c.Days)
	}
	for name, ratio := range map[string]float64{"full": c.FullRatio, "fallback": c.FallbackRatio, "usd": c.USDRatio} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("%s ratio must be between 0 and 1, got %f", name, ratio)
		}
	}
	if c.FullRatio+c.FallbackRatio > 1 {
		return fmt.Errorf("full and fallback ratios exceed 1: %f", c.FullRatio+c.FallbackRatio)
	}
	return nil
}

// Counts tallies statuses of one family
type Counts struct {
	Full       int
	AmountOnly int
	Unmatched  int
}

func (c *Counts) add(status models.Status) {
	switch status {
	case models.StatusFull:
		c.Full++
	case models.StatusAmountOnly:
		c.AmountOnly++
	default:
		c.Unmatched++
	}
}

// Scenario is a generated data set with its expected statuses
type Scenario struct {
	Seed      int64
	Requests  []models.Record
	Receipts  []models.Record
	Movements []models.Record

	// Expected maps record id to the status it must end with
	Expected map[string]models.Status
	Groups   map[GroupKind]int
}

// Records returns the generated records of family f
func (s *Scenario) Records(f models.Family) []models.Record {
	switch f {
	case models.FamilyRequests:
		return s.Requests
	case models.FamilyReceipts:
		return s.Receipts
	default:
		return s.Movements
	}
}

// ExpectedCounts returns the expected status tally of family f
func (s *Scenario) ExpectedCounts(f models.Family) Counts {
	var counts Counts
	for _, r := range s.Records(f) {
		counts.add(s.Expected[r.ID])
	}
	return counts
}

// Generator produces scenarios from a seeded source
type Generator struct {
	config Config
	rng    *rand.Rand
}

// NewGenerator creates a generator for config
func NewGenerator(config Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// Generate builds a scenario. Every group gets its own ten-unit amount band,
// so records of different groups are never within tolerance of each other.
func (g *Generator) Generate() *Scenario {
	s := &Scenario{
		Seed:     g.config.Seed,
		Expected: make(map[string]models.Status),
		Groups:   make(map[GroupKind]int),
	}
	seq := models.NewSequence()

	for i := 0; i < g.config.Count; i++ {
		kind := g.groupKind()
		s.Groups[kind]++

		date := g.config.Start.AddDate(0, 0, g.rng.Intn(g.config.Days)).Format("02/01/2006")
		currency := models.CurrencyLocal
		if g.rng.Float64() < g.config.USDRatio {
			currency = models.CurrencyUSD
		}
		base := decimal.NewFromInt(int64(1000 + i*10)).Add(decimal.New(int64(g.rng.Intn(100)), -2))
		taxID := g.taxID()
		name := fmt.Sprintf("PROVEEDOR %03d SA", i+1)

		build := func(k models.Kind, amount decimal.Decimal, tax string) models.Record {
			return models.Record{
				ID:                seq.Next(k),
				Kind:              k,
				Date:              date,
				CounterpartyTaxID: tax,
				Counterparty:      name,
				Currency:          currency,
				Amount:            amount,
			}
		}

		var req, rec, mov models.Record
		var status models.Status
		switch kind {
		case GroupFull:
			req = build(models.KindPaymentRequest, base, taxID)
			rec = build(models.KindPaymentReceipt, base, taxID)
			mov = build(models.KindBankMovement, base, taxID)
			status = models.StatusFull
		case GroupFallback:
			req = build(models.KindPaymentRequest, base, taxID)
			rec = build(models.KindPaymentReceipt, base, "")
			mov = build(models.KindBankMovement, base, taxID)
			status = models.StatusAmountOnly
		default:
			req = build(models.KindPaymentRequest, base, taxID)
			rec = build(models.KindPaymentReceipt, base.Add(decimal.NewFromInt(3)), taxID)
			mov = build(models.KindBankMovement, base.Add(decimal.NewFromInt(6)), taxID)
			status = models.StatusUnmatched
		}

		s.Requests = append(s.Requests, req)
		s.Receipts = append(s.Receipts, rec)
		s.Movements = append(s.Movements, mov)
		for _, r := range []models.Record{req, rec, mov} {
			s.Expected[r.ID] = status
		}
	}

	g.shuffle(s.Receipts)
	g.shuffle(s.Movements)
	return s
}

func (g *Generator) groupKind() GroupKind {
	p := g.rng.Float64()
	switch {
	case p < g.config.FullRatio:
		return GroupFull
	case p < g.config.FullRatio+g.config.FallbackRatio:
		return GroupFallback
	default:
		return GroupOrphan
	}
}

// taxID returns an 11 digit person tax id; the 20 prefix never collides with
// the treasury or market counterparties
func (g *Generator) taxID() string {
	return fmt.Sprintf("20%08d%d", g.rng.Intn(100000000), g.rng.Intn(10))
}

func (g *Generator) shuffle(records []models.Record) {
	g.rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
}
