package matcher

import (
	"sort"

	"golang-conciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// groupKey holds the fields every pairing requires to be equal in both phases
type groupKey struct {
	date     string
	currency models.Currency
	flag     bool
}

// group holds the positions of one groupKey, both in original order and
// bucketed by amount in cents
type group struct {
	positions []int
	byCents   map[int64][]int
}

// RecordIndex buckets the records of one family for candidate lookups. It
// returns positions into the indexed slice, never records, so callers keep
// working against the original arena.
type RecordIndex struct {
	groups map[groupKey]*group
	span   int64
	size   int
}

// NewRecordIndex builds an index over records for the given tolerance
func NewRecordIndex(records []models.Record, tolerance decimal.Decimal) *RecordIndex {
	index := &RecordIndex{
		groups: make(map[groupKey]*group),
		span:   toleranceSpan(tolerance),
		size:   len(records),
	}

	for i, r := range records {
		key := keyOf(r)
		g, exists := index.groups[key]
		if !exists {
			g = &group{byCents: make(map[int64][]int)}
			index.groups[key] = g
		}
		cents := centsOf(r.Amount)
		g.positions = append(g.positions, i)
		g.byCents[cents] = append(g.byCents[cents], i)
	}

	return index
}

// Size returns the number of indexed records
func (ri *RecordIndex) Size() int {
	return ri.size
}

// Candidates returns, in ascending position order, every indexed record that
// shares date, currency and flag with r and whose amount may lie within the
// tolerance. The result is a superset of the eligible records; callers still
// apply the full match rule.
func (ri *RecordIndex) Candidates(r models.Record) []int {
	g, exists := ri.groups[keyOf(r)]
	if !exists {
		return nil
	}

	// Walking every bucket in the span costs more than the group itself
	if 2*ri.span+1 >= int64(len(g.positions)) {
		return g.positions
	}

	cents := centsOf(r.Amount)
	var candidates []int
	for c := cents - ri.span; c <= cents+ri.span; c++ {
		candidates = append(candidates, g.byCents[c]...)
	}
	sort.Ints(candidates)

	return candidates
}

func keyOf(r models.Record) groupKey {
	return groupKey{date: r.Date, currency: r.Currency, flag: r.SpecialFlag}
}

var hundred = decimal.NewFromInt(100)

func centsOf(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Floor().IntPart()
}

// toleranceSpan is the widest cent-bucket distance between two amounts whose
// difference is strictly below tolerance
func toleranceSpan(tolerance decimal.Decimal) int64 {
	return tolerance.Mul(hundred).Ceil().IntPart()
}
