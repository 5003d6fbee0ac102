package matcher

import (
	"fmt"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/pkg/logger"
)

// Phase identifies a matching pass
type Phase int

const (
	// PhaseExact requires equal tax ids
	PhaseExact Phase = iota
	// PhaseFallback ignores tax ids
	PhaseFallback
)

// String returns the string representation of Phase
func (p Phase) String() string {
	switch p {
	case PhaseExact:
		return "exact"
	case PhaseFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// familyPairs is the fixed order in which family pairs are matched
var familyPairs = [3][2]models.Family{
	{models.FamilyRequests, models.FamilyReceipts},
	{models.FamilyRequests, models.FamilyMovements},
	{models.FamilyReceipts, models.FamilyMovements},
}

// PairStats counts the work done for one family pair in one phase
type PairStats struct {
	Phase    Phase         `json:"phase"`
	Left     models.Family `json:"left"`
	Right    models.Family `json:"right"`
	Compared int           `json:"compared"`
	Matched  int           `json:"matched"`
}

// Stats aggregates PairStats over a run
type Stats struct {
	Pairs []PairStats `json:"pairs"`
}

// Compared returns the total number of evaluated pairs
func (s Stats) Compared() int {
	total := 0
	for _, p := range s.Pairs {
		total += p.Compared
	}
	return total
}

// Matched returns the number of pairings made in the given phase
func (s Stats) Matched(phase Phase) int {
	total := 0
	for _, p := range s.Pairs {
		if p.Phase == phase {
			total += p.Matched
		}
	}
	return total
}

// Outcome holds the match state of every record, parallel to the input slices
type Outcome struct {
	states [models.FamilyCount][]models.MatchState
	Stats  Stats
}

// States returns the states of family f, indexed like the input slice
func (o *Outcome) States(f models.Family) []models.MatchState {
	return o.states[f]
}

// Engine runs the matching phases with a fixed configuration. An Engine holds
// no per-run state and can be reused.
type Engine struct {
	config *MatchingConfig
	logger logger.Logger
}

// NewEngine creates a matching engine. A nil config gets the defaults.
func NewEngine(config *MatchingConfig, log logger.Logger) *Engine {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Engine{
		config: config,
		logger: log.WithComponent("matcher"),
	}
}

// Config returns the engine configuration
func (e *Engine) Config() *MatchingConfig {
	return e.config
}

// side is one family's record arena plus its states
type side struct {
	family  models.Family
	records []models.Record
	states  []models.MatchState
	index   *RecordIndex
}

// Match pairs the three families and derives a status for every record.
// Every call starts from fresh UNMATCHED states.
func (e *Engine) Match(requests, receipts, movements []models.Record) *Outcome {
	sides := [models.FamilyCount]*side{
		models.FamilyRequests:  {family: models.FamilyRequests, records: requests},
		models.FamilyReceipts:  {family: models.FamilyReceipts, records: receipts},
		models.FamilyMovements: {family: models.FamilyMovements, records: movements},
	}
	for _, s := range sides {
		s.states = models.NewMatchStates(len(s.records))
		if e.config.Strategy == StrategyIndexed {
			s.index = NewRecordIndex(s.records, e.config.Tolerance)
		}
	}

	outcome := &Outcome{}

	for _, phase := range []Phase{PhaseExact, PhaseFallback} {
		for _, pair := range familyPairs {
			stats := e.matchPair(phase, sides[pair[0]], sides[pair[1]])
			outcome.Stats.Pairs = append(outcome.Stats.Pairs, stats)

			e.logger.WithFields(logger.Fields{
				"phase":    phase.String(),
				"left":     stats.Left.String(),
				"right":    stats.Right.String(),
				"compared": stats.Compared,
				"matched":  stats.Matched,
			}).Debug("Family pair matched")
		}
	}

	for _, s := range sides {
		for i := range s.states {
			s.states[i].Status = s.states[i].DeriveStatus(s.family)
		}
		outcome.states[s.family] = s.states
	}

	return outcome
}

func (e *Engine) matchPair(phase Phase, left, right *side) PairStats {
	stats := PairStats{Phase: phase, Left: left.family, Right: right.family}

	for i := range left.records {
		ls := &left.states[i]
		if paired(phase, ls, right.family) {
			continue
		}

		a := left.records[i]
		for _, j := range e.candidates(right, a) {
			rs := &right.states[j]
			if paired(phase, rs, left.family) {
				continue
			}

			stats.Compared++
			b := right.records[j]
			if !e.eligible(phase, a, b) {
				continue
			}

			if phase == PhaseExact {
				ls.Exact[right.family], ls.ExactPeer[right.family] = true, b.ID
				rs.Exact[left.family], rs.ExactPeer[left.family] = true, a.ID
			} else {
				ls.Fallback[right.family], ls.FallbackPeer[right.family] = true, b.ID
				rs.Fallback[left.family], rs.FallbackPeer[left.family] = true, a.ID
			}
			stats.Matched++
			break
		}
	}

	return stats
}

// candidates enumerates right-side positions in ascending order
func (e *Engine) candidates(right *side, r models.Record) []int {
	if right.index != nil {
		return right.index.Candidates(r)
	}

	all := make([]int, len(right.records))
	for i := range all {
		all[i] = i
	}
	return all
}

// paired reports whether s is out of play for family f in the given phase
func paired(phase Phase, s *models.MatchState, f models.Family) bool {
	if phase == PhaseExact {
		return s.Exact[f]
	}
	return s.Exact[f] || s.Fallback[f]
}

// eligible applies the match rule of the phase to a candidate pair
func (e *Engine) eligible(phase Phase, a, b models.Record) bool {
	if a.Date != b.Date || a.Currency != b.Currency || a.SpecialFlag != b.SpecialFlag {
		return false
	}
	if phase == PhaseExact && a.CounterpartyTaxID != b.CounterpartyTaxID {
		return false
	}
	return a.Amount.Sub(b.Amount).Abs().LessThan(e.config.Tolerance)
}

type location struct {
	family models.Family
	pos    int
}

// Verify checks that every pairing in the outcome is one-to-one and mutual.
// records must be the slices passed to Match, in the same order.
func (o *Outcome) Verify(requests, receipts, movements []models.Record) error {
	arenas := [models.FamilyCount][]models.Record{requests, receipts, movements}

	byID := make(map[string]location)
	for _, f := range models.Families() {
		if len(arenas[f]) != len(o.states[f]) {
			return fmt.Errorf("%s: %d records but %d states", f, len(arenas[f]), len(o.states[f]))
		}
		for i, r := range arenas[f] {
			byID[r.ID] = location{family: f, pos: i}
		}
	}

	for _, f := range models.Families() {
		for _, c := range f.Counterparts() {
			exactSeen := make(map[string]string)
			fallbackSeen := make(map[string]string)

			for i, s := range o.states[f] {
				id := arenas[f][i].ID
				if s.Exact[c] && s.Fallback[c] {
					return fmt.Errorf("%s holds both exact and fallback pairing for %s", id, c)
				}

				if s.Exact[c] {
					if err := o.checkPeer(byID, exactSeen, f, c, id, s.ExactPeer[c], true); err != nil {
						return err
					}
				}
				if s.Fallback[c] {
					if err := o.checkPeer(byID, fallbackSeen, f, c, id, s.FallbackPeer[c], false); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

func (o *Outcome) checkPeer(byID map[string]location, seen map[string]string, own, c models.Family, id, peer string, exact bool) error {
	if other, dup := seen[peer]; dup {
		return fmt.Errorf("%s is paired with both %s and %s", peer, other, id)
	}
	seen[peer] = id

	loc, ok := byID[peer]
	if !ok || loc.family != c {
		return fmt.Errorf("%s is paired with unknown %s record %s", id, c, peer)
	}

	ps := o.states[c][loc.pos]
	back := ps.FallbackPeer[own]
	if exact {
		back = ps.ExactPeer[own]
	}
	if back != id {
		return fmt.Errorf("pairing %s -> %s is not mutual", id, peer)
	}
	return nil
}
