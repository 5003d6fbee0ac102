package models

// Status is the conciliation outcome of a reconcilable record
type Status string

const (
	// StatusFull means the record is exact-matched in both counterpart families
	StatusFull Status = "FULL"
	// StatusAmountOnly means the record is matched in both counterpart families
	// but at least one of the pairings ignored the tax id
	StatusAmountOnly Status = "AMOUNT_ONLY"
	// StatusUnmatched means at least one counterpart family has no pairing
	StatusUnmatched Status = "UNMATCHED"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// Statuses lists all statuses in reporting order
func Statuses() []Status {
	return []Status{StatusFull, StatusAmountOnly, StatusUnmatched}
}

// MatchState holds the mutable matching outcome of one record. Entries are
// indexed by counterpart Family; the slot of the record's own family is unused.
type MatchState struct {
	Exact        [FamilyCount]bool   `json:"-"`
	Fallback     [FamilyCount]bool   `json:"-"`
	ExactPeer    [FamilyCount]string `json:"-"`
	FallbackPeer [FamilyCount]string `json:"-"`
	Status       Status              `json:"status"`
}

// NewMatchState returns a fresh, unmatched state
func NewMatchState() MatchState {
	return MatchState{Status: StatusUnmatched}
}

// NewMatchStates returns n fresh states
func NewMatchStates(n int) []MatchState {
	states := make([]MatchState, n)
	for i := range states {
		states[i] = NewMatchState()
	}
	return states
}

// Matched reports whether the record has any pairing in family f
func (s MatchState) Matched(f Family) bool {
	return s.Exact[f] || s.Fallback[f]
}

// Peer returns the identifier of the record paired in family f, preferring
// the exact pairing
func (s MatchState) Peer(f Family) string {
	if s.Exact[f] {
		return s.ExactPeer[f]
	}
	return s.FallbackPeer[f]
}

// DeriveStatus computes the status of a record of family own from its flags
func (s MatchState) DeriveStatus(own Family) Status {
	c := own.Counterparts()
	a, b := c[0], c[1]

	switch {
	case s.Exact[a] && s.Exact[b]:
		return StatusFull
	case s.Matched(a) && s.Matched(b):
		return StatusAmountOnly
	default:
		return StatusUnmatched
	}
}
