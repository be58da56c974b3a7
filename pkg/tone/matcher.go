package tone

import "time"

// Pair is a QC2 page: the A tone then the B tone, in Hz
type Pair struct {
	A int
	B int
}

// Entry is a closed tone
type Entry struct {
	Frequency int
	Duration  time.Duration
}

// Match describes a detected page
type Match struct {
	Pair Pair  // table entry that matched
	A    Entry // measured A tone
	B    Entry // measured B tone
}

// Matcher checks the tail of a tone history against a page table
type Matcher struct {
	table      []Pair
	tolerance  int
	aMin, aMax time.Duration
	bMin, bMax time.Duration
}

// NewMatcher creates a matcher for table using cfg's windows
func NewMatcher(cfg Config, table []Pair) *Matcher {
	return &Matcher{
		table:     append([]Pair(nil), table...),
		tolerance: cfg.MatchTolerance,
		aMin:      cfg.AMin,
		aMax:      cfg.AMax,
		bMin:      cfg.BMin,
		bMax:      cfg.BMax,
	}
}

// Check inspects the last two history entries. qualified reports that
// their durations form an A/B pair, which means the history should be
// consumed whether or not a table entry matched. hit reports a table match.
func (m *Matcher) Check(history []Entry) (match Match, hit, qualified bool) {
	if len(history) < 2 {
		return Match{}, false, false
	}
	a, b := history[len(history)-2], history[len(history)-1]

	if a.Duration < m.aMin || a.Duration > m.aMax || b.Duration < m.bMin || b.Duration > m.bMax {
		return Match{}, false, false
	}

	for _, p := range m.table {
		if abs(a.Frequency-p.A) <= m.tolerance && abs(b.Frequency-p.B) <= m.tolerance {
			return Match{Pair: p, A: a, B: b}, true, true
		}
	}
	return Match{A: a, B: b}, false, true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
