package tone

import "time"

// Tracker segments a stream of dominant frequencies into tones and keeps
// a bounded history of closed tones. It is not safe for concurrent use.
type Tracker struct {
	cfg     Config
	matcher *Matcher

	open    bool
	freq    int
	start   time.Time
	history []Entry
}

// NewTracker creates a tracker that matches against m after every closure
func NewTracker(cfg Config, m *Matcher) *Tracker {
	return &Tracker{cfg: cfg, matcher: m}
}

// Observe feeds one dominant frequency measured at now. It returns a match
// when closing the current tone completed a page from the table.
func (t *Tracker) Observe(freq int, now time.Time) (Match, bool) {
	if freq < t.cfg.MinFrequency || freq > t.cfg.MaxFrequency {
		if !t.open {
			return Match{}, false
		}
		m, hit := t.close(now)
		t.open = false
		return m, hit
	}

	if !t.open {
		t.open = true
		t.freq = freq
		t.start = now
		return Match{}, false
	}

	// continuation is measured against the tone's starting frequency
	if abs(freq-t.freq) <= t.cfg.ContinuationTolerance {
		return Match{}, false
	}

	m, hit := t.close(now)
	t.freq = freq
	t.start = now
	return m, hit
}

// Flush closes an open tone whose running duration already falls in the
// long-tone window, so a B tone is not lost when audio stops before a
// transition
func (t *Tracker) Flush(now time.Time) (Match, bool) {
	if !t.open {
		return Match{}, false
	}
	d := now.Sub(t.start)
	if d < t.cfg.FlushMin || d > t.cfg.FlushMax {
		return Match{}, false
	}
	m, hit := t.close(now)
	t.open = false
	return m, hit
}

func (t *Tracker) close(now time.Time) (Match, bool) {
	t.history = append(t.history, Entry{Frequency: t.freq, Duration: now.Sub(t.start)})
	if n := t.cfg.HistorySize; n > 0 && len(t.history) > n {
		t.history = append(t.history[:0], t.history[len(t.history)-n:]...)
	}

	m, hit, qualified := t.matcher.Check(t.history)
	if qualified {
		t.history = t.history[:0]
	}
	return m, hit
}

// History returns a copy of the closed tones, oldest first
func (t *Tracker) History() []Entry {
	return append([]Entry(nil), t.history...)
}

// Current returns the open tone's frequency and start, if any
func (t *Tracker) Current() (int, time.Time, bool) {
	return t.freq, t.start, t.open
}

// Reset drops the open tone and the history
func (t *Tracker) Reset() {
	t.open = false
	t.freq = 0
	t.start = time.Time{}
	t.history = t.history[:0]
}
