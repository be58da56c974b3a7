package metrics

import (
	"sort"
	"sync"

	"github.com/dbehnke/wlink-terminal/pkg/session"
)

// Source exposes the live terminal state sampled at scrape time
type Source interface {
	Snapshot() session.Snapshot
}

// Collector counts session events and samples the session for gauges.
// It is a session event sink.
type Collector struct {
	mu sync.RWMutex

	source Source

	events      map[string]uint64
	calls       map[string]uint64  // by direction
	callSeconds map[string]float64 // by direction
	faults      map[string]uint64  // by code
	cues        map[string]uint64
	activeCall  bool
}

// NewCollector creates a collector. source may be nil.
func NewCollector(source Source) *Collector {
	return &Collector{
		source:      source,
		events:      make(map[string]uint64),
		calls:       make(map[string]uint64),
		callSeconds: make(map[string]float64),
		faults:      make(map[string]uint64),
		cues:        make(map[string]uint64),
	}
}

// SetSource replaces the sampled session
func (c *Collector) SetSource(source Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
}

// Emit records one session event
func (c *Collector) Emit(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events[string(ev.Kind)]++
	switch ev.Kind {
	case session.EventCallStart:
		c.activeCall = true
	case session.EventCallEnd:
		c.activeCall = false
		if ev.Call != nil {
			dir := string(ev.Call.Direction)
			c.calls[dir]++
			c.callSeconds[dir] += ev.Call.Duration.Seconds()
		}
	case session.EventFault:
		c.faults[ev.Code]++
	case session.EventCue:
		c.cues[string(ev.Cue)]++
	}
}

// Reset clears the event counters (useful for testing)
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = make(map[string]uint64)
	c.calls = make(map[string]uint64)
	c.callSeconds = make(map[string]float64)
	c.faults = make(map[string]uint64)
	c.cues = make(map[string]uint64)
	c.activeCall = false
}

// Getters for metrics

// GetEvents returns how many events of one kind were seen
func (c *Collector) GetEvents(kind session.EventKind) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events[string(kind)]
}

// GetCalls returns finished calls in one direction
func (c *Collector) GetCalls(dir session.Direction) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[string(dir)]
}

// GetCallSeconds returns total call airtime in one direction
func (c *Collector) GetCallSeconds(dir session.Direction) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callSeconds[string(dir)]
}

// GetFaults returns a copy of the fault counts by code
func (c *Collector) GetFaults() map[string]uint64 {
	return c.copyOf(func() map[string]uint64 { return c.faults })
}

// GetCues returns a copy of the cue counts by name
func (c *Collector) GetCues() map[string]uint64 {
	return c.copyOf(func() map[string]uint64 { return c.cues })
}

// CallActive reports whether a call started and has not ended
func (c *Collector) CallActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeCall
}

// Sample returns the current session snapshot, if a source is set
func (c *Collector) Sample() (session.Snapshot, bool) {
	c.mu.RLock()
	src := c.source
	c.mu.RUnlock()
	if src == nil {
		return session.Snapshot{}, false
	}
	return src.Snapshot(), true
}

func (c *Collector) copyOf(get func() map[string]uint64) map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := get()
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
