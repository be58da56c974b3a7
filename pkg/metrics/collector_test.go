package metrics

import (
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/session"
)

type staticSource struct {
	snap session.Snapshot
}

func (s staticSource) Snapshot() session.Snapshot { return s.snap }

// TestNewCollector tests creating a new metrics collector
func TestNewCollector(t *testing.T) {
	collector := NewCollector(nil)
	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if _, ok := collector.Sample(); ok {
		t.Error("Expected no sample without a source")
	}
}

// TestCollector_CallMetrics tests call counting by direction
func TestCollector_CallMetrics(t *testing.T) {
	collector := NewCollector(nil)

	collector.Emit(session.Event{Kind: session.EventCallStart, Call: &session.Call{Direction: session.DirectionRX}})
	if !collector.CallActive() {
		t.Error("Expected call to be active after call_start")
	}

	collector.Emit(session.Event{Kind: session.EventCallEnd, Call: &session.Call{
		Direction: session.DirectionRX,
		Duration:  1500 * time.Millisecond,
	}})
	collector.Emit(session.Event{Kind: session.EventCallEnd, Call: &session.Call{
		Direction: session.DirectionTX,
		Duration:  2 * time.Second,
	}})

	if collector.CallActive() {
		t.Error("Expected no active call after call_end")
	}
	if got := collector.GetCalls(session.DirectionRX); got != 1 {
		t.Errorf("Expected 1 rx call, got %d", got)
	}
	if got := collector.GetCallSeconds(session.DirectionTX); got != 2 {
		t.Errorf("Expected 2 tx seconds, got %v", got)
	}
	if got := collector.GetEvents(session.EventCallEnd); got != 2 {
		t.Errorf("Expected 2 call_end events, got %d", got)
	}
}

// TestCollector_FaultAndCueMetrics tests labelled counters
func TestCollector_FaultAndCueMetrics(t *testing.T) {
	collector := NewCollector(nil)

	collector.Emit(session.Event{Kind: session.EventFault, Code: "01/83"})
	collector.Emit(session.Event{Kind: session.EventFault, Code: "01/83"})
	collector.Emit(session.Event{Kind: session.EventCue, Cue: session.CueReject})

	faults := collector.GetFaults()
	if faults["01/83"] != 2 {
		t.Errorf("Expected 2 faults for 01/83, got %d", faults["01/83"])
	}
	faults["01/83"] = 99
	if collector.GetFaults()["01/83"] != 2 {
		t.Error("GetFaults should return a copy")
	}
	if collector.GetCues()[string(session.CueReject)] != 1 {
		t.Error("Expected one reject cue")
	}
}

// TestCollector_Reset tests that reset clears counters
func TestCollector_Reset(t *testing.T) {
	collector := NewCollector(nil)
	collector.Emit(session.Event{Kind: session.EventCallStart})
	collector.Emit(session.Event{Kind: session.EventFault, Code: "01/00"})

	collector.Reset()

	if collector.CallActive() {
		t.Error("Expected no active call after reset")
	}
	if collector.GetEvents(session.EventFault) != 0 || len(collector.GetFaults()) != 0 {
		t.Error("Expected counters to be cleared after reset")
	}
}

// TestCollector_Sample tests reading the session through the source
func TestCollector_Sample(t *testing.T) {
	collector := NewCollector(nil)
	collector.SetSource(staticSource{snap: session.Snapshot{RSSI: 3, Battery: 5}})

	snap, ok := collector.Sample()
	if !ok {
		t.Fatal("Expected a sample once a source is set")
	}
	if snap.RSSI != 3 || snap.Battery != 5 {
		t.Errorf("Unexpected sample %+v", snap)
	}
}
