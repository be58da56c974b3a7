package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/clock"
	"github.com/dbehnke/wlink-terminal/pkg/config"
)

type countingTarget struct {
	mu     sync.Mutex
	counts map[string]int
	onTick func(name string)
}

func newCountingTarget() *countingTarget {
	return &countingTarget{counts: make(map[string]int)}
}

func (c *countingTarget) tick(name string) {
	c.mu.Lock()
	c.counts[name]++
	fn := c.onTick
	c.mu.Unlock()
	if fn != nil {
		fn(name)
	}
}

func (c *countingTarget) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (c *countingTarget) ReconnectTick()    { c.tick(JobReconnect) }
func (c *countingTarget) RegistrationTick() { c.tick(JobRegistration) }
func (c *countingTarget) AffiliationTick()  { c.tick(JobAffiliation) }
func (c *countingTarget) AudioTick()        { c.tick(JobAudio) }
func (c *countingTarget) ToneFlushTick()    { c.tick(JobToneFlush) }
func (c *countingTarget) LocationTick()     { c.tick(JobLocation) }
func (c *countingTarget) BatteryTick()      { c.tick(JobBattery) }

func newTestSupervisor(iv Intervals) (*Supervisor, *countingTarget, *clock.FakeClock) {
	target := newCountingTarget()
	clk := clock.Fake(time.Unix(0, 0))
	return New(target, iv, clk, nil), target, clk
}

func TestSupervisor_StartArmsAllJobs(t *testing.T) {
	s, _, _ := newTestSupervisor(DefaultIntervals())
	if s.Running() {
		t.Fatal("New supervisor should be stopped")
	}

	s.Start()
	if !s.Running() {
		t.Fatal("Supervisor should be running after Start")
	}
	if got := len(s.Jobs()); got != 7 {
		t.Errorf("Expected 7 armed jobs, got %d (%v)", got, s.Jobs())
	}
	if !s.HasJob(JobBattery) {
		t.Error("Battery job should be armed")
	}
}

func TestSupervisor_JobsFireAtTheirIntervals(t *testing.T) {
	s, target, clk := newTestSupervisor(DefaultIntervals())
	s.Start()

	clk.Advance(10 * time.Second)

	tests := []struct {
		job  string
		want int
	}{
		{JobReconnect, 5},
		{JobRegistration, 2},
		{JobAffiliation, 2},
		{JobAudio, 10},
		{JobToneFlush, 50},
		{JobLocation, 1},
		{JobBattery, 0},
	}
	for _, tt := range tests {
		if got := target.count(tt.job); got != tt.want {
			t.Errorf("%s: expected %d runs, got %d", tt.job, tt.want, got)
		}
	}

	clk.Advance(time.Hour)
	if got := target.count(JobBattery); got != 1 {
		t.Errorf("Expected one battery run after an hour, got %d", got)
	}
	if got := s.Runs()[JobLocation]; got != uint64(target.count(JobLocation)) {
		t.Errorf("Runs() disagrees with target: %d vs %d", got, target.count(JobLocation))
	}
}

func TestSupervisor_StopCancels(t *testing.T) {
	s, target, clk := newTestSupervisor(DefaultIntervals())
	s.Start()
	clk.Advance(2 * time.Second)
	s.Stop()

	before := target.count(JobReconnect)
	clk.Advance(time.Minute)
	if got := target.count(JobReconnect); got != before {
		t.Errorf("Job ran after Stop: %d -> %d", before, got)
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("Expected no armed jobs after Stop, got %v", s.Jobs())
	}
}

func TestSupervisor_StartStopIdempotent(t *testing.T) {
	s, target, clk := newTestSupervisor(DefaultIntervals())
	s.Start()
	s.Start()

	clk.Advance(2 * time.Second)
	if got := target.count(JobReconnect); got != 1 {
		t.Errorf("Double Start should not double schedule, got %d runs", got)
	}

	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("Supervisor should be stopped")
	}

	s.Start()
	clk.Advance(2 * time.Second)
	if got := target.count(JobReconnect); got != 2 {
		t.Errorf("Restart should resume jobs, got %d runs", got)
	}
}

func TestSupervisor_ZeroIntervalDisablesJob(t *testing.T) {
	iv := DefaultIntervals()
	iv.Battery = 0
	iv.Location = 0
	s, target, clk := newTestSupervisor(iv)
	s.Start()

	if s.HasJob(JobBattery) || s.HasJob(JobLocation) {
		t.Errorf("Disabled jobs should not be armed: %v", s.Jobs())
	}
	clk.Advance(2 * time.Hour)
	if target.count(JobBattery) != 0 {
		t.Error("Disabled battery job ran")
	}
}

func TestSupervisor_StopFromInsideJob(t *testing.T) {
	s, target, clk := newTestSupervisor(Intervals{Reconnect: time.Second})
	target.onTick = func(string) { s.Stop() }
	s.Start()

	clk.Advance(5 * time.Second)
	if got := target.count(JobReconnect); got != 1 {
		t.Errorf("Job stopped from inside should run once, got %d", got)
	}
	if s.HasJob(JobReconnect) {
		t.Error("Job should not be re-armed after Stop")
	}
}

func TestIntervalsFromConfig(t *testing.T) {
	iv := IntervalsFromConfig(config.TimersConfig{
		Reconnect:    3 * time.Second,
		Registration: 6 * time.Second,
		Affiliation:  7 * time.Second,
		AudioCheck:   2 * time.Second,
		ToneFlush:    100 * time.Millisecond,
		Location:     9 * time.Second,
		Battery:      30 * time.Minute,
	})

	if iv.Audio != 2*time.Second {
		t.Errorf("Expected audio interval from audio_check, got %v", iv.Audio)
	}
	if iv.Battery != 30*time.Minute {
		t.Errorf("Expected battery 30m, got %v", iv.Battery)
	}
}
