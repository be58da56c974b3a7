// Package watchdog runs the terminal's periodic supervision jobs. Each
// job is a named timer that re-arms itself after it runs.
package watchdog

import (
	"sort"
	"sync"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/clock"
	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

// Job names
const (
	JobReconnect    = "reconnect"
	JobRegistration = "registration"
	JobAffiliation  = "affiliation"
	JobAudio        = "audio"
	JobToneFlush    = "tone_flush"
	JobLocation     = "location"
	JobBattery      = "battery"
)

// Target is what the supervisor drives. Every method must return
// immediately when its preconditions do not hold.
type Target interface {
	ReconnectTick()
	RegistrationTick()
	AffiliationTick()
	AudioTick()
	ToneFlushTick()
	LocationTick()
	BatteryTick()
}

// Intervals sets how often each job runs. A zero interval disables the job.
type Intervals struct {
	Reconnect    time.Duration
	Registration time.Duration
	Affiliation  time.Duration
	Audio        time.Duration
	ToneFlush    time.Duration
	Location     time.Duration
	Battery      time.Duration
}

// DefaultIntervals returns the stock radio intervals
func DefaultIntervals() Intervals {
	return Intervals{
		Reconnect:    2 * time.Second,
		Registration: 5 * time.Second,
		Affiliation:  5 * time.Second,
		Audio:        time.Second,
		ToneFlush:    200 * time.Millisecond,
		Location:     8 * time.Second,
		Battery:      time.Hour,
	}
}

// IntervalsFromConfig maps the timers section of the configuration
func IntervalsFromConfig(cfg config.TimersConfig) Intervals {
	return Intervals{
		Reconnect:    cfg.Reconnect,
		Registration: cfg.Registration,
		Affiliation:  cfg.Affiliation,
		Audio:        cfg.AudioCheck,
		ToneFlush:    cfg.ToneFlush,
		Location:     cfg.Location,
		Battery:      cfg.Battery,
	}
}

type job struct {
	name     string
	interval time.Duration
	run      func()
}

// Supervisor manages the job timers
type Supervisor struct {
	clock clock.Clock
	log   *logger.Logger
	jobs  []job

	mu      sync.Mutex
	timers  map[string]clock.Timer
	runs    map[string]uint64
	running bool
	gen     uint64 // bumped on every Start and Stop
}

// New creates a stopped supervisor for target
func New(target Target, iv Intervals, clk clock.Clock, log *logger.Logger) *Supervisor {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}

	all := []job{
		{JobReconnect, iv.Reconnect, target.ReconnectTick},
		{JobRegistration, iv.Registration, target.RegistrationTick},
		{JobAffiliation, iv.Affiliation, target.AffiliationTick},
		{JobAudio, iv.Audio, target.AudioTick},
		{JobToneFlush, iv.ToneFlush, target.ToneFlushTick},
		{JobLocation, iv.Location, target.LocationTick},
		{JobBattery, iv.Battery, target.BatteryTick},
	}
	jobs := make([]job, 0, len(all))
	for _, j := range all {
		if j.interval > 0 {
			jobs = append(jobs, j)
		}
	}

	return &Supervisor{
		clock:  clk,
		log:    log.WithComponent("watchdog"),
		jobs:   jobs,
		timers: make(map[string]clock.Timer),
		runs:   make(map[string]uint64),
	}
}

// Start arms every enabled job. Starting a running supervisor does nothing.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.gen++
	for _, j := range s.jobs {
		s.schedule(j, s.gen)
	}
	s.log.Debug("Watchdog started", logger.Int("jobs", len(s.jobs)))
}

// Stop cancels every pending job. A job already running finishes but is
// not re-armed.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.gen++
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[string]clock.Timer)
	s.log.Debug("Watchdog stopped")
}

// Running reports whether the supervisor is started
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// HasJob reports whether a job is armed
func (s *Supervisor) HasJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// Jobs returns the names of the armed jobs, sorted
func (s *Supervisor) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runs returns how many times each job has fired
func (s *Supervisor) Runs() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.runs))
	for k, v := range s.runs {
		out[k] = v
	}
	return out
}

func (s *Supervisor) schedule(j job, gen uint64) {
	s.timers[j.name] = s.clock.AfterFunc(j.interval, func() {
		s.fire(j, gen)
	})
}

// fire runs a job outside the lock, then re-arms it unless the
// supervisor was stopped or restarted meanwhile
func (s *Supervisor) fire(j job, gen uint64) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.runs[j.name]++
	s.mu.Unlock()

	j.run()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.gen == gen {
		s.schedule(j, gen)
	}
}
