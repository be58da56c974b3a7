package tone

import (
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/audio"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

// Detector runs received PCM through analysis, segmentation and matching.
// It is not safe for concurrent use; the session serializes calls.
type Detector struct {
	cfg      Config
	analyzer *Analyzer
	tracker  *Tracker
	logger   *logger.Logger
}

// NewDetector creates a detector for the given page table
func NewDetector(cfg Config, table []Pair, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{
		cfg:      cfg,
		analyzer: NewAnalyzer(cfg.FFTSize, cfg.SampleRate),
		tracker:  NewTracker(cfg, NewMatcher(cfg, table)),
		logger:   log,
	}
}

// Process analyzes one frame of little-endian PCM received at now
func (d *Detector) Process(pcm []byte, now time.Time) (Match, bool) {
	samples := audio.BytesToFloat(pcm)
	if len(samples) == 0 {
		return Match{}, false
	}

	freq := d.analyzer.Dominant(samples)
	m, hit := d.tracker.Observe(freq, now)
	if hit {
		d.logger.Info("QC2 page detected",
			logger.Int("a", m.Pair.A),
			logger.Int("b", m.Pair.B),
			logger.Duration("a_duration", m.A.Duration),
			logger.Duration("b_duration", m.B.Duration))
	}
	return m, hit
}

// Flush closes a long open tone, see Tracker.Flush
func (d *Detector) Flush(now time.Time) (Match, bool) {
	m, hit := d.tracker.Flush(now)
	if hit {
		d.logger.Info("QC2 page detected on flush",
			logger.Int("a", m.Pair.A),
			logger.Int("b", m.Pair.B))
	}
	return m, hit
}

// SetTable replaces the page table, keeping accumulated history
func (d *Detector) SetTable(table []Pair) {
	d.tracker.matcher = NewMatcher(d.cfg, table)
}

// Reset clears the open tone and history
func (d *Detector) Reset() {
	d.tracker.Reset()
}

// History returns the tracker's closed tones
func (d *Detector) History() []Entry {
	return d.tracker.History()
}
