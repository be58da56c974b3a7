// Package recorder persists the session's call history and alerts.
package recorder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/database"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/session"
)

// Config tunes the recorder
type Config struct {
	MinDuration   time.Duration // shorter calls are not saved
	Retention     time.Duration // zero disables pruning
	PruneInterval time.Duration
	QueueSize     int
}

// DefaultConfig returns the stock recorder settings
func DefaultConfig() Config {
	return Config{
		MinDuration:   500 * time.Millisecond,
		Retention:     30 * 24 * time.Hour,
		PruneInterval: time.Hour,
		QueueSize:     256,
	}
}

// Recorder is a session event sink that writes finished calls and alerts
// to the database from its own goroutine
type Recorder struct {
	calls  *database.CallRepository
	alerts *database.AlertRepository
	cfg    Config
	log    *logger.Logger
	queue  chan session.Event

	saved   atomic.Uint64
	skipped atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// New creates a recorder. Call Run to start writing.
func New(calls *database.CallRepository, alerts *database.AlertRepository, cfg Config, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Recorder{
		calls:  calls,
		alerts: alerts,
		cfg:    cfg,
		log:    log.WithComponent("recorder"),
		queue:  make(chan session.Event, cfg.QueueSize),
	}
}

// Emit queues events worth keeping. It never blocks; when the queue is
// full the event is dropped and counted.
func (r *Recorder) Emit(ev session.Event) {
	if !recorded(ev.Kind) {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

func recorded(k session.EventKind) bool {
	switch k {
	case session.EventCallEnd, session.EventPage, session.EventCallAlert,
		session.EventEmergency, session.EventFault, session.EventInhibit:
		return true
	}
	return false
}

// Run writes queued events until ctx is cancelled, then drains what is
// left in the queue
func (r *Recorder) Run(ctx context.Context) {
	var prune <-chan time.Time
	if r.cfg.Retention > 0 && r.cfg.PruneInterval > 0 {
		ticker := time.NewTicker(r.cfg.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C
		r.prune(time.Now())
	}

	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case now := <-prune:
			r.prune(now)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

// Prune deletes history older than the retention window
func (r *Recorder) Prune(now time.Time) (int64, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-r.cfg.Retention)
	calls, err := r.calls.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune calls: %w", err)
	}
	alerts, err := r.alerts.DeleteOlderThan(cutoff)
	if err != nil {
		return calls, fmt.Errorf("failed to prune alerts: %w", err)
	}
	return calls + alerts, nil
}

func (r *Recorder) prune(now time.Time) {
	n, err := r.Prune(now)
	if err != nil {
		r.log.Error("Prune failed", logger.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("Pruned history", logger.Int64("rows", n))
	}
}

// Stats reports saved, skipped, dropped and failed event counts
type Stats struct {
	Saved   uint64 `json:"saved"`
	Skipped uint64 `json:"skipped"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns the recorder counters
func (r *Recorder) Stats() Stats {
	return Stats{
		Saved:   r.saved.Load(),
		Skipped: r.skipped.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

func (r *Recorder) write(ev session.Event) {
	var err error
	switch ev.Kind {
	case session.EventCallEnd:
		if ev.Call == nil {
			return
		}
		if ev.Call.Duration < r.cfg.MinDuration {
			r.skipped.Add(1)
			r.log.Debug("Skipped short call",
				logger.String("src_id", ev.Call.SrcID),
				logger.Duration("duration", ev.Call.Duration))
			return
		}
		err = r.calls.Create(callRecord(ev.Call))
	default:
		a := alertRecord(ev)
		if a == nil {
			return
		}
		err = r.alerts.Create(a)
	}

	if err != nil {
		r.failed.Add(1)
		r.log.Error("Failed to save event", logger.String("kind", string(ev.Kind)), logger.Error(err))
		return
	}
	r.saved.Add(1)
}

func callRecord(c *session.Call) *database.CallRecord {
	return &database.CallRecord{
		SrcID:      c.SrcID,
		DstID:      c.DstID,
		Alias:      c.Alias,
		Frequency:  c.Frequency,
		Direction:  string(c.Direction),
		Scan:       c.Scan,
		Zone:       c.Zone,
		Channel:    c.Channel,
		Duration:   c.Duration.Seconds(),
		StartTime:  c.Started,
		EndTime:    c.Started.Add(c.Duration),
		FrameCount: c.Frames,
		EndReason:  c.Reason,
	}
}

func alertRecord(ev session.Event) *database.AlertRecord {
	a := &database.AlertRecord{
		SrcID:    ev.SrcID,
		DstID:    ev.DstID,
		Alias:    ev.Alias,
		RaisedAt: ev.Time,
	}
	switch ev.Kind {
	case session.EventPage:
		a.Kind = database.AlertPage
		if ev.Page != nil {
			a.Detail = fmt.Sprintf("%d/%d", ev.Page.Pair.A, ev.Page.Pair.B)
		}
	case session.EventCallAlert:
		a.Kind = database.AlertCallAlert
	case session.EventEmergency:
		a.Kind = database.AlertEmergency
		a.Lat, a.Long = ev.Lat, ev.Long
	case session.EventFault:
		a.Kind = database.AlertFault
		a.Detail = ev.Code
	case session.EventInhibit:
		a.Kind = database.AlertInhibit
		if ev.Status == protocol.FunctionUninhibit {
			a.Kind = database.AlertUninhibit
		}
	default:
		return nil
	}
	return a
}
