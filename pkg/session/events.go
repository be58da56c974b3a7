package session

import (
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/tone"
)

// EventKind identifies a session notification
type EventKind string

const (
	EventPowerState      EventKind = "power_state"
	EventDisplay         EventKind = "display"
	EventIndicator       EventKind = "indicator"
	EventCue             EventKind = "cue"
	EventAnnounce        EventKind = "announce"
	EventCallStart       EventKind = "call_start"
	EventCallEnd         EventKind = "call_end"
	EventPage            EventKind = "page"
	EventCallAlert       EventKind = "call_alert"
	EventEmergency       EventKind = "emergency"
	EventSiteStatus      EventKind = "site_status"
	EventLocationRequest EventKind = "location_request"
	EventFault           EventKind = "fault"
	EventInhibit         EventKind = "inhibit"
	EventConnection      EventKind = "connection"
	EventBattery         EventKind = "battery"
	EventVolume          EventKind = "volume"
	EventScan            EventKind = "scan"
)

// Cue is an audible tone pattern
type Cue string

const (
	CueReject        Cue = "reject"      // bonk
	CueTalkPermit    Cue = "talk_permit" // grant confirmed
	CueEmergency     Cue = "emergency"
	CuePage          Cue = "page" // call alert received
	CueQC2           Cue = "qc2"  // two-tone page matched
	CueVolume        Cue = "volume"
	CueVolumeLimit   Cue = "volume_limit" // triple beep
	CueButton        Cue = "button"
	CueChannelChange Cue = "knob"
)

// Direction of a call relative to this unit
type Direction string

const (
	DirectionRX Direction = "rx"
	DirectionTX Direction = "tx"
)

// Call describes one voice transmission seen by the unit
type Call struct {
	SrcID     string        `json:"src_id"`
	DstID     string        `json:"dst_id"`
	Alias     string        `json:"alias,omitempty"`
	Frequency string        `json:"frequency,omitempty"`
	Direction Direction     `json:"direction"`
	Scan      bool          `json:"scan"`
	Zone      string        `json:"zone"`
	Channel   string        `json:"channel"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration,omitempty"`
	Frames    int           `json:"frames"`
	Reason    string        `json:"reason,omitempty"` // why the call ended
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Time      time.Time      `json:"time"`
	PoweredOn bool           `json:"powered_on,omitempty"`
	Connected bool           `json:"connected,omitempty"`
	Display   *Display       `json:"display,omitempty"`
	Indicator Indicator      `json:"indicator,omitempty"`
	Cue       Cue            `json:"cue,omitempty"`
	Gain      float64        `json:"gain,omitempty"`
	Announce  []string       `json:"announce,omitempty"`
	Call      *Call          `json:"call,omitempty"`
	SrcID     string         `json:"src_id,omitempty"`
	DstID     string         `json:"dst_id,omitempty"`
	Alias     string         `json:"alias,omitempty"`
	Code      string         `json:"code,omitempty"`
	Site      *protocol.Site `json:"site,omitempty"`
	Status    int            `json:"status,omitempty"`
	Page      *tone.Match    `json:"page,omitempty"`
	Level     int            `json:"level,omitempty"`
	Volume    float64        `json:"volume,omitempty"`
	Scan      bool           `json:"scan,omitempty"`
	Lat       *float64       `json:"lat,omitempty"`
	Long      *float64       `json:"long,omitempty"`
}

// EventSink receives session events. Emit is called outside the session
// lock, from whichever goroutine drove the transition, and must not block.
type EventSink interface {
	Emit(ev Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ev Event)

// Emit calls f
func (f EventSinkFunc) Emit(ev Event) { f(ev) }

// MultiSink fans events out to several sinks in order
type MultiSink []EventSink

// Emit delivers ev to every sink
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Player consumes received PCM for playback
type Player interface {
	Feed(pcm []byte)
	Clear()
	SetVolume(v float64)
}

// AliasResolver maps a radio ID to a display alias
type AliasResolver interface {
	Resolve(rid string) (string, bool)
}

type nopPlayer struct{}

func (nopPlayer) Feed([]byte)       {}
func (nopPlayer) Clear()            {}
func (nopPlayer) SetVolume(float64) {}
