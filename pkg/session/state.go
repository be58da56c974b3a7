package session

import (
	"errors"

	"github.com/dbehnke/wlink-terminal/pkg/protocol"
)

var (
	// ErrGrantedWhileReceiving reports a state that both holds a voice
	// grant and receives on the same slot
	ErrGrantedWhileReceiving = errors.New("voice granted while receiving")
	// ErrScanWhileParked reports scan reception and parked reception at once
	ErrScanWhileParked = errors.New("scan reception while parked")
)

// State is the session's flag record. The zero value is powered off.
type State struct {
	PoweredOn         bool `json:"powered_on"`
	Registered        bool `json:"registered"`
	Affiliated        bool `json:"affiliated"`
	VoiceGranted      bool `json:"voice_granted"`
	VoiceRequested    bool `json:"voice_requested"`
	VoiceGrantHandled bool `json:"voice_grant_handled"`
	Receiving         bool `json:"receiving"`
	ReceivingParked   bool `json:"receiving_parked"`
	ScanEnabled       bool `json:"scan_enabled"`
	ScanActive        bool `json:"scan_active"`
	InRange           bool `json:"in_range"`
	SiteTrunking      bool `json:"site_trunking"`
	Transmitting      bool `json:"transmitting"`
	Inhibited         bool `json:"inhibited"`
}

// Mode names the composite state the flags describe
type Mode int

const (
	ModePoweredOff Mode = iota
	ModeSiteTrunking
	ModeUnregistered
	ModeUnaffiliated
	ModeIdle
	ModeReceiving
	ModeReceivingScan
	ModeRequestingVoice
	ModeTransmitting
)

var modeNames = map[Mode]string{
	ModePoweredOff:      "powered_off",
	ModeSiteTrunking:    "site_trunking",
	ModeUnregistered:    "unregistered",
	ModeUnaffiliated:    "registered_unaffiliated",
	ModeIdle:            "affiliated_idle",
	ModeReceiving:       "affiliated_receiving",
	ModeReceivingScan:   "affiliated_receiving_scan",
	ModeRequestingVoice: "affiliated_requesting_voice",
	ModeTransmitting:    "affiliated_transmitting",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Mode derives the composite state. Site trunking takes precedence over
// every registration flag.
func (s State) Mode() Mode {
	switch {
	case !s.PoweredOn:
		return ModePoweredOff
	case s.SiteTrunking:
		return ModeSiteTrunking
	case !s.Registered:
		return ModeUnregistered
	case !s.Affiliated:
		return ModeUnaffiliated
	case s.Transmitting && s.VoiceGranted:
		return ModeTransmitting
	case s.VoiceRequested:
		return ModeRequestingVoice
	case s.Receiving && s.ScanActive:
		return ModeReceivingScan
	case s.Receiving:
		return ModeReceiving
	default:
		return ModeIdle
	}
}

// Validate reports a flag combination no transition may produce
func (s State) Validate() error {
	if s.VoiceGranted && s.Receiving {
		return ErrGrantedWhileReceiving
	}
	if s.ScanActive && s.ReceivingParked {
		return ErrScanWhileParked
	}
	return nil
}

// Identity is who the unit is and where it is listening
type Identity struct {
	RID       string         `json:"rid"`
	Talkgroup string         `json:"talkgroup"`
	Frequency string         `json:"frequency,omitempty"` // empty when no voice channel is assigned
	Site      *protocol.Site `json:"site,omitempty"`
	Model     string         `json:"model"`
}

// Display is the three text lines of the radio's screen
type Display struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	Line3 string `json:"line3"`
}

// Indicator is the signal icon state
type Indicator string

const (
	IndicatorSignal   Indicator = "rssi"
	IndicatorTransmit Indicator = "tx"
	IndicatorReceive  Indicator = "rx"
	IndicatorOff      Indicator = "off"
)

// Status line texts
const (
	TextRegistrationRefused = "Sys reg refusd"
	TextOutOfRange          = "Out of range"
	TextSiteTrunking        = "Site trunking"
	TextFailsoft            = "Failsoft"
)

// Fault codes shown on line 2 when the session is forced off
const (
	FaultNoRID       = "Fail 01/83"
	FaultCodeplug    = "Fail 01/82"
	FaultNoScanList  = "Fail 01/84"
	FaultAffiliation = "Fail 01/01"
	FaultLatched     = "Fail 01/00"
	FaultUnexpected  = "Fail 01/12"
)

// Models that run from vehicle power and never drain a battery
var mobileModels = map[string]bool{
	"APX4500":   true,
	"E5":        true,
	"XTL2500":   true,
	"APX4500-G": true,
}

// ScannerModel is receive-only: no registration, affiliation or transmit
const ScannerModel = "UNIG5"

// IsMobile reports whether model is a vehicle radio
func IsMobile(model string) bool {
	return mobileModels[model]
}

const (
	// MaxBattery is a full battery
	MaxBattery = 4
	// MaxRSSI is full signal
	MaxRSSI = 4
)
