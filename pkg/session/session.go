// Package session is the radio's protocol state machine. A Session owns
// the flag record, the unit identity, the display and the single link to
// the master. Host intents, link callbacks and watchdog ticks all funnel
// through one mutex; delayed continuations are scheduled on the injected
// clock and discarded if the radio was powered off in between.
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/audio"
	"github.com/dbehnke/wlink-terminal/pkg/clock"
	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/tone"
	"github.com/dbehnke/wlink-terminal/pkg/transport"
)

// errNotConnected is returned by send when no link is open
var errNotConnected = errors.New("not connected to master")

// Options are the session's collaborators. Only Connector is required.
type Options struct {
	Clock     clock.Clock
	Connector transport.Connector
	Sink      EventSink
	Player    Player
	Aliases   AliasResolver
	Logger    *logger.Logger
}

// Stats counts traffic handled by the session
type Stats struct {
	FramesSent      uint64            `json:"frames_sent"`
	FramesReceived  uint64            `json:"frames_received"`
	SamplesDropped  uint64            `json:"samples_dropped"`
	MessagesIn      map[string]uint64 `json:"messages_in"`
	MessagesOut     map[string]uint64 `json:"messages_out"`
	Connects        uint64            `json:"connects"`
	Disconnects     uint64            `json:"disconnects"`
	Pages           uint64            `json:"pages"`
	CallAlerts      uint64            `json:"call_alerts"`
	Emergencies     uint64            `json:"emergencies"`
	Rejects         uint64            `json:"rejects"`
	ForcedReleases  uint64            `json:"forced_releases"`
	StaleGrants     uint64            `json:"stale_grants"`
	DroppedMessages uint64            `json:"dropped_messages"`
}

func (st Stats) clone() Stats {
	out := st
	out.MessagesIn = make(map[string]uint64, len(st.MessagesIn))
	for k, v := range st.MessagesIn {
		out.MessagesIn[k] = v
	}
	out.MessagesOut = make(map[string]uint64, len(st.MessagesOut))
	for k, v := range st.MessagesOut {
		out.MessagesOut[k] = v
	}
	return out
}

// Snapshot is a consistent copy of everything the session exposes
type Snapshot struct {
	State         State     `json:"state"`
	Mode          string    `json:"mode"`
	Identity      Identity  `json:"identity"`
	Display       Display   `json:"display"`
	Indicator     Indicator `json:"indicator"`
	Zone          string    `json:"zone"`
	Channel       string    `json:"channel"`
	ScanTalkgroup string    `json:"scan_talkgroup,omitempty"`
	Connected     bool      `json:"connected"`
	Endpoint      string    `json:"endpoint,omitempty"`
	RSSI          int       `json:"rssi"`
	Battery       int       `json:"battery"`
	Volume        float64   `json:"volume"`
	Call          *Call     `json:"call,omitempty"`
	Fault         string    `json:"fault,omitempty"`
	Stats         Stats     `json:"stats"`
}

// Session is one radio terminal
type Session struct {
	cfg       Config
	clock     clock.Clock
	connector transport.Connector
	sink      EventSink
	player    Player
	aliases   AliasResolver
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	id        Identity
	display   Display
	line3Held bool // a call, page or emergency owns line 3
	indicator Indicator
	codeplug  *codeplug.Codeplug
	scan      *codeplug.ScanManager
	pos       codeplug.Position
	link      transport.Link
	linkOpen  bool
	framer    *audio.Framer
	degrader  *audio.Degrader
	detector  *tone.Detector

	epoch          uint64 // bumped on power off
	scanTG         string
	lastAudio      time.Time
	rssi           int
	rssiDBM        float64
	lat, long      *float64
	battery        int
	volume         float64
	volumeHeld     bool
	refusalPending bool
	latched        string
	fault          string
	call           *Call
	stats          Stats

	outbox []Event
}

// New creates a powered-off session
func New(cfg Config, opts Options) *Session {
	def := DefaultConfig()
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = def.FrameLength
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Volume <= 0 {
		cfg.Volume = def.Volume
	}
	if cfg.Tone.FFTSize == 0 {
		cfg.Tone = def.Tone
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Sink == nil {
		opts.Sink = EventSinkFunc(func(Event) {})
	}
	if opts.Player == nil {
		opts.Player = nopPlayer{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := opts.Logger.WithComponent("session")

	seed := cfg.FringeSeed
	if seed == 0 {
		seed = opts.Clock.Now().UnixNano()
	}

	s := &Session{
		cfg:       cfg,
		clock:     opts.Clock,
		connector: opts.Connector,
		sink:      opts.Sink,
		player:    opts.Player,
		aliases:   opts.Aliases,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		id:        Identity{RID: cfg.RID, Model: cfg.Model},
		indicator: IndicatorOff,
		framer:    audio.NewFramer(cfg.FrameLength),
		degrader:  audio.NewDegrader(seed, cfg.FringeDropout, cfg.FringeNoise, cfg.SampleRate),
		detector:  tone.NewDetector(cfg.Tone, nil, log),
		rssi:      cfg.RSSI,
		lat:       cfg.Latitude,
		long:      cfg.Longitude,
		battery:   MaxBattery,
		volume:    cfg.Volume,
		stats: Stats{
			MessagesIn:  make(map[string]uint64),
			MessagesOut: make(map[string]uint64),
		},
	}
	s.player.SetVolume(s.volume)
	return s
}

// Close powers the radio off and cancels any link
func (s *Session) Close() {
	s.lock()
	s.powerOff(false, "shutdown")
	s.unlock()
	s.cancel()
}

// State returns a copy of the flag record
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns a copy of the unit identity
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity()
}

// Display returns the current screen text
func (s *Session) Display() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// Snapshot returns a consistent view of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		Mode:          s.state.Mode().String(),
		Identity:      s.identity(),
		Display:       s.display,
		Indicator:     s.indicator,
		ScanTalkgroup: s.scanTG,
		Connected:     s.linkOpen,
		RSSI:          s.rssi,
		Battery:       s.battery,
		Volume:        s.volume,
		Fault:         s.fault,
		Stats:         s.stats.clone(),
	}
	snap.Stats.SamplesDropped = s.framer.Dropped()
	if zone, ch, ok := s.current(); ok {
		snap.Zone, snap.Channel = zone.Name, ch.Name
	}
	if s.link != nil {
		snap.Endpoint = s.link.Endpoint()
	}
	if s.call != nil {
		c := *s.call
		snap.Call = &c
	}
	return snap
}

func (s *Session) identity() Identity {
	id := s.id
	if id.Site != nil {
		site := *id.Site
		id.Site = &site
	}
	return id
}

func (s *Session) lock() {
	s.mu.Lock()
}

// unlock releases the mutex and then delivers queued events in order
func (s *Session) unlock() {
	events := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	for _, ev := range events {
		s.sink.Emit(ev)
	}
}

func (s *Session) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}
	s.outbox = append(s.outbox, ev)
}

// after schedules fn under the session lock. The call is dropped if the
// radio was powered off before it fires.
func (s *Session) after(d time.Duration, fn func()) {
	epoch := s.epoch
	s.clock.AfterFunc(d, func() {
		s.lock()
		defer s.unlock()
		if s.epoch != epoch {
			return
		}
		fn()
	})
}

func (s *Session) scanner() bool {
	return s.id.Model == ScannerModel
}

// current returns the selected zone and channel
func (s *Session) current() (codeplug.Zone, codeplug.Channel, bool) {
	if s.codeplug == nil {
		return codeplug.Zone{}, codeplug.Channel{}, false
	}
	return s.codeplug.At(s.pos)
}

func (s *Session) scanned(tg string) bool {
	zone, ch, ok := s.current()
	if !ok || s.scan == nil {
		return false
	}
	return s.scan.IsTalkgroupScanned(zone.Name, ch.Name, tg)
}

func (s *Session) currentEndpoint() (string, error) {
	_, ch, ok := s.current()
	if !ok {
		return "", codeplug.ErrNoZones
	}
	sys, err := s.codeplug.SystemByName(ch.System)
	if err != nil {
		return "", err
	}
	return protocol.Endpoint(sys.Address, sys.Port, sys.AuthKey), nil
}

func (s *Session) siteRef() *protocol.Site {
	if s.id.Site == nil {
		return nil
	}
	site := *s.id.Site
	return &site
}

// send writes msg to the open link
func (s *Session) send(msg protocol.Message) error {
	if s.link == nil || !s.linkOpen {
		return errNotConnected
	}
	if err := s.link.Send(msg); err != nil {
		return err
	}
	s.stats.MessagesOut[msg.Type().String()]++
	return nil
}

// Display helpers

func (s *Session) emitDisplay() {
	d := s.display
	s.emit(Event{Kind: EventDisplay, Display: &d})
}

func (s *Session) setLines(line1, line2 string) {
	s.display.Line1 = line1
	s.display.Line2 = line2
	s.emitDisplay()
}

func (s *Session) setLine2(text string) {
	s.display.Line2 = text
	s.emitDisplay()
}

func (s *Session) setLine3(text string) {
	s.display.Line3 = text
	s.emitDisplay()
}

// holdLine3 shows text that status updates may not overwrite
func (s *Session) holdLine3(text string) {
	s.line3Held = true
	s.setLine3(text)
}

// restoreLine3 releases line 3 and shows the standing status
func (s *Session) restoreLine3() {
	s.line3Held = false
	switch {
	case !s.state.InRange:
		s.setLine3(TextOutOfRange)
	case s.state.SiteTrunking:
		s.setLine3(TextSiteTrunking)
	default:
		s.setLine3("")
	}
}

// showHome puts the selected zone and channel on lines 1 and 2
func (s *Session) showHome() {
	if zone, ch, ok := s.current(); ok {
		s.setLines(zone.Name, ch.Name)
	}
}

func (s *Session) setIndicator(ind Indicator) {
	if s.indicator == ind {
		return
	}
	s.indicator = ind
	s.emit(Event{Kind: EventIndicator, Indicator: ind, Level: s.rssi})
}

// flashTransmit shows the transmit indicator until the display settles
func (s *Session) flashTransmit() {
	s.setIndicator(IndicatorTransmit)
	s.after(s.cfg.DisplaySettle, func() {
		if !s.state.Transmitting {
			s.setIndicator(IndicatorSignal)
		}
	})
}

func (s *Session) cueGain() float64 {
	return s.volume * (1 - s.cfg.BeepVolumeReduction)
}

func (s *Session) cue(c Cue) {
	if c == CueReject {
		s.stats.Rejects++
	}
	s.emit(Event{Kind: EventCue, Cue: c, Gain: s.cueGain()})
}

// idText is the line 3 caller display
func (s *Session) idText(src string) (string, string) {
	alias := ""
	if s.aliases != nil {
		if a, ok := s.aliases.Resolve(src); ok {
			alias = a
		}
	}
	if s.scanner() {
		return "Fm:[" + src + "]", alias
	}
	if alias != "" {
		return "ID: " + alias, alias
	}
	return "ID: " + src, alias
}

// Call tracking

func (s *Session) startCall(dir Direction, src, dst string, scan bool) {
	s.endCall("superseded")

	alias := ""
	if dir == DirectionRX {
		_, alias = s.idText(src)
	}
	c := &Call{
		SrcID:     src,
		DstID:     dst,
		Alias:     alias,
		Frequency: s.id.Frequency,
		Direction: dir,
		Scan:      scan,
		Started:   s.clock.Now(),
	}
	if zone, ch, ok := s.current(); ok {
		c.Zone, c.Channel = zone.Name, ch.Name
		if scan && s.scan != nil {
			if z, chName, ok := s.scan.Lookup(zone.Name, ch.Name, dst); ok {
				c.Zone, c.Channel = z, chName
			}
		}
	}
	s.call = c
	started := *c
	s.emit(Event{Kind: EventCallStart, Call: &started, SrcID: src, DstID: dst, Alias: alias})
}

func (s *Session) endCall(reason string) {
	if s.call == nil {
		return
	}
	c := *s.call
	s.call = nil
	c.Duration = s.clock.Now().Sub(c.Started)
	c.Reason = reason
	s.emit(Event{Kind: EventCallEnd, Call: &c, SrcID: c.SrcID, DstID: c.DstID})
}

// Power sequencing

func (s *Session) powerOn(reReg bool) {
	if s.state.PoweredOn {
		return
	}
	if s.state.Inhibited {
		s.log.Info("Unit is inhibited, ignoring power on")
		return
	}

	s.state.PoweredOn = true
	s.fault = ""
	s.emit(Event{Kind: EventPowerState, PoweredOn: true})
	s.player.Clear()

	if s.id.RID == "" {
		s.raise(FaultNoRID)
		return
	}
	if s.latched != "" {
		s.raise(FaultLatched)
		return
	}
	if s.codeplug == nil {
		s.raise(FaultCodeplug)
		return
	}
	if _, err := s.currentEndpoint(); err != nil {
		s.log.Error("Codeplug cannot reach a system", logger.Error(err))
		s.raise(FaultCodeplug)
		return
	}
	if s.id.Model == "" {
		s.id.Model = s.codeplug.RadioWide.Model
	}

	s.state.InRange = s.rssi > 0 || s.cfg.FlyingVehicle
	s.line3Held = false

	s.log.Info("Powering on",
		logger.String("rid", s.id.RID),
		logger.String("model", s.id.Model))

	s.display = Display{}
	s.setLine2(s.cfg.HostVersion)
	s.after(s.cfg.BootDisplay, func() {
		s.setLine2(s.id.Model)
	})
	s.after(2*s.cfg.BootDisplay, func() {
		s.finishBoot(reReg)
	})
}

func (s *Session) finishBoot(reReg bool) {
	zone, ch, ok := s.current()
	if !ok {
		s.raise(FaultUnexpected)
		return
	}

	if s.codeplug.AnnounceZoneChannelTalkgroups && s.cfg.VoiceAnnounce && !s.scanner() {
		s.emit(Event{Kind: EventAnnounce, Announce: []string{zone.NameAnnounce, ch.NameAnnounce}})
	}

	s.updateDisplay()
	s.setIndicator(IndicatorSignal)
	s.emit(Event{Kind: EventBattery, Level: s.battery})
	if !s.state.InRange {
		s.setLine3(TextOutOfRange)
	}

	if reReg && s.link != nil && s.linkOpen {
		s.sendRegistration()
		s.sendAffiliation()
		return
	}
	s.connect()
}

// updateDisplay shows the selected channel and tunes its talkgroup
func (s *Session) updateDisplay() {
	zone, ch, ok := s.current()
	if !ok {
		return
	}
	s.setLines(zone.Name, ch.Name)
	s.id.Talkgroup = ch.TGID
}

// powerOff is idempotent. stayConnected keeps the link for an inhibited
// unit so it can still hear the uninhibit command.
func (s *Session) powerOff(stayConnected bool, reason string) {
	wasOn := s.state.PoweredOn
	s.epoch++
	s.endCall(reason)

	if !stayConnected {
		if s.linkOpen && !s.scanner() && s.id.RID != "" {
			if err := s.send(&protocol.UnitDeregistrationRequest{SrcID: protocol.ID(s.id.RID), Site: s.siteRef()}); err != nil {
				s.log.Debug("Deregistration not sent", logger.Error(err))
			}
		}
		s.dropLink()
	}

	s.state = State{Inhibited: s.state.Inhibited}
	s.id.Frequency = ""
	s.scanTG = ""
	s.refusalPending = false
	s.volumeHeld = false
	s.line3Held = false
	s.framer.Flush()
	s.detector.Reset()
	s.player.Clear()

	if wasOn {
		s.log.Info("Powered off", logger.String("reason", reason))
		s.emit(Event{Kind: EventPowerState, PoweredOn: false})
	}
	s.display = Display{}
	s.emitDisplay()
	s.setIndicator(IndicatorOff)
}

// raise powers the radio off and shows a fault code
func (s *Session) raise(code string) {
	s.log.Warn("Radio fault", logger.String("code", code))
	s.powerOff(false, "fault")
	s.fault = code
	s.display = Display{Line2: code}
	s.emitDisplay()
	s.emit(Event{Kind: EventFault, Code: code})
}

// Link management

func (s *Session) connect() {
	endpoint, err := s.currentEndpoint()
	if err != nil {
		s.log.Error("No system for channel", logger.Error(err))
		s.raise(FaultCodeplug)
		return
	}
	if s.connector == nil {
		s.log.Error("No connector configured")
		return
	}

	s.dropLink()
	s.player.Clear()

	s.log.Debug("Connecting to master")
	s.stats.Connects++
	s.link = s.connector.Connect(s.ctx, endpoint, s)
}

// dropLink abandons the current link. Its callbacks are ignored from
// here on.
func (s *Session) dropLink() {
	if s.link == nil {
		return
	}
	link := s.link
	s.link = nil
	s.linkOpen = false
	if err := link.Close(); err != nil {
		s.log.Debug("Closing link", logger.Error(err))
	}
}

// reconnectIfSystemChanged moves to another master when the selected
// channel lives on a different system
func (s *Session) reconnectIfSystemChanged() {
	if s.link == nil {
		return
	}
	endpoint, err := s.currentEndpoint()
	if err != nil {
		s.raise(FaultCodeplug)
		return
	}
	if s.link.Endpoint() == endpoint {
		return
	}

	s.log.Info("System changed, reconnecting")
	s.state.Registered = false
	s.state.Affiliated = false
	s.connect()
}

// Outbound requests

func (s *Session) sendRegistration() {
	if s.scanner() {
		return
	}
	s.flashTransmit()
	err := s.send(&protocol.UnitRegistrationRequest{SrcID: protocol.ID(s.id.RID), Site: s.siteRef()})
	if err != nil {
		s.log.Debug("Registration not sent", logger.Error(err))
	}
}

func (s *Session) sendAffiliation() {
	if s.scanner() {
		return
	}
	if s.link == nil || !s.linkOpen {
		return
	}
	s.flashTransmit()
	err := s.send(&protocol.GroupAffiliationRequest{
		SrcID: protocol.ID(s.id.RID),
		DstID: protocol.ID(s.id.Talkgroup),
		Site:  s.siteRef(),
	})
	if err != nil {
		s.log.Error("Affiliation send failed", logger.Error(err))
		s.raise(FaultAffiliation)
	}
}

// scheduleRefusalCheck shows the refusal text if registration has not
// succeeded once the grace delay passes
func (s *Session) scheduleRefusalCheck() {
	if s.refusalPending {
		return
	}
	s.refusalPending = true
	s.after(s.cfg.RegistrationGrace, func() {
		s.refusalPending = false
		if !s.state.Registered && !s.line3Held {
			s.setLine3(TextRegistrationRefused)
		}
	})
}

// clearRefusal removes a refusal left on line 3
func (s *Session) clearRefusal() {
	if s.display.Line3 == TextRegistrationRefused {
		s.restoreLine3()
	}
}

// Reception

// forceRelease ends all voice activity without a message from the
// network
func (s *Session) forceRelease(reason string) {
	wasScan := s.state.ScanActive
	s.state.VoiceGranted = false
	s.state.VoiceRequested = false
	s.state.Transmitting = false
	s.state.Receiving = false
	s.state.ReceivingParked = false
	s.state.ScanActive = false
	s.scanTG = ""
	s.id.Frequency = ""
	s.framer.Flush()
	s.detector.Reset()
	s.player.Clear()
	s.endCall(reason)

	if wasScan {
		s.showHome()
	}
	s.restoreLine3()
	s.setIndicator(IndicatorSignal)
}

// fringe reports whether outbound audio should be degraded
func (s *Session) fringe() bool {
	return s.state.InRange && s.rssi <= s.cfg.FringeLevel
}

func roundVolume(v float64) float64 {
	return math.Round(v*10) / 10
}
