package session

import (
	"strings"

	"github.com/dbehnke/wlink-terminal/pkg/audio"
	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/tone"
)

// PowerOn boots the radio and connects to the selected channel's system
func (s *Session) PowerOn() {
	s.lock()
	defer s.unlock()
	s.powerOn(false)
}

// PowerOff deregisters and closes the link
func (s *Session) PowerOff() {
	s.lock()
	defer s.unlock()
	s.powerOff(false, "power off")
}

// TogglePower flips the power state
func (s *Session) TogglePower() {
	s.lock()
	defer s.unlock()
	if s.state.PoweredOn {
		s.powerOff(false, "power off")
	} else {
		s.powerOn(false)
	}
}

// SetRID sets the unit's own radio ID
func (s *Session) SetRID(rid string) {
	s.lock()
	defer s.unlock()
	s.id.RID = strings.TrimSpace(rid)
}

// SetCodeplug installs new programming. The scan view and QC2 table are
// rebuilt and a latched fault is cleared. A powered-on radio refreshes
// its display and moves to another master if the channel's system changed.
func (s *Session) SetCodeplug(cp *codeplug.Codeplug) {
	s.lock()
	defer s.unlock()

	s.codeplug = cp
	s.latched = ""
	if cp == nil {
		s.scan = nil
		s.detector.SetTable(nil)
		if s.state.PoweredOn {
			s.raise(FaultCodeplug)
		}
		return
	}

	s.scan = codeplug.NewScanManager(cp)
	pairs := make([]tone.Pair, 0, len(cp.QCList))
	for _, p := range cp.QCList {
		pairs = append(pairs, tone.Pair{A: p.A, B: p.B})
	}
	s.detector.SetTable(pairs)

	if s.cfg.Model == "" && cp.RadioWide.Model != "" {
		s.id.Model = cp.RadioWide.Model
	}
	if _, _, ok := cp.At(s.pos); !ok {
		s.pos = codeplug.Position{}
	}

	if !s.state.PoweredOn {
		return
	}
	if _, _, ok := cp.At(s.pos); !ok {
		s.raise(FaultCodeplug)
		return
	}
	s.updateDisplay()
	s.reconnectIfSystemChanged()
}

// SetModel selects the radio model. A flying vehicle never loses range.
func (s *Session) SetModel(model string, flyingVehicle bool) {
	s.lock()
	defer s.unlock()

	s.id.Model = strings.TrimSpace(model)
	s.cfg.FlyingVehicle = flyingVehicle
	if !IsMobile(s.id.Model) && s.state.PoweredOn {
		s.emit(Event{Kind: EventBattery, Level: s.battery})
	}
}

// SetRSSI reports signal level (0-4), the serving site and the signal
// strength in dBm. Level 0 is out of range. Changing site while
// registered re-affiliates.
func (s *Session) SetRSSI(level int, site *protocol.Site, dbm float64) {
	s.lock()
	defer s.unlock()

	if level < 0 {
		level = 0
	}
	if level > MaxRSSI {
		level = MaxRSSI
	}
	if s.cfg.FlyingVehicle && level == 0 {
		level = 1
	}

	if !s.state.PoweredOn {
		s.rssi = level
		s.rssiDBM = dbm
		if site != nil {
			cp := *site
			s.id.Site = &cp
		}
		return
	}

	siteChanged := false
	if site != nil {
		if s.id.Site != nil && s.id.Site.SiteID != site.SiteID {
			s.log.Info("Changed site",
				logger.String("from", s.id.Site.Name),
				logger.String("to", site.Name))
			siteChanged = true
		}
		cp := *site
		s.id.Site = &cp
	}

	switch {
	case level == 0 && s.state.InRange:
		s.state.InRange = false
		s.line3Held = false
		s.setLine3(TextOutOfRange)
	case level > 0 && !s.state.InRange:
		s.state.InRange = true
		s.restoreLine3()
	}

	if s.state.InRange && site != nil && !s.line3Held {
		switch {
		case site.Failsoft:
			s.setLine3(TextFailsoft)
		case s.display.Line3 == TextFailsoft:
			s.restoreLine3()
		}
	}

	s.rssiDBM = dbm
	if s.rssi == level {
		return
	}

	if siteChanged && s.state.Registered && !s.state.SiteTrunking {
		s.sendAffiliation()
	}

	s.rssi = level
	if s.indicator == IndicatorSignal {
		s.emit(Event{Kind: EventIndicator, Indicator: IndicatorSignal, Level: level})
	}
}

// SetLocation records the unit's position for location broadcasts and
// emergency alarms
func (s *Session) SetLocation(lat, long float64) {
	s.lock()
	defer s.unlock()
	s.lat, s.long = &lat, &long
}

// PTTPress keys up. Guard failures play the reject cue and change nothing.
func (s *Session) PTTPress() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn || s.scanner() {
		return
	}
	if !s.state.InRange {
		s.log.Debug("Not in range, not transmitting")
		s.cue(CueReject)
		return
	}
	// site trunking has no master to ask, so the press is only latched
	if s.state.SiteTrunking {
		if s.state.VoiceGrantHandled || s.state.Receiving {
			return
		}
		s.state.VoiceGrantHandled = true
		s.state.VoiceRequested = true
		s.setIndicator(IndicatorSignal)
		return
	}
	if !s.state.Registered {
		s.log.Debug("Not registered, not transmitting")
		s.cue(CueReject)
		s.sendRegistration()
		return
	}
	if _, ch, ok := s.current(); ok && ch.ReceiveOnly {
		s.log.Debug("Receive only channel, not transmitting")
		s.cue(CueReject)
		return
	}
	if s.state.Receiving {
		s.log.Debug("Receiving, not transmitting")
		s.cue(CueReject)
		return
	}
	if s.state.VoiceGrantHandled {
		s.log.Debug("Key up already handled")
		s.setIndicator(IndicatorSignal)
		s.cue(CueReject)
		return
	}

	s.state.VoiceGrantHandled = true
	s.setIndicator(IndicatorTransmit)
	s.after(s.cfg.PTTKeyDelay, func() {
		if s.state.VoiceRequested || s.state.VoiceGranted {
			return
		}
		err := s.send(&protocol.VoiceChannelRequest{
			SrcID: protocol.ID(s.id.RID),
			DstID: protocol.ID(s.id.Talkgroup),
			Site:  s.siteRef(),
		})
		if err != nil {
			s.log.Debug("Voice request not sent", logger.Error(err))
			return
		}
		s.state.VoiceRequested = true
		s.state.VoiceGranted = false
	})
}

// PTTRelease unkeys after the release delay so trailing audio drains
func (s *Session) PTTRelease() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn || s.scanner() {
		return
	}

	s.after(s.cfg.PTTReleaseDelay, func() {
		s.state.VoiceGrantHandled = false

		if s.state.Transmitting && s.state.Registered {
			err := s.send(&protocol.VoiceChannelRelease{
				SrcID:   protocol.ID(s.id.RID),
				DstID:   protocol.ID(s.id.Talkgroup),
				Channel: protocol.ID(s.id.Frequency),
				Site:    s.siteRef(),
			})
			if err != nil {
				s.log.Debug("Voice release not sent", logger.Error(err))
			}
			s.id.Frequency = ""
			s.state.VoiceGranted = false
			s.endCall("released")
		}

		s.state.Transmitting = false
		s.framer.Flush()
		s.setIndicator(IndicatorSignal)
	})
}

// ChangeChannel steps the channel knob, wrapping within the zone
func (s *Session) ChangeChannel(step int) {
	s.lock()
	defer s.unlock()
	s.navigate(0, step)
}

// ChangeZone steps the zone selector. The channel resets to the first
// channel of the new zone.
func (s *Session) ChangeZone(step int) {
	s.lock()
	defer s.unlock()
	s.navigate(step, 0)
}

func (s *Session) navigate(zoneStep, channelStep int) {
	if !s.state.PoweredOn {
		return
	}
	if s.codeplug == nil || len(s.codeplug.Zones) == 0 {
		s.raise(FaultCodeplug)
		return
	}

	if s.state.Transmitting && s.id.Frequency != "" {
		err := s.send(&protocol.VoiceChannelRelease{
			SrcID:   protocol.ID(s.id.RID),
			DstID:   protocol.ID(s.id.Talkgroup),
			Channel: protocol.ID(s.id.Frequency),
			Site:    s.siteRef(),
		})
		if err != nil {
			s.log.Debug("Voice release not sent", logger.Error(err))
		}
	}

	s.state.Transmitting = false
	s.state.VoiceGranted = false
	s.state.VoiceRequested = false
	s.state.VoiceGrantHandled = false
	s.state.Receiving = false
	s.state.ReceivingParked = false
	s.state.ScanActive = false
	s.state.ScanEnabled = false
	s.scanTG = ""
	s.id.Frequency = ""
	s.endCall("channel change")
	s.framer.Flush()
	s.detector.Reset()
	s.player.Clear()
	if s.line3Held {
		s.restoreLine3()
	}

	oldTG := s.id.Talkgroup
	s.pos = s.codeplug.Wrap(s.pos, zoneStep, channelStep)
	zone, ch, ok := s.current()
	if !ok {
		s.raise(FaultCodeplug)
		return
	}

	s.cue(CueChannelChange)
	if s.codeplug.AnnounceZoneChannelTalkgroups && s.cfg.VoiceAnnounce {
		announce := []string{ch.NameAnnounce}
		if zoneStep != 0 {
			announce = []string{zone.NameAnnounce, ch.NameAnnounce}
		}
		s.emit(Event{Kind: EventAnnounce, Announce: announce})
	}

	if oldTG != "" && !s.scanner() {
		err := s.send(&protocol.GroupAffiliationRemoval{
			SrcID: protocol.ID(s.id.RID),
			DstID: protocol.ID(oldTG),
			Site:  s.siteRef(),
		})
		if err != nil {
			s.log.Debug("Affiliation removal not sent", logger.Error(err))
		}
	}

	s.updateDisplay()
	s.state.Affiliated = false
	if !s.state.SiteTrunking {
		s.sendAffiliation()
	}
	if s.state.PoweredOn {
		s.reconnectIfSystemChanged()
	}
}

// ToggleScan turns scanning on or off. Turning it on affiliates every
// talkgroup in the channel's scan list; a channel without one faults.
func (s *Session) ToggleScan() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn {
		return
	}
	if s.state.ScanEnabled {
		s.state.ScanEnabled = false
		if s.state.ScanActive {
			s.state.ScanActive = false
			s.state.Receiving = false
			s.scanTG = ""
			s.id.Frequency = ""
			s.detector.Reset()
			s.player.Clear()
			s.endCall("scan off")
			s.restoreLine3()
			s.showHome()
			s.setIndicator(IndicatorSignal)
		}
		s.emit(Event{Kind: EventScan, Scan: false})
		return
	}

	zone, ch, ok := s.current()
	if !ok || s.scan == nil {
		s.raise(FaultNoScanList)
		return
	}
	if _, err := s.scan.ScanListFor(zone.Name, ch.Name); err != nil {
		s.log.Warn("Scan unavailable",
			logger.String("zone", zone.Name),
			logger.String("channel", ch.Name),
			logger.Error(err))
		s.raise(FaultNoScanList)
		return
	}

	for _, tg := range s.scan.TalkgroupsFor(zone.Name, ch.Name) {
		err := s.send(&protocol.GroupAffiliationRequest{
			SrcID: protocol.ID(s.id.RID),
			DstID: protocol.ID(tg),
			Site:  s.siteRef(),
		})
		if err != nil {
			s.log.Debug("Scan affiliation not sent",
				logger.String("talkgroup", tg),
				logger.Error(err))
		}
	}
	s.state.ScanEnabled = true
	s.emit(Event{Kind: EventScan, Scan: true})
}

// ActivateEmergency asks the host for a location and sends an emergency
// alarm for the current talkgroup
func (s *Session) ActivateEmergency() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn || !s.state.Registered || !s.state.InRange || s.state.SiteTrunking {
		return
	}

	s.emit(Event{Kind: EventLocationRequest})
	req := &protocol.EmergencyAlarmRequest{
		SrcID: protocol.ID(s.id.RID),
		DstID: protocol.ID(s.id.Talkgroup),
		Site:  s.siteRef(),
	}
	if s.lat != nil && s.long != nil {
		lat, long := *s.lat, *s.long
		req.Lat, req.Long = &lat, &long
	}
	if err := s.send(req); err != nil {
		s.log.Warn("Emergency alarm not sent", logger.Error(err))
	}
	s.cue(CueEmergency)
	s.emit(Event{Kind: EventEmergency, SrcID: s.id.RID, DstID: s.id.Talkgroup, Lat: req.Lat, Long: req.Long})
}

// SetSiteStatus broadcasts a site status change to the master
func (s *Session) SetSiteStatus(site protocol.Site, status int) error {
	s.lock()
	defer s.unlock()

	s.log.Info("Set site status",
		logger.String("site", site.SiteID.String()),
		logger.String("name", site.Name),
		logger.Int("status", status))
	return s.send(&protocol.StatusBroadcast{Site: site, Status: status})
}

// ResetBattery recharges the battery
func (s *Session) ResetBattery() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn {
		return
	}
	s.battery = MaxBattery
	s.emit(Event{Kind: EventBattery, Level: s.battery})
}

// VolumeUp raises playback volume one step
func (s *Session) VolumeUp() {
	s.lock()
	defer s.unlock()
	s.stepVolume(0.1)
}

// VolumeDown lowers playback volume one step
func (s *Session) VolumeDown() {
	s.lock()
	defer s.unlock()
	s.stepVolume(-0.1)
}

func (s *Session) stepVolume(step float64) {
	if !s.state.PoweredOn || s.volumeHeld {
		return
	}
	s.volumeHeld = true
	s.after(s.cfg.VolumeDebounce, func() { s.volumeHeld = false })

	next := roundVolume(s.volume + step)
	if next > 1.0 || next < 0.1 {
		s.cue(CueVolumeLimit)
		return
	}
	s.volume = next
	s.player.SetVolume(s.volume)
	s.cue(CueVolume)
	s.emit(Event{Kind: EventVolume, Volume: s.volume})
}

// CaptureAudio accepts microphone samples and sends a frame to the
// master whenever a full one is buffered. Samples are dropped unless a
// voice channel is granted and keyed.
func (s *Session) CaptureAudio(samples []int16, rms float64) {
	s.lock()
	defer s.unlock()

	if !s.state.Transmitting || s.id.Frequency == "" {
		return
	}
	if s.fringe() {
		samples = s.degrader.Apply(samples)
	}

	frame := s.framer.Push(samples)
	if frame == nil {
		return
	}

	msg := &protocol.AudioData{
		VoiceChannel: protocol.VoiceChannel{
			SrcID:     protocol.ID(s.id.RID),
			DstID:     protocol.ID(s.id.Talkgroup),
			Frequency: protocol.ID(s.id.Frequency),
		},
		Site: s.siteRef(),
		Data: audio.Int16ToBytes(frame),
		RMS:  rms * s.cfg.RMSScale,
	}
	if err := s.send(msg); err != nil {
		s.log.Debug("Audio frame not sent", logger.Error(err))
		return
	}
	s.stats.FramesSent++
	if s.call != nil && s.call.Direction == DirectionTX {
		s.call.Frames++
	}
}

// LatchFault records a host-detected fault. The radio powers off and
// refuses to boot until a new codeplug is installed.
func (s *Session) LatchFault(code string) {
	s.lock()
	defer s.unlock()
	s.latched = code
	s.raise(code)
}
