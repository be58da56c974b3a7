package session

import (
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/tone"
	"github.com/dbehnke/wlink-terminal/pkg/transport"
)

var _ transport.Handler = (*Session)(nil)

// OnOpen leaves site trunking and schedules the first registration.
// Callbacks from a link the session no longer holds are ignored.
func (s *Session) OnOpen(link transport.Link) {
	s.lock()
	defer s.unlock()

	if link != s.link {
		return
	}
	s.linkOpen = true
	s.log.Info("Link to master established")
	s.emit(Event{Kind: EventConnection, Connected: true})

	if s.scanner() {
		if err := link.SendText(protocol.ConventionalPeerEnable); err != nil {
			s.log.Warn("Conventional peer announcement failed", logger.Error(err))
		} else {
			s.log.Info("Connected as conventional peer, affiliation restrictions ignored")
		}
	}

	s.state.SiteTrunking = false
	if s.display.Line3 == TextSiteTrunking {
		s.restoreLine3()
	}
	s.state.VoiceGranted = false
	s.state.VoiceRequested = false
	s.state.VoiceGrantHandled = false
	s.state.Transmitting = false
	s.player.Clear()

	if s.scanner() || !s.state.PoweredOn || !s.state.InRange || s.state.Inhibited {
		return
	}

	s.after(s.cfg.InitialRegister, func() {
		if link != s.link || !s.linkOpen {
			return
		}
		s.sendRegistration()
		s.refusalPending = true
		s.after(s.cfg.RegistrationGrace, func() {
			s.refusalPending = false
			if link != s.link {
				return
			}
			if s.state.Registered {
				s.sendAffiliation()
			} else if !s.line3Held {
				s.setLine3(TextRegistrationRefused)
			}
		})
	})
}

// OnClose enters site trunking. Registration, affiliation and all voice
// activity are void until the watchdog reconnects.
func (s *Session) OnClose(link transport.Link, err error) {
	s.lock()
	defer s.unlock()

	if link != s.link {
		return
	}
	s.link = nil
	s.linkOpen = false
	s.stats.Disconnects++
	if err != nil {
		s.log.Warn("Link to master lost", logger.Error(err))
	} else {
		s.log.Info("Link to master closed")
	}
	s.emit(Event{Kind: EventConnection, Connected: false})

	wasScan := s.state.ScanActive
	s.endCall("link lost")
	s.state.SiteTrunking = true
	s.state.Registered = false
	s.state.Affiliated = false
	s.state.VoiceGranted = false
	s.state.VoiceRequested = false
	s.state.VoiceGrantHandled = false
	s.state.Receiving = false
	s.state.ReceivingParked = false
	s.state.ScanActive = false
	s.state.Transmitting = false
	s.scanTG = ""
	s.id.Frequency = ""
	s.framer.Flush()
	s.detector.Reset()
	s.player.Clear()

	if !s.state.PoweredOn {
		return
	}
	if wasScan {
		s.showHome()
	}
	s.setIndicator(IndicatorSignal)
	s.line3Held = false
	if s.state.InRange {
		s.setLine3(TextSiteTrunking)
	}
}

// OnMessage applies one inbound message. Out of range or powered off,
// only site status and special function commands are processed.
func (s *Session) OnMessage(link transport.Link, msg protocol.Message) {
	s.lock()
	defer s.unlock()

	if link != s.link || !s.linkOpen {
		return
	}
	s.stats.MessagesIn[msg.Type().String()]++

	kind := msg.Type()
	if (!s.state.InRange || !s.state.PoweredOn) &&
		kind != protocol.PacketTypeStsBcast && kind != protocol.PacketTypeSpecFunc {
		s.stats.DroppedMessages++
		return
	}

	switch m := msg.(type) {
	case *protocol.GroupAffiliationResponse:
		s.handleAffiliation(m)
	case *protocol.UnitRegistrationResponse:
		s.handleRegistration(m)
	case *protocol.UnitDeregistrationResponse:
		s.log.Debug("Deregistration acknowledged", logger.Int("status", m.Status))
	case *protocol.AudioData:
		s.handleAudio(m)
	case *protocol.VoiceChannelResponse:
		s.handleGrant(m)
	case *protocol.VoiceChannelRelease:
		s.handleRelease(m)
	case *protocol.VoiceChannelUpdate:
		s.handleUpdate(m)
	case *protocol.EmergencyAlarmResponse:
		s.handleEmergency(m)
	case *protocol.CallAlert:
		s.handleCallAlert(m)
	case *protocol.StatusBroadcast:
		site := m.Site
		s.emit(Event{Kind: EventSiteStatus, Site: &site, Status: m.Status})
	case *protocol.SpecialFunction:
		s.handleSpecialFunction(m)
	case *protocol.ReleaseDemand:
		s.handleReleaseDemand(m)
	default:
		s.stats.DroppedMessages++
		s.log.Debug("Ignoring message", logger.String("type", kind.String()))
	}
}

func (s *Session) own(id protocol.ID) bool {
	return id.String() == s.id.RID
}

func (s *Session) home(id protocol.ID) bool {
	return id.String() == s.id.Talkgroup
}

func (s *Session) handleAffiliation(m *protocol.GroupAffiliationResponse) {
	if !s.own(m.SrcID) || !s.home(m.DstID) {
		return
	}
	s.state.Affiliated = m.Status == protocol.StatusSuccess
	if s.state.Affiliated {
		s.log.Info("Affiliation accepted", logger.String("talkgroup", s.id.Talkgroup))
	} else {
		s.log.Warn("Affiliation refused",
			logger.String("talkgroup", s.id.Talkgroup),
			logger.Int("status", m.Status))
	}
}

func (s *Session) handleRegistration(m *protocol.UnitRegistrationResponse) {
	if !s.own(m.SrcID) {
		return
	}
	s.state.Registered = m.Status == protocol.StatusSuccess
	if s.state.Registered {
		s.log.Info("Registration accepted")
		s.clearRefusal()
		return
	}
	s.log.Warn("Registration refused", logger.Int("status", m.Status))
	s.state.Affiliated = false
	if !s.line3Held {
		s.setLine3(TextRegistrationRefused)
	}
}

func (s *Session) handleAudio(m *protocol.AudioData) {
	if s.id.Frequency == "" {
		return
	}
	vc := m.VoiceChannel
	forUs := !s.own(vc.SrcID) &&
		(s.home(vc.DstID) || (s.state.ScanEnabled && s.scanned(vc.DstID.String()))) &&
		vc.Frequency.String() == s.id.Frequency
	if !forUs {
		s.log.Debug("Ignoring audio, not for us",
			logger.String("src", vc.SrcID.String()),
			logger.String("dst", vc.DstID.String()))
		return
	}

	now := s.clock.Now()
	s.lastAudio = now
	s.stats.FramesReceived++
	if s.call != nil && s.call.Direction == DirectionRX {
		s.call.Frames++
	}
	if len(m.Data) == 0 {
		s.log.Debug("Received empty audio payload")
		return
	}

	s.player.Feed(m.Data)
	if match, hit := s.detector.Process(m.Data, now); hit {
		s.page(match)
	}
}

func (s *Session) handleGrant(m *protocol.VoiceChannelResponse) {
	src, dst := m.SrcID.String(), m.DstID.String()
	success := m.Status == protocol.StatusSuccess

	switch {
	case !s.own(m.SrcID) && s.home(m.DstID) && success && !s.state.ScanActive:
		if s.state.VoiceGranted {
			s.log.Debug("Holding a voice grant, ignoring peer grant", logger.String("src", src))
			return
		}
		s.id.Frequency = m.Channel.String()
		s.state.Receiving = true
		s.state.ReceivingParked = true
		s.state.Transmitting = false
		s.lastAudio = s.clock.Now()
		text, _ := s.idText(src)
		s.holdLine3(text)
		s.setIndicator(IndicatorReceive)
		s.startCall(DirectionRX, src, dst, false)

	case !s.own(m.SrcID) && success && !s.state.ReceivingParked && s.state.ScanEnabled && s.scanned(dst):
		if s.state.Receiving || s.state.VoiceGranted {
			return
		}
		zone, ch, _ := s.current()
		zoneLabel, chLabel, ok := s.scan.Lookup(zone.Name, ch.Name, dst)
		if !ok {
			return
		}
		s.scanTG = dst
		s.id.Frequency = m.Channel.String()
		s.state.ScanActive = true
		s.state.ReceivingParked = false
		s.state.Receiving = true
		s.state.Transmitting = false
		s.lastAudio = s.clock.Now()
		s.setLines(zoneLabel, chLabel)
		text, _ := s.idText(src)
		s.holdLine3(text)
		s.setIndicator(IndicatorReceive)
		s.startCall(DirectionRX, src, dst, true)

	case s.own(m.SrcID) && s.home(m.DstID) && success:
		// a grant that arrives after the key was released stays idle
		// until confirmGrant hands it back
		s.id.Frequency = m.Channel.String()
		s.state.Transmitting = s.state.VoiceGrantHandled
		s.state.VoiceGranted = true
		s.state.VoiceRequested = false
		wasScan := s.state.ScanActive
		s.state.Receiving = false
		s.state.ReceivingParked = false
		s.state.ScanActive = false
		s.scanTG = ""
		if wasScan {
			s.showHome()
		}
		if s.line3Held {
			s.restoreLine3()
		}
		s.setIndicator(IndicatorSignal)
		s.startCall(DirectionTX, src, dst, false)
		s.after(s.cfg.GrantConfirm, s.confirmGrant)

	case s.own(m.SrcID) && s.home(m.DstID):
		s.log.Info("Voice request denied", logger.Int("status", m.Status))
		s.state.VoiceRequested = false
		s.cue(CueReject)
	}
}

// confirmGrant runs after the confirmation window. A grant we are no
// longer keyed for is stale and handed back.
func (s *Session) confirmGrant() {
	if !s.state.VoiceGranted {
		return
	}
	if s.state.Transmitting {
		s.cue(CueTalkPermit)
		s.setIndicator(IndicatorTransmit)
		return
	}

	s.log.Info("Grant not used within confirmation window, releasing")
	s.stats.StaleGrants++
	s.state.VoiceGranted = false
	if s.id.Frequency != "" {
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
	}
	s.endCall("stale grant")
	s.setIndicator(IndicatorSignal)
	s.cue(CueReject)
}

func (s *Session) handleRelease(m *protocol.VoiceChannelRelease) {
	dst := m.DstID.String()

	switch {
	case !s.own(m.SrcID) && s.home(m.DstID) && !s.state.ScanActive:
		if !s.state.Receiving && !s.state.ReceivingParked {
			return
		}
		s.state.Receiving = false
		s.state.ReceivingParked = false
		s.id.Frequency = ""
		s.detector.Reset()
		s.player.Clear()
		s.endCall("released")
		s.restoreLine3()
		s.setIndicator(IndicatorSignal)

	case !s.own(m.SrcID) && !s.state.ReceivingParked && s.state.ScanEnabled && dst == s.scanTG && s.scanned(dst):
		s.state.ScanActive = false
		s.state.Receiving = false
		s.scanTG = ""
		s.id.Frequency = ""
		s.detector.Reset()
		s.player.Clear()
		s.endCall("released")
		s.restoreLine3()
		s.showHome()
		s.setIndicator(IndicatorSignal)

	case s.own(m.SrcID) && s.home(m.DstID):
		s.state.VoiceGranted = false
		s.state.VoiceRequested = false
		s.state.Transmitting = false
		s.framer.Flush()
		s.player.Clear()
		s.endCall("released")
		s.setIndicator(IndicatorSignal)
	}
}

// handleUpdate joins a call already in progress on the home talkgroup
func (s *Session) handleUpdate(m *protocol.VoiceChannelUpdate) {
	vc := m.VoiceChannel
	if vc.SrcID.Empty() || s.own(vc.SrcID) || !s.home(vc.DstID) {
		return
	}
	st := s.state
	if !st.Affiliated || !st.Registered || !st.InRange ||
		st.Receiving || st.Transmitting || st.VoiceGranted || st.ScanActive {
		return
	}

	src := vc.SrcID.String()
	s.id.Frequency = vc.Frequency.String()
	s.state.Receiving = true
	s.state.ReceivingParked = true
	s.state.Transmitting = false
	s.lastAudio = s.clock.Now()
	text, _ := s.idText(src)
	s.holdLine3(text)
	s.setIndicator(IndicatorReceive)
	s.startCall(DirectionRX, src, vc.DstID.String(), false)
}

func (s *Session) handleEmergency(m *protocol.EmergencyAlarmResponse) {
	if s.own(m.SrcID) || !s.home(m.DstID) {
		return
	}
	src := m.SrcID.String()
	s.stats.Emergencies++
	s.log.Warn("Emergency alarm", logger.String("src", src), logger.String("talkgroup", s.id.Talkgroup))

	_, alias := s.idText(src)
	s.cue(CueEmergency)
	s.holdLine3("EM: " + src)
	s.emit(Event{Kind: EventEmergency, SrcID: src, DstID: m.DstID.String(), Alias: alias})

	shown := s.display.Line3
	s.after(s.cfg.EmergencyDisplay, func() {
		if s.display.Line3 == shown {
			s.restoreLine3()
		}
	})
}

func (s *Session) handleCallAlert(m *protocol.CallAlert) {
	if s.own(m.SrcID) || !s.own(m.DstID) {
		return
	}
	src := m.SrcID.String()
	s.stats.CallAlerts++
	s.log.Info("Call alert", logger.String("src", src))

	s.holdLine3("Page: " + src)
	// the master expects the acknowledgement twice
	for i := 0; i < 2; i++ {
		err := s.send(&protocol.AckResponse{
			SrcID:   protocol.ID(s.id.RID),
			DstID:   m.SrcID,
			Service: protocol.PacketTypeCallAlrt,
		})
		if err != nil {
			s.log.Debug("Call alert ack not sent", logger.Error(err))
		}
	}
	_, alias := s.idText(src)
	s.cue(CuePage)
	s.emit(Event{Kind: EventCallAlert, SrcID: src, DstID: s.id.RID, Alias: alias})

	shown := s.display.Line3
	s.after(s.cfg.PageDisplay, func() {
		if s.display.Line3 == shown {
			s.line3Held = false
			s.setLine3("")
		}
	})
}

func (s *Session) handleSpecialFunction(m *protocol.SpecialFunction) {
	if !s.own(m.DstID) || !m.SrcID.IsFNE() {
		return
	}

	switch m.Function {
	case protocol.FunctionInhibit:
		s.log.Warn("Unit inhibited")
		s.ack(protocol.PacketTypeSpecFunc, m.SrcID, protocol.FunctionInhibit)
		s.state.Inhibited = true
		s.emit(Event{Kind: EventInhibit, Status: protocol.FunctionInhibit})
		s.powerOff(true, "inhibited")
	case protocol.FunctionUninhibit:
		s.log.Info("Unit uninhibited")
		s.ack(protocol.PacketTypeSpecFunc, m.SrcID, protocol.FunctionUninhibit)
		s.state.Inhibited = false
		s.emit(Event{Kind: EventInhibit, Status: protocol.FunctionUninhibit})
		s.powerOn(true)
	}
}

func (s *Session) ack(service protocol.PacketType, to protocol.ID, extended int) {
	err := s.send(&protocol.AckResponse{
		SrcID:    protocol.ID(s.id.RID),
		DstID:    to,
		Service:  service,
		Extended: extended,
	})
	if err != nil {
		s.log.Debug("Ack not sent",
			logger.String("service", service.String()),
			logger.Error(err))
	}
}

func (s *Session) handleReleaseDemand(m *protocol.ReleaseDemand) {
	if !s.own(m.DstID) || !m.SrcID.IsFNE() {
		return
	}
	s.log.Info("Release demanded by network")
	s.state.VoiceGranted = false
	s.state.VoiceRequested = false
	s.state.Transmitting = false
	s.framer.Flush()
	s.player.Clear()
	if s.call != nil && s.call.Direction == DirectionTX {
		s.endCall("release demand")
	}
	s.setIndicator(IndicatorSignal)
}

// page reports a matched QC2 two-tone page
func (s *Session) page(m tone.Match) {
	s.stats.Pages++
	s.cue(CueQC2)
	match := m
	s.emit(Event{Kind: EventPage, Page: &match, DstID: s.id.Talkgroup})
}
