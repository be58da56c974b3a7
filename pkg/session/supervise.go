package session

import (
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/watchdog"
)

var _ watchdog.Target = (*Session)(nil)

// ReconnectTick dials again while powered on in site trunking
func (s *Session) ReconnectTick() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn || s.state.Inhibited {
		return
	}
	// only a lost link is retried; the boot sequence makes the first dial
	if !s.state.SiteTrunking {
		return
	}
	s.log.Debug("Reconnecting to master")
	s.connect()
}

// RegistrationTick re-sends registration until it is accepted and shows
// the refusal text if it is still missing after the grace delay
func (s *Session) RegistrationTick() {
	s.lock()
	defer s.unlock()

	if !s.linkOpen || !s.state.InRange || !s.state.PoweredOn || s.scanner() {
		return
	}
	if s.state.Registered {
		s.clearRefusal()
		return
	}
	s.sendRegistration()
	s.scheduleRefusalCheck()
}

// AffiliationTick re-sends affiliation while registered but unaffiliated
func (s *Session) AffiliationTick() {
	s.lock()
	defer s.unlock()

	if !s.linkOpen || !s.state.InRange || !s.state.PoweredOn {
		return
	}
	if s.state.Registered && !s.state.Affiliated {
		s.sendAffiliation()
	}
}

// AudioTick forces a release when a call has gone silent for longer than
// the audio timeout
func (s *Session) AudioTick() {
	s.lock()
	defer s.unlock()

	if !s.state.ReceivingParked && !s.state.ScanActive {
		return
	}
	silent := s.clock.Now().Sub(s.lastAudio)
	if silent <= s.cfg.AudioTimeout {
		return
	}

	s.log.Warn("No audio received, forcing release",
		logger.Duration("silent", silent),
		logger.Bool("scan", s.state.ScanActive))
	s.stats.ForcedReleases++
	s.forceRelease("audio timeout")
}

// ToneFlushTick closes a long tone that is still being measured
func (s *Session) ToneFlushTick() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn {
		return
	}
	if match, hit := s.detector.Flush(s.clock.Now()); hit {
		s.page(match)
	}
}

// LocationTick asks the host for a position and broadcasts the last
// known one
func (s *Session) LocationTick() {
	s.lock()
	defer s.unlock()

	if !s.linkOpen || !s.state.InRange || !s.state.PoweredOn || !s.state.Registered {
		return
	}
	s.emit(Event{Kind: EventLocationRequest})
	if s.lat == nil || s.long == nil {
		return
	}
	err := s.send(&protocol.LocationBroadcast{
		SrcID: protocol.ID(s.id.RID),
		Lat:   *s.lat,
		Long:  *s.long,
		Site:  s.siteRef(),
	})
	if err != nil {
		s.log.Debug("Location broadcast not sent", logger.Error(err))
	}
}

// BatteryTick drains a portable radio's battery one step. An empty
// battery powers the radio off.
func (s *Session) BatteryTick() {
	s.lock()
	defer s.unlock()

	if !s.state.PoweredOn || IsMobile(s.id.Model) {
		return
	}
	if s.battery > 0 {
		s.battery--
		s.emit(Event{Kind: EventBattery, Level: s.battery})
		return
	}
	s.log.Info("Battery exhausted")
	s.powerOff(false, "battery")
}
