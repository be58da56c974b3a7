//go:build integration
// +build integration

package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/internal/testhelpers"
	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/database"
	"github.com/dbehnke/wlink-terminal/pkg/metrics"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/recorder"
	"github.com/dbehnke/wlink-terminal/pkg/session"
	"github.com/dbehnke/wlink-terminal/pkg/transport"
)

const fastTimers = `timers:
  boot_display: 50ms
  initial_register: 50ms
  registration_grace: 50ms
  ptt_key_delay: 10ms
  ptt_release_delay: 50ms
  grant_confirm: 50ms
audio:
  frame_length: 160
web:
  enabled: false
metrics:
  enabled: false
database:
  enabled: false
`

type terminal struct {
	suite     *testhelpers.IntegrationSuite
	session   *session.Session
	collector *metrics.Collector
}

func startTerminal(t *testing.T, suite *testhelpers.IntegrationSuite, extraSink session.EventSink) *terminal {
	t.Helper()
	cfg := suite.LoadConfig("1001", fastTimers)

	collector := metrics.NewCollector(nil)
	sinks := session.MultiSink{collector}
	if extraSink != nil {
		sinks = append(sinks, extraSink)
	}

	s := session.New(session.NewConfig(cfg), session.Options{
		Connector: transport.WebsocketConnector{Config: transport.DefaultConfig(), Logger: suite.Logger},
		Sink:      sinks,
		Logger:    suite.Logger,
	})
	collector.SetSource(s)
	t.Cleanup(s.Close)

	cp, err := codeplug.Load(cfg.Radio.Codeplug)
	if err != nil {
		t.Fatalf("codeplug: %v", err)
	}
	s.SetCodeplug(cp)
	return &terminal{suite: suite, session: s, collector: collector}
}

func (tm *terminal) waitRegistered(t *testing.T) {
	t.Helper()
	tm.suite.AssertEventually(func() bool {
		st := tm.session.State()
		return st.Registered && st.Affiliated
	}, 5*time.Second, "terminal registered and affiliated")
}

func TestTerminal_BootsAndRegisters(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()
	suite.Master.SetResponder(testhelpers.TrunkingResponder("851.0125"))

	tm := startTerminal(t, suite, nil)
	tm.session.PowerOn()
	tm.waitRegistered(t)

	keys := suite.Master.AuthKeys()
	if len(keys) == 0 || keys[0] != "secret" {
		t.Errorf("Expected the codeplug auth key on connect, got %v", keys)
	}
	if suite.Master.CountOf(protocol.PacketTypeURegReq) == 0 {
		t.Error("Master never saw a registration request")
	}
	if suite.Master.CountOf(protocol.PacketTypeGrpAffReq) == 0 {
		t.Error("Master never saw an affiliation request")
	}

	snap := tm.session.Snapshot()
	if !snap.Connected {
		t.Error("Snapshot should report the link as connected")
	}
	if snap.Zone != "Zone 1" || snap.Channel != "Dispatch" {
		t.Errorf("Expected Zone 1 / Dispatch, got %q / %q", snap.Zone, snap.Channel)
	}
	if tm.collector.GetEvents(session.EventConnection) == 0 {
		t.Error("Collector should have counted the connection event")
	}
}

func TestTerminal_TransmitsAndReleases(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()
	suite.Master.SetResponder(testhelpers.TrunkingResponder("851.0125"))

	tm := startTerminal(t, suite, nil)
	tm.session.PowerOn()
	tm.waitRegistered(t)

	tm.session.PTTPress()
	suite.AssertEventually(func() bool {
		return tm.session.State().Transmitting
	}, 3*time.Second, "terminal transmitting after grant")

	tm.session.CaptureAudio(make([]int16, 160), 0.5)
	if _, ok := suite.Master.Expect(protocol.PacketTypeAudioData, 2*time.Second); !ok {
		t.Fatal("Master never saw an audio frame")
	}

	tm.session.PTTRelease()
	if _, ok := suite.Master.Expect(protocol.PacketTypeGrpVchRls, 2*time.Second); !ok {
		t.Fatal("Master never saw the voice channel release")
	}
	suite.AssertEventually(func() bool {
		st := tm.session.State()
		return !st.Transmitting && !st.VoiceGranted
	}, 2*time.Second, "terminal idle after release")

	if got := tm.collector.GetCalls(session.DirectionTX); got != 1 {
		t.Errorf("Expected one transmit call, got %d", got)
	}
}

func TestTerminal_ReceivedCallIsRecorded(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()
	suite.Master.SetResponder(testhelpers.TrunkingResponder("851.0125"))

	db, err := database.NewDB(database.Config{Path: filepath.Join(suite.Dir, "history.db")}, suite.Logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	calls := database.NewCallRepository(db.GetDB())
	alerts := database.NewAlertRepository(db.GetDB())

	rcfg := recorder.DefaultConfig()
	rcfg.MinDuration = 0
	rcfg.Retention = 0
	rec := recorder.New(calls, alerts, rcfg, suite.Logger)
	ctx, cancel := context.WithCancel(suite.Ctx)
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	tm := startTerminal(t, suite, rec)
	tm.session.PowerOn()
	tm.waitRegistered(t)

	suite.Master.Broadcast(&protocol.VoiceChannelResponse{
		SrcID:   "1002",
		DstID:   "2001",
		Channel: "851.0250",
		Status:  protocol.StatusSuccess,
	})
	suite.AssertEventually(func() bool {
		return tm.session.State().Receiving
	}, 2*time.Second, "terminal receiving the peer call")

	suite.Master.Broadcast(&protocol.VoiceChannelRelease{SrcID: "1002", DstID: "2001", Channel: "851.0250"})
	suite.AssertEventually(func() bool {
		return !tm.session.State().Receiving
	}, 2*time.Second, "peer call released")

	suite.AssertEventually(func() bool {
		return rec.Stats().Saved >= 1
	}, 2*time.Second, "call persisted")
	cancel()
	<-done

	recent, err := calls.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("Expected one call record, got %d", len(recent))
	}
	if recent[0].SrcID != "1002" || recent[0].DstID != "2001" {
		t.Errorf("Unexpected call record %+v", recent[0])
	}
	if recent[0].Direction != string(session.DirectionRX) {
		t.Errorf("Expected rx direction, got %q", recent[0].Direction)
	}
}

func TestTerminal_ReconnectsAfterDrop(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()
	suite.Master.SetResponder(testhelpers.TrunkingResponder("851.0125"))

	tm := startTerminal(t, suite, nil)
	tm.session.PowerOn()
	tm.waitRegistered(t)

	suite.Master.DropConnections()
	suite.AssertEventually(func() bool {
		return !tm.session.Snapshot().Connected
	}, 2*time.Second, "link reported down")

	// the watchdog normally drives this
	tm.session.ReconnectTick()
	suite.AssertEventually(func() bool {
		return suite.Master.Connects() >= 2 && tm.session.Snapshot().Connected
	}, 5*time.Second, "link re-established")
	tm.waitRegistered(t)
}

func TestTerminal_SpecialFunctionInhibit(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()
	suite.Master.SetResponder(testhelpers.TrunkingResponder("851.0125"))

	tm := startTerminal(t, suite, nil)
	tm.session.PowerOn()
	tm.waitRegistered(t)

	suite.Master.Broadcast(&protocol.SpecialFunction{
		SrcID:    "16777212",
		DstID:    "1001",
		Function: protocol.FunctionInhibit,
	})
	suite.AssertEventually(func() bool {
		return tm.session.State().Inhibited
	}, 2*time.Second, "terminal inhibited")

	if _, ok := suite.Master.Expect(protocol.PacketTypeAckRsp, 2*time.Second); !ok {
		t.Error("Master never saw the inhibit acknowledgement")
	}
	if tm.session.State().PoweredOn {
		t.Error("Inhibited terminal should be powered off")
	}
}
