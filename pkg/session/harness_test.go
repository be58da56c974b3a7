package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/clock"
	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/transport"
	"github.com/stretchr/testify/require"
)

const testCodeplug = `
radioWide:
  model: APX6000
systems:
  - name: North
    address: 10.0.0.1
    port: 3000
    authKey: secret
  - name: South
    address: 10.0.0.2
    port: 3001
zones:
  - name: Zone 1
    channels:
      - name: Dispatch
        system: North
        tgid: 2001
        scanList: Ops
      - name: Tac 1
        system: North
        tgid: 2002
      - name: Weather
        system: South
        tgid: 2003
        isReceiveOnly: true
  - name: Zone 2
    channels:
      - name: Fire
        system: North
        tgid: 3001
scanLists:
  - name: Ops
    channels:
      - zone: Zone 1
        channel: Tac 1
      - zone: Zone 2
        channel: Fire
qcList:
  - a: 1000
    b: 2000
`

const (
	testRID = "1001"
	peerRID = "1002"
	homeTG  = "2001"
	fneID   = "16777212"
)

var errSendFailed = errors.New("send failed")

type fakeLink struct {
	mu       sync.Mutex
	endpoint string
	sent     []protocol.Message
	texts    []string
	closed   bool
	failSend bool
}

func (l *fakeLink) Send(msg protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSend {
		return errSendFailed
	}
	if l.closed {
		return transport.ErrClosed
	}
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLink) SendText(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.texts = append(l.texts, text)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) Endpoint() string { return l.endpoint }

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// ofType returns sent messages of one packet type
func (l *fakeLink) ofType(t protocol.PacketType) []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []protocol.Message
	for _, m := range l.sent {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

func (l *fakeLink) count(t protocol.PacketType) int {
	return len(l.ofType(t))
}

func (l *fakeLink) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = nil
}

// fakeConnector hands out fakeLinks and never calls back on its own
type fakeConnector struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (c *fakeConnector) Connect(_ context.Context, endpoint string, _ transport.Handler) transport.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := &fakeLink{endpoint: endpoint}
	c.links = append(c.links, l)
	return l
}

func (c *fakeConnector) latest() *fakeLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.links) == 0 {
		return nil
	}
	return c.links[len(c.links)-1]
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) ofKind(k EventKind) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func (e *eventLog) cues() []Cue {
	var out []Cue
	for _, ev := range e.ofKind(EventCue) {
		out = append(out, ev.Cue)
	}
	return out
}

func (e *eventLog) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

type fakePlayer struct {
	mu     sync.Mutex
	fed    int
	clears int
	volume float64
}

func (p *fakePlayer) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fed += len(data)
}

func (p *fakePlayer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
}

func (p *fakePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

type mapAliases map[string]string

func (m mapAliases) Resolve(rid string) (string, bool) {
	a, ok := m[rid]
	return a, ok
}

type harness struct {
	t      *testing.T
	clk    *clock.FakeClock
	conn   *fakeConnector
	events *eventLog
	player *fakePlayer
	cfg    Config
	s      *Session
}

func newHarness(t *testing.T, opts ...func(*Config, *Options)) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		clk:    clock.Fake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		conn:   &fakeConnector{},
		events: &eventLog{},
		player: &fakePlayer{},
	}
	cfg := DefaultConfig()
	cfg.RID = testRID
	cfg.FrameLength = 160
	cfg.FringeSeed = 7
	o := Options{
		Clock:     h.clk,
		Connector: h.conn,
		Sink:      h.events,
		Player:    h.player,
	}
	for _, fn := range opts {
		fn(&cfg, &o)
	}
	h.cfg = cfg
	h.s = New(cfg, o)

	cp, err := codeplug.Parse([]byte(testCodeplug))
	require.NoError(t, err)
	h.s.SetCodeplug(cp)
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) link() *fakeLink {
	h.t.Helper()
	l := h.conn.latest()
	require.NotNil(h.t, l, "no link was created")
	return l
}

func (h *harness) deliver(msg protocol.Message) {
	h.s.OnMessage(h.link(), msg)
}

// connect powers on and opens the link without registering
func (h *harness) connect() {
	h.t.Helper()
	h.s.PowerOn()
	h.clk.Advance(2 * h.cfg.BootDisplay)
	h.s.OnOpen(h.link())
}

// register answers the first registration and affiliation on an open link
func (h *harness) register() {
	h.t.Helper()
	h.clk.Advance(h.cfg.InitialRegister)
	h.deliver(&protocol.UnitRegistrationResponse{SrcID: testRID, Status: protocol.StatusSuccess})
	h.clk.Advance(h.cfg.RegistrationGrace)
	h.deliver(&protocol.GroupAffiliationResponse{SrcID: testRID, DstID: homeTG, Status: protocol.StatusSuccess})
}

// boot powers on, registers and affiliates on the home talkgroup
func (h *harness) boot() {
	h.t.Helper()
	h.connect()
	h.register()
	require.Equal(h.t, 1, h.link().count(protocol.PacketTypeURegReq))
	require.Equal(h.t, 1, h.link().count(protocol.PacketTypeGrpAffReq))

	st := h.s.State()
	require.True(h.t, st.Registered)
	require.True(h.t, st.Affiliated)
	require.NoError(h.t, st.Validate())
}

// key presses PTT and delivers the resulting grant
func (h *harness) key(channel string) {
	h.t.Helper()
	h.s.PTTPress()
	h.clk.Advance(h.cfg.PTTKeyDelay)
	require.Equal(h.t, 1, h.link().count(protocol.PacketTypeGrpVchReq))
	h.deliver(&protocol.VoiceChannelResponse{
		SrcID:   testRID,
		DstID:   homeTG,
		Channel: protocol.ID(channel),
		Status:  protocol.StatusSuccess,
	})
}

func (h *harness) peerGrant(src, dst, channel string) {
	h.deliver(&protocol.VoiceChannelResponse{
		SrcID:   protocol.ID(src),
		DstID:   protocol.ID(dst),
		Channel: protocol.ID(channel),
		Status:  protocol.StatusSuccess,
	})
}
