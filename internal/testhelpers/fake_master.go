package testhelpers

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/gorilla/websocket"
)

// Received is one frame read by the fake master. Msg is nil for raw text
// frames that are not envelopes.
type Received struct {
	Text string
	Msg  protocol.Message
}

// Responder produces replies for an inbound message. Replies are written
// back on the connection that sent it.
type Responder func(msg protocol.Message) []protocol.Message

// FakeMaster is an in-process websocket master for tests
type FakeMaster struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     map[*websocket.Conn]*sync.Mutex
	received  []Received
	authKeys  []string
	responder Responder
	connects  int

	recv chan Received
}

// NewFakeMaster starts a fake master; it is shut down with the test
func NewFakeMaster(t *testing.T) *FakeMaster {
	t.Helper()
	m := &FakeMaster{
		t:     t,
		conns: make(map[*websocket.Conn]*sync.Mutex),
		recv:  make(chan Received, 1024),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/client", m.handle)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

// SetResponder installs automatic replies
func (m *FakeMaster) SetResponder(r Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = r
}

// Address returns the host and port the master listens on
func (m *FakeMaster) Address() (string, int) {
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(m.server.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Endpoint returns the client URI for authKey
func (m *FakeMaster) Endpoint(authKey string) string {
	host, port := m.Address()
	return protocol.Endpoint(host, port, authKey)
}

func (m *FakeMaster) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	writeMu := &sync.Mutex{}
	m.mu.Lock()
	m.conns[conn] = writeMu
	m.authKeys = append(m.authKeys, r.URL.Query().Get("authKey"))
	m.connects++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		rec := Received{Text: string(data)}
		if msg, err := protocol.Decode(data); err == nil {
			rec.Msg = msg
		}

		m.mu.Lock()
		m.received = append(m.received, rec)
		responder := m.responder
		m.mu.Unlock()

		select {
		case m.recv <- rec:
		default:
		}

		if responder == nil || rec.Msg == nil {
			continue
		}
		for _, reply := range responder(rec.Msg) {
			m.write(conn, writeMu, reply)
		}
	}
}

func (m *FakeMaster) write(conn *websocket.Conn, writeMu *sync.Mutex, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		m.t.Errorf("fake master: encode %s: %v", msg.Type(), err)
		return
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// Broadcast writes msg to every connected client
func (m *FakeMaster) Broadcast(msg protocol.Message) {
	m.mu.Lock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(m.conns))
	for c, mu := range m.conns {
		targets[c] = mu
	}
	m.mu.Unlock()

	for c, mu := range targets {
		m.write(c, mu, msg)
	}
}

// BroadcastRaw writes a raw text frame to every connected client
func (m *FakeMaster) BroadcastRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c, mu := range m.conns {
		mu.Lock()
		_ = c.WriteMessage(websocket.TextMessage, data)
		mu.Unlock()
	}
}

// DropConnections closes every client connection abruptly
func (m *FakeMaster) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		_ = c.Close()
	}
}

// Expect waits for the next frame of the given type, discarding others
func (m *FakeMaster) Expect(kind protocol.PacketType, timeout time.Duration) (protocol.Message, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case rec := <-m.recv:
			if rec.Msg != nil && rec.Msg.Type() == kind {
				return rec.Msg, true
			}
		case <-deadline:
			return nil, false
		}
	}
}

// ExpectText waits for the next raw text frame equal to text
func (m *FakeMaster) ExpectText(text string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case rec := <-m.recv:
			if rec.Msg == nil && rec.Text == text {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// Received returns every frame read so far
func (m *FakeMaster) Received() []Received {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Received(nil), m.received...)
}

// CountOf returns how many frames of kind were read
func (m *FakeMaster) CountOf(kind protocol.PacketType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.received {
		if r.Msg != nil && r.Msg.Type() == kind {
			n++
		}
	}
	return n
}

// AuthKeys returns the authKey query value of every accepted connection
func (m *FakeMaster) AuthKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.authKeys...)
}

// ConnectionCount returns the number of open client connections
func (m *FakeMaster) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Connects returns the number of connections accepted so far
func (m *FakeMaster) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Close shuts the master down
func (m *FakeMaster) Close() {
	m.DropConnections()
	m.server.Close()
}

// TrunkingResponder answers registration, affiliation and voice channel
// requests the way a permissive master does. Grants are announced on
// frequency.
func TrunkingResponder(frequency string) Responder {
	return func(msg protocol.Message) []protocol.Message {
		switch req := msg.(type) {
		case *protocol.UnitRegistrationRequest:
			return []protocol.Message{&protocol.UnitRegistrationResponse{SrcID: req.SrcID, Status: protocol.StatusSuccess}}
		case *protocol.GroupAffiliationRequest:
			return []protocol.Message{&protocol.GroupAffiliationResponse{SrcID: req.SrcID, DstID: req.DstID, Status: protocol.StatusSuccess}}
		case *protocol.VoiceChannelRequest:
			return []protocol.Message{&protocol.VoiceChannelResponse{
				SrcID:   req.SrcID,
				DstID:   req.DstID,
				Channel: protocol.ID(frequency),
				Status:  protocol.StatusSuccess,
			}}
		case *protocol.VoiceChannelRelease:
			return []protocol.Message{&protocol.VoiceChannelRelease{SrcID: req.SrcID, DstID: req.DstID, Channel: req.Channel}}
		}
		return nil
	}
}
