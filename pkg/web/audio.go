package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/audio"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/session"
	"github.com/gorilla/websocket"
)

// Control messages sent as text frames on /audio
const (
	AudioControlVolume = "volume"
	AudioControlClear  = "clear"
)

const audioReadLimit = 64 * 1024

// AudioControl is a text frame telling clients how to play the PCM stream
type AudioControl struct {
	Type   string  `json:"type"`
	Volume float64 `json:"volume,omitempty"`
}

// CaptureFunc receives microphone samples from a client
type CaptureFunc func(samples []int16, rms float64)

type audioClient struct {
	id  string
	out chan audioFrame
}

type audioFrame struct {
	kind int
	data []byte
}

// AudioHub carries raw PCM between the terminal and websocket clients.
// Binary frames are little-endian 16-bit mono samples in both
// directions: inbound frames feed the capture path, received voice goes
// out to every client. AudioHub is the session's Player.
type AudioHub struct {
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[*audioClient]bool
	capture CaptureFunc
	volume  float64
	closed  bool

	fed     uint64
	dropped uint64
}

var _ session.Player = (*AudioHub)(nil)

// NewAudioHub creates an audio hub with no clients
func NewAudioHub(log *logger.Logger) *AudioHub {
	if log == nil {
		log = logger.Nop()
	}
	return &AudioHub{
		logger:  log,
		clients: make(map[*audioClient]bool),
		volume:  1,
	}
}

// SetCapture sets where inbound microphone frames go
func (a *AudioHub) SetCapture(fn CaptureFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capture = fn
}

// Feed pushes one received voice frame to every client. It never blocks;
// a client that falls behind loses frames.
func (a *AudioHub) Feed(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	data := append([]byte(nil), pcm...)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fed++
	for c := range a.clients {
		select {
		case c.out <- audioFrame{kind: websocket.BinaryMessage, data: data}:
		default:
			a.dropped++
		}
	}
}

// Clear tells clients to drop whatever they have queued for playback
func (a *AudioHub) Clear() {
	a.control(AudioControl{Type: AudioControlClear})
}

// SetVolume records the playback gain and announces it to clients
func (a *AudioHub) SetVolume(v float64) {
	a.mu.Lock()
	a.volume = v
	a.mu.Unlock()
	a.control(AudioControl{Type: AudioControlVolume, Volume: v})
}

// Volume returns the last gain set
func (a *AudioHub) Volume() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.volume
}

// Stats returns frames fed and frames dropped for slow clients
func (a *AudioHub) Stats() (fed, dropped uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fed, a.dropped
}

// GetClientCount returns the number of connected audio clients
func (a *AudioHub) GetClientCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

func (a *AudioHub) control(msg AudioControl) {
	data, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error("Failed to marshal audio control", logger.Error(err))
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for c := range a.clients {
		select {
		case c.out <- audioFrame{kind: websocket.TextMessage, data: data}:
		default:
		}
	}
}

// add registers c and queues the current volume as its first frame
func (a *AudioHub) add(c *audioClient) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if greeting, err := json.Marshal(AudioControl{Type: AudioControlVolume, Volume: a.volume}); err == nil {
		c.out <- audioFrame{kind: websocket.TextMessage, data: greeting}
	}
	a.clients[c] = true
	return true
}

func (a *AudioHub) remove(c *audioClient) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clients[c] {
		delete(a.clients, c)
		close(c.out)
	}
}

// Close disconnects every client and refuses new ones
func (a *AudioHub) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for c := range a.clients {
		delete(a.clients, c)
		close(c.out)
	}
}

// Handler returns the /audio websocket handler
func (a *AudioHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.logger.Debug("Audio upgrade failed", logger.Error(err))
			return
		}
		c := &audioClient{id: r.RemoteAddr, out: make(chan audioFrame, clientBuffer)}
		if !a.add(c) {
			_ = conn.Close()
			return
		}
		a.logger.Debug("Audio client connected", logger.String("client_id", c.id))

		go a.writePump(conn, c)
		a.readPump(conn, c)
	})
}

// readPump hands binary frames to the capture path until the client goes
func (a *AudioHub) readPump(conn *websocket.Conn, c *audioClient) {
	defer func() {
		a.remove(c)
		_ = conn.Close()
		a.logger.Debug("Audio client disconnected", logger.String("client_id", c.id))
	}()
	conn.SetReadLimit(audioReadLimit)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage || len(data) < 2 {
			continue
		}
		a.mu.RLock()
		capture := a.capture
		a.mu.RUnlock()
		if capture == nil {
			continue
		}
		samples := audio.BytesToInt16(data[:len(data)&^1])
		capture(samples, audio.RMS(samples))
	}
}

func (a *AudioHub) writePump(conn *websocket.Conn, c *audioClient) {
	for f := range c.out {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(f.kind, f.data); err != nil {
			_ = conn.Close()
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
}
