package web

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/internal/testhelpers"
	"github.com/dbehnke/wlink-terminal/pkg/audio"
	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/session"
	"github.com/dbehnke/wlink-terminal/pkg/transport"
	"github.com/gorilla/websocket"
)

func dialAudio(t *testing.T, url string, hub *AudioHub) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/audio", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Audio client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readControl(t *testing.T, conn *websocket.Conn) AudioControl {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("Expected a text control frame, got type %d", kind)
	}
	var msg AudioControl
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Bad control JSON: %v", err)
	}
	return msg
}

func TestAudioHub_PlaybackReachesClient(t *testing.T) {
	hub := NewAudioHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Close()

	conn := dialAudio(t, srv.URL, hub)
	if msg := readControl(t, conn); msg.Type != AudioControlVolume || msg.Volume != 1 {
		t.Errorf("Expected the volume greeting, got %+v", msg)
	}

	frame := audio.Int16ToBytes([]int16{1, -2, 3, -4})
	hub.Feed(frame)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if kind != websocket.BinaryMessage || !bytes.Equal(data, frame) {
		t.Errorf("Expected the fed PCM frame, got type %d % x", kind, data)
	}

	hub.SetVolume(0.4)
	if msg := readControl(t, conn); msg.Type != AudioControlVolume || msg.Volume != 0.4 {
		t.Errorf("Expected volume 0.4, got %+v", msg)
	}
	hub.Clear()
	if msg := readControl(t, conn); msg.Type != AudioControlClear {
		t.Errorf("Expected clear, got %+v", msg)
	}

	fed, dropped := hub.Stats()
	if fed != 1 || dropped != 0 {
		t.Errorf("Expected 1 fed and 0 dropped, got %d and %d", fed, dropped)
	}
}

func TestAudioHub_InboundFramesCaptured(t *testing.T) {
	hub := NewAudioHub(nil)
	got := make(chan []int16, 4)
	hub.SetCapture(func(samples []int16, rms float64) {
		if rms <= 0 {
			t.Errorf("Expected a positive RMS, got %f", rms)
		}
		got <- samples
	})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Close()

	conn := dialAudio(t, srv.URL, hub)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// the odd trailing byte is not a whole sample
	data := append(audio.Int16ToBytes([]int16{1000, -1000, 500}), 0x7f)
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case samples := <-got:
		if len(samples) != 3 || samples[0] != 1000 || samples[1] != -1000 || samples[2] != 500 {
			t.Errorf("Unexpected samples %v", samples)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Capture was never called")
	}
	select {
	case extra := <-got:
		t.Errorf("Text frames must not be captured, got %v", extra)
	default:
	}
}

func TestAudioHub_CloseDropsClients(t *testing.T) {
	hub := NewAudioHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dialAudio(t, srv.URL, hub)
	hub.Close()
	if hub.GetClientCount() != 0 {
		t.Error("Close should drop every client")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("Expected a going-away close, got %v", err)
			}
			break
		}
	}

	late, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/audio", nil)
	if err == nil {
		defer late.Close()
		_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := late.ReadMessage(); err == nil {
			t.Error("A closed hub should not serve new clients")
		}
	}
	if hub.GetClientCount() != 0 {
		t.Error("A closed hub should not register new clients")
	}
}

const audioTimers = `timers:
  boot_display: 50ms
  initial_register: 50ms
  registration_grace: 50ms
  ptt_key_delay: 10ms
  ptt_release_delay: 50ms
  grant_confirm: 50ms
audio:
  frame_length: 160
`

// A keyed radio turns PCM written to /audio into AUDIO_DATA on the master
// link, and received voice comes back out the same socket.
func TestServer_AudioRoundTrip(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()
	suite.Master.SetResponder(testhelpers.TrunkingResponder("851.0125"))

	cfg := suite.LoadConfig("1001", audioTimers)
	speaker := NewAudioHub(suite.Logger)
	radio := session.New(session.NewConfig(cfg), session.Options{
		Connector: transport.WebsocketConnector{Config: transport.DefaultConfig(), Logger: suite.Logger},
		Player:    speaker,
		Logger:    suite.Logger,
	})
	defer radio.Close()
	cp, err := codeplug.Load(cfg.Radio.Codeplug)
	if err != nil {
		t.Fatalf("codeplug: %v", err)
	}
	radio.SetCodeplug(cp)

	server := NewServer(config.WebConfig{Enabled: true}, Options{Radio: radio, Audio: speaker}, suite.Logger)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()
	defer speaker.Close()

	conn := dialAudio(t, srv.URL, speaker)
	readControl(t, conn)

	radio.PowerOn()
	suite.AssertEventually(func() bool {
		st := radio.State()
		return st.Registered && st.Affiliated
	}, 5*time.Second, "terminal registered and affiliated")

	radio.PTTPress()
	suite.AssertEventually(func() bool {
		return radio.State().Transmitting
	}, 3*time.Second, "terminal transmitting after grant")

	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = int16(i * 40)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, audio.Int16ToBytes(samples)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	msg, ok := suite.Master.Expect(protocol.PacketTypeAudioData, 2*time.Second)
	if !ok {
		t.Fatal("Master never saw an audio frame")
	}
	sent := msg.(*protocol.AudioData)
	if sent.VoiceChannel.SrcID != "1001" || sent.VoiceChannel.Frequency != "851.0125" {
		t.Errorf("Unexpected voice channel %+v", sent.VoiceChannel)
	}
	if !bytes.Equal(sent.Data, audio.Int16ToBytes(samples)) {
		t.Error("Master should receive the captured samples unchanged")
	}

	radio.PTTRelease()
	suite.AssertEventually(func() bool {
		st := radio.State()
		return !st.Transmitting && !st.VoiceGranted
	}, 2*time.Second, "terminal idle after release")

	suite.Master.Broadcast(&protocol.VoiceChannelResponse{
		SrcID:   "1002",
		DstID:   "2001",
		Channel: "851.0250",
		Status:  protocol.StatusSuccess,
	})
	suite.AssertEventually(func() bool {
		return radio.State().Receiving
	}, 2*time.Second, "terminal receiving the peer call")

	voice := audio.Int16ToBytes(samples[:80])
	suite.Master.Broadcast(&protocol.AudioData{
		VoiceChannel: protocol.VoiceChannel{SrcID: "1002", DstID: "2001", Frequency: "851.0250"},
		Data:         voice,
	})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Received voice never reached the audio socket: %v", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if !bytes.Equal(data, voice) {
			t.Errorf("Expected the received frame, got %d bytes", len(data))
		}
		break
	}
}
