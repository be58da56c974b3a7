package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPacketType_String(t *testing.T) {
	tests := []struct {
		name     string
		pktType  PacketType
		expected string
	}{
		{"audio", PacketTypeAudioData, "AUDIO_DATA"},
		{"grant", PacketTypeGrpVchRsp, "GRP_VCH_RSP"},
		{"status broadcast", PacketTypeStsBcast, "STS_BCAST"},
		{"special function", PacketTypeSpecFunc, "SPEC_FUNC"},
		{"unknown", PacketType(0x7F), "UNKNOWN(0x7F)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pktType.String(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEncode_VoiceChannelRequest(t *testing.T) {
	msg := &VoiceChannelRequest{SrcID: "1001", DstID: "2001"}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Encoded envelope is not JSON: %v", err)
	}
	if string(raw["type"]) != "5" {
		t.Errorf("Expected type 5, got %s", raw["type"])
	}

	var payload map[string]any
	if err := json.Unmarshal(raw["data"], &payload); err != nil {
		t.Fatalf("Payload is not an object: %v", err)
	}
	if payload["SrcId"] != "1001" || payload["DstId"] != "2001" {
		t.Errorf("Unexpected payload: %v", payload)
	}
	if _, ok := raw["rms"]; ok {
		t.Error("Non-audio envelope should omit rms")
	}
}

func TestDecode_GrantWithNumericIDs(t *testing.T) {
	raw := []byte(`{"type":7,"data":{"SrcId":1001,"DstId":"2001","Channel":"851.0125","Status":0}}`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	grant, ok := msg.(*VoiceChannelResponse)
	if !ok {
		t.Fatalf("Expected *VoiceChannelResponse, got %T", msg)
	}
	if grant.SrcID != "1001" {
		t.Errorf("Expected SrcId 1001, got %q", grant.SrcID)
	}
	if grant.DstID != "2001" {
		t.Errorf("Expected DstId 2001, got %q", grant.DstID)
	}
	if grant.Channel != "851.0125" {
		t.Errorf("Expected channel 851.0125, got %q", grant.Channel)
	}
	if grant.Status != StatusSuccess {
		t.Errorf("Expected status 0, got %d", grant.Status)
	}
}

func TestAudioData_RoundTrip(t *testing.T) {
	original := &AudioData{
		VoiceChannel: VoiceChannel{SrcID: "1002", DstID: "2001", Frequency: "851.0125"},
		Site:         &Site{SiteID: "1", Name: "North"},
		Data:         []byte{0x01, 0x00, 0xFF, 0x7F},
		RMS:          12.5,
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	parsed, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	audio, ok := parsed.(*AudioData)
	if !ok {
		t.Fatalf("Expected *AudioData, got %T", parsed)
	}
	if audio.VoiceChannel != original.VoiceChannel {
		t.Errorf("Voice channel mismatch: %+v", audio.VoiceChannel)
	}
	if string(audio.Data) != string(original.Data) {
		t.Errorf("PCM mismatch: %v", audio.Data)
	}
	if audio.RMS != 12.5 {
		t.Errorf("Expected rms 12.5, got %v", audio.RMS)
	}
	if audio.Site == nil || audio.Site.Name != "North" {
		t.Errorf("Site not preserved: %+v", audio.Site)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		unknown bool
	}{
		{"not json", `{type:`, false},
		{"unknown type", `{"type":127,"data":{}}`, true},
		{"missing data", `{"type":7}`, false},
		{"null data", `{"type":7,"data":null}`, false},
		{"bad field type", `{"type":7,"data":{"Status":"zero"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := errors.Is(err, ErrUnknownType); got != tt.unknown {
				t.Errorf("errors.Is(ErrUnknownType) = %v, want %v (%v)", got, tt.unknown, err)
			}
		})
	}
}

func TestDecode_EveryKnownType(t *testing.T) {
	for pktType := range packetNames {
		raw, _ := json.Marshal(Envelope{Type: pktType, Data: json.RawMessage(`{}`)})
		msg, err := Decode(raw)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", pktType, err)
			continue
		}
		if msg.Type() != pktType {
			t.Errorf("%s: decoded as %s", pktType, msg.Type())
		}
	}
}

func TestID(t *testing.T) {
	var id ID
	if !id.Empty() {
		t.Error("zero ID should be empty")
	}
	if id.Int() != -1 {
		t.Errorf("Expected -1 for empty ID, got %d", id.Int())
	}

	fne := ID("16777212")
	if !fne.IsFNE() {
		t.Error("16777212 is the FNE address")
	}
	if ID("1001").IsFNE() {
		t.Error("1001 is not the FNE address")
	}

	if err := json.Unmarshal([]byte(`null`), &id); err != nil || !id.Empty() {
		t.Errorf("null should decode to empty, got %q err=%v", id, err)
	}
	if err := json.Unmarshal([]byte(`" 42 "`), &id); err != nil || id != "42" {
		t.Errorf("quoted ID should be trimmed, got %q err=%v", id, err)
	}
}
