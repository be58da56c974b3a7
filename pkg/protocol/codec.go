package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned by Decode for discriminators outside the
// known set
var ErrUnknownType = errors.New("unknown packet type")

// Envelope is the wire record: {"type": n, "rms": x, "data": {...}}
type Envelope struct {
	Type PacketType      `json:"type"`
	RMS  float64         `json:"rms,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a message into its envelope
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("nil message")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msg.Type(), err)
	}

	env := Envelope{Type: msg.Type(), Data: data}
	if audio, ok := msg.(*AudioData); ok {
		env.RMS = audio.RMS
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", msg.Type(), err)
	}
	return out, nil
}

// Decode parses an envelope and its typed payload
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	msg := newMessage(env.Type)
	if msg == nil {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, int(env.Type))
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%s: missing data", env.Type)
	}
	if err := json.Unmarshal(env.Data, msg); err != nil {
		return nil, fmt.Errorf("%s: invalid payload: %w", env.Type, err)
	}

	if audio, ok := msg.(*AudioData); ok {
		audio.RMS = env.RMS
	}
	return msg, nil
}

func newMessage(t PacketType) Message {
	switch t {
	case PacketTypeAudioData:
		return &AudioData{}
	case PacketTypeURegReq:
		return &UnitRegistrationRequest{}
	case PacketTypeURegRsp:
		return &UnitRegistrationResponse{}
	case PacketTypeUDeRegReq:
		return &UnitDeregistrationRequest{}
	case PacketTypeUDeRegRsp:
		return &UnitDeregistrationResponse{}
	case PacketTypeGrpAffReq:
		return &GroupAffiliationRequest{}
	case PacketTypeGrpAffRsp:
		return &GroupAffiliationResponse{}
	case PacketTypeGrpAffRmv:
		return &GroupAffiliationRemoval{}
	case PacketTypeGrpVchReq:
		return &VoiceChannelRequest{}
	case PacketTypeGrpVchRsp:
		return &VoiceChannelResponse{}
	case PacketTypeGrpVchRls:
		return &VoiceChannelRelease{}
	case PacketTypeGrpVchUpd:
		return &VoiceChannelUpdate{}
	case PacketTypeEmrgAlrmReq:
		return &EmergencyAlarmRequest{}
	case PacketTypeEmrgAlrmRsp:
		return &EmergencyAlarmResponse{}
	case PacketTypeCallAlrt:
		return &CallAlert{}
	case PacketTypeAckRsp:
		return &AckResponse{}
	case PacketTypeLocBcast:
		return &LocationBroadcast{}
	case PacketTypeStsBcast:
		return &StatusBroadcast{}
	case PacketTypeSpecFunc:
		return &SpecialFunction{}
	case PacketTypeRelDemand:
		return &ReleaseDemand{}
	default:
		return nil
	}
}
