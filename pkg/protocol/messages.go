package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ID is a unit, talkgroup, site or channel address. Masters are not
// consistent about quoting these, so both JSON strings and numbers decode.
type ID string

// UnmarshalJSON accepts a string, a number or null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the address as text
func (id ID) String() string { return string(id) }

// Empty reports whether the address is unset
func (id ID) Empty() bool { return id == "" }

// Int parses the address as a decimal integer. Non-numeric addresses
// return -1.
func (id ID) Int() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// IsFNE reports whether the address is the network controller
func (id ID) IsFNE() bool {
	return id.Int() == FNEID
}

// Site describes the site the unit is currently attached to
type Site struct {
	SiteID   ID     `json:"siteID"`
	Name     string `json:"name"`
	Failsoft bool   `json:"failsoft,omitempty"`
}

// VoiceChannel identifies an active voice call
type VoiceChannel struct {
	SrcID     ID `json:"SrcId"`
	DstID     ID `json:"DstId"`
	Frequency ID `json:"Frequency"`
}

// Message is implemented by every payload type. The set is closed: only
// types in this package implement it.
type Message interface {
	Type() PacketType
	isMessage()
}

// AudioData carries one frame of little-endian 16-bit PCM. Data is
// base64 encoded on the wire.
type AudioData struct {
	VoiceChannel VoiceChannel `json:"VoiceChannel"`
	Site         *Site        `json:"Site,omitempty"`
	Data         []byte       `json:"Data"`
	RMS          float64      `json:"-"`
}

// UnitRegistrationRequest is U_REG_REQ
type UnitRegistrationRequest struct {
	SrcID ID    `json:"SrcId"`
	Site  *Site `json:"Site,omitempty"`
}

// UnitRegistrationResponse is U_REG_RSP
type UnitRegistrationResponse struct {
	SrcID  ID  `json:"SrcId"`
	Status int `json:"Status"`
}

// UnitDeregistrationRequest is U_DE_REG_REQ
type UnitDeregistrationRequest struct {
	SrcID ID    `json:"SrcId"`
	Site  *Site `json:"Site,omitempty"`
}

// UnitDeregistrationResponse is U_DE_REG_RSP
type UnitDeregistrationResponse struct {
	SrcID  ID  `json:"SrcId"`
	Status int `json:"Status"`
}

// GroupAffiliationRequest is GRP_AFF_REQ
type GroupAffiliationRequest struct {
	SrcID ID    `json:"SrcId"`
	DstID ID    `json:"DstId"`
	Site  *Site `json:"Site,omitempty"`
}

// GroupAffiliationResponse is GRP_AFF_RSP
type GroupAffiliationResponse struct {
	SrcID  ID  `json:"SrcId"`
	DstID  ID  `json:"DstId"`
	Status int `json:"Status"`
}

// GroupAffiliationRemoval is GRP_AFF_RMV
type GroupAffiliationRemoval struct {
	SrcID ID    `json:"SrcId"`
	DstID ID    `json:"DstId"`
	Site  *Site `json:"Site,omitempty"`
}

// VoiceChannelRequest is GRP_VCH_REQ
type VoiceChannelRequest struct {
	SrcID ID    `json:"SrcId"`
	DstID ID    `json:"DstId"`
	Site  *Site `json:"Site,omitempty"`
}

// VoiceChannelResponse is GRP_VCH_RSP
type VoiceChannelResponse struct {
	SrcID   ID  `json:"SrcId"`
	DstID   ID  `json:"DstId"`
	Channel ID  `json:"Channel"`
	Status  int `json:"Status"`
}

// VoiceChannelRelease is GRP_VCH_RLS
type VoiceChannelRelease struct {
	SrcID   ID    `json:"SrcId"`
	DstID   ID    `json:"DstId"`
	Channel ID    `json:"Channel"`
	Site    *Site `json:"Site,omitempty"`
}

// VoiceChannelUpdate is GRP_VCH_UPD, broadcast for late entry into a
// call already in progress
type VoiceChannelUpdate struct {
	VoiceChannel VoiceChannel `json:"VoiceChannel"`
	Site         *Site        `json:"Site,omitempty"`
}

// EmergencyAlarmRequest is EMRG_ALRM_REQ
type EmergencyAlarmRequest struct {
	SrcID ID       `json:"SrcId"`
	DstID ID       `json:"DstId"`
	Site  *Site    `json:"Site,omitempty"`
	Lat   *float64 `json:"Lat,omitempty"`
	Long  *float64 `json:"Long,omitempty"`
}

// EmergencyAlarmResponse is EMRG_ALRM_RSP
type EmergencyAlarmResponse struct {
	SrcID ID `json:"SrcId"`
	DstID ID `json:"DstId"`
}

// CallAlert is CALL_ALRT, a page addressed to one unit
type CallAlert struct {
	SrcID ID `json:"SrcId"`
	DstID ID `json:"DstId"`
}

// AckResponse is ACK_RSP
type AckResponse struct {
	SrcID    ID         `json:"SrcId"`
	DstID    ID         `json:"DstId"`
	Service  PacketType `json:"Service"`
	Extended int        `json:"Extended,omitempty"`
}

// LocationBroadcast is LOC_BCAST
type LocationBroadcast struct {
	SrcID ID      `json:"SrcId"`
	Lat   float64 `json:"Lat"`
	Long  float64 `json:"Long"`
	Site  *Site   `json:"Site,omitempty"`
}

// StatusBroadcast is STS_BCAST, a site status change
type StatusBroadcast struct {
	Site   Site `json:"Site"`
	Status int  `json:"Status"`
}

// SpecialFunction is SPEC_FUNC (inhibit / uninhibit)
type SpecialFunction struct {
	SrcID    ID  `json:"SrcId"`
	DstID    ID  `json:"DstId"`
	Function int `json:"Function"`
}

// ReleaseDemand is REL_DEMAND, a forced transmit release from the FNE
type ReleaseDemand struct {
	SrcID ID `json:"SrcId"`
	DstID ID `json:"DstId"`
}

func (*AudioData) Type() PacketType                  { return PacketTypeAudioData }
func (*UnitRegistrationRequest) Type() PacketType    { return PacketTypeURegReq }
func (*UnitRegistrationResponse) Type() PacketType   { return PacketTypeURegRsp }
func (*UnitDeregistrationRequest) Type() PacketType  { return PacketTypeUDeRegReq }
func (*UnitDeregistrationResponse) Type() PacketType { return PacketTypeUDeRegRsp }
func (*GroupAffiliationRequest) Type() PacketType    { return PacketTypeGrpAffReq }
func (*GroupAffiliationResponse) Type() PacketType   { return PacketTypeGrpAffRsp }
func (*GroupAffiliationRemoval) Type() PacketType    { return PacketTypeGrpAffRmv }
func (*VoiceChannelRequest) Type() PacketType        { return PacketTypeGrpVchReq }
func (*VoiceChannelResponse) Type() PacketType       { return PacketTypeGrpVchRsp }
func (*VoiceChannelRelease) Type() PacketType        { return PacketTypeGrpVchRls }
func (*VoiceChannelUpdate) Type() PacketType         { return PacketTypeGrpVchUpd }
func (*EmergencyAlarmRequest) Type() PacketType      { return PacketTypeEmrgAlrmReq }
func (*EmergencyAlarmResponse) Type() PacketType     { return PacketTypeEmrgAlrmRsp }
func (*CallAlert) Type() PacketType                  { return PacketTypeCallAlrt }
func (*AckResponse) Type() PacketType                { return PacketTypeAckRsp }
func (*LocationBroadcast) Type() PacketType          { return PacketTypeLocBcast }
func (*StatusBroadcast) Type() PacketType            { return PacketTypeStsBcast }
func (*SpecialFunction) Type() PacketType            { return PacketTypeSpecFunc }
func (*ReleaseDemand) Type() PacketType              { return PacketTypeRelDemand }

func (*AudioData) isMessage()                  {}
func (*UnitRegistrationRequest) isMessage()    {}
func (*UnitRegistrationResponse) isMessage()   {}
func (*UnitDeregistrationRequest) isMessage()  {}
func (*UnitDeregistrationResponse) isMessage() {}
func (*GroupAffiliationRequest) isMessage()    {}
func (*GroupAffiliationResponse) isMessage()   {}
func (*GroupAffiliationRemoval) isMessage()    {}
func (*VoiceChannelRequest) isMessage()        {}
func (*VoiceChannelResponse) isMessage()       {}
func (*VoiceChannelRelease) isMessage()        {}
func (*VoiceChannelUpdate) isMessage()         {}
func (*EmergencyAlarmRequest) isMessage()      {}
func (*EmergencyAlarmResponse) isMessage()     {}
func (*CallAlert) isMessage()                  {}
func (*AckResponse) isMessage()                {}
func (*LocationBroadcast) isMessage()          {}
func (*StatusBroadcast) isMessage()            {}
func (*SpecialFunction) isMessage()            {}
func (*ReleaseDemand) isMessage()              {}
