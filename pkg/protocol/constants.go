package protocol

import "fmt"

// PacketType is the integer discriminator carried in every envelope
type PacketType int

// Packet types understood by the terminal
const (
	PacketTypeUnknown     PacketType = 0x00
	PacketTypeAudioData   PacketType = 0x01 // AUDIO_DATA
	PacketTypeGrpAffReq   PacketType = 0x02 // GRP_AFF_REQ
	PacketTypeGrpAffRsp   PacketType = 0x03 // GRP_AFF_RSP
	PacketTypeGrpVchReq   PacketType = 0x05 // GRP_VCH_REQ
	PacketTypeGrpVchRls   PacketType = 0x06 // GRP_VCH_RLS
	PacketTypeGrpVchRsp   PacketType = 0x07 // GRP_VCH_RSP
	PacketTypeURegReq     PacketType = 0x08 // U_REG_REQ
	PacketTypeURegRsp     PacketType = 0x09 // U_REG_RSP
	PacketTypeUDeRegReq   PacketType = 0x10 // U_DE_REG_REQ
	PacketTypeUDeRegRsp   PacketType = 0x11 // U_DE_REG_RSP
	PacketTypeEmrgAlrmReq PacketType = 0x12 // EMRG_ALRM_REQ
	PacketTypeEmrgAlrmRsp PacketType = 0x13 // EMRG_ALRM_RSP
	PacketTypeCallAlrt    PacketType = 0x14 // CALL_ALRT
	PacketTypeGrpAffRmv   PacketType = 0x16 // GRP_AFF_RMV
	PacketTypeAckRsp      PacketType = 0x17 // ACK_RSP
	PacketTypeGrpVchUpd   PacketType = 0x18 // GRP_VCH_UPD
	PacketTypeLocBcast    PacketType = 0x19 // LOC_BCAST
	PacketTypeStsBcast    PacketType = 0x21 // STS_BCAST
	PacketTypeSpecFunc    PacketType = 0x22 // SPEC_FUNC
	PacketTypeRelDemand   PacketType = 0x23 // REL_DEMAND
)

var packetNames = map[PacketType]string{
	PacketTypeAudioData:   "AUDIO_DATA",
	PacketTypeGrpAffReq:   "GRP_AFF_REQ",
	PacketTypeGrpAffRsp:   "GRP_AFF_RSP",
	PacketTypeGrpVchReq:   "GRP_VCH_REQ",
	PacketTypeGrpVchRls:   "GRP_VCH_RLS",
	PacketTypeGrpVchRsp:   "GRP_VCH_RSP",
	PacketTypeURegReq:     "U_REG_REQ",
	PacketTypeURegRsp:     "U_REG_RSP",
	PacketTypeUDeRegReq:   "U_DE_REG_REQ",
	PacketTypeUDeRegRsp:   "U_DE_REG_RSP",
	PacketTypeEmrgAlrmReq: "EMRG_ALRM_REQ",
	PacketTypeEmrgAlrmRsp: "EMRG_ALRM_RSP",
	PacketTypeCallAlrt:    "CALL_ALRT",
	PacketTypeGrpAffRmv:   "GRP_AFF_RMV",
	PacketTypeAckRsp:      "ACK_RSP",
	PacketTypeGrpVchUpd:   "GRP_VCH_UPD",
	PacketTypeLocBcast:    "LOC_BCAST",
	PacketTypeStsBcast:    "STS_BCAST",
	PacketTypeSpecFunc:    "SPEC_FUNC",
	PacketTypeRelDemand:   "REL_DEMAND",
}

// String returns the protocol mnemonic for the packet type
func (t PacketType) String() string {
	if name, ok := packetNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", int(t))
}

// FNEID is the network controller's unit address. Inhibit, uninhibit and
// release demands are only honored from this source.
const FNEID = 0xFFFFFC

// Result codes carried in response payloads
const (
	StatusSuccess = 0
)

// Special function codes (SPEC_FUNC.Function)
const (
	FunctionInhibit   = 0x01
	FunctionUninhibit = 0x02
)

// ConventionalPeerEnable is the text frame a scanner sends right after
// connecting so the master skips affiliation checks for it.
const ConventionalPeerEnable = "CONVENTIONAL_PEER_ENABLE"
