package stp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// BPDU wire constants — IEEE 802.1D Section 9, Cisco PVST+
// -------------------------------------------------------------------------

// BpduType is the BPDU type octet.
type BpduType uint8

// BPDU types. RSTP BPDUs (version 2, type 2) are recognised and accepted
// but processed with classic 802.1D timers.
const (
	ConfigBpduType BpduType = 0x00
	RstpBpduType   BpduType = 0x02
	TcnBpduType    BpduType = 0x80
)

// Protocol version octets.
const (
	StpVersionID  uint8 = 0
	RstpVersionID uint8 = 2
)

// LLC / SNAP constants (IEEE 802.2).
const (
	lsapBridgeSpanningTree uint8 = 0x42
	lsapSnapLLC            uint8 = 0xAA
	llcUnnumberedInfo      uint8 = 0x03

	// snapCiscoPvstID is the SNAP protocol id of PVST+ BPDUs.
	snapCiscoPvstID uint16 = 0x010B
)

// Frame geometry. The classic BPDU payload starts after the 14-byte MAC
// header plus the 3-byte LLC header; the PVST payload after the 8-byte
// SNAP header.
const (
	macHeaderSize  = 14
	llcHeaderSize  = 3
	snapHeaderSize = 8

	// StpBpduOffset is the byte offset of the classic BPDU payload.
	StpBpduOffset = macHeaderSize + llcHeaderSize // 17

	// PvstBpduOffset is the byte offset of the PVST+ BPDU payload.
	PvstBpduOffset = macHeaderSize + snapHeaderSize // 22

	// configPayloadSize is the classic Config BPDU payload length.
	configPayloadSize = 35

	// tcnPayloadSize is the TCN BPDU payload length.
	tcnPayloadSize = 4

	// StpConfigFrameSize is the full classic Config BPDU frame length.
	StpConfigFrameSize = StpBpduOffset + configPayloadSize // 52

	// StpTcnFrameSize is the full classic TCN BPDU frame length
	// (payload plus three pad bytes).
	StpTcnFrameSize = StpBpduOffset + tcnPayloadSize + 3 // 24

	// PvstConfigFrameSize is the full PVST+ Config BPDU frame length:
	// payload, three pad bytes, then the two-byte TLV length and VLAN id.
	PvstConfigFrameSize = PvstBpduOffset + configPayloadSize + 3 + 4 // 64

	// PvstTcnFrameSize is the full PVST+ TCN BPDU frame length.
	PvstTcnFrameSize = PvstBpduOffset + tcnPayloadSize + 38 // 64

	// MaxBpduFrameSize bounds transmit buffers.
	MaxBpduFrameSize = 68
)

// Flag octet bits (IEEE 802.1D Section 9.3.1): topology change is the
// LSB, topology change acknowledgement the MSB.
const (
	flagTopologyChange    uint8 = 0x01
	flagTopologyChangeAck uint8 = 0x80
)

// -------------------------------------------------------------------------
// Codec errors
// -------------------------------------------------------------------------

// Sentinel errors for BPDU validation failures.
var (
	// ErrFrameTooShort indicates the frame cannot hold the claimed BPDU.
	ErrFrameTooShort = errors.New("bpdu frame too short")

	// ErrBadProtocolID indicates a nonzero protocol identifier.
	ErrBadProtocolID = errors.New("bpdu protocol id is not zero")

	// ErrBadVersion indicates a protocol version other than 0 or 2.
	ErrBadVersion = errors.New("unsupported bpdu protocol version")

	// ErrBadBpduType indicates an unknown BPDU type octet.
	ErrBadBpduType = errors.New("unknown bpdu type")

	// ErrBadPvstTlv indicates a PVST+ VLAN TLV with length other than 2.
	ErrBadPvstTlv = errors.New("pvst bpdu tlv length is not 2")

	// ErrBadPvstVlan indicates a PVST+ VLAN id outside [1, 4094].
	ErrBadPvstVlan = errors.New("pvst bpdu vlan id out of range")
)

// -------------------------------------------------------------------------
// ConfigBpdu — host-order view of a Config/TCN BPDU
// -------------------------------------------------------------------------

// ConfigBpdu is a decoded BPDU in host order. After decode, all four time
// fields are whole seconds (the wire carries 1/256 s units; conversion
// shifts by 8). For TCN BPDUs only ProtocolVersion and Type are
// meaningful.
type ConfigBpdu struct {
	// ProtocolVersion is 0 (classic) or 2 (RSTP, accepted but processed
	// with classic timers).
	ProtocolVersion uint8

	// Type is the BPDU type octet.
	Type BpduType

	// TopologyChange is the TC bit of the flags octet.
	TopologyChange bool

	// TopologyChangeAck is the TCA bit of the flags octet.
	TopologyChangeAck bool

	// RootID is the transmitting bridge's idea of the root.
	RootID BridgeID

	// RootPathCost is the transmitting bridge's cost to the root.
	RootPathCost uint32

	// BridgeID identifies the transmitting bridge.
	BridgeID BridgeID

	// PortID identifies the transmitting port.
	PortID PortIDField

	// MessageAge, MaxAge, HelloTime, ForwardDelay are whole seconds.
	MessageAge   uint16
	MaxAge       uint16
	HelloTime    uint16
	ForwardDelay uint16

	// rawMessageAge and rawMaxAge keep the undecoded 1/256 s values for
	// the staleness comparison, which must not lose sub-second precision.
	rawMessageAge uint16
	rawMaxAge     uint16
}

// Stale reports whether the BPDU fails the 802.1D Section 9.3.4 age
// check (message age has reached max age). Never true for TCN BPDUs.
func (b *ConfigBpdu) Stale() bool {
	return b.Type != TcnBpduType && b.rawMessageAge >= b.rawMaxAge
}

// -------------------------------------------------------------------------
// Decode
// -------------------------------------------------------------------------

// decodeBridgeID reads a wire bridge identifier (priority word + MAC).
func decodeBridgeID(buf []byte) BridgeID {
	var id BridgeID
	id.PriorityWord = binary.BigEndian.Uint16(buf[0:2])
	copy(id.Mac[:], buf[2:8])
	return id
}

// encodeBridgeID writes a bridge identifier in wire order.
func encodeBridgeID(buf []byte, id BridgeID) {
	binary.BigEndian.PutUint16(buf[0:2], id.PriorityWord)
	copy(buf[2:8], id.Mac[:])
}

// decodeConfigPayload fills b from the 35-byte Config BPDU payload at
// buf. The caller has verified the length and the type octet.
func decodeConfigPayload(buf []byte, b *ConfigBpdu) {
	flags := buf[4]
	b.TopologyChange = flags&flagTopologyChange != 0
	b.TopologyChangeAck = flags&flagTopologyChangeAck != 0
	b.RootID = decodeBridgeID(buf[5:13])
	b.RootPathCost = binary.BigEndian.Uint32(buf[13:17])
	b.BridgeID = decodeBridgeID(buf[17:25])
	b.PortID = PortIDField(binary.BigEndian.Uint16(buf[25:27]))
	b.rawMessageAge = binary.BigEndian.Uint16(buf[27:29])
	b.rawMaxAge = binary.BigEndian.Uint16(buf[29:31])
	b.MessageAge = b.rawMessageAge >> 8
	b.MaxAge = b.rawMaxAge >> 8
	b.HelloTime = binary.BigEndian.Uint16(buf[31:33]) >> 8
	b.ForwardDelay = binary.BigEndian.Uint16(buf[33:35]) >> 8
}

// decodeAt decodes the BPDU payload beginning at offset off in frame.
func decodeAt(frame []byte, off int, b *ConfigBpdu) error {
	if len(frame) < off+tcnPayloadSize {
		return fmt.Errorf("decode bpdu: %d bytes: %w", len(frame), ErrFrameTooShort)
	}
	payload := frame[off:]

	if binary.BigEndian.Uint16(payload[0:2]) != 0 {
		return fmt.Errorf("decode bpdu: %w", ErrBadProtocolID)
	}

	b.ProtocolVersion = payload[2]
	b.Type = BpduType(payload[3])

	switch b.Type {
	case TcnBpduType:
		return nil
	case ConfigBpduType, RstpBpduType:
		if b.ProtocolVersion != StpVersionID && b.ProtocolVersion != RstpVersionID {
			return fmt.Errorf("decode bpdu: version %d: %w", b.ProtocolVersion, ErrBadVersion)
		}
		if len(payload) < configPayloadSize {
			return fmt.Errorf("decode config bpdu: %d bytes: %w", len(payload), ErrFrameTooShort)
		}
		decodeConfigPayload(payload, b)
		return nil
	default:
		return fmt.Errorf("decode bpdu: type 0x%02x: %w", payload[3], ErrBadBpduType)
	}
}

// DecodeStpBpdu decodes a classic (LLC-encapsulated) BPDU frame into b.
// The frame starts at the destination MAC. Byte-order conversion happens
// here; the protocol engine sees host order only.
func DecodeStpBpdu(frame []byte, b *ConfigBpdu) error {
	return decodeAt(frame, StpBpduOffset, b)
}

// DecodePvstBpdu decodes a PVST+ (SNAP-encapsulated) BPDU frame into b
// and returns the VLAN id carried by the trailing TLV. Config BPDUs with
// a TLV length other than 2 or a VLAN id outside [1, 4094] are rejected.
// A hello time below the protocol minimum is silently repaired to the
// default, matching deployed bridges that emit zero.
func DecodePvstBpdu(frame []byte, b *ConfigBpdu) (VlanID, error) {
	if err := decodeAt(frame, PvstBpduOffset, b); err != nil {
		return 0, err
	}
	if b.Type == TcnBpduType {
		return 0, nil
	}

	if len(frame) < PvstConfigFrameSize {
		return 0, fmt.Errorf("decode pvst bpdu: %d bytes: %w", len(frame), ErrFrameTooShort)
	}
	tagLength := binary.BigEndian.Uint16(frame[PvstConfigFrameSize-4 : PvstConfigFrameSize-2])
	vlan := VlanID(binary.BigEndian.Uint16(frame[PvstConfigFrameSize-2 : PvstConfigFrameSize]))

	if tagLength != 2 {
		return 0, fmt.Errorf("decode pvst bpdu: tag length %d: %w", tagLength, ErrBadPvstTlv)
	}
	if !vlan.Valid() {
		return 0, fmt.Errorf("decode pvst bpdu: vlan %d: %w", vlan, ErrBadPvstVlan)
	}

	if b.HelloTime < uint16(MinHelloTime) {
		b.HelloTime = uint16(DefaultHelloTime)
	}

	return vlan, nil
}

// -------------------------------------------------------------------------
// Encode
// -------------------------------------------------------------------------

// encodeMacHeader writes DA, SA and the 802.3 length field.
func encodeMacHeader(buf []byte, da, sa MacAddr, length uint16) {
	copy(buf[0:6], da[:])
	copy(buf[6:12], sa[:])
	binary.BigEndian.PutUint16(buf[12:14], length)
}

// encodeConfigPayload writes the 35-byte Config BPDU payload.
func encodeConfigPayload(buf []byte, b *ConfigBpdu) {
	binary.BigEndian.PutUint16(buf[0:2], 0) // protocol id
	buf[2] = b.ProtocolVersion
	buf[3] = uint8(b.Type)

	var flags uint8
	if b.TopologyChange {
		flags |= flagTopologyChange
	}
	if b.TopologyChangeAck {
		flags |= flagTopologyChangeAck
	}
	buf[4] = flags

	encodeBridgeID(buf[5:13], b.RootID)
	binary.BigEndian.PutUint32(buf[13:17], b.RootPathCost)
	encodeBridgeID(buf[17:25], b.BridgeID)
	binary.BigEndian.PutUint16(buf[25:27], uint16(b.PortID))
	binary.BigEndian.PutUint16(buf[27:29], b.MessageAge<<8)
	binary.BigEndian.PutUint16(buf[29:31], b.MaxAge<<8)
	binary.BigEndian.PutUint16(buf[31:33], b.HelloTime<<8)
	binary.BigEndian.PutUint16(buf[33:35], b.ForwardDelay<<8)
}

// encodeLLC writes the 3-byte 802.2 LLC header used by classic BPDUs.
func encodeLLC(buf []byte) {
	buf[0] = lsapBridgeSpanningTree
	buf[1] = lsapBridgeSpanningTree
	buf[2] = llcUnnumberedInfo
}

// encodeSNAP writes the 8-byte SNAP header used by PVST+ BPDUs
// (OUI 00:00:0C, protocol id 0x010B).
func encodeSNAP(buf []byte) {
	buf[0] = lsapSnapLLC
	buf[1] = lsapSnapLLC
	buf[2] = llcUnnumberedInfo
	buf[3] = 0x00
	buf[4] = 0x00
	buf[5] = 0x0C
	binary.BigEndian.PutUint16(buf[6:8], snapCiscoPvstID)
}

// EncodeStpConfig serialises a classic Config BPDU frame into buf and
// returns its length. buf must hold StpConfigFrameSize bytes.
func EncodeStpConfig(buf []byte, srcMac MacAddr, b *ConfigBpdu) int {
	encodeMacHeader(buf, BridgeGroupAddress, srcMac, configPayloadSize+llcHeaderSize)
	encodeLLC(buf[macHeaderSize:])
	encodeConfigPayload(buf[StpBpduOffset:], b)
	return StpConfigFrameSize
}

// EncodeStpTcn serialises a classic TCN BPDU frame into buf and returns
// its length. buf must hold StpTcnFrameSize bytes.
func EncodeStpTcn(buf []byte, srcMac MacAddr) int {
	encodeMacHeader(buf, BridgeGroupAddress, srcMac, tcnPayloadSize+llcHeaderSize)
	encodeLLC(buf[macHeaderSize:])
	p := buf[StpBpduOffset:]
	binary.BigEndian.PutUint16(p[0:2], 0)
	p[2] = StpVersionID
	p[3] = uint8(TcnBpduType)
	p[4], p[5], p[6] = 0, 0, 0
	return StpTcnFrameSize
}

// EncodePvstConfig serialises a PVST+ Config BPDU frame into buf and
// returns its length. The trailing TLV carries the VLAN id. buf must
// hold PvstConfigFrameSize bytes.
func EncodePvstConfig(buf []byte, srcMac MacAddr, b *ConfigBpdu, vlan VlanID) int {
	encodeMacHeader(buf, PvstBridgeGroupAddress, srcMac, PvstConfigFrameSize-macHeaderSize)
	encodeSNAP(buf[macHeaderSize:])
	encodeConfigPayload(buf[PvstBpduOffset:], b)

	pad := buf[PvstBpduOffset+configPayloadSize:]
	pad[0], pad[1], pad[2] = 0, 0, 0
	binary.BigEndian.PutUint16(buf[PvstConfigFrameSize-4:PvstConfigFrameSize-2], 2)
	binary.BigEndian.PutUint16(buf[PvstConfigFrameSize-2:PvstConfigFrameSize], uint16(vlan&0x0FFF))
	return PvstConfigFrameSize
}

// EncodePvstTcn serialises a PVST+ TCN BPDU frame into buf and returns
// its length. buf must hold PvstTcnFrameSize bytes.
func EncodePvstTcn(buf []byte, srcMac MacAddr) int {
	encodeMacHeader(buf, PvstBridgeGroupAddress, srcMac, PvstTcnFrameSize-macHeaderSize)
	encodeSNAP(buf[macHeaderSize:])
	p := buf[PvstBpduOffset:]
	binary.BigEndian.PutUint16(p[0:2], 0)
	p[2] = StpVersionID
	p[3] = uint8(TcnBpduType)
	for i := tcnPayloadSize; i < tcnPayloadSize+38; i++ {
		p[i] = 0
	}
	return PvstTcnFrameSize
}

// IsStpDestination reports whether the frame's destination MAC is the
// IEEE bridge group address rather than the PVST+ group address. The
// second byte distinguishes the two (0x80 vs 0x00).
func IsStpDestination(frame []byte) bool {
	return len(frame) >= 2 && frame[1] == 0x80
}
