package netio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seregega/sonic-stp/internal/stp"
)

// Transport errors.
var (
	// ErrFrameTooShort indicates a frame shorter than minFrameLen.
	ErrFrameTooShort = errors.New("frame too short")

	// ErrNotBpdu indicates a frame not addressed to either bridge
	// group address.
	ErrNotBpdu = errors.New("not a bpdu group address")

	// ErrPortNotOpen indicates a send on a port without a socket.
	ErrPortNotOpen = errors.New("port not open")
)

// etherTypeVlan is the 802.1Q TPID.
const etherTypeVlan = 0x8100

// minFrameLen is the smallest frame the classifier accepts: MAC header
// plus one payload byte.
const minFrameLen = 15

// RxMeta describes a received BPDU frame after tag handling.
type RxMeta struct {
	// Vlan is the 802.1Q VLAN id, or 0 for untagged frames.
	Vlan stp.VlanID

	// Tagged reports whether the frame carried a VLAN tag.
	Tagged bool
}

// ClassifyFrame checks the destination group address and strips an
// 802.1Q tag if present, returning the untagged frame and its metadata.
// The returned slice aliases buf.
//
// gopacket's Dot1Q layer is used for the tag so that QinQ or
// priority-tagged frames decode the same way the capture tooling sees
// them.
func ClassifyFrame(buf []byte) ([]byte, RxMeta, error) {
	if len(buf) < minFrameLen {
		return nil, RxMeta{}, fmt.Errorf("%d bytes: %w", len(buf), ErrFrameTooShort)
	}

	var da [6]byte
	copy(da[:], buf[0:6])
	if da != stp.BridgeGroupAddress && da != stp.PvstBridgeGroupAddress {
		return nil, RxMeta{}, ErrNotBpdu
	}

	if binary.BigEndian.Uint16(buf[12:14]) != etherTypeVlan {
		return buf, RxMeta{}, nil
	}

	// Tagged frame: decode the Dot1Q shim, then splice it out so the
	// codec sees the classic layout.
	var dot1q layers.Dot1Q
	if err := dot1q.DecodeFromBytes(buf[14:], gopacket.NilDecodeFeedback); err != nil {
		return nil, RxMeta{}, fmt.Errorf("decode 802.1q: %w", err)
	}

	stripped := append(buf[:12], buf[16:]...)
	return stripped, RxMeta{Vlan: stp.VlanID(dot1q.VLANIdentifier), Tagged: true}, nil
}

// InsertVlanTag inserts an 802.1Q tag for vlan after the source MAC,
// returning a new frame.
func InsertVlanTag(frame []byte, vlan stp.VlanID) []byte {
	out := make([]byte, 0, len(frame)+4)
	out = append(out, frame[:12]...)

	var shim [4]byte
	binary.BigEndian.PutUint16(shim[0:2], etherTypeVlan)
	binary.BigEndian.PutUint16(shim[2:4], uint16(vlan)&0x0FFF)
	out = append(out, shim[:]...)

	return append(out, frame[12:]...)
}
