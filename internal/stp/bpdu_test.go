package stp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSrcMac = MacAddr{0x00, 0x98, 0x19, 0x2C, 0xE1, 0xFC}

	testConfigBpdu = ConfigBpdu{
		ProtocolVersion: StpVersionID,
		Type:            ConfigBpduType,
		TopologyChange:  true,
		RootID:          MakeBridgeID(8192, 10, MacAddr{0xAA, 0x00, 0x00, 0x00, 0x00, 0x02}),
		RootPathCost:    20000,
		BridgeID:        MakeBridgeID(32768, 10, MacAddr{0xAA, 0x00, 0x00, 0x00, 0x00, 0x01}),
		PortID:          MakePortIDField(128, 3),
		MessageAge:      1,
		MaxAge:          20,
		HelloTime:       2,
		ForwardDelay:    15,
	}
)

func TestEncodeStpConfigGolden(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpConfig(buf, testSrcMac, &testConfigBpdu)
	require.Equal(t, StpConfigFrameSize, n)

	want := []byte{
		// DA: IEEE bridge group address.
		0x01, 0x80, 0xC2, 0x00, 0x00, 0x00,
		// SA.
		0x00, 0x98, 0x19, 0x2C, 0xE1, 0xFC,
		// 802.3 length: LLC(3) + payload(35).
		0x00, 0x26,
		// LLC: DSAP, SSAP, UI.
		0x42, 0x42, 0x03,
		// Protocol id, version, type.
		0x00, 0x00, 0x00, 0x00,
		// Flags: TC only.
		0x01,
		// Root id: 0x200a + MAC.
		0x20, 0x0A, 0xAA, 0x00, 0x00, 0x00, 0x00, 0x02,
		// Root path cost.
		0x00, 0x00, 0x4E, 0x20,
		// Bridge id: 0x800a + MAC.
		0x80, 0x0A, 0xAA, 0x00, 0x00, 0x00, 0x00, 0x01,
		// Port id: priority 128 -> 0x8, number 3.
		0x80, 0x03,
		// Times in 1/256 s: 1, 20, 2, 15 seconds.
		0x01, 0x00, 0x14, 0x00, 0x02, 0x00, 0x0F, 0x00,
	}
	assert.Equal(t, want, buf[:n])
}

func TestEncodeStpTcnGolden(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpTcn(buf, testSrcMac)
	require.Equal(t, StpTcnFrameSize, n)

	want := []byte{
		0x01, 0x80, 0xC2, 0x00, 0x00, 0x00,
		0x00, 0x98, 0x19, 0x2C, 0xE1, 0xFC,
		0x00, 0x07,
		0x42, 0x42, 0x03,
		0x00, 0x00, 0x00, 0x80,
		0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, buf[:n])
}

func TestEncodePvstConfigGolden(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodePvstConfig(buf, testSrcMac, &testConfigBpdu, 10)
	require.Equal(t, PvstConfigFrameSize, n)

	// Headers.
	assert.Equal(t, []byte{0x01, 0x00, 0x0C, 0xCC, 0xCC, 0xCD}, buf[0:6], "PVST group address")
	assert.Equal(t, []byte{0x00, 0x32}, buf[12:14], "802.3 length 50")
	assert.Equal(t, []byte{0xAA, 0xAA, 0x03, 0x00, 0x00, 0x0C, 0x01, 0x0B}, buf[14:22], "SNAP header")

	// Payload matches the classic encoding.
	classic := make([]byte, MaxBpduFrameSize)
	EncodeStpConfig(classic, testSrcMac, &testConfigBpdu)
	assert.Equal(t, classic[StpBpduOffset:StpBpduOffset+35], buf[PvstBpduOffset:PvstBpduOffset+35])

	// Padding, TLV length, VLAN id.
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, buf[57:60])
	assert.Equal(t, []byte{0x00, 0x02}, buf[60:62])
	assert.Equal(t, []byte{0x00, 0x0A}, buf[62:64])
}

func TestEncodePvstTcnGolden(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodePvstTcn(buf, testSrcMac)
	require.Equal(t, PvstTcnFrameSize, n)

	assert.Equal(t, []byte{0x01, 0x00, 0x0C, 0xCC, 0xCC, 0xCD}, buf[0:6])
	assert.Equal(t, []byte{0x00, 0x32}, buf[12:14])
	assert.Equal(t, []byte{0xAA, 0xAA, 0x03, 0x00, 0x00, 0x0C, 0x01, 0x0B}, buf[14:22])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x80}, buf[22:26])
	for i := 26; i < 64; i++ {
		assert.Zero(t, buf[i], "pad byte %d", i)
	}
}

func TestStpConfigRoundTrip(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpConfig(buf, testSrcMac, &testConfigBpdu)

	var got ConfigBpdu
	require.NoError(t, DecodeStpBpdu(buf[:n], &got))

	assert.Equal(t, testConfigBpdu.ProtocolVersion, got.ProtocolVersion)
	assert.Equal(t, testConfigBpdu.Type, got.Type)
	assert.Equal(t, testConfigBpdu.TopologyChange, got.TopologyChange)
	assert.Equal(t, testConfigBpdu.TopologyChangeAck, got.TopologyChangeAck)
	assert.Equal(t, testConfigBpdu.RootID, got.RootID)
	assert.Equal(t, testConfigBpdu.RootPathCost, got.RootPathCost)
	assert.Equal(t, testConfigBpdu.BridgeID, got.BridgeID)
	assert.Equal(t, testConfigBpdu.PortID, got.PortID)
	assert.Equal(t, testConfigBpdu.MessageAge, got.MessageAge)
	assert.Equal(t, testConfigBpdu.MaxAge, got.MaxAge)
	assert.Equal(t, testConfigBpdu.HelloTime, got.HelloTime)
	assert.Equal(t, testConfigBpdu.ForwardDelay, got.ForwardDelay)
	assert.False(t, got.Stale())
}

func TestPvstConfigRoundTrip(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodePvstConfig(buf, testSrcMac, &testConfigBpdu, 4094)

	var got ConfigBpdu
	vlan, err := DecodePvstBpdu(buf[:n], &got)
	require.NoError(t, err)
	assert.Equal(t, VlanID(4094), vlan)
	assert.Equal(t, testConfigBpdu.RootID, got.RootID)
	assert.Equal(t, testConfigBpdu.HelloTime, got.HelloTime)
}

func TestDecodeTcn(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpTcn(buf, testSrcMac)

	var got ConfigBpdu
	require.NoError(t, DecodeStpBpdu(buf[:n], &got))
	assert.Equal(t, TcnBpduType, got.Type)
	assert.False(t, got.Stale(), "TCN BPDUs are never stale")
}

func TestDecodeRstpVersionAccepted(t *testing.T) {
	b := testConfigBpdu
	b.ProtocolVersion = RstpVersionID
	b.Type = RstpBpduType

	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpConfig(buf, testSrcMac, &b)

	var got ConfigBpdu
	require.NoError(t, DecodeStpBpdu(buf[:n], &got))
	assert.Equal(t, RstpVersionID, got.ProtocolVersion)
	assert.Equal(t, RstpBpduType, got.Type)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpConfig(buf, testSrcMac, &testConfigBpdu)

	var got ConfigBpdu

	// Truncated.
	assert.ErrorIs(t, DecodeStpBpdu(buf[:StpBpduOffset+2], &got), ErrFrameTooShort)

	// Nonzero protocol id.
	bad := make([]byte, n)
	copy(bad, buf[:n])
	bad[StpBpduOffset] = 0xFF
	assert.ErrorIs(t, DecodeStpBpdu(bad, &got), ErrBadProtocolID)

	// Unknown type.
	copy(bad, buf[:n])
	bad[StpBpduOffset+3] = 0x42
	assert.ErrorIs(t, DecodeStpBpdu(bad, &got), ErrBadBpduType)

	// Unsupported version.
	copy(bad, buf[:n])
	bad[StpBpduOffset+2] = 3
	assert.ErrorIs(t, DecodeStpBpdu(bad, &got), ErrBadVersion)
}

func TestDecodePvstRejectsBadTlv(t *testing.T) {
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodePvstConfig(buf, testSrcMac, &testConfigBpdu, 10)

	var got ConfigBpdu

	// TLV length != 2.
	bad := make([]byte, n)
	copy(bad, buf[:n])
	bad[PvstConfigFrameSize-3] = 4
	_, err := DecodePvstBpdu(bad, &got)
	assert.ErrorIs(t, err, ErrBadPvstTlv)

	// VLAN id out of range.
	copy(bad, buf[:n])
	bad[PvstConfigFrameSize-2] = 0x0F
	bad[PvstConfigFrameSize-1] = 0xFF // 4095
	_, err = DecodePvstBpdu(bad, &got)
	assert.ErrorIs(t, err, ErrBadPvstVlan)

	copy(bad, buf[:n])
	bad[PvstConfigFrameSize-2] = 0
	bad[PvstConfigFrameSize-1] = 0
	_, err = DecodePvstBpdu(bad, &got)
	assert.ErrorIs(t, err, ErrBadPvstVlan)
}

func TestDecodePvstRepairsHelloTime(t *testing.T) {
	b := testConfigBpdu
	b.HelloTime = 0

	buf := make([]byte, MaxBpduFrameSize)
	n := EncodePvstConfig(buf, testSrcMac, &b, 10)

	var got ConfigBpdu
	_, err := DecodePvstBpdu(buf[:n], &got)
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultHelloTime), got.HelloTime)
}

func TestStaleBpdu(t *testing.T) {
	b := testConfigBpdu
	b.MessageAge = 20
	b.MaxAge = 20

	buf := make([]byte, MaxBpduFrameSize)
	n := EncodeStpConfig(buf, testSrcMac, &b)

	var got ConfigBpdu
	require.NoError(t, DecodeStpBpdu(buf[:n], &got))
	assert.True(t, got.Stale())
}

func TestIsStpDestination(t *testing.T) {
	stpFrame := make([]byte, MaxBpduFrameSize)
	EncodeStpConfig(stpFrame, testSrcMac, &testConfigBpdu)
	assert.True(t, IsStpDestination(stpFrame))

	pvstFrame := make([]byte, MaxBpduFrameSize)
	EncodePvstConfig(pvstFrame, testSrcMac, &testConfigBpdu, 10)
	assert.False(t, IsStpDestination(pvstFrame))
}
