package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seregega/sonic-stp/internal/stp"
)

// buildStpFrame returns a minimal classic BPDU frame for transport
// tests.
func buildStpFrame(t *testing.T) []byte {
	t.Helper()

	b := stp.ConfigBpdu{
		ProtocolVersion: stp.StpVersionID,
		Type:            stp.ConfigBpduType,
		RootID:          stp.MakeBridgeID(32768, 10, stp.MacAddr{0xAA, 0, 0, 0, 0, 1}),
		BridgeID:        stp.MakeBridgeID(32768, 10, stp.MacAddr{0xAA, 0, 0, 0, 0, 1}),
		PortID:          stp.MakePortIDField(128, 1),
		MaxAge:          20,
		HelloTime:       2,
		ForwardDelay:    15,
	}
	buf := make([]byte, stp.MaxBpduFrameSize)
	n := stp.EncodeStpConfig(buf, stp.MacAddr{0, 1, 2, 3, 4, 5}, &b)
	return buf[:n]
}

func TestClassifyUntaggedFrame(t *testing.T) {
	frame := buildStpFrame(t)

	out, meta, err := ClassifyFrame(frame)
	require.NoError(t, err)
	assert.False(t, meta.Tagged)
	assert.Equal(t, frame, out)
}

func TestTagInsertAndStripRoundTrip(t *testing.T) {
	frame := buildStpFrame(t)

	tagged := InsertVlanTag(frame, 100)
	require.Len(t, tagged, len(frame)+4)
	assert.Equal(t, byte(0x81), tagged[12])
	assert.Equal(t, byte(0x00), tagged[13])

	out, meta, err := ClassifyFrame(tagged)
	require.NoError(t, err)
	assert.True(t, meta.Tagged)
	assert.Equal(t, stp.VlanID(100), meta.Vlan)
	assert.Equal(t, frame, out)
}

func TestClassifyRejectsNonBpdu(t *testing.T) {
	frame := buildStpFrame(t)
	frame[0] = 0xFF

	_, _, err := ClassifyFrame(frame)
	assert.ErrorIs(t, err, ErrNotBpdu)

	_, _, err = ClassifyFrame(frame[:8])
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestMemTransportRecords(t *testing.T) {
	mt := NewMemTransport()
	frame := buildStpFrame(t)

	require.NoError(t, mt.Send(3, 10, frame, true))
	require.NoError(t, mt.Send(4, 20, frame, false))

	sent := mt.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, stp.PortID(3), sent[0].Port)
	assert.Equal(t, stp.VlanID(10), sent[0].Vlan)
	assert.True(t, sent[0].Tagged)
	assert.Equal(t, frame, sent[0].Frame)

	mt.Reset()
	assert.Empty(t, mt.Sent())
}
