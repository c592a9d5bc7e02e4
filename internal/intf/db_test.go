package intf

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seregega/sonic-stp/internal/stp"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	return New(64, slog.New(slog.DiscardHandler))
}

func TestEthernetNamesMapToPortNumbers(t *testing.T) {
	db := newTestDB(t)

	port, err := db.Upsert("Ethernet5", 42, stp.MacAddr{0, 1, 2, 3, 4, 5}, 10_000, true)
	require.NoError(t, err)
	assert.Equal(t, stp.PortID(5), port)

	got, ok := db.PortByName("Ethernet5")
	require.True(t, ok)
	assert.Equal(t, port, got)
	assert.Equal(t, "Ethernet5", db.Name(port))
	assert.Equal(t, uint32(10_000), db.SpeedMbps(port))
	assert.True(t, db.IsUp(port))

	kif, ok := db.ByKifIndex(42)
	require.True(t, ok)
	assert.Equal(t, port, kif)
}

func TestPortChannelPool(t *testing.T) {
	db := newTestDB(t)

	// Port-channels claim ids above the physical range (offset 32 on
	// a 64-port table), first-unset first.
	po1, err := db.Upsert("PortChannel1", 100, stp.MacAddr{}, 0, true)
	require.NoError(t, err)
	assert.Equal(t, stp.PortID(32), po1)

	po2, err := db.Upsert("PortChannel7", 101, stp.MacAddr{}, 0, true)
	require.NoError(t, err)
	assert.Equal(t, stp.PortID(33), po2)

	// Deleting releases the id for reuse.
	db.Delete("PortChannel1")
	po3, err := db.Upsert("PortChannel9", 102, stp.MacAddr{}, 0, true)
	require.NoError(t, err)
	assert.Equal(t, stp.PortID(32), po3)
}

func TestPreconfigurePortChannel(t *testing.T) {
	db := newTestDB(t)

	port, err := db.PreconfigurePortChannel("PortChannel5")
	require.NoError(t, err)
	assert.Equal(t, stp.PortID(32), port)

	// The later kernel event reuses the reserved id.
	got, err := db.Upsert("PortChannel5", 200, stp.MacAddr{}, 0, true)
	require.NoError(t, err)
	assert.Equal(t, port, got)

	_, err = db.PreconfigurePortChannel("Ethernet1")
	assert.ErrorIs(t, err, ErrBadIfName)
}

func TestRejectsUnknownNames(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Upsert("eth0", 1, stp.MacAddr{}, 0, true)
	assert.ErrorIs(t, err, ErrBadIfName)

	_, err = db.Upsert("EthernetXYZ", 2, stp.MacAddr{}, 0, true)
	assert.ErrorIs(t, err, ErrBadIfName)

	// Physical numbers collide with the port-channel range.
	_, err = db.Upsert("Ethernet40", 3, stp.MacAddr{}, 0, true)
	assert.ErrorIs(t, err, ErrPortRange)
}

func TestOperStateAndDefaults(t *testing.T) {
	db := newTestDB(t)

	port, err := db.Upsert("Ethernet1", 10, stp.MacAddr{}, 0, false)
	require.NoError(t, err)

	assert.False(t, db.IsUp(port))
	assert.True(t, db.SetOperState("Ethernet1", true))
	assert.False(t, db.SetOperState("Ethernet1", true), "no change reported twice")
	assert.True(t, db.IsUp(port))

	// Unreported speed falls back to 1G.
	assert.Equal(t, stp.Speed1G, db.SpeedMbps(port))
	db.SetSpeed("Ethernet1", 25_000)
	assert.Equal(t, uint32(25_000), db.SpeedMbps(port))
}
