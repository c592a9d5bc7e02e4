package dbsync

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(filepath.Join(t.TempDir(), "state.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreVlanMerge(t *testing.T) {
	store := openTestStore(t)

	store.UpdateStpClass(&VlanTable{
		VlanID:       10,
		BridgeID:     "800a0098192ce1fc",
		RootPathCost: UnsetU32,
		StpInstance:  0,
	})

	// A later partial update must not erase earlier fields.
	store.UpdateStpClass(&VlanTable{
		VlanID:       10,
		RootPathCost: 20000,
		RootPort:     "Ethernet3",
		StpInstance:  0,
	})

	rec, ok := store.VlanRecord(10)
	require.True(t, ok)
	assert.Equal(t, "800a0098192ce1fc", rec.BridgeID)
	assert.Equal(t, uint32(20000), rec.RootPathCost)
	assert.Equal(t, "Ethernet3", rec.RootPort)

	store.DelStpClass(10)
	_, ok = store.VlanRecord(10)
	assert.False(t, ok)
}

func TestStorePortMergeAndClearStats(t *testing.T) {
	store := openTestStore(t)

	store.UpdatePortClass(&VlanPortTable{
		IfName:           "Ethernet3",
		VlanID:           10,
		PortID:           3,
		PortPriority:     128,
		PathCost:         20000,
		PortState:        "LISTENING",
		DesignatedCost:   UnsetU32,
		RootProtectTimer: UnsetI32,
		RxConfigBpdu:     7,
	})

	store.UpdatePortClass(&VlanPortTable{
		IfName:           "Ethernet3",
		VlanID:           10,
		PortID:           UnsetU16,
		PortPriority:     UnsetI16,
		PathCost:         UnsetU32,
		PortState:        "ROOT-INC",
		DesignatedCost:   UnsetU32,
		RootProtectTimer: 5,
	})

	rec, ok := store.VlanPortRecord("Ethernet3", 10)
	require.True(t, ok)
	assert.Equal(t, uint16(3), rec.PortID)
	assert.Equal(t, uint32(20000), rec.PathCost)
	assert.Equal(t, "ROOT-INC", rec.PortState)
	assert.Equal(t, int32(5), rec.RootProtectTimer)
	assert.Equal(t, uint32(7), rec.RxConfigBpdu)

	// clear_stats zeroes the counters in the snapshot.
	store.UpdatePortClass(&VlanPortTable{
		IfName:           "Ethernet3",
		VlanID:           10,
		PortID:           UnsetU16,
		PortPriority:     UnsetI16,
		PathCost:         UnsetU32,
		DesignatedCost:   UnsetU32,
		RootProtectTimer: UnsetI32,
		ClearStats:       true,
	})
	rec, _ = store.VlanPortRecord("Ethernet3", 10)
	assert.Zero(t, rec.RxConfigBpdu)
}

func TestStorePortStateAndFlags(t *testing.T) {
	store := openTestStore(t)

	store.UpdatePortState("Ethernet1", 0, "FORWARDING")
	state, ok := store.PortState("Ethernet1", 0)
	require.True(t, ok)
	assert.Equal(t, "FORWARDING", state)

	store.DelPortState("Ethernet1", 0)
	_, ok = store.PortState("Ethernet1", 0)
	assert.False(t, ok)
}

func TestStoreDelStpPort(t *testing.T) {
	store := openTestStore(t)

	store.UpdatePortClass(&VlanPortTable{
		IfName: "Ethernet5", VlanID: 10,
		PortID: UnsetU16, PortPriority: UnsetI16,
		PathCost: UnsetU32, DesignatedCost: UnsetU32, RootProtectTimer: UnsetI32,
	})
	store.UpdatePortState("Ethernet5", 0, "BLOCKING")
	store.UpdatePortState("Ethernet50", 0, "BLOCKING")

	store.DelStpPort("Ethernet5")

	_, ok := store.VlanPortRecord("Ethernet5", 10)
	assert.False(t, ok)
	_, ok = store.PortState("Ethernet5", 0)
	assert.False(t, ok)

	// The prefix delete must not eat longer names.
	_, ok = store.PortState("Ethernet50", 0)
	assert.True(t, ok)
}

func TestStoreClearTables(t *testing.T) {
	store := openTestStore(t)

	store.UpdateStpClass(&VlanTable{VlanID: 10, RootPathCost: UnsetU32})
	store.ClearTables()

	_, ok := store.VlanRecord(10)
	assert.False(t, ok)
	assert.Empty(t, store.VlanRecords())
}
