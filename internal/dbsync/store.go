package dbsync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// -------------------------------------------------------------------------
// Store — bbolt-backed snapshot of published state
// -------------------------------------------------------------------------

// Bucket names.
var (
	bucketVlan      = []byte("vlan")
	bucketVlanPort  = []byte("vlan_port")
	bucketPortState = []byte("port_state")
	bucketPortFlags = []byte("port_flags")
)

// Store persists the most recent published record per key so operators
// and tests can read a consistent snapshot after the fact. Partial
// records are merged into the stored record; sentinel values leave the
// stored field untouched.
type Store struct {
	db  *bolt.DB
	log *slog.Logger
}

// OpenStore opens (or creates) the snapshot database at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketVlan, bucketVlanPort, bucketPortState, bucketPortFlags} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init state store buckets: %w", err)
	}

	return &Store{db: db, log: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Keys.

func vlanKey(vlan uint16) []byte { return []byte(strconv.Itoa(int(vlan))) }

func vlanPortKey(ifName string, vlan uint16) []byte {
	return []byte(ifName + "|" + strconv.Itoa(int(vlan)))
}

func portStateKey(ifName string, instance uint16) []byte {
	return []byte(ifName + "|" + strconv.Itoa(int(instance)))
}

// put JSON-encodes v under key in bucket.
func (s *Store) put(bucket, key []byte, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error("dbsync store: marshal", slog.String("error", err.Error()))
		return
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, raw)
	})
	if err != nil {
		s.log.Error("dbsync store: put", slog.String("error", err.Error()))
	}
}

// del removes key from bucket.
func (s *Store) del(bucket, key []byte) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
	if err != nil {
		s.log.Error("dbsync store: delete", slog.String("error", err.Error()))
	}
}

// get decodes the record at key into out and reports presence.
func (s *Store) get(bucket, key []byte, out any) bool {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, out)
	})
	if err != nil {
		s.log.Error("dbsync store: get", slog.String("error", err.Error()))
		return false
	}
	return found
}

// -------------------------------------------------------------------------
// Merge helpers — partial records overlay the stored snapshot
// -------------------------------------------------------------------------

// mergeVlan overlays the changed fields of rec onto prev.
func mergeVlan(prev, rec *VlanTable) {
	prev.VlanID = rec.VlanID
	prev.StpInstance = rec.StpInstance
	if rec.BridgeID != "" {
		prev.BridgeID = rec.BridgeID
	}
	if rec.MaxAge != 0 {
		prev.MaxAge = rec.MaxAge
	}
	if rec.HelloTime != 0 {
		prev.HelloTime = rec.HelloTime
	}
	if rec.ForwardDelay != 0 {
		prev.ForwardDelay = rec.ForwardDelay
	}
	if rec.HoldTime != 0 {
		prev.HoldTime = rec.HoldTime
	}
	if rec.TopologyChangeTime != 0 {
		prev.TopologyChangeTime = rec.TopologyChangeTime
	}
	if rec.TopologyChangeCount != 0 {
		prev.TopologyChangeCount = rec.TopologyChangeCount
	}
	if rec.RootBridgeID != "" {
		prev.RootBridgeID = rec.RootBridgeID
	}
	if rec.RootPathCost != UnsetU32 {
		prev.RootPathCost = rec.RootPathCost
	}
	if rec.DesigBridgeID != "" {
		prev.DesigBridgeID = rec.DesigBridgeID
	}
	if rec.RootPort != "" {
		prev.RootPort = rec.RootPort
	}
	if rec.RootMaxAge != 0 {
		prev.RootMaxAge = rec.RootMaxAge
	}
	if rec.RootHelloTime != 0 {
		prev.RootHelloTime = rec.RootHelloTime
	}
	if rec.RootForwardDelay != 0 {
		prev.RootForwardDelay = rec.RootForwardDelay
	}
}

// mergeVlanPort overlays the changed fields of rec onto prev.
func mergeVlanPort(prev, rec *VlanPortTable) {
	prev.IfName = rec.IfName
	prev.VlanID = rec.VlanID
	if rec.PortID != UnsetU16 {
		prev.PortID = rec.PortID
	}
	if rec.PortPriority != UnsetI16 {
		prev.PortPriority = rec.PortPriority
	}
	if rec.PathCost != UnsetU32 {
		prev.PathCost = rec.PathCost
	}
	if rec.PortState != "" {
		prev.PortState = rec.PortState
	}
	if rec.DesignatedCost != UnsetU32 {
		prev.DesignatedCost = rec.DesignatedCost
	}
	if rec.DesignatedRoot != "" {
		prev.DesignatedRoot = rec.DesignatedRoot
	}
	if rec.DesignatedBridge != "" {
		prev.DesignatedBridge = rec.DesignatedBridge
	}
	if rec.DesignatedPort != 0 {
		prev.DesignatedPort = rec.DesignatedPort
	}
	if rec.ForwardTransitions != 0 {
		prev.ForwardTransitions = rec.ForwardTransitions
	}
	if rec.TxConfigBpdu != 0 {
		prev.TxConfigBpdu = rec.TxConfigBpdu
	}
	if rec.RxConfigBpdu != 0 {
		prev.RxConfigBpdu = rec.RxConfigBpdu
	}
	if rec.TxTcnBpdu != 0 {
		prev.TxTcnBpdu = rec.TxTcnBpdu
	}
	if rec.RxTcnBpdu != 0 {
		prev.RxTcnBpdu = rec.RxTcnBpdu
	}
	if rec.RootProtectTimer != UnsetI32 {
		prev.RootProtectTimer = rec.RootProtectTimer
	}
	if rec.ClearStats {
		prev.TxConfigBpdu = 0
		prev.RxConfigBpdu = 0
		prev.TxTcnBpdu = 0
		prev.RxTcnBpdu = 0
	}
}

// -------------------------------------------------------------------------
// Sink implementation
// -------------------------------------------------------------------------

func (s *Store) AddVlanToInstance(uint16, uint16)   {}
func (s *Store) DelVlanFromInstance(uint16, uint16) {}

func (s *Store) UpdateStpClass(rec *VlanTable) {
	var prev VlanTable
	prev.RootPathCost = UnsetU32
	s.get(bucketVlan, vlanKey(rec.VlanID), &prev)
	mergeVlan(&prev, rec)
	s.put(bucketVlan, vlanKey(rec.VlanID), &prev)
}

func (s *Store) DelStpClass(vlan uint16) {
	s.del(bucketVlan, vlanKey(vlan))
}

func (s *Store) UpdatePortClass(rec *VlanPortTable) {
	var prev VlanPortTable
	prev.PortID = UnsetU16
	prev.PortPriority = UnsetI16
	prev.PathCost = UnsetU32
	prev.DesignatedCost = UnsetU32
	prev.RootProtectTimer = UnsetI32
	s.get(bucketVlanPort, vlanPortKey(rec.IfName, rec.VlanID), &prev)
	mergeVlanPort(&prev, rec)
	s.put(bucketVlanPort, vlanPortKey(rec.IfName, rec.VlanID), &prev)
}

func (s *Store) DelPortClass(ifName string, vlan uint16) {
	s.del(bucketVlanPort, vlanPortKey(ifName, vlan))
}

func (s *Store) UpdatePortState(ifName string, instance uint16, state string) {
	s.put(bucketPortState, portStateKey(ifName, instance), state)
}

func (s *Store) DelPortState(ifName string, instance uint16) {
	s.del(bucketPortState, portStateKey(ifName, instance))
}

func (s *Store) UpdateFastAge(vlan uint16, enable bool) {
	s.put(bucketPortFlags, []byte("fastage|"+strconv.Itoa(int(vlan))), enable)
}

func (s *Store) UpdatePortAdminState(ifName string, up, physical bool) {
	s.put(bucketPortFlags, []byte("admin|"+ifName), AdminStateRecord{
		IfName: ifName, Up: up, Physical: physical,
	})
}

func (s *Store) UpdateBpduGuardShutdown(ifName string, shutdown bool) {
	if shutdown {
		s.put(bucketPortFlags, []byte("bpdu_guard|"+ifName), BpduDisabledState)
	} else {
		s.del(bucketPortFlags, []byte("bpdu_guard|"+ifName))
	}
}

// BpduGuardShutdown reports whether BPDU guard disabled the port.
func (s *Store) BpduGuardShutdown(ifName string) bool {
	var state string
	return s.get(bucketPortFlags, []byte("bpdu_guard|"+ifName), &state) && state == BpduDisabledState
}

func (s *Store) UpdatePortFast(ifName string, enabled bool) {
	s.put(bucketPortFlags, []byte("port_fast|"+ifName), enabled)
}

func (s *Store) DelStpPort(ifName string) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketVlanPort, bucketPortState} {
			b := tx.Bucket(bucket)
			c := b.Cursor()
			prefix := []byte(ifName + "|")
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("dbsync store: del stp port", slog.String("error", err.Error()))
	}
}

func (s *Store) ClearTables() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketVlan, bucketVlanPort, bucketPortState, bucketPortFlags} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("dbsync store: clear tables", slog.String("error", err.Error()))
	}
}

// hasPrefix avoids importing bytes for one call site.
func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// -------------------------------------------------------------------------
// Read side — consumed by stpctl dumps and tests
// -------------------------------------------------------------------------

// VlanRecord returns the stored per-VLAN record.
func (s *Store) VlanRecord(vlan uint16) (VlanTable, bool) {
	var rec VlanTable
	ok := s.get(bucketVlan, vlanKey(vlan), &rec)
	return rec, ok
}

// VlanPortRecord returns the stored per-port per-VLAN record.
func (s *Store) VlanPortRecord(ifName string, vlan uint16) (VlanPortTable, bool) {
	var rec VlanPortTable
	ok := s.get(bucketVlanPort, vlanPortKey(ifName, vlan), &rec)
	return rec, ok
}

// PortState returns the stored forwarding-plane state for an instance.
func (s *Store) PortState(ifName string, instance uint16) (string, bool) {
	var state string
	ok := s.get(bucketPortState, portStateKey(ifName, instance), &state)
	return state, ok
}

// VlanRecords returns every stored per-VLAN record.
func (s *Store) VlanRecords() []VlanTable {
	var out []VlanTable
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVlan).ForEach(func(_, v []byte) error {
			var rec VlanTable
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		s.log.Error("dbsync store: list vlans", slog.String("error", err.Error()))
	}
	return out
}

// compile-time interface check.
var _ Sink = (*Store)(nil)
