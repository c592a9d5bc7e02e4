// Package intf maintains the interface database: the mapping between
// kernel interfaces and the daemon's dense port ids, per-port attributes
// discovered from link events (MAC, speed, oper state), and the
// port-channel id pool.
//
// Physical ports ("EthernetN") map to port id N in the lower half of the
// id space; port-channels ("PortChannelN") claim ids from a bitmap pool
// in the upper half.
package intf

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/seregega/sonic-stp/internal/bitmap"
	"github.com/seregega/sonic-stp/internal/stp"
)

// Interface name prefixes.
const (
	ethPrefix = "Ethernet"
	poPrefix  = "PortChannel"
)

// Database errors.
var (
	// ErrBadIfName indicates a name outside the Ethernet/PortChannel
	// namespaces.
	ErrBadIfName = errors.New("unrecognised interface name")

	// ErrPortRange indicates a physical port number beyond the table.
	ErrPortRange = errors.New("port number out of range")

	// ErrPoPoolEmpty indicates the port-channel id pool is exhausted.
	ErrPoPoolEmpty = errors.New("port-channel id pool exhausted")
)

// node is one interface record.
type node struct {
	ifName    string
	kifIndex  int32
	portID    stp.PortID
	mac       stp.MacAddr
	speedMbps uint32
	operUp    bool

	// memberCount tracks LAG members; a port-channel with no members
	// is operationally down regardless of kernel state.
	memberCount int
}

// DB is the interface database. Reads come from the dispatch loop and
// the transport goroutines; writes come from the netlink monitor, so
// access is guarded by a mutex.
type DB struct {
	mu sync.RWMutex

	maxPorts int32
	poOffset int32

	byName map[string]*node
	byPort map[stp.PortID]*node
	byKif  map[int32]*node

	poPool *bitmap.Mask

	log *slog.Logger
}

// New creates a database sized for maxPorts dense port ids. The upper
// half of the id space is reserved for port-channels.
func New(maxPorts int32, logger *slog.Logger) *DB {
	if maxPorts < 2 {
		maxPorts = 2
	}
	return &DB{
		maxPorts: maxPorts,
		poOffset: maxPorts / 2,
		byName:   make(map[string]*node),
		byPort:   make(map[stp.PortID]*node),
		byKif:    make(map[int32]*node),
		poPool:   bitmap.New(maxPorts - maxPorts/2),
		log:      logger,
	}
}

// MaxPorts returns the dense port id capacity.
func (db *DB) MaxPorts() int32 { return db.maxPorts }

// portIDForName derives the dense port id for a name, allocating a
// port-channel id when needed.
func (db *DB) portIDForName(ifName string) (stp.PortID, error) {
	switch {
	case strings.HasPrefix(ifName, ethPrefix):
		n, err := strconv.Atoi(ifName[len(ethPrefix):])
		if err != nil {
			return stp.InvalidPortID, fmt.Errorf("%s: %w", ifName, ErrBadIfName)
		}
		if int32(n) >= db.poOffset {
			return stp.InvalidPortID, fmt.Errorf("%s: %w", ifName, ErrPortRange)
		}
		return stp.PortID(n), nil

	case strings.HasPrefix(ifName, poPrefix):
		bit := db.poPool.SetFirstUnset()
		if bit == bitmap.InvalidID {
			return stp.InvalidPortID, fmt.Errorf("%s: %w", ifName, ErrPoPoolEmpty)
		}
		return stp.PortID(db.poOffset + bit), nil

	default:
		return stp.InvalidPortID, fmt.Errorf("%s: %w", ifName, ErrBadIfName)
	}
}

// Upsert adds or refreshes an interface record and returns its port id.
func (db *DB) Upsert(ifName string, kifIndex int32, mac stp.MacAddr, speedMbps uint32, operUp bool) (stp.PortID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	nd, ok := db.byName[ifName]
	if !ok {
		portID, err := db.portIDForName(ifName)
		if err != nil {
			return stp.InvalidPortID, err
		}
		nd = &node{ifName: ifName, portID: portID}
		db.byName[ifName] = nd
		db.byPort[portID] = nd
	}

	delete(db.byKif, nd.kifIndex)
	nd.kifIndex = kifIndex
	db.byKif[kifIndex] = nd

	if !mac.IsZero() {
		nd.mac = mac
	}
	if speedMbps != 0 {
		nd.speedMbps = speedMbps
	}
	nd.operUp = operUp

	return nd.portID, nil
}

// PreconfigurePortChannel reserves a port id for a port-channel that
// configuration references before the kernel created it.
func (db *DB) PreconfigurePortChannel(ifName string) (stp.PortID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if nd, ok := db.byName[ifName]; ok {
		return nd.portID, nil
	}
	if !strings.HasPrefix(ifName, poPrefix) {
		return stp.InvalidPortID, fmt.Errorf("%s: %w", ifName, ErrBadIfName)
	}

	portID, err := db.portIDForName(ifName)
	if err != nil {
		return stp.InvalidPortID, err
	}
	nd := &node{ifName: ifName, portID: portID, kifIndex: -1}
	db.byName[ifName] = nd
	db.byPort[portID] = nd
	return portID, nil
}

// Delete removes an interface record, releasing a port-channel id back
// to the pool.
func (db *DB) Delete(ifName string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	nd, ok := db.byName[ifName]
	if !ok {
		return
	}
	delete(db.byName, ifName)
	delete(db.byPort, nd.portID)
	delete(db.byKif, nd.kifIndex)

	if nd.portID >= stp.PortID(db.poOffset) {
		db.poPool.Clear(int32(nd.portID) - db.poOffset)
	}
}

// SetOperState updates the operational state and reports whether it
// changed.
func (db *DB) SetOperState(ifName string, up bool) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	nd, ok := db.byName[ifName]
	if !ok || nd.operUp == up {
		return false
	}
	nd.operUp = up
	return true
}

// SetSpeed updates the link speed in Mb/s.
func (db *DB) SetSpeed(ifName string, speedMbps uint32) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if nd, ok := db.byName[ifName]; ok {
		nd.speedMbps = speedMbps
	}
}

// ByKifIndex resolves a kernel ifindex to a port id.
func (db *DB) ByKifIndex(kifIndex int32) (stp.PortID, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byKif[kifIndex]; ok {
		return nd.portID, true
	}
	return stp.InvalidPortID, false
}

// KifIndex resolves a port id to the kernel ifindex.
func (db *DB) KifIndex(port stp.PortID) (int32, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byPort[port]; ok && nd.kifIndex >= 0 {
		return nd.kifIndex, true
	}
	return -1, false
}

// Names returns every known interface name.
func (db *DB) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]string, 0, len(db.byName))
	for name := range db.byName {
		out = append(out, name)
	}
	return out
}

// Dump renders the database for the control channel.
func (db *DB) Dump() string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("interface db\n")
	for _, nd := range db.byName {
		fmt.Fprintf(&sb, "  %-14s port %-5d kif %-4d mac %s speed %-7d up %t\n",
			nd.ifName, nd.portID, nd.kifIndex, nd.mac, nd.speedMbps, nd.operUp)
	}
	return sb.String()
}

// -------------------------------------------------------------------------
// stp.PortDB implementation
// -------------------------------------------------------------------------

// Name returns the interface name for a port id.
func (db *DB) Name(port stp.PortID) string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byPort[port]; ok {
		return nd.ifName
	}
	return ""
}

// PortByName resolves an interface name to its port id.
func (db *DB) PortByName(name string) (stp.PortID, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byName[name]; ok {
		return nd.portID, true
	}
	return stp.InvalidPortID, false
}

// Mac returns the interface MAC address.
func (db *DB) Mac(port stp.PortID) stp.MacAddr {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byPort[port]; ok {
		return nd.mac
	}
	return stp.MacAddr{}
}

// SpeedMbps returns the interface speed, defaulting to 1G when the
// kernel has not reported one.
func (db *DB) SpeedMbps(port stp.PortID) uint32 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byPort[port]; ok && nd.speedMbps != 0 {
		return nd.speedMbps
	}
	return stp.Speed1G
}

// IsUp reports the operational state.
func (db *DB) IsUp(port stp.PortID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if nd, ok := db.byPort[port]; ok {
		return nd.operUp
	}
	return false
}

// compile-time interface check.
var _ stp.PortDB = (*DB)(nil)
