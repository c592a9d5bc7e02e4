//go:build linux

package netio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/seregega/sonic-stp/internal/intf"
	"github.com/seregega/sonic-stp/internal/stp"
)

// htons converts a short to network order for AF_PACKET binds.
func htons(v uint16) uint16 { return v<<8 | v>>8 }

// rxBufSize bounds one received frame. BPDUs are small; slack covers
// the VLAN shim and oversized neighbour implementations.
const rxBufSize = 256

// DeliverFunc hands a classified BPDU frame to the dispatch loop.
// For untagged frames the native VLAN 1 is reported; the engine decides
// the instance from the untag masks and the PVST TLV.
type DeliverFunc func(port stp.PortID, vlan stp.VlanID, frame []byte)

// portSock is one interface's receive socket.
type portSock struct {
	fd       int
	kifIndex int32
}

// PacketTransport is the Linux AF_PACKET implementation of the frame
// transport: one receive socket per opened port with multicast
// membership for both bridge group addresses, and one shared transmit
// socket.
type PacketTransport struct {
	db      *intf.DB
	deliver DeliverFunc
	log     *slog.Logger

	mu    sync.Mutex
	ports map[stp.PortID]*portSock
	txFd  int

	closed bool
}

// NewPacketTransport opens the shared transmit socket.
func NewPacketTransport(db *intf.DB, deliver DeliverFunc, logger *slog.Logger) (*PacketTransport, error) {
	txFd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tx packet socket: %w", err)
	}

	return &PacketTransport{
		db:      db,
		deliver: deliver,
		log:     logger,
		ports:   make(map[stp.PortID]*portSock),
		txFd:    txFd,
	}, nil
}

// OpenPort creates the receive socket for a port and starts its reader
// goroutine. Reopening an open port is a no-op.
func (t *PacketTransport) OpenPort(port stp.PortID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ports[port]; ok {
		return nil
	}

	kifIndex, ok := t.db.KifIndex(port)
	if !ok {
		return fmt.Errorf("port %d: %w", port, intf.ErrBadIfName)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("rx packet socket: %w", err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  int(kifIndex),
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind rx socket to ifindex %d: %w", kifIndex, err)
	}

	// Join both BPDU group addresses so the NIC passes them up.
	for _, group := range []stp.MacAddr{stp.BridgeGroupAddress, stp.PvstBridgeGroupAddress} {
		mreq := &unix.PacketMreq{
			Ifindex: kifIndex,
			Type:    unix.PACKET_MR_MULTICAST,
			Alen:    6,
		}
		copy(mreq.Address[:], group[:])
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
			unix.Close(fd)
			return fmt.Errorf("join group %s: %w", group, err)
		}
	}

	ps := &portSock{fd: fd, kifIndex: kifIndex}
	t.ports[port] = ps

	go t.readLoop(port, ps)
	return nil
}

// ClosePort tears the receive socket down.
func (t *PacketTransport) ClosePort(port stp.PortID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ps, ok := t.ports[port]; ok {
		unix.Close(ps.fd)
		delete(t.ports, port)
	}
}

// readLoop receives frames on one port until the socket closes.
func (t *PacketTransport) readLoop(port stp.PortID, ps *portSock) {
	buf := make([]byte, rxBufSize)
	for {
		n, _, err := unix.Recvfrom(ps.fd, buf, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			// EBADF after ClosePort is the normal shutdown path.
			if !errors.Is(err, unix.EBADF) {
				t.log.Warn("rx socket read",
					slog.Int64("port", int64(port)),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		frame, meta, err := ClassifyFrame(buf[:n])
		if err != nil {
			// Non-BPDU traffic on the raw socket is expected noise.
			continue
		}

		vlan := stp.VlanID(1)
		if meta.Tagged {
			vlan = meta.Vlan
		}

		out := make([]byte, len(frame))
		copy(out, frame)
		t.deliver(port, vlan, out)
	}
}

// Send implements stp.Transport: frame egress with optional 802.1Q tag.
func (t *PacketTransport) Send(port stp.PortID, vlan stp.VlanID, frame []byte, tagged bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrPortNotOpen
	}

	kifIndex, ok := t.db.KifIndex(port)
	if !ok {
		return fmt.Errorf("port %d: %w", port, ErrPortNotOpen)
	}

	out := frame
	if tagged {
		out = InsertVlanTag(frame, vlan)
	}

	sll := &unix.SockaddrLinklayer{
		Ifindex: int(kifIndex),
		Halen:   6,
	}
	copy(sll.Addr[:6], out[0:6])

	if err := unix.Sendto(t.txFd, out, 0, sll); err != nil {
		return fmt.Errorf("send on ifindex %d: %w", kifIndex, err)
	}
	return nil
}

// Close releases every socket.
func (t *PacketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for port, ps := range t.ports {
		unix.Close(ps.fd)
		delete(t.ports, port)
	}
	return unix.Close(t.txFd)
}

// compile-time interface check.
var _ stp.Transport = (*PacketTransport)(nil)
