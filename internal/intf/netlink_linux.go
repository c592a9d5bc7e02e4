//go:build linux

package intf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/seregega/sonic-stp/internal/stp"
)

// Netlink link monitor: an initial RTM_GETLINK dump seeds the database,
// then RTNLGRP_LINK notifications keep it current. Link transitions for
// known ports are forwarded to the dispatch loop.

// LinkHandler receives operational transitions for ports the database
// knows about.
type LinkHandler func(port stp.PortID, up bool)

// Monitor watches rtnetlink for link changes.
type Monitor struct {
	db      *DB
	handler LinkHandler
	log     *slog.Logger

	fd int
}

// NewMonitor creates a link monitor feeding db and handler.
func NewMonitor(db *DB, handler LinkHandler, logger *slog.Logger) *Monitor {
	return &Monitor{db: db, handler: handler, log: logger, fd: -1}
}

// Start seeds the database from a full link dump and subscribes to
// link notifications.
func (m *Monitor) Start() error {
	if err := m.dumpLinks(); err != nil {
		return fmt.Errorf("initial link dump: %w", err)
	}

	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("netlink socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTNLGRP_LINK,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netlink bind: %w", err)
	}

	m.fd = fd
	return nil
}

// Run reads link notifications until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		m.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if ctx.Err() != nil || err == unix.EBADF {
				return nil
			}
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return fmt.Errorf("netlink recv: %w", err)
		}

		msgs, err := syscall.ParseNetlinkMessage(buf[:n])
		if err != nil {
			m.log.Warn("netlink parse", slog.String("error", err.Error()))
			continue
		}
		for i := range msgs {
			m.handleMessage(&msgs[i])
		}
	}
}

// Close releases the netlink socket.
func (m *Monitor) Close() error {
	if m.fd >= 0 {
		err := unix.Close(m.fd)
		m.fd = -1
		return err
	}
	return nil
}

// dumpLinks seeds the database from RTM_GETLINK.
func (m *Monitor) dumpLinks() error {
	raw, err := syscall.NetlinkRIB(unix.RTM_GETLINK, unix.AF_UNSPEC)
	if err != nil {
		return fmt.Errorf("rtnetlink dump: %w", err)
	}
	msgs, err := syscall.ParseNetlinkMessage(raw)
	if err != nil {
		return fmt.Errorf("rtnetlink dump parse: %w", err)
	}
	for i := range msgs {
		m.handleMessage(&msgs[i])
	}
	return nil
}

// handleMessage applies one RTM_NEWLINK/RTM_DELLINK message.
func (m *Monitor) handleMessage(msg *syscall.NetlinkMessage) {
	if msg.Header.Type != unix.RTM_NEWLINK && msg.Header.Type != unix.RTM_DELLINK {
		return
	}

	if len(msg.Data) < unix.SizeofIfInfomsg {
		return
	}
	ifi := (*unix.IfInfomsg)(unsafe.Pointer(&msg.Data[0]))

	attrs, err := syscall.ParseNetlinkRouteAttr(msg)
	if err != nil {
		m.log.Warn("netlink attr parse", slog.String("error", err.Error()))
		return
	}

	var (
		ifName string
		mac    stp.MacAddr
	)
	for _, attr := range attrs {
		switch attr.Attr.Type {
		case unix.IFLA_IFNAME:
			ifName = strings.TrimRight(string(attr.Value), "\x00")
		case unix.IFLA_ADDRESS:
			if len(attr.Value) == 6 {
				copy(mac[:], attr.Value)
			}
		}
	}

	if ifName == "" {
		return
	}
	if !strings.HasPrefix(ifName, ethPrefix) && !strings.HasPrefix(ifName, poPrefix) {
		return
	}

	if msg.Header.Type == unix.RTM_DELLINK {
		if port, ok := m.db.PortByName(ifName); ok {
			m.handler(port, false)
			m.db.Delete(ifName)
		}
		return
	}

	up := ifi.Flags&unix.IFF_UP != 0 && ifi.Flags&unix.IFF_RUNNING != 0

	port, err := m.db.Upsert(ifName, ifi.Index, mac, readSpeed(ifName), up)
	if err != nil {
		m.log.Warn("interface db upsert",
			slog.String("interface", ifName),
			slog.String("error", err.Error()),
		)
		return
	}

	m.handler(port, up)
}

// readSpeed reads the link speed from sysfs, returning 0 when the
// kernel does not report one (down links report -1).
func readSpeed(ifName string) uint32 {
	raw, err := os.ReadFile("/sys/class/net/" + ifName + "/speed")
	if err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || v <= 0 {
		return 0
	}
	return uint32(v)
}
