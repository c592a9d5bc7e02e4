package stp

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seregega/sonic-stp/internal/ipc"
)

// The dispatch loop: one goroutine owns the engine and serialises every
// entry point. Two priority levels multiplex three sources: the 100 ms
// protocol tick is always serviced first; BPDU frames, link events and
// configuration messages share the low-priority level, processed in
// small bounded batches so a BPDU storm cannot starve the tick.

// TickInterval is the scheduler period.
const TickInterval = 100 * time.Millisecond

// Low-priority batching limits per pass.
const (
	lowBatchMax    = 5
	lowBatchBudget = 50 * time.Millisecond
)

// rxChSize buffers BPDU frames between the transport goroutines and
// the dispatch loop.
const rxChSize = 256

// linkChSize buffers link events from the interface monitor.
const linkChSize = 64

// RxFrame is one received BPDU frame with its ingress coordinates.
type RxFrame struct {
	Port  PortID
	Vlan  VlanID
	Frame []byte
}

// LinkEvent is an operational up/down transition for a port.
type LinkEvent struct {
	Port PortID
	Up   bool
}

// LoopStats is a snapshot of the dispatch counters, exposed through
// the control channel for field debugging.
type LoopStats struct {
	Ticks      uint64
	RxFrames   uint64
	LinkEvents uint64
	IpcMsgs    uint64
	RxDropped  uint64
}

// loopCounters holds the live counters. Atomics let other goroutines
// snapshot them while the loop runs.
type loopCounters struct {
	ticks      atomic.Uint64
	rxFrames   atomic.Uint64
	linkEvents atomic.Uint64
	ipcMsgs    atomic.Uint64
	rxDropped  atomic.Uint64
}

// Loop is the cooperative dispatcher driving an Engine.
type Loop struct {
	engine *Engine
	log    *slog.Logger

	rxCh   chan RxFrame
	linkCh chan LinkEvent
	ipcCh  <-chan ipc.Request

	// setLogLevel applies a control-channel log level change; nil when
	// the host process does not expose one.
	setLogLevel func(level int)

	// dumpNetlink renders the interface database for the control
	// channel; nil when no database is attached.
	dumpNetlink func() string

	stats loopCounters
}

// WithLogLevelControl lets the control channel adjust the process log
// level (stpctl loglevel).
func WithLogLevelControl(fn func(level int)) LoopOption {
	return func(l *Loop) { l.setLogLevel = fn }
}

// WithNetlinkDump exposes the interface database dump on the control
// channel (stpctl show netlink).
func WithNetlinkDump(fn func() string) LoopOption {
	return func(l *Loop) { l.dumpNetlink = fn }
}

// LoopOption configures optional Loop behaviour.
type LoopOption func(*Loop)

// NewLoop wires a dispatcher to an engine. ipcCh may be nil when no
// IPC server runs (tests).
func NewLoop(engine *Engine, ipcCh <-chan ipc.Request, logger *slog.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		engine: engine,
		log:    logger,
		rxCh:   make(chan RxFrame, rxChSize),
		linkCh: make(chan LinkEvent, linkChSize),
		ipcCh:  ipcCh,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DeliverFrame hands a received BPDU to the loop. Safe from any
// goroutine; frames are dropped (and counted) when the loop is behind.
func (l *Loop) DeliverFrame(f RxFrame) {
	select {
	case l.rxCh <- f:
	default:
		l.stats.rxDropped.Add(1)
	}
}

// DeliverLinkEvent hands a link transition to the loop.
func (l *Loop) DeliverLinkEvent(ev LinkEvent) {
	select {
	case l.linkCh <- ev:
	default:
		l.log.Warn("link event channel full, dropping event",
			slog.Int64("port", int64(ev.Port)),
		)
	}
}

// Stats returns a snapshot of the dispatch counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Ticks:      l.stats.ticks.Load(),
		RxFrames:   l.stats.rxFrames.Load(),
		LinkEvents: l.stats.linkEvents.Load(),
		IpcMsgs:    l.stats.ipcMsgs.Load(),
		RxDropped:  l.stats.rxDropped.Load(),
	}
}

// Run drives the engine until ctx is cancelled. All engine state is
// touched only from this goroutine.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	l.log.Info("dispatch loop started",
		slog.Duration("tick", TickInterval),
	)

	for {
		// High priority: drain a due tick before any other source.
		select {
		case <-ctx.Done():
			l.log.Info("dispatch loop stopped")
			return nil
		case <-ticker.C:
			l.tick()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			l.log.Info("dispatch loop stopped")
			return nil

		case <-ticker.C:
			l.tick()

		case f := <-l.rxCh:
			l.lowBatch(func() { l.handleFrame(f) })

		case ev := <-l.linkCh:
			l.lowBatch(func() { l.handleLink(ev) })

		case req, ok := <-l.ipcChOrNil():
			if !ok {
				l.ipcCh = nil
				continue
			}
			l.lowBatch(func() { l.handleIpc(req) })
		}
	}
}

// ipcChOrNil keeps the select valid when no IPC server is attached.
func (l *Loop) ipcChOrNil() <-chan ipc.Request { return l.ipcCh }

// tick runs one scheduler step.
func (l *Loop) tick() {
	l.stats.ticks.Add(1)
	l.engine.Tick()
}

// lowBatch processes the triggering low-priority event plus up to four
// more already-queued events, bounded by the pass budget.
func (l *Loop) lowBatch(first func()) {
	deadline := time.Now().Add(lowBatchBudget)
	first()

	for n := 1; n < lowBatchMax && time.Now().Before(deadline); n++ {
		select {
		case f := <-l.rxCh:
			l.handleFrame(f)
		case ev := <-l.linkCh:
			l.handleLink(ev)
		default:
			return
		}
	}
}

// handleFrame dispatches one BPDU into the engine.
func (l *Loop) handleFrame(f RxFrame) {
	l.stats.rxFrames.Add(1)
	l.engine.ProcessRxBpdu(f.Vlan, f.Port, f.Frame)
}

// handleLink dispatches one link transition into the engine.
func (l *Loop) handleLink(ev LinkEvent) {
	l.stats.linkEvents.Add(1)
	l.engine.PortEvent(ev.Port, ev.Up)
}

// handleIpc dispatches one configuration or control request. Loop
// statistics requests are answered here; everything else goes to the
// engine.
func (l *Loop) handleIpc(req ipc.Request) {
	l.stats.ipcMsgs.Add(1)

	if req.Msg.Type == ipc.MsgCtl {
		var m ipc.CtlMsg
		if err := req.Msg.Decode(&m); err == nil {
			switch m.CmdType {
			case ipc.CtlDumpLoopStats:
				if req.Reply != nil {
					s := l.Stats()
					req.Reply(&ipc.CtlReply{
						Status: ipc.StatusOK,
						Output: fmt.Sprintf(
							"loop: ticks %d rx %d (dropped %d) link %d ipc %d",
							s.Ticks, s.RxFrames, s.RxDropped, s.LinkEvents, s.IpcMsgs),
					})
				}
				return

			case ipc.CtlSetLogLevel:
				if l.setLogLevel != nil {
					l.setLogLevel(m.Level)
				}
				if req.Reply != nil {
					req.Reply(&ipc.CtlReply{Status: ipc.StatusOK})
				}
				return

			case ipc.CtlDumpNlDB, ipc.CtlDumpNlDBIntf:
				if req.Reply != nil {
					out := "interface db not attached"
					if l.dumpNetlink != nil {
						out = l.dumpNetlink()
					}
					req.Reply(&ipc.CtlReply{Status: ipc.StatusOK, Output: out})
				}
				return
			}
		}
	}

	l.engine.ApplyRequest(req)
}
