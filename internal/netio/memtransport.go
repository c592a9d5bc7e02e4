package netio

import (
	"sync"

	"github.com/seregega/sonic-stp/internal/stp"
)

// SentFrame records one transmitted frame for inspection.
type SentFrame struct {
	Port   stp.PortID
	Vlan   stp.VlanID
	Frame  []byte
	Tagged bool
}

// MemTransport is a channel-free in-memory transport used by tests and
// scenario harnesses: every Send is recorded, nothing touches the wire.
type MemTransport struct {
	mu   sync.Mutex
	sent []SentFrame
}

// NewMemTransport creates an empty recorder.
func NewMemTransport() *MemTransport {
	return &MemTransport{}
}

// Send records the frame.
func (t *MemTransport) Send(port stp.PortID, vlan stp.VlanID, frame []byte, tagged bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.sent = append(t.sent, SentFrame{Port: port, Vlan: vlan, Frame: cp, Tagged: tagged})
	return nil
}

// Sent returns a snapshot of everything transmitted so far.
func (t *MemTransport) Sent() []SentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SentFrame, len(t.sent))
	copy(out, t.sent)
	return out
}

// Reset clears the recording.
func (t *MemTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// compile-time interface check.
var _ stp.Transport = (*MemTransport)(nil)
