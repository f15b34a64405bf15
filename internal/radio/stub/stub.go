// Package stub provides an in-memory radio transport for host-side tests and
// dry runs. It records every payload and every level change together with the
// clock time it was observed at.
package stub

import (
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/timeutil"
)

// ErrClosed is returned by operations on a closed stub.
var ErrClosed = errors.New("stub transport closed")

// Send is one recorded payload.
type Send struct {
	At      time.Time
	Payload []byte
}

// Edge is one recorded level change on the keying line.
type Edge struct {
	At    time.Time
	Level bool
}

// Transport implements radio.Transport in memory.
type Transport struct {
	mu    sync.Mutex
	clock timeutil.Clock
	caps  radio.Capabilities

	sends  []Send
	edges  []Edge
	level  bool
	closed bool

	sendCalls int
	keyCalls  int
	sendFail  map[int]error
	keyFail   map[int]error

	onSend func(n int, payload []byte)
	onKey  func(level bool)
}

// New returns a stub with the given capabilities. A nil clock uses the real
// clock.
func New(clock timeutil.Clock, caps radio.Capabilities) *Transport {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Transport{
		clock:    clock,
		caps:     caps,
		sendFail: make(map[int]error),
		keyFail:  make(map[int]error),
	}
}

// NewPacket returns a stub that only supports packet sends.
func NewPacket(clock timeutil.Clock) *Transport {
	return New(clock, radio.Capabilities{PacketSend: true, BurstSend: true})
}

// NewKeyed returns a stub that only supports direct keying.
func NewKeyed(clock timeutil.Clock) *Transport {
	return New(clock, radio.Capabilities{DirectKeying: true})
}

// FailSend makes the n-th Send call (1-based) fail with err.
func (t *Transport) FailSend(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendFail[n] = err
}

// FailKey makes the n-th SetDigitalOutput call (1-based) fail with err.
func (t *Transport) FailKey(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keyFail[n] = err
}

// OnSend registers a hook called after each successful Send, outside the
// stub's lock, with the 1-based call number.
func (t *Transport) OnSend(fn func(n int, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSend = fn
}

// OnKey registers a hook called after each successful SetDigitalOutput.
// Tests use it to inject keying latency into a mock clock.
func (t *Transport) OnKey(fn func(level bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onKey = fn
}

// Send records payload.
func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return radio.Fail("send", ErrClosed)
	}
	if !t.caps.PacketSend {
		t.mu.Unlock()
		return radio.Fail("send", radio.ErrUnsupported)
	}
	t.sendCalls++
	n := t.sendCalls
	if err, ok := t.sendFail[n]; ok {
		t.mu.Unlock()
		return radio.Fail("send", err)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.sends = append(t.sends, Send{At: t.clock.Now(), Payload: cp})
	hook := t.onSend
	t.mu.Unlock()

	if hook != nil {
		hook(n, cp)
	}
	return nil
}

// SetDigitalOutput records a level change. Setting the current level again
// is accepted but not recorded as an edge.
func (t *Transport) SetDigitalOutput(level bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return radio.Fail("key", ErrClosed)
	}
	if !t.caps.DirectKeying {
		t.mu.Unlock()
		return radio.Fail("key", radio.ErrUnsupported)
	}
	t.keyCalls++
	if err, ok := t.keyFail[t.keyCalls]; ok {
		t.mu.Unlock()
		return radio.Fail("key", err)
	}
	if level != t.level || len(t.edges) == 0 {
		t.edges = append(t.edges, Edge{At: t.clock.Now(), Level: level})
	}
	t.level = level
	hook := t.onKey
	t.mu.Unlock()

	if hook != nil {
		hook(level)
	}
	return nil
}

// Capabilities returns the capabilities given to New.
func (t *Transport) Capabilities() radio.Capabilities { return t.caps }

// Close drops the keying line and marks the stub closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if t.level {
		t.edges = append(t.edges, Edge{At: t.clock.Now(), Level: false})
	}
	t.level = false
	t.closed = true
	return nil
}

// Sends returns a copy of the recorded payloads.
func (t *Transport) Sends() []Send {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Send, len(t.sends))
	copy(out, t.sends)
	return out
}

// Payloads returns just the recorded payload bytes.
func (t *Transport) Payloads() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sends))
	for i, s := range t.sends {
		out[i] = s.Payload
	}
	return out
}

// Edges returns a copy of the recorded level changes.
func (t *Transport) Edges() []Edge {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)
	return out
}

// Level reports the current keying level.
func (t *Transport) Level() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Reset clears recorded sends and edges, keeping failure injection.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = nil
	t.edges = nil
}

var _ radio.Transport = (*Transport)(nil)
