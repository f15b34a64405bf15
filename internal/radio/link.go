package radio

import (
	"errors"
	"sync"
)

// PacketSender is the packet half of a transport, typically a UART module.
type PacketSender interface {
	Send(payload []byte) error
	Close() error
}

// Keyer is the keying half of a transport, typically the GPIO wired to the
// module's DIO2 modulation input.
type Keyer interface {
	SetDigitalOutput(level bool) error
	Close() error
}

// Link composes an optional packet sender and an optional keyer into one
// Transport. Capabilities follow from which halves are present.
type Link struct {
	packet PacketSender
	keyer  Keyer
	burst  bool

	mu     sync.Mutex
	closed bool
}

// NewLink builds a Link. Either half may be nil; burst declares whether the
// packet half tolerates back-to-back sends.
func NewLink(packet PacketSender, keyer Keyer, burst bool) *Link {
	return &Link{packet: packet, keyer: keyer, burst: burst}
}

// Capabilities reports which halves are wired.
func (l *Link) Capabilities() Capabilities {
	return Capabilities{
		DirectKeying: l.keyer != nil,
		PacketSend:   l.packet != nil,
		BurstSend:    l.packet != nil && l.burst,
	}
}

// Send forwards to the packet half.
func (l *Link) Send(payload []byte) error {
	if l.packet == nil {
		return Fail("send", ErrUnsupported)
	}
	return Fail("send", l.packet.Send(payload))
}

// SetDigitalOutput forwards to the keyer.
func (l *Link) SetDigitalOutput(level bool) error {
	if l.keyer == nil {
		return Fail("key", ErrUnsupported)
	}
	return Fail("key", l.keyer.SetDigitalOutput(level))
}

// Close drives the keying line low and closes both halves. It is safe to
// call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.keyer != nil {
		errs = append(errs, l.keyer.SetDigitalOutput(false), l.keyer.Close())
	}
	if l.packet != nil {
		errs = append(errs, l.packet.Close())
	}
	return Fail("close", errors.Join(errs...))
}
