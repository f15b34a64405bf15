// Package radio defines the transport boundary between the waveform
// transmitter and the physical radio: a packet path that hands a payload to
// the module in one call, and a keying path that drives the modulation line
// directly.
package radio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransportFailure matches every error produced by a transport.
	ErrTransportFailure = errors.New("transport failure")
	// ErrUnsupported is returned when a transport lacks the requested path.
	ErrUnsupported = errors.New("operation not supported by transport")
)

// TransportError wraps a failure raised by a transport operation.
type TransportError struct {
	Op  string // "send", "key", "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports ErrTransportFailure as a match so callers can test for any
// transport error without knowing the operation.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}

// Fail wraps err as a TransportError for op. A nil err stays nil.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// Capabilities describes what a transport can do. It is populated once at
// construction and never re-probed.
type Capabilities struct {
	// DirectKeying means SetDigitalOutput drives the modulation line.
	DirectKeying bool
	// PacketSend means Send hands payloads to a packet radio.
	PacketSend bool
	// BurstSend means Send accepts back-to-back payloads without the caller
	// waiting for the module to drain its air-time.
	BurstSend bool
}

// Supports reports whether the capabilities cover mode.
func (c Capabilities) Supports(m Mode) bool {
	switch m {
	case ModeBitBang:
		return c.DirectKeying
	case ModePacket:
		return c.PacketSend
	default:
		return false
	}
}

// Transport sends payloads over the physical link.
type Transport interface {
	// Send hands payload to the radio as one opaque message.
	Send(payload []byte) error
	// SetDigitalOutput drives the modulation line high or low.
	SetDigitalOutput(level bool) error
	// Capabilities describes which of the two paths work.
	Capabilities() Capabilities
	// Close releases the transport, leaving the output low.
	Close() error
}

// Mode selects how a payload reaches the medium.
type Mode int

const (
	// ModePacket passes the packed payload to Transport.Send.
	ModePacket Mode = iota
	// ModeBitBang replays the payload bit by bit on the keying line.
	ModeBitBang
)

func (m Mode) String() string {
	switch m {
	case ModePacket:
		return "packet"
	case ModeBitBang:
		return "bitbang"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "packet":
		return ModePacket, nil
	case "bitbang", "bit-bang", "direct":
		return ModeBitBang, nil
	default:
		return 0, fmt.Errorf("unknown transmit mode %q: expected packet or bitbang", s)
	}
}
