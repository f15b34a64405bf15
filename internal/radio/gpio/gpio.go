// Package gpio keys the radio module's modulation input (DIO2 on SX126x
// modules) from a host GPIO pin using periph.io.
package gpio

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/banshee-data/pulse.replay/internal/radio"
)

// DefaultPin is the header pin wired to DIO2 on the reference board.
const DefaultPin = "GPIO23"

// ErrPinNotFound is returned when the pin name is unknown to the host.
var ErrPinNotFound = errors.New("gpio pin not found")

// Pin is the subset of periph's gpio.PinOut used for keying.
type Pin interface {
	Name() string
	Out(l gpio.Level) error
	Halt() error
}

// Keyer drives a single output pin.
type Keyer struct {
	mu     sync.Mutex
	pin    Pin
	level  gpio.Level
	closed bool
}

// NewKeyer wraps an already resolved pin and drives it low.
func NewKeyer(pin Pin) (*Keyer, error) {
	if pin == nil {
		return nil, ErrPinNotFound
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to drive %s low: %w", pin.Name(), err)
	}
	return &Keyer{pin: pin, level: gpio.Low}, nil
}

// Open initialises the host drivers and resolves the named pin.
func Open(name string) (*Keyer, error) {
	if name == "" {
		name = DefaultPin
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return NewKeyer(p)
}

// SetDigitalOutput drives the pin high or low.
func (k *Keyer) SetDigitalOutput(level bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return radio.Fail("key", errors.New("gpio keyer closed"))
	}
	if err := k.pin.Out(gpio.Level(level)); err != nil {
		return radio.Fail("key", err)
	}
	k.level = gpio.Level(level)
	return nil
}

// Level reports the last level written.
func (k *Keyer) Level() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return bool(k.level)
}

// Close leaves the pin low and halts it.
func (k *Keyer) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return radio.Fail("close", errors.Join(k.pin.Out(gpio.Low), k.pin.Halt()))
}

// String names the pin.
func (k *Keyer) String() string { return k.pin.Name() }

var _ radio.Keyer = (*Keyer)(nil)
