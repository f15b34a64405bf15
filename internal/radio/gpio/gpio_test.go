package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/gpio"

	"github.com/banshee-data/pulse.replay/internal/radio"
)

type fakePin struct {
	levels []gpio.Level
	halted bool
	outErr error
}

func (p *fakePin) Name() string { return "GPIO23" }

func (p *fakePin) Out(l gpio.Level) error {
	if p.outErr != nil {
		return p.outErr
	}
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakePin) Halt() error { p.halted = true; return nil }

func TestKeyer_DrivesPin(t *testing.T) {
	pin := &fakePin{}
	k, err := NewKeyer(pin)
	require.NoError(t, err)

	require.NoError(t, k.SetDigitalOutput(true))
	assert.True(t, k.Level())
	require.NoError(t, k.SetDigitalOutput(false))
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.Low}, pin.levels)
	assert.True(t, pin.halted)
	assert.Equal(t, "GPIO23", k.String())
}

func TestKeyer_Errors(t *testing.T) {
	_, err := NewKeyer(nil)
	assert.ErrorIs(t, err, ErrPinNotFound)

	pin := &fakePin{outErr: errors.New("bus fault")}
	_, err = NewKeyer(pin)
	assert.Error(t, err)

	pin.outErr = nil
	k, err := NewKeyer(pin)
	require.NoError(t, err)
	pin.outErr = errors.New("bus fault")
	assert.ErrorIs(t, k.SetDigitalOutput(true), radio.ErrTransportFailure)
	pin.outErr = nil

	require.NoError(t, k.Close())
	assert.ErrorIs(t, k.SetDigitalOutput(true), radio.ErrTransportFailure)
}

func TestKeyer_ComposesIntoLink(t *testing.T) {
	k, err := NewKeyer(&fakePin{})
	require.NoError(t, err)

	link := radio.NewLink(nil, k, false)
	assert.True(t, link.Capabilities().Supports(radio.ModeBitBang))
	assert.False(t, link.Capabilities().Supports(radio.ModePacket))
}
