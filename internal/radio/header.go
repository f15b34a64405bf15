package radio

import (
	"errors"
	"fmt"
)

// HeaderSize is the length of the addressed packet header.
const HeaderSize = 6

// Broadcast addresses every node on the channel.
const Broadcast uint16 = 0xFFFF

// ErrInvalidFrequency is returned for a frequency outside the module bands.
var ErrInvalidFrequency = errors.New("frequency outside supported bands")

// Frequency bands accepted by the addressed network layer, in MHz.
const (
	lowBandBase  = 410
	lowBandMax   = 493
	highBandBase = 850
	highBandMax  = 930
)

// FrequencyOffset encodes a channel frequency as the single offset byte the
// module expects: MHz - 850 above 850 MHz, MHz - 410 otherwise.
func FrequencyOffset(mhz int) (byte, error) {
	switch {
	case mhz > highBandBase && mhz <= highBandMax:
		return byte(mhz - highBandBase), nil
	case mhz >= lowBandBase && mhz <= lowBandMax:
		return byte(mhz - lowBandBase), nil
	default:
		return 0, fmt.Errorf("%w: %d MHz", ErrInvalidFrequency, mhz)
	}
}

// Header addresses a payload on the module's network layer.
type Header struct {
	Target        uint16
	TargetFreqMHz int
	Source        uint16
	SourceFreqMHz int
}

// Frame prepends the 6-byte header to payload:
// target hi, target lo, target offset, source hi, source lo, source offset.
func (h Header) Frame(payload []byte) ([]byte, error) {
	tOff, err := FrequencyOffset(h.TargetFreqMHz)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	sOff, err := FrequencyOffset(h.SourceFreqMHz)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out,
		byte(h.Target>>8), byte(h.Target),
		tOff,
		byte(h.Source>>8), byte(h.Source),
		sOff,
	)
	return append(out, payload...), nil
}

// RawHeader is a decoded header with the frequency bytes left as offsets,
// since an offset alone does not say which band it belongs to.
type RawHeader struct {
	Target       uint16
	TargetOffset byte
	Source       uint16
	SourceOffset byte
}

// ParseFrame splits a framed message into its header and payload.
func ParseFrame(frame []byte) (RawHeader, []byte, error) {
	if len(frame) < HeaderSize {
		return RawHeader{}, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	h := RawHeader{
		Target:       uint16(frame[0])<<8 | uint16(frame[1]),
		TargetOffset: frame[2],
		Source:       uint16(frame[3])<<8 | uint16(frame[4]),
		SourceOffset: frame[5],
	}
	return h, frame[HeaderSize:], nil
}
