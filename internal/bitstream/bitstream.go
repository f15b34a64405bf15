// Package bitstream quantises signed pulse durations into a fixed time unit
// and packs the resulting on/off symbols into bytes for OOK replay.
//
// Each duration d becomes round(|d| / unit) symbols, 1 for a positive
// duration and 0 otherwise. An 8-symbol zero tail flushes the final partial
// byte. Symbols are packed most-significant bit first; bytes that hold only
// padding are dropped, bytes that hold any data symbol are always kept.
package bitstream

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/pulse.replay/internal/capture"
)

// PaddingBits is the length of the all-zero tail appended to every symbol
// sequence.
const PaddingBits = 8

// maxSymbols caps the data symbols a single encode may produce (128 KiB of
// payload). Longer expansions come from corrupt captures.
const maxSymbols = 1 << 20

var (
	// ErrInvalidTimeUnit is returned when the time unit is not positive.
	ErrInvalidTimeUnit = errors.New("invalid time unit")
	// ErrEmptyInput is returned for an empty duration list, or one that
	// quantises to no data symbols. It matches capture.ErrEmptyCapture.
	ErrEmptyInput = capture.ErrEmptyCapture
)

// Rounding selects how a duration is quantised to whole time units.
type Rounding int

const (
	// RoundHalfEven rounds to the nearest unit, ties to the even count.
	RoundHalfEven Rounding = iota
	// RoundTruncate discards any fractional unit (integer division).
	RoundTruncate
)

func (r Rounding) String() string {
	switch r {
	case RoundHalfEven:
		return "half_even"
	case RoundTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("Rounding(%d)", int(r))
	}
}

// ParseRounding maps a configuration string to a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_even", "nearest":
		return RoundHalfEven, nil
	case "truncate", "floor":
		return RoundTruncate, nil
	default:
		return 0, fmt.Errorf("unknown rounding %q: expected half_even or truncate", s)
	}
}

// Options controls quantisation.
type Options struct {
	// TimeUnitUS is the duration of one symbol in microseconds.
	TimeUnitUS int
	Rounding   Rounding
	// MinOneSymbol makes a non-zero duration that rounds to zero emit one
	// symbol instead of being dropped.
	MinOneSymbol bool
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.TimeUnitUS <= 0 {
		return fmt.Errorf("%w: %d µs", ErrInvalidTimeUnit, o.TimeUnitUS)
	}
	switch o.Rounding {
	case RoundHalfEven, RoundTruncate:
	default:
		return fmt.Errorf("unsupported rounding %v", o.Rounding)
	}
	return nil
}

// Quantize returns the number of whole units in |d| under rule r.
// unit must be positive.
// The result saturates at math.MaxInt.
func Quantize(d, unit int, r Rounding) int {
	abs := uint(d)
	if d < 0 {
		abs = -abs
	}
	u := uint(unit)
	q, rem := abs/u, abs%u
	if r != RoundTruncate {
		switch {
		case rem > u-rem:
			q++
		case rem == u-rem && q%2 == 1:
			q++
		}
	}
	if q > math.MaxInt {
		return math.MaxInt
	}
	return int(q)
}

// Expand turns durations into the symbol sequence, padding tail included.
// dataLen is the number of symbols that came from durations.
func Expand(durations []int, opts Options) (symbols []uint8, dataLen int, err error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}
	if len(durations) == 0 {
		return nil, 0, ErrEmptyInput
	}

	for _, d := range durations {
		n := Quantize(d, opts.TimeUnitUS, opts.Rounding)
		if n == 0 && d != 0 && opts.MinOneSymbol {
			n = 1
		}
		if n > maxSymbols-len(symbols) {
			return nil, 0, fmt.Errorf("%w: duration %d µs expands past %d symbols", capture.ErrMalformedCapture, d, maxSymbols)
		}
		var level uint8
		if d > 0 {
			level = 1
		}
		for i := 0; i < n; i++ {
			symbols = append(symbols, level)
		}
	}
	dataLen = len(symbols)
	if dataLen == 0 {
		return nil, 0, fmt.Errorf("%w: all %d durations quantise to zero symbols", ErrEmptyInput, len(durations))
	}

	symbols = append(symbols, make([]uint8, PaddingBits)...)
	return symbols, dataLen, nil
}

// Pack groups symbols into bytes, most significant bit first. A final
// partial group is right-padded with zeros. Nothing is trimmed.
func Pack(symbols []uint8) []byte {
	out := make([]byte, (len(symbols)+7)/8)
	for i, s := range symbols {
		if s != 0 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// Unpack expands bytes into symbols, most significant bit first.
func Unpack(payload []byte) []uint8 {
	out := make([]uint8, 0, len(payload)*8)
	for _, b := range payload {
		for i := 7; i >= 0; i-- {
			out = append(out, (b>>i)&1)
		}
	}
	return out
}

// Encode quantises durations and packs them into the replay payload. Bytes
// made only of padding are trimmed, so the result holds exactly
// ceil(dataLen/8) bytes.
func Encode(durations []int, opts Options) ([]byte, error) {
	symbols, dataLen, err := Expand(durations, opts)
	if err != nil {
		return nil, err
	}
	packed := Pack(symbols)
	return packed[:(dataLen+7)/8], nil
}

// RunLengths converts a symbol sequence back into signed durations of whole
// units, the inverse view used for previews. A trailing run of zeros is
// kept.
func RunLengths(symbols []uint8, unitUS int) []int {
	var out []int
	for i := 0; i < len(symbols); {
		j := i
		for j < len(symbols) && symbols[j] == symbols[i] {
			j++
		}
		d := (j - i) * unitUS
		if symbols[i] == 0 {
			d = -d
		}
		out = append(out, d)
		i = j
	}
	return out
}
