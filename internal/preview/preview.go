// Package preview draws OOK waveforms as PNG plots or HTML charts so a
// capture can be compared with the payload it was packed into.
package preview

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no waveform data")

// Trace is one waveform: signed µs durations, positive high and negative
// low. Zero durations are skipped.
type Trace struct {
	Name      string
	Durations []int
}

// FromDurations wraps capture durations as a trace.
func FromDurations(name string, durations []int) Trace {
	return Trace{Name: name, Durations: durations}
}

// FromPayload decodes a packed payload back into a trace at unitUS per
// symbol.
func FromPayload(name string, payload []byte, unitUS int) (Trace, error) {
	if unitUS <= 0 {
		return Trace{}, fmt.Errorf("%w: %d", bitstream.ErrInvalidTimeUnit, unitUS)
	}
	if len(payload) == 0 {
		return Trace{}, ErrNoData
	}
	return Trace{
		Name:      name,
		Durations: bitstream.RunLengths(bitstream.Unpack(payload), unitUS),
	}, nil
}

// Vertex is one corner of the step curve.
type Vertex struct {
	TimeUS int64
	Level  int
}

// Vertices returns the corners of the step curve, two per interval, so a
// straight-line renderer draws square edges.
func (t Trace) Vertices() []Vertex {
	out := make([]Vertex, 0, 2*len(t.Durations))
	var at int64
	for _, d := range t.Durations {
		if d == 0 {
			continue
		}
		level, span := 1, int64(d)
		if d < 0 {
			level, span = 0, int64(-d)
		}
		out = append(out, Vertex{TimeUS: at, Level: level})
		at += span
		out = append(out, Vertex{TimeUS: at, Level: level})
	}
	return out
}

// TotalUS is the trace length in µs.
func (t Trace) TotalUS() int64 {
	var total int64
	for _, d := range t.Durations {
		if d < 0 {
			d = -d
		}
		total += int64(d)
	}
	return total
}

// points converts vertices to plot coordinates in ms, offsetting the level
// so stacked traces do not overlap.
func (t Trace) points(offset float64) plotter.XYs {
	vs := t.Vertices()
	pts := make(plotter.XYs, len(vs))
	for i, v := range vs {
		pts[i] = plotter.XY{X: float64(v.TimeUS) / 1000, Y: float64(v.Level) + offset}
	}
	return pts
}
