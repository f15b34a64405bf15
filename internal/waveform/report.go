package waveform

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulse.replay/internal/radio"
)

// Violation is a keyed edge that landed outside the tolerance window.
type Violation struct {
	Bit   int // index of the first bit at the new level
	Level bool
	Skew  time.Duration // observed minus ideal edge time
}

func (v Violation) String() string {
	return fmt.Sprintf("bit %d (level %t) skew %v", v.Bit, v.Level, v.Skew)
}

// SkewStats summarises edge skew over one transmission.
type SkewStats struct {
	Samples int
	Mean    time.Duration
	StdDev  time.Duration
	Max     time.Duration // largest absolute skew
}

// Report describes one completed or aborted transmission.
type Report struct {
	Mode  radio.Mode
	Bytes int // bytes handed to the transport, header included
	// Bits is the number of payload bits keyed; zero in packet mode.
	Bits      int
	GuardBits int

	Start    time.Time
	Duration time.Duration

	Skew       SkewStats
	Violations []Violation
}

func (r *Report) String() string {
	if r.Mode == radio.ModePacket {
		return fmt.Sprintf("packet %d bytes in %v", r.Bytes, r.Duration)
	}
	return fmt.Sprintf("bitbang %d bits + %d guard in %v, skew mean %v max %v, %d violations",
		r.Bits, r.GuardBits, r.Duration, r.Skew.Mean, r.Skew.Max, len(r.Violations))
}

func skewStats(samples []float64) SkewStats {
	s := SkewStats{Samples: len(samples)}
	if len(samples) == 0 {
		return s
	}
	s.Mean = time.Duration(stat.Mean(samples, nil))
	if len(samples) > 1 {
		s.StdDev = time.Duration(stat.StdDev(samples, nil))
	}
	var peak float64
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	s.Max = time.Duration(peak)
	return s
}
