// Package capture reads recorded RF captures and extracts the signed pulse
// durations they contain.
//
// A capture is a text record in the format written by sub-GHz capture tools:
// a handful of "Key: value" header lines followed by one or more RAW_Data
// lines, each holding whitespace-separated signed microsecond durations.
// Positive values are high intervals, negative values are low intervals.
// Repeated RAW_Data lines are concatenated in file order.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MarkerToken prefixes every line carrying timing values.
const MarkerToken = "RAW_Data"

// maxLineBytes bounds a single capture line. Capture tools split long
// recordings across many RAW_Data lines, so this is generous.
const maxLineBytes = 1 << 20

var (
	// ErrMalformedCapture is returned when a record has no marker line or a
	// timing token is not a decimal integer.
	ErrMalformedCapture = errors.New("malformed capture")
	// ErrEmptyCapture is returned when the marker lines hold no durations.
	ErrEmptyCapture = errors.New("empty capture")
)

// Capture is a parsed capture record.
type Capture struct {
	Filetype  string
	Version   string
	Frequency uint64 // Hz, 0 when absent
	Preset    string
	Protocol  string

	// Durations holds the concatenated timing values in µs.
	Durations []int
	// MarkerLines is the number of RAW_Data lines that contributed.
	MarkerLines int
}

// ParseFile opens and parses the capture at path.
func ParseFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse reads a capture record from r.
func Parse(r io.Reader) (*Capture, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	c := &Capture{}
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			diagf("line %d: ignoring %q", lineNo, line)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if key == MarkerToken {
			c.MarkerLines++
			before := len(c.Durations)
			for _, tok := range strings.Fields(value) {
				d, err := strconv.Atoi(tok)
				if err != nil {
					opsf("line %d: bad timing token %q", lineNo, tok)
					return nil, fmt.Errorf("%w: line %d: token %q is not an integer", ErrMalformedCapture, lineNo, tok)
				}
				c.Durations = append(c.Durations, d)
			}
			tracef("line %d: %d durations", lineNo, len(c.Durations)-before)
			continue
		}
		c.setHeader(key, value, lineNo)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}

	if c.MarkerLines == 0 {
		return nil, fmt.Errorf("%w: no %s line", ErrMalformedCapture, MarkerToken)
	}
	if len(c.Durations) == 0 {
		return nil, ErrEmptyCapture
	}

	s := c.Summary()
	if s.Zeros > 0 || s.SameSignRuns > 0 {
		diagf("tolerating irregular capture: %d zero entries, %d same-sign neighbours", s.Zeros, s.SameSignRuns)
	}
	return c, nil
}

func (c *Capture) setHeader(key, value string, lineNo int) {
	switch key {
	case "Filetype":
		c.Filetype = value
	case "Version":
		c.Version = value
	case "Frequency":
		f, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			diagf("line %d: ignoring unparseable frequency %q", lineNo, value)
			return
		}
		c.Frequency = f
	case "Preset":
		c.Preset = value
	case "Protocol":
		c.Protocol = value
	default:
		diagf("line %d: ignoring header %q", lineNo, key)
	}
}

// FrequencyMHz returns the header frequency rounded to whole MHz, or 0.
func (c *Capture) FrequencyMHz() int {
	return int((c.Frequency + 500_000) / 1_000_000)
}

// Summary describes the shape of a capture.
type Summary struct {
	Count        int
	HighUS       int64 // total time spent high
	LowUS        int64 // total time spent low
	MinAbs       int   // smallest non-zero magnitude
	MaxAbs       int
	Zeros        int // zero-valued entries
	SameSignRuns int // neighbours sharing a sign, i.e. missing alternation
}

// Summary computes capture statistics. Irregularities are reported, never
// corrected.
func (c *Capture) Summary() Summary {
	var s Summary
	s.Count = len(c.Durations)
	prev := 0
	for _, d := range c.Durations {
		abs := d
		if abs < 0 {
			abs = -abs
		}
		switch {
		case d > 0:
			s.HighUS += int64(d)
		case d < 0:
			s.LowUS += int64(abs)
		default:
			s.Zeros++
		}
		if abs > 0 && (s.MinAbs == 0 || abs < s.MinAbs) {
			s.MinAbs = abs
		}
		if abs > s.MaxAbs {
			s.MaxAbs = abs
		}
		if d != 0 && prev != 0 && (d > 0) == (prev > 0) {
			s.SameSignRuns++
		}
		if d != 0 {
			prev = d
		}
	}
	return s
}
