package waveform

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/pulse.replay/internal/radio"
)

// Defaults used by DefaultConfig and for unset Config fields.
const (
	DefaultBitDuration = 500 * time.Microsecond
	DefaultGuardBits   = 8
	DefaultTolerance   = 50 * time.Microsecond
)

// TimingPolicy decides what happens when a keyed edge lands outside the
// tolerance window.
type TimingPolicy int

const (
	// TimingBestEffort logs the violation and keeps transmitting.
	TimingBestEffort TimingPolicy = iota
	// TimingStrict aborts the transmission with ErrTimingViolation.
	TimingStrict
	// TimingRecord keeps transmitting and only collects violations in the
	// report.
	TimingRecord
)

func (p TimingPolicy) String() string {
	switch p {
	case TimingBestEffort:
		return "best_effort"
	case TimingStrict:
		return "strict"
	case TimingRecord:
		return "record"
	default:
		return fmt.Sprintf("TimingPolicy(%d)", int(p))
	}
}

// ParseTimingPolicy maps a configuration string to a TimingPolicy.
func ParseTimingPolicy(s string) (TimingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best_effort", "best-effort", "besteffort":
		return TimingBestEffort, nil
	case "strict":
		return TimingStrict, nil
	case "record":
		return TimingRecord, nil
	default:
		return 0, fmt.Errorf("unknown timing policy %q: expected best_effort, strict or record", s)
	}
}

// Config fixes how a Transmitter puts payloads on air. It is read once at
// construction.
type Config struct {
	Mode radio.Mode

	// BitDuration is the hold time of one keyed bit.
	BitDuration time.Duration
	// GuardBits is the number of low bit times held after the payload.
	// Values below one are raised to one.
	GuardBits int

	// Header, when set, addresses packet-mode payloads.
	Header *radio.Header

	Timing TimingPolicy
	// Tolerance is the largest edge skew accepted before the timing policy
	// applies. Zero disables the check; skew statistics are still kept.
	Tolerance time.Duration
}

// DefaultConfig returns packet mode with the reference bit timing.
func DefaultConfig() Config {
	return Config{
		Mode:        radio.ModePacket,
		BitDuration: DefaultBitDuration,
		GuardBits:   DefaultGuardBits,
		Timing:      TimingBestEffort,
		Tolerance:   DefaultTolerance,
	}
}

func (c Config) normalise() (Config, error) {
	if c.BitDuration == 0 {
		c.BitDuration = DefaultBitDuration
	}
	if c.BitDuration < 0 {
		return c, fmt.Errorf("invalid bit duration %v", c.BitDuration)
	}
	if c.GuardBits < 1 {
		c.GuardBits = 1
	}
	if c.Tolerance < 0 {
		return c, fmt.Errorf("invalid timing tolerance %v", c.Tolerance)
	}
	if c.Header != nil && c.Mode != radio.ModePacket {
		return c, errors.New("addressed header requires packet mode")
	}
	if c.Timing < TimingBestEffort || c.Timing > TimingRecord {
		return c, fmt.Errorf("unknown timing policy %v", c.Timing)
	}
	return c, nil
}
