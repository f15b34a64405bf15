// Package waveform puts packed OOK payloads on air, either as one packet
// handed to the radio module or by keying the modulation line bit by bit
// against absolute deadlines.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/timeutil"
)

var (
	// ErrUnsupportedMode is returned by NewTransmitter when the transport
	// cannot carry the configured mode.
	ErrUnsupportedMode = errors.New("transport does not support transmit mode")
	// ErrTimingViolation is returned under TimingStrict when an edge misses
	// its deadline by more than the tolerance.
	ErrTimingViolation = errors.New("timing violation")
	// ErrEmptyPayload is returned when there is nothing to transmit.
	ErrEmptyPayload = errors.New("empty payload")
)

// Transmitter owns a transport for the duration of each transmission.
type Transmitter struct {
	mu    sync.Mutex
	t     radio.Transport
	clock timeutil.Clock
	caps  radio.Capabilities
	cfg   Config
}

// NewTransmitter checks the transport's capabilities against cfg.Mode once;
// a transmitter that constructs successfully never re-probes them.
func NewTransmitter(t radio.Transport, clock timeutil.Clock, cfg Config) (*Transmitter, error) {
	cfg, err := cfg.normalise()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	caps := t.Capabilities()
	if !caps.Supports(cfg.Mode) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, cfg.Mode)
	}
	if cfg.Mode == radio.ModePacket && !caps.BurstSend {
		opsf("transport needs drain time between packets; keep burst intervals above the frame air-time")
	}
	return &Transmitter{t: t, clock: clock, caps: caps, cfg: cfg}, nil
}

// Config returns the normalised configuration.
func (tx *Transmitter) Config() Config { return tx.cfg }

// Transmit puts payload on air once. The context is consulted before the
// transmission starts only; a transmission in progress always completes or
// fails on its own. The report is returned even when err is non-nil.
func (tx *Transmitter) Transmit(ctx context.Context, payload []byte) (*Report, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	switch tx.cfg.Mode {
	case radio.ModeBitBang:
		return tx.keyBits(payload)
	default:
		return tx.sendPacket(payload)
	}
}

// Idle forces the modulation line low. It is a no-op for packet-only
// transports.
func (tx *Transmitter) Idle() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.idleLocked()
}

func (tx *Transmitter) idleLocked() error {
	if !tx.caps.DirectKeying {
		return nil
	}
	return tx.t.SetDigitalOutput(false)
}

func (tx *Transmitter) sendPacket(payload []byte) (*Report, error) {
	frame := payload
	if tx.cfg.Header != nil {
		var err error
		if frame, err = tx.cfg.Header.Frame(payload); err != nil {
			return nil, err
		}
	}

	rep := &Report{Mode: radio.ModePacket, Bytes: len(frame), Start: tx.clock.Now()}
	err := tx.t.Send(frame)
	rep.Duration = tx.clock.Since(rep.Start)
	if err != nil {
		opsf("packet send of %d bytes failed: %v", len(frame), err)
		return rep, err
	}
	diagf("sent %d byte packet", len(frame))
	return rep, nil
}

// keyBits holds each bit for exactly one bit time measured from the start
// of the transmission, so per-edge latency never accumulates.
func (tx *Transmitter) keyBits(payload []byte) (rep *Report, err error) {
	rep = &Report{
		Mode:      radio.ModeBitBang,
		Bytes:     len(payload),
		GuardBits: tx.cfg.GuardBits,
	}
	var skews []float64

	defer func() {
		// runs on every exit, panics included
		if idleErr := tx.idleLocked(); idleErr != nil {
			opsf("failed to release modulation line: %v", idleErr)
			if err == nil {
				err = idleErr
			}
		}
		rep.Skew = skewStats(skews)
		rep.Duration = tx.clock.Since(rep.Start)
	}()

	bit := tx.cfg.BitDuration
	rep.Start = tx.clock.Now()
	deadline := func(i int) time.Time { return rep.Start.Add(time.Duration(i) * bit) }

	level := false
	keyed := false
	edge := func(i int, to bool) error {
		if err := tx.t.SetDigitalOutput(to); err != nil {
			return err
		}
		level, keyed = to, true
		skew := tx.clock.Now().Sub(deadline(i))
		skews = append(skews, float64(skew))
		tracef("bit %d -> %t skew %v", i, to, skew)
		return tx.checkSkew(rep, Violation{Bit: i, Level: to, Skew: skew})
	}

	total := len(payload) * 8
	for i := 0; i < total; i++ {
		b := payload[i/8]&(0x80>>uint(i%8)) != 0
		if !keyed || b != level {
			if err := edge(i, b); err != nil {
				return rep, err
			}
		}
		rep.Bits++
		timeutil.SpinUntil(tx.clock, deadline(i+1))
	}

	if level {
		if err := edge(total, false); err != nil {
			return rep, err
		}
	}
	timeutil.SpinUntil(tx.clock, deadline(total+tx.cfg.GuardBits))

	diagf("keyed %d bits + %d guard", rep.Bits, rep.GuardBits)
	return rep, nil
}

func (tx *Transmitter) checkSkew(rep *Report, v Violation) error {
	tol := tx.cfg.Tolerance
	if tol == 0 || (v.Skew <= tol && v.Skew >= -tol) {
		return nil
	}
	rep.Violations = append(rep.Violations, v)
	switch tx.cfg.Timing {
	case TimingStrict:
		opsf("aborting: %v exceeds tolerance %v", v, tol)
		return fmt.Errorf("%w: %v exceeds tolerance %v", ErrTimingViolation, v, tol)
	case TimingBestEffort:
		opsf("%v exceeds tolerance %v", v, tol)
	}
	return nil
}
