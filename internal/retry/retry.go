// Package retry wakes a possibly sleeping receiver and then delivers a
// command in a burst of repeats.
//
// A send has two phases. The wake phase repeats the idle command at a fixed
// interval until the wake window has elapsed, so a receiver that polls the
// channel periodically is guaranteed to hear it. The burst phase then repeats
// the real command a fixed number of times. Cancellation is only honoured
// between transmissions; a transmission in progress always completes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pulse.replay/internal/timeutil"
	"github.com/banshee-data/pulse.replay/internal/waveform"
)

// ErrStopped is returned when Stop ends a send early.
var ErrStopped = errors.New("send stopped")

// Transmitter is what the scheduler drives; *waveform.Transmitter
// satisfies it.
type Transmitter interface {
	Transmit(ctx context.Context, payload []byte) (*waveform.Report, error)
	Idle() error
}

// Command is a named payload with its preferred repeat schedule.
type Command struct {
	Name    string
	Payload []byte
	// Repeat and Interval are the command's own burst preferences; zero
	// values leave the plan's settings alone.
	Repeat   int
	Interval time.Duration
}

// Plan is the timing of one send.
type Plan struct {
	WakeDuration  time.Duration
	WakeInterval  time.Duration
	BurstCount    int
	BurstInterval time.Duration
}

// DefaultPlan is the schedule that reliably wakes the reference receiver:
// thirty seconds of idle traffic every 200ms, then ten repeats 100ms apart.
func DefaultPlan() Plan {
	return Plan{
		WakeDuration:  30 * time.Second,
		WakeInterval:  200 * time.Millisecond,
		BurstCount:    10,
		BurstInterval: 100 * time.Millisecond,
	}
}

// WithCommand applies the command's own repeat preferences, if any.
func (p Plan) WithCommand(cmd Command) Plan {
	if cmd.Repeat > 0 {
		p.BurstCount = cmd.Repeat
	}
	if cmd.Interval > 0 {
		p.BurstInterval = cmd.Interval
	}
	return p
}

// Validate rejects plans that cannot terminate or make no sense.
func (p Plan) Validate() error {
	if p.WakeDuration < 0 || p.WakeInterval < 0 || p.BurstInterval < 0 {
		return fmt.Errorf("negative interval in plan %+v", p)
	}
	if p.WakeDuration > 0 && p.WakeInterval == 0 {
		return errors.New("wake interval must be positive when a wake phase is planned")
	}
	if p.BurstCount < 0 {
		return fmt.Errorf("invalid burst count %d", p.BurstCount)
	}
	return nil
}

// Phase identifies the part of a send.
type Phase int

const (
	PhaseWake Phase = iota
	PhaseBurst
)

func (p Phase) String() string {
	switch p {
	case PhaseWake:
		return "wake"
	case PhaseBurst:
		return "burst"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// PhaseError reports the transmission that aborted a send.
type PhaseError struct {
	Phase   Phase
	Attempt int // 1-based within the phase
	Err     error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s attempt %d: %v", e.Phase, e.Attempt, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Result summarises a send, including one that ended early.
type Result struct {
	WakeSent  int
	BurstSent int
	Elapsed   time.Duration
	Stopped   bool
}

// Scheduler runs one send at a time over a transmitter.
type Scheduler struct {
	tx    Transmitter
	clock timeutil.Clock
	idle  Command

	sendMu sync.Mutex

	mu   sync.Mutex
	stop chan struct{}
}

// NewScheduler returns a scheduler that uses idle as wake-up traffic. An
// idle command without payload disables the wake phase.
func NewScheduler(tx Transmitter, clock timeutil.Clock, idle Command) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{tx: tx, clock: clock, idle: idle}
}

// Stop ends the send in progress at its next transmission boundary. It is a
// no-op when nothing is being sent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Send wakes the receiver and delivers cmd per plan. A failed wake
// transmission still lets the burst phase run; its *PhaseError is returned
// joined with any burst error. The transmitter is idled on every exit path.
func (s *Scheduler) Send(ctx context.Context, cmd Command, plan Plan) (res Result, err error) {
	if len(cmd.Payload) == 0 {
		return res, fmt.Errorf("command %q has no payload", cmd.Name)
	}
	if err := plan.Validate(); err != nil {
		return res, err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	start := s.clock.Now()
	defer func() {
		s.mu.Lock()
		s.stop = nil
		s.mu.Unlock()

		if idleErr := s.tx.Idle(); idleErr != nil {
			opsf("failed to idle transmitter: %v", idleErr)
			if err == nil {
				err = fmt.Errorf("failed to idle transmitter: %w", idleErr)
			}
		}
		res.Elapsed = s.clock.Since(start)
		if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Stopped = true
			opsf("send of %q stopped after %d wake and %d burst transmissions", cmd.Name, res.WakeSent, res.BurstSent)
		}
	}()

	// A transport failure ends only its own phase. Stop and cancellation
	// end the whole send.
	var phaseErr *PhaseError
	wakeErr := s.wake(ctx, stop, plan, start, &res)
	if wakeErr != nil && !errors.As(wakeErr, &phaseErr) {
		return res, wakeErr
	}
	diagf("wake phase done: %d transmissions", res.WakeSent)

	burstErr := s.burst(ctx, stop, cmd, plan, &res)
	if burstErr == nil {
		diagf("burst phase done: %q sent %d times", cmd.Name, res.BurstSent)
	}
	if wakeErr == nil {
		return res, burstErr
	}
	return res, errors.Join(wakeErr, burstErr)
}

func (s *Scheduler) wake(ctx context.Context, stop <-chan struct{}, plan Plan, start time.Time, res *Result) error {
	if plan.WakeDuration <= 0 || len(s.idle.Payload) == 0 {
		return nil
	}
	deadline := start.Add(plan.WakeDuration)
	for attempt := 1; s.clock.Now().Before(deadline); attempt++ {
		if err := checkStop(ctx, stop); err != nil {
			return err
		}
		if _, err := s.tx.Transmit(ctx, s.idle.Payload); err != nil {
			opsf("wake transmission %d failed: %v", attempt, err)
			return &PhaseError{Phase: PhaseWake, Attempt: attempt, Err: err}
		}
		res.WakeSent++
		tracef("wake %d sent", attempt)
		if err := s.wait(ctx, stop, plan.WakeInterval); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) burst(ctx context.Context, stop <-chan struct{}, cmd Command, plan Plan, res *Result) error {
	for attempt := 1; attempt <= plan.BurstCount; attempt++ {
		if attempt > 1 {
			if err := s.wait(ctx, stop, plan.BurstInterval); err != nil {
				return err
			}
		}
		if err := checkStop(ctx, stop); err != nil {
			return err
		}
		if _, err := s.tx.Transmit(ctx, cmd.Payload); err != nil {
			opsf("burst transmission %d of %q failed: %v", attempt, cmd.Name, err)
			return &PhaseError{Phase: PhaseBurst, Attempt: attempt, Err: err}
		}
		res.BurstSent++
		tracef("burst %d/%d of %q sent", attempt, plan.BurstCount, cmd.Name)
	}
	return nil
}

func checkStop(ctx context.Context, stop <-chan struct{}) error {
	select {
	case <-stop:
		return ErrStopped
	default:
	}
	return ctx.Err()
}

func (s *Scheduler) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) error {
	if d <= 0 {
		return checkStop(ctx, stop)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrStopped
	case <-s.clock.After(d):
		return nil
	}
}
