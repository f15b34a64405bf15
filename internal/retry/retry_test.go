package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/radio/stub"
	"github.com/banshee-data/pulse.replay/internal/timeutil"
	"github.com/banshee-data/pulse.replay/internal/waveform"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	wakeCmd = Command{Name: "nothing", Payload: []byte{0xaa, 0xaa, 0x55, 0xa1}}
	goldCmd = Command{Name: "gold_fade_in", Payload: []byte{0xaa, 0xaa, 0x65, 0x21}}
)

// fakeTransmitter records payloads and clock times, and can fail or run a
// hook on a given call.
type fakeTransmitter struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	sent   [][]byte
	at     []time.Time
	idles  int
	calls  int
	failOn int
	err    error
	hook   func(n int)
}

func (f *fakeTransmitter) Transmit(_ context.Context, payload []byte) (*waveform.Report, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	if n == f.failOn {
		f.mu.Unlock()
		return nil, f.err
	}
	f.sent = append(f.sent, payload)
	f.at = append(f.at, f.clock.Now())
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return &waveform.Report{Mode: radio.ModePacket, Bytes: len(payload)}, nil
}

func (f *fakeTransmitter) Idle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idles++
	return nil
}

func (f *fakeTransmitter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		if p[2] == wakeCmd.Payload[2] {
			out[i] = "wake"
		} else {
			out[i] = "cmd"
		}
	}
	return out
}

func TestSend_DefaultPlan(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)

	res, err := s.Send(context.Background(), goldCmd, DefaultPlan())
	require.NoError(t, err)

	assert.Equal(t, 150, res.WakeSent)
	assert.Equal(t, 10, res.BurstSent)
	assert.False(t, res.Stopped)
	assert.Equal(t, 30*time.Second+900*time.Millisecond, res.Elapsed)
	assert.Equal(t, 1, tx.idles)

	names := tx.names()
	require.Len(t, names, 160)
	for i, n := range names {
		if i < 150 {
			assert.Equal(t, "wake", n, "transmission %d", i)
		} else {
			assert.Equal(t, "cmd", n, "transmission %d", i)
		}
	}

	// Burst repeats are exactly one interval apart.
	for i := 151; i < 160; i++ {
		assert.Equal(t, 100*time.Millisecond, tx.at[i].Sub(tx.at[i-1]))
	}
	// The burst starts only after the wake window has elapsed.
	assert.False(t, tx.at[150].Before(base.Add(30*time.Second)))
}

func TestSend_ZeroWakeDurationSkipsWakePhase(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)

	plan := DefaultPlan()
	plan.WakeDuration = 0
	res, err := s.Send(context.Background(), goldCmd, plan)
	require.NoError(t, err)

	assert.Zero(t, res.WakeSent)
	assert.Equal(t, 10, res.BurstSent)
	assert.Equal(t, 900*time.Millisecond, res.Elapsed)
}

func TestSend_EmptyIdleCommandSkipsWakePhase(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, Command{Name: "none"})

	res, err := s.Send(context.Background(), goldCmd, DefaultPlan())
	require.NoError(t, err)
	assert.Zero(t, res.WakeSent)
}

func TestSend_WaitsRecordedOnClock(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)

	plan := Plan{WakeDuration: time.Second, WakeInterval: 400 * time.Millisecond, BurstCount: 3, BurstInterval: 50 * time.Millisecond}
	res, err := s.Send(context.Background(), goldCmd, plan)
	require.NoError(t, err)

	assert.Equal(t, 3, res.WakeSent)
	want := []time.Duration{
		400 * time.Millisecond, 400 * time.Millisecond, 400 * time.Millisecond,
		50 * time.Millisecond, 50 * time.Millisecond,
	}
	assert.Equal(t, want, clock.Sleeps())
}

func TestSend_StopDuringBurst(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)
	tx.hook = func(n int) {
		if n == 3 {
			s.Stop()
		}
	}

	plan := DefaultPlan()
	plan.WakeDuration = 0
	res, err := s.Send(context.Background(), goldCmd, plan)

	assert.ErrorIs(t, err, ErrStopped)
	assert.True(t, res.Stopped)
	assert.Equal(t, 3, res.BurstSent, "no transmission may start after Stop")
	assert.Equal(t, 1, tx.idles)
}

func TestSend_ContextCancelDuringWake(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)

	ctx, cancel := context.WithCancel(context.Background())
	tx.hook = func(n int) {
		if n == 5 {
			cancel()
		}
	}

	res, err := s.Send(ctx, goldCmd, DefaultPlan())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Stopped)
	assert.Equal(t, 5, res.WakeSent)
	assert.Zero(t, res.BurstSent)
	assert.Equal(t, 1, tx.idles)
}

func TestSend_TransmitFailureAbortsPhase(t *testing.T) {
	tests := []struct {
		name      string
		failOn    int
		wantPhase Phase
		wantTry   int
		wantWake  int
		wantBurst int
	}{
		{"wake failure ends the wake phase only", 4, PhaseWake, 4, 3, 10},
		{"burst failure aborts remaining repeats", 153, PhaseBurst, 3, 150, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewMockClock(base)
			boom := radio.Fail("send", errors.New("uart gone"))
			tx := &fakeTransmitter{clock: clock, failOn: tt.failOn, err: boom}
			s := NewScheduler(tx, clock, wakeCmd)

			res, err := s.Send(context.Background(), goldCmd, DefaultPlan())

			var pe *PhaseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantPhase, pe.Phase)
			assert.Equal(t, tt.wantTry, pe.Attempt)
			assert.ErrorIs(t, err, radio.ErrTransportFailure)
			assert.False(t, res.Stopped)
			assert.Equal(t, tt.wantWake, res.WakeSent)
			assert.Equal(t, tt.wantBurst, res.BurstSent)
			assert.Equal(t, 1, tx.idles, "transmitter must be idled after failure")
		})
	}
}

func TestSend_StopAfterWakeFailureEndsSend(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	boom := radio.Fail("send", errors.New("uart gone"))
	tx := &fakeTransmitter{clock: clock, failOn: 2, err: boom}
	s := NewScheduler(tx, clock, wakeCmd)
	tx.hook = func(n int) {
		if n == 4 {
			s.Stop()
		}
	}

	res, err := s.Send(context.Background(), goldCmd, DefaultPlan())

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseWake, pe.Phase)
	assert.ErrorIs(t, err, ErrStopped)
	assert.True(t, res.Stopped)
	assert.Equal(t, 1, res.WakeSent)
	assert.Equal(t, 2, res.BurstSent)
	assert.Equal(t, 1, tx.idles)
}

func TestSend_RejectsBadInput(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)

	_, err := s.Send(context.Background(), Command{Name: "empty"}, DefaultPlan())
	assert.Error(t, err)

	_, err = s.Send(context.Background(), goldCmd, Plan{WakeDuration: time.Second})
	assert.Error(t, err)

	_, err = s.Send(context.Background(), goldCmd, Plan{BurstCount: -1})
	assert.Error(t, err)
	assert.Empty(t, tx.sent)
}

func TestStop_NoSendInProgress(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tx := &fakeTransmitter{clock: clock}
	s := NewScheduler(tx, clock, wakeCmd)

	s.Stop()
	res, err := s.Send(context.Background(), goldCmd, Plan{BurstCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.BurstSent)
}

func TestPlan_WithCommand(t *testing.T) {
	p := DefaultPlan().WithCommand(Command{Repeat: 3, Interval: time.Second})
	assert.Equal(t, 3, p.BurstCount)
	assert.Equal(t, time.Second, p.BurstInterval)

	p = DefaultPlan().WithCommand(Command{Repeat: 5})
	assert.Equal(t, 5, p.BurstCount)
	assert.Equal(t, DefaultPlan().BurstInterval, p.BurstInterval)

	p = DefaultPlan().WithCommand(Command{})
	assert.Equal(t, DefaultPlan(), p)
}

func TestSend_ThroughWaveformTransmitter(t *testing.T) {
	clock := timeutil.NewMockClock(base)
	tr := stub.NewPacket(clock)
	wtx, err := waveform.NewTransmitter(tr, clock, waveform.DefaultConfig())
	require.NoError(t, err)
	s := NewScheduler(wtx, clock, wakeCmd)

	plan := Plan{WakeDuration: time.Second, WakeInterval: 200 * time.Millisecond, BurstCount: 2, BurstInterval: 100 * time.Millisecond}
	res, err := s.Send(context.Background(), goldCmd, plan)
	require.NoError(t, err)

	payloads := tr.Payloads()
	require.Len(t, payloads, 7)
	assert.Equal(t, 5, res.WakeSent)
	assert.Equal(t, wakeCmd.Payload, payloads[0])
	assert.Equal(t, goldCmd.Payload, payloads[6])
}
