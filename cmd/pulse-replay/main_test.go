package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.replay/internal/catalog"
	"github.com/banshee-data/pulse.replay/internal/config"
	"github.com/banshee-data/pulse.replay/internal/fsutil"
	"github.com/banshee-data/pulse.replay/internal/journal"
	"github.com/banshee-data/pulse.replay/internal/monitoring"
	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/radio/stub"
	"github.com/banshee-data/pulse.replay/internal/radio/uart"
	"github.com/banshee-data/pulse.replay/internal/timeutil"
)

const testCapture = `Filetype: Flipper SubGhz RAW File
Version: 1
Frequency: 868000000
Preset: FuriHalSubGhzPresetOok650Async
Protocol: RAW
RAW_Data: 510 -510 1020 -1020
`

type testEnv struct {
	app       *app
	fs        *fsutil.MemoryFileSystem
	clock     *timeutil.MockClock
	transport *stub.Transport
	journal   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })

	env := &testEnv{
		fs:      fsutil.NewMemoryFileSystem(),
		clock:   timeutil.NewMockClock(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)),
		journal: filepath.Join(t.TempDir(), "replay.db"),
	}
	env.fs.Put("cap.sub", []byte(testCapture))

	a := newApp()
	a.fs = env.fs
	a.clock = env.clock
	a.openJournal = func(path string) (*journal.Journal, error) {
		return journal.OpenWithClock(path, env.clock)
	}
	a.openTransport = func(mode radio.Mode, dryRun bool) (radio.Transport, error) {
		if mode == radio.ModeBitBang {
			env.transport = stub.NewKeyed(env.clock)
		} else {
			env.transport = stub.NewPacket(env.clock)
		}
		return env.transport, nil
	}
	env.app = a
	return env
}

// run executes the CLI and returns stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(e.app)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"hex", []string{"encode", "cap.sub"}, "b0\n"},
		{"c named after file", []string{"encode", "-f", "c", "cap.sub"}, "{0xb0}, // cap\n"},
		{"c with name", []string{"encode", "-f", "c", "--name", "gold", "cap.sub"}, "{0xb0}, // gold\n"},
		{"truncate at coarser unit", []string{"encode", "--time-unit", "1020", "--rounding", "truncate", "cap.sub"}, "80\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			out, err := env.run(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestEncode_RawToFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "encode", "-f", "raw", "-o", "out.bin", "cap.sub")
	require.NoError(t, err)

	got, err := env.fs.ReadFile("out.bin")
	require.NoError(t, err)
	if diff := cmp.Diff([]byte{0xb0}, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.fs.Put("bad.sub", []byte("RAW_Data: 500 -x\n"))

	_, err := env.run(t, "encode", "-f", "yaml", "cap.sub")
	assert.ErrorContains(t, err, "unknown format")

	_, err = env.run(t, "encode", "missing.sub")
	assert.Error(t, err)

	_, err = env.run(t, "encode", "bad.sub")
	assert.ErrorContains(t, err, "malformed capture")

	_, err = env.run(t, "encode", "--time-unit", "-1", "cap.sub")
	assert.ErrorContains(t, err, "invalid time unit")
}

func TestSend_DefaultPlanFromCatalog(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "send", "--journal", env.journal, "gold")
	require.NoError(t, err)

	assert.Contains(t, out, "gold_fade_in: wake=150 burst=10 elapsed=30.9s")

	payloads := env.transport.Payloads()
	require.Len(t, payloads, 160)
	cat := catalog.New(env.fs, config.EmptyReplayConfig().BitstreamOptions())
	wake, err := cat.Payload("nothing")
	require.NoError(t, err)
	gold, err := cat.Payload("gold_fade_in")
	require.NoError(t, err)
	assert.Equal(t, wake, payloads[0])
	assert.Equal(t, gold, payloads[159])
	assert.True(t, env.transport.Closed(), "transport should be closed after send")
}

func TestSend_OverridesAndHistory(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "send", "--journal", env.journal, "--no-wake", "--bursts", "3", "--interval", "50ms", "--hex", "aa aa 55")
	require.NoError(t, err)
	assert.Contains(t, out, "hex: wake=0 burst=3 elapsed=100ms")
	assert.Len(t, env.transport.Payloads(), 3)

	out, err = env.run(t, "history", "--journal", env.journal)
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "hex")
	assert.Contains(t, out, "ok")

	j, err := journal.Open(env.journal)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "aaaa55", runs[0].PayloadHex)
	assert.Equal(t, 3, runs[0].BurstSent)

	out, err = env.run(t, "history", "--journal", env.journal, "--run", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"payload_hex": "aaaa55"`)
}

func TestSend_CaptureInBitBangMode(t *testing.T) {
	env := newTestEnv(t)
	env.clock.SetStep(time.Microsecond)

	_, err := env.run(t, "send", "--no-journal", "--mode", "bitbang", "--no-wake", "--bursts", "1", "--capture", "cap.sub")
	require.NoError(t, err)

	// 0xb0: high, low, high high, then low.
	var levels []bool
	for _, e := range env.transport.Edges() {
		levels = append(levels, e.Level)
	}
	assert.Equal(t, []bool{true, false, true, false}, levels)
	assert.Empty(t, env.transport.Payloads())
}

func TestSend_TransportFailureIsJournalled(t *testing.T) {
	env := newTestEnv(t)
	open := env.app.openTransport
	env.app.openTransport = func(mode radio.Mode, dryRun bool) (radio.Transport, error) {
		tr, err := open(mode, dryRun)
		env.transport.FailSend(2, assert.AnError)
		return tr, err
	}

	_, err := env.run(t, "send", "--journal", env.journal, "--no-wake", "white")
	require.ErrorIs(t, err, radio.ErrTransportFailure)

	j, err := journal.Open(env.journal)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.StatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].BurstSent)
	assert.Contains(t, runs[0].Error, "burst attempt 2")
}

func TestSend_WakeFailureStillBursts(t *testing.T) {
	env := newTestEnv(t)
	open := env.app.openTransport
	env.app.openTransport = func(mode radio.Mode, dryRun bool) (radio.Transport, error) {
		tr, err := open(mode, dryRun)
		env.transport.FailSend(2, assert.AnError)
		return tr, err
	}

	_, err := env.run(t, "send", "--journal", env.journal, "--bursts", "3", "white")
	require.ErrorIs(t, err, radio.ErrTransportFailure)

	j, err := journal.Open(env.journal)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.StatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].WakeSent)
	assert.Equal(t, 3, runs[0].BurstSent)
	assert.Contains(t, runs[0].Error, "wake attempt 2")
}

func TestSend_BadInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "send", "--no-journal")
	assert.ErrorContains(t, err, "exactly one")

	_, err = env.run(t, "send", "--no-journal", "--hex", "aa", "gold")
	assert.ErrorContains(t, err, "exactly one")

	_, err = env.run(t, "send", "--no-journal", "purple")
	assert.ErrorIs(t, err, catalog.ErrUnknownCommand)

	_, err = env.run(t, "send", "--no-journal", "--mode", "morse", "gold")
	assert.ErrorContains(t, err, "unknown transmit mode")
}

func TestHardwareTransport_DryRun(t *testing.T) {
	a := newApp()
	a.cfg = config.EmptyReplayConfig()

	tr, err := a.hardwareTransport(radio.ModePacket, true)
	require.NoError(t, err)
	assert.IsType(t, &uart.Disabled{}, tr)

	tr, err = a.hardwareTransport(radio.ModeBitBang, true)
	require.NoError(t, err)
	assert.True(t, tr.Capabilities().DirectKeying)
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "preview", "-o", "cap.html", "cap.sub")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote cap.html")
	html, err := env.fs.ReadFile("cap.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "capture")
	assert.Contains(t, string(html), "payload @ 510µs")

	_, err = env.run(t, "preview", "-o", "gold.png", "--command", "gold")
	require.NoError(t, err)
	png, err := env.fs.ReadFile("gold.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = env.run(t, "preview", "-o", "x.gif", "cap.sub")
	assert.ErrorContains(t, err, "unsupported preview format")

	_, err = env.run(t, "preview")
	assert.Error(t, err)
}

func localHostRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:54321"
	return req
}

func TestDebugMux(t *testing.T) {
	env := newTestEnv(t)
	j, err := journal.Open(env.journal)
	require.NoError(t, err)
	defer j.Close()

	cat := catalog.New(env.fs, config.EmptyReplayConfig().BitstreamOptions())
	mux, err := newDebugMux(uart.NewDisabled(), j, cat, 510)
	require.NoError(t, err)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/debug/preview?command=gold", http.StatusOK, "gold_fade_in"},
		{"/debug/preview", http.StatusOK, "rand_turq_blink"},
		{"/debug/preview?command=purple", http.StatusNotFound, "unknown command"},
		{"/debug/runs", http.StatusOK, "null"},
		{"/debug/serial-disabled", http.StatusOK, "serial disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, localHostRequest(tt.path))
			assert.Equal(t, tt.status, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), tt.body), "body %q missing %q", rec.Body.String(), tt.body)
		})
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pulse-replay "))

	// Bad config paths must not break version.
	out, err = env.run(t, "--config", "missing.json", "version")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestConfigFlag_Rejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "--config", "settings.yaml", "encode", "cap.sub")
	assert.ErrorContains(t, err, ".json")
}
