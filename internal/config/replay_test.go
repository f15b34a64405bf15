package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/retry"
	"github.com/banshee-data/pulse.replay/internal/waveform"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// The defaults file and the Get* fallbacks must agree, so an empty config
// behaves exactly like the shipped defaults.
func TestDefaultsFileMatchesAccessors(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	empty := EmptyReplayConfig()

	if diff := cmp.Diff(empty.BitstreamOptions(), fromFile.BitstreamOptions()); diff != "" {
		t.Errorf("BitstreamOptions mismatch (-empty +file):\n%s", diff)
	}
	if diff := cmp.Diff(empty.WaveformConfig(), fromFile.WaveformConfig()); diff != "" {
		t.Errorf("WaveformConfig mismatch (-empty +file):\n%s", diff)
	}
	if diff := cmp.Diff(empty.Plan(), fromFile.Plan()); diff != "" {
		t.Errorf("Plan mismatch (-empty +file):\n%s", diff)
	}
	if diff := cmp.Diff(empty.Header(), fromFile.Header()); diff != "" {
		t.Errorf("Header mismatch (-empty +file):\n%s", diff)
	}
	if empty.PortOptions() != fromFile.PortOptions() {
		t.Errorf("PortOptions = %+v, want %+v", fromFile.PortOptions(), empty.PortOptions())
	}
	for name, pair := range map[string][2]string{
		"idle_command": {empty.GetIdleCommand(), fromFile.GetIdleCommand()},
		"serial_port":  {empty.GetSerialPort(), fromFile.GetSerialPort()},
		"gpio_pin":     {empty.GetGPIOPin(), fromFile.GetGPIOPin()},
		"catalog_path": {empty.GetCatalogPath(), fromFile.GetCatalogPath()},
		"journal_path": {empty.GetJournalPath(), fromFile.GetJournalPath()},
	} {
		if pair[0] != pair[1] {
			t.Errorf("%s: accessor default %q, file %q", name, pair[0], pair[1])
		}
	}
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyReplayConfig()

	if got := cfg.BitstreamOptions(); got != (bitstream.Options{TimeUnitUS: 510, Rounding: bitstream.RoundHalfEven}) {
		t.Errorf("BitstreamOptions() = %+v", got)
	}
	want := retry.Plan{
		WakeDuration:  30 * time.Second,
		WakeInterval:  200 * time.Millisecond,
		BurstCount:    10,
		BurstInterval: 100 * time.Millisecond,
	}
	if got := cfg.Plan(); got != want {
		t.Errorf("Plan() = %+v, want %+v", got, want)
	}
	if got := cfg.WaveformConfig(); got.Header != nil || got.Mode != radio.ModePacket {
		t.Errorf("WaveformConfig() = %+v", got)
	}
	if got := cfg.PortOptions().String(); got != "9600 8N1" {
		t.Errorf("PortOptions() = %q", got)
	}
}

func TestLoadReplayConfig(t *testing.T) {
	path := writeConfig(t, "replay.json", `{
  "time_unit_us": 400,
  "rounding": "truncate",
  "mode": "bitbang",
  "bit_duration": "250us",
  "timing_policy": "strict",
  "wake_duration": "0s",
  "burst_count": 3,
  "use_header": true,
  "target_address": 4660,
  "target_frequency_mhz": 433
}`)

	cfg, err := LoadReplayConfig(path)
	if err != nil {
		t.Fatalf("LoadReplayConfig() error = %v", err)
	}

	if got := cfg.BitstreamOptions(); got.TimeUnitUS != 400 || got.Rounding != bitstream.RoundTruncate {
		t.Errorf("BitstreamOptions() = %+v", got)
	}
	wc := cfg.WaveformConfig()
	if wc.Mode != radio.ModeBitBang || wc.BitDuration != 250*time.Microsecond || wc.Timing != waveform.TimingStrict {
		t.Errorf("WaveformConfig() = %+v", wc)
	}
	if wc.Header != nil {
		t.Errorf("header must not be attached in bitbang mode")
	}
	if p := cfg.Plan(); p.WakeDuration != 0 || p.BurstCount != 3 || p.WakeInterval != 200*time.Millisecond {
		t.Errorf("Plan() = %+v", p)
	}
	h := cfg.Header()
	if h.Target != 0x1234 || h.TargetFreqMHz != 433 || h.Source != 0 || h.SourceFreqMHz != 868 {
		t.Errorf("Header() = %+v", h)
	}
}

func TestWaveformConfig_HeaderInPacketMode(t *testing.T) {
	cfg := &ReplayConfig{UseHeader: ptrBool(true), Mode: ptrString("packet")}
	wc := cfg.WaveformConfig()
	if wc.Header == nil || wc.Header.Target != radio.Broadcast {
		t.Errorf("expected broadcast header, got %+v", wc.Header)
	}
}

func TestLoadReplayConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "replay.yaml", `{}`, ".json extension"},
		{"bad json", "replay.json", `{`, "parse config JSON"},
		{"zero time unit", "replay.json", `{"time_unit_us": 0}`, "time_unit_us"},
		{"bad rounding", "replay.json", `{"rounding": "ceil"}`, "rounding"},
		{"bad mode", "replay.json", `{"mode": "spi"}`, "mode"},
		{"bad policy", "replay.json", `{"timing_policy": "lax"}`, "timing policy"},
		{"bad duration", "replay.json", `{"wake_interval": "soon"}`, "wake_interval"},
		{"negative duration", "replay.json", `{"burst_interval": "-1s"}`, "burst_interval"},
		{"guard bits", "replay.json", `{"guard_bits": 0}`, "guard_bits"},
		{"burst count", "replay.json", `{"burst_count": -2}`, "burst_count"},
		{"address range", "replay.json", `{"target_address": 70000}`, "target_address"},
		{"header frequency", "replay.json", `{"use_header": true, "source_frequency_mhz": 600}`, "addressed header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadReplayConfig(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadReplayConfig_TooLarge(t *testing.T) {
	body := `{"idle_command": "` + strings.Repeat("x", 1<<20) + `"}`
	path := writeConfig(t, "big.json", body)
	if _, err := LoadReplayConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestLoadReplayConfig_Missing(t *testing.T) {
	if _, err := LoadReplayConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetters_FallBackOnUnparseable(t *testing.T) {
	// Values that bypassed Validate still yield usable defaults.
	cfg := &ReplayConfig{
		BitDuration:  ptrString("fast"),
		Rounding:     ptrString("?"),
		Mode:         ptrString("?"),
		TimingPolicy: ptrString("?"),
		BurstCount:   ptrInt(4),
	}
	if cfg.GetBitDuration() != waveform.DefaultBitDuration {
		t.Errorf("GetBitDuration() = %v", cfg.GetBitDuration())
	}
	if cfg.GetRounding() != bitstream.RoundHalfEven || cfg.GetMode() != radio.ModePacket || cfg.GetTimingPolicy() != waveform.TimingBestEffort {
		t.Errorf("unexpected fallbacks")
	}
	if cfg.GetBurstCount() != 4 {
		t.Errorf("GetBurstCount() = %d", cfg.GetBurstCount())
	}
}
