package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/radio/uart"
	"github.com/banshee-data/pulse.replay/internal/retry"
	"github.com/banshee-data/pulse.replay/internal/waveform"
)

// DefaultConfigPath is the path to the canonical replay defaults file.
const DefaultConfigPath = "config/replay.defaults.json"

// ReplayConfig is the root configuration of pulse-replay. Every field is
// optional; the Get* accessors supply the default for anything unset.
type ReplayConfig struct {
	// Encoder
	TimeUnitUS   *int    `json:"time_unit_us,omitempty"`
	Rounding     *string `json:"rounding,omitempty"` // "half_even" or "truncate"
	MinOneSymbol *bool   `json:"min_one_symbol,omitempty"`

	// Transmitter
	Mode            *string `json:"mode,omitempty"`         // "packet" or "bitbang"
	BitDuration     *string `json:"bit_duration,omitempty"` // duration string like "500us"
	GuardBits       *int    `json:"guard_bits,omitempty"`
	TimingPolicy    *string `json:"timing_policy,omitempty"`
	TimingTolerance *string `json:"timing_tolerance,omitempty"`

	// Scheduler
	WakeDuration  *string `json:"wake_duration,omitempty"`
	WakeInterval  *string `json:"wake_interval,omitempty"`
	BurstCount    *int    `json:"burst_count,omitempty"`
	BurstInterval *string `json:"burst_interval,omitempty"`
	IdleCommand   *string `json:"idle_command,omitempty"`

	// Hardware
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	GPIOPin    *string `json:"gpio_pin,omitempty"`

	// Addressed header
	UseHeader          *bool `json:"use_header,omitempty"`
	TargetAddress      *int  `json:"target_address,omitempty"`
	TargetFrequencyMHz *int  `json:"target_frequency_mhz,omitempty"`
	SourceAddress      *int  `json:"source_address,omitempty"`
	SourceFrequencyMHz *int  `json:"source_frequency_mhz,omitempty"`

	// Files
	CatalogPath *string `json:"catalog_path,omitempty"`
	JournalPath *string `json:"journal_path,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyReplayConfig returns a ReplayConfig with all fields set to nil.
func EmptyReplayConfig() *ReplayConfig {
	return &ReplayConfig{}
}

// LoadReplayConfig loads a ReplayConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadReplayConfig(path string) (*ReplayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReplayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *ReplayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/radio/uart/
	}
	for _, path := range candidates {
		if cfg, err := LoadReplayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, *v)
	}
	return nil
}

func validAddress(name string, v *int) error {
	if v != nil && (*v < 0 || *v > 0xFFFF) {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *ReplayConfig) Validate() error {
	if c.TimeUnitUS != nil && *c.TimeUnitUS <= 0 {
		return fmt.Errorf("time_unit_us must be positive, got %d", *c.TimeUnitUS)
	}
	if c.Rounding != nil {
		if _, err := bitstream.ParseRounding(*c.Rounding); err != nil {
			return err
		}
	}
	if c.Mode != nil {
		if _, err := radio.ParseMode(*c.Mode); err != nil {
			return err
		}
	}
	if c.TimingPolicy != nil {
		if _, err := waveform.ParseTimingPolicy(*c.TimingPolicy); err != nil {
			return err
		}
	}
	for name, v := range map[string]*string{
		"bit_duration":     c.BitDuration,
		"timing_tolerance": c.TimingTolerance,
		"wake_duration":    c.WakeDuration,
		"wake_interval":    c.WakeInterval,
		"burst_interval":   c.BurstInterval,
	} {
		if err := validDuration(name, v); err != nil {
			return err
		}
	}
	if c.GuardBits != nil && *c.GuardBits < 1 {
		return fmt.Errorf("guard_bits must be at least 1, got %d", *c.GuardBits)
	}
	if c.BurstCount != nil && *c.BurstCount < 0 {
		return fmt.Errorf("burst_count must be non-negative, got %d", *c.BurstCount)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if err := validAddress("target_address", c.TargetAddress); err != nil {
		return err
	}
	if err := validAddress("source_address", c.SourceAddress); err != nil {
		return err
	}
	if c.GetUseHeader() {
		if _, err := c.Header().Frame(nil); err != nil {
			return fmt.Errorf("addressed header: %w", err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetTimeUnitUS returns the encoder time unit in µs.
func (c *ReplayConfig) GetTimeUnitUS() int {
	if c.TimeUnitUS == nil {
		return 510
	}
	return *c.TimeUnitUS
}

// GetRounding returns the encoder rounding rule.
func (c *ReplayConfig) GetRounding() bitstream.Rounding {
	if c.Rounding == nil {
		return bitstream.RoundHalfEven
	}
	r, err := bitstream.ParseRounding(*c.Rounding)
	if err != nil {
		return bitstream.RoundHalfEven
	}
	return r
}

// GetMinOneSymbol returns the min_one_symbol value or the default.
func (c *ReplayConfig) GetMinOneSymbol() bool {
	if c.MinOneSymbol == nil {
		return false
	}
	return *c.MinOneSymbol
}

// GetMode returns the transmit mode.
func (c *ReplayConfig) GetMode() radio.Mode {
	if c.Mode == nil {
		return radio.ModePacket
	}
	m, err := radio.ParseMode(*c.Mode)
	if err != nil {
		return radio.ModePacket
	}
	return m
}

// GetBitDuration returns the keyed bit duration.
func (c *ReplayConfig) GetBitDuration() time.Duration {
	return durationOr(c.BitDuration, waveform.DefaultBitDuration)
}

// GetGuardBits returns the guard_bits value or the default.
func (c *ReplayConfig) GetGuardBits() int {
	if c.GuardBits == nil {
		return waveform.DefaultGuardBits
	}
	return *c.GuardBits
}

// GetTimingPolicy returns the timing policy.
func (c *ReplayConfig) GetTimingPolicy() waveform.TimingPolicy {
	if c.TimingPolicy == nil {
		return waveform.TimingBestEffort
	}
	p, err := waveform.ParseTimingPolicy(*c.TimingPolicy)
	if err != nil {
		return waveform.TimingBestEffort
	}
	return p
}

// GetTimingTolerance returns the edge skew tolerance.
func (c *ReplayConfig) GetTimingTolerance() time.Duration {
	return durationOr(c.TimingTolerance, waveform.DefaultTolerance)
}

// GetWakeDuration returns the wake window.
func (c *ReplayConfig) GetWakeDuration() time.Duration {
	return durationOr(c.WakeDuration, 30*time.Second)
}

// GetWakeInterval returns the gap between wake transmissions.
func (c *ReplayConfig) GetWakeInterval() time.Duration {
	return durationOr(c.WakeInterval, 200*time.Millisecond)
}

// GetBurstCount returns the burst_count value or the default.
func (c *ReplayConfig) GetBurstCount() int {
	if c.BurstCount == nil {
		return 10
	}
	return *c.BurstCount
}

// GetBurstInterval returns the gap between burst repeats.
func (c *ReplayConfig) GetBurstInterval() time.Duration {
	return durationOr(c.BurstInterval, 100*time.Millisecond)
}

// GetIdleCommand returns the catalog name of the wake-up command.
func (c *ReplayConfig) GetIdleCommand() string {
	if c.IdleCommand == nil {
		return "nothing"
	}
	return *c.IdleCommand
}

// GetSerialPort returns the serial device path.
func (c *ReplayConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyS0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the serial baud rate.
func (c *ReplayConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return uart.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetGPIOPin returns the name of the keying pin.
func (c *ReplayConfig) GetGPIOPin() string {
	if c.GPIOPin == nil || *c.GPIOPin == "" {
		return "GPIO23"
	}
	return *c.GPIOPin
}

// GetUseHeader returns the use_header value or the default.
func (c *ReplayConfig) GetUseHeader() bool {
	if c.UseHeader == nil {
		return false
	}
	return *c.UseHeader
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetCatalogPath returns the command catalog path; empty means built-in
// commands only.
func (c *ReplayConfig) GetCatalogPath() string {
	if c.CatalogPath == nil {
		return ""
	}
	return *c.CatalogPath
}

// GetJournalPath returns the sqlite journal path.
func (c *ReplayConfig) GetJournalPath() string {
	if c.JournalPath == nil || *c.JournalPath == "" {
		return "replay.db"
	}
	return *c.JournalPath
}

// BitstreamOptions builds the encoder options.
func (c *ReplayConfig) BitstreamOptions() bitstream.Options {
	return bitstream.Options{
		TimeUnitUS:   c.GetTimeUnitUS(),
		Rounding:     c.GetRounding(),
		MinOneSymbol: c.GetMinOneSymbol(),
	}
}

// Header builds the addressed header from the configured addresses.
func (c *ReplayConfig) Header() *radio.Header {
	return &radio.Header{
		Target:        uint16(intOr(c.TargetAddress, int(radio.Broadcast))),
		TargetFreqMHz: intOr(c.TargetFrequencyMHz, 868),
		Source:        uint16(intOr(c.SourceAddress, 0)),
		SourceFreqMHz: intOr(c.SourceFrequencyMHz, 868),
	}
}

// WaveformConfig builds the transmitter configuration. The header is only
// attached in packet mode with use_header set.
func (c *ReplayConfig) WaveformConfig() waveform.Config {
	cfg := waveform.Config{
		Mode:        c.GetMode(),
		BitDuration: c.GetBitDuration(),
		GuardBits:   c.GetGuardBits(),
		Timing:      c.GetTimingPolicy(),
		Tolerance:   c.GetTimingTolerance(),
	}
	if cfg.Mode == radio.ModePacket && c.GetUseHeader() {
		cfg.Header = c.Header()
	}
	return cfg
}

// Plan builds the scheduler plan.
func (c *ReplayConfig) Plan() retry.Plan {
	return retry.Plan{
		WakeDuration:  c.GetWakeDuration(),
		WakeInterval:  c.GetWakeInterval(),
		BurstCount:    c.GetBurstCount(),
		BurstInterval: c.GetBurstInterval(),
	}
}

// PortOptions builds the serial port options.
func (c *ReplayConfig) PortOptions() uart.PortOptions {
	return uart.PortOptions{BaudRate: c.GetBaudRate()}
}
