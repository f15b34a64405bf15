package main

import (
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/pulse.replay/internal/capture"
	"github.com/banshee-data/pulse.replay/internal/catalog"
	"github.com/banshee-data/pulse.replay/internal/config"
	"github.com/banshee-data/pulse.replay/internal/fsutil"
	"github.com/banshee-data/pulse.replay/internal/journal"
	"github.com/banshee-data/pulse.replay/internal/monitoring"
	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/radio/gpio"
	"github.com/banshee-data/pulse.replay/internal/radio/stub"
	"github.com/banshee-data/pulse.replay/internal/radio/uart"
	"github.com/banshee-data/pulse.replay/internal/retry"
	"github.com/banshee-data/pulse.replay/internal/timeutil"
	"github.com/banshee-data/pulse.replay/internal/waveform"
)

// app is the state shared by subcommands. Tests swap the seams (fs, clock,
// openTransport, openJournal) for fakes.
type app struct {
	configPath string
	verbose    bool
	trace      bool

	cfg   *config.ReplayConfig
	fs    fsutil.FileSystem
	clock timeutil.Clock

	openTransport func(mode radio.Mode, dryRun bool) (radio.Transport, error)
	openJournal   func(path string) (*journal.Journal, error)
}

func newApp() *app {
	a := &app{
		fs:          fsutil.OSFileSystem{},
		clock:       timeutil.RealClock{},
		openJournal: journal.Open,
	}
	a.openTransport = a.hardwareTransport
	return a
}

// setupLogging sends the process logger and the package log streams to w.
// Ops is always on; diag and trace follow the flags.
func (a *app) setupLogging(w io.Writer) {
	monitoring.SetLogger(log.New(w, "", log.LstdFlags).Printf)

	ops := w
	var diag, trace io.Writer
	if a.verbose || a.trace {
		diag = w
	}
	if a.trace {
		trace = w
	}
	capture.SetLogWriters(ops, diag, trace)
	waveform.SetLogWriters(ops, diag, trace)
	retry.SetLogWriters(ops, diag, trace)
}

func (a *app) loadConfig() error {
	if a.configPath == "" {
		a.cfg = config.EmptyReplayConfig()
		return nil
	}
	cfg, err := config.LoadReplayConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) catalog() (*catalog.Catalog, error) {
	opts := a.cfg.BitstreamOptions()
	if path := a.cfg.GetCatalogPath(); path != "" {
		return catalog.Load(a.fs, path, opts)
	}
	return catalog.New(a.fs, opts), nil
}

// hardwareTransport opens the radio for mode. Dry runs never touch
// hardware: packet mode goes to a disabled UART and bit-bang mode keys a
// recording stub.
func (a *app) hardwareTransport(mode radio.Mode, dryRun bool) (radio.Transport, error) {
	if dryRun {
		if mode == radio.ModeBitBang {
			return stub.NewKeyed(a.clock), nil
		}
		return uart.NewDisabled(), nil
	}

	switch mode {
	case radio.ModePacket:
		return uart.NewRealTransport(a.cfg.GetSerialPort(), a.cfg.PortOptions())
	case radio.ModeBitBang:
		keyer, err := gpio.Open(a.cfg.GetGPIOPin())
		if err != nil {
			return nil, err
		}
		// The UART stays attached so the module keeps its configuration
		// while DIO2 is keyed.
		var packet radio.PacketSender
		if port := a.cfg.GetSerialPort(); port != "" {
			t, err := uart.NewRealTransport(port, a.cfg.PortOptions())
			if err != nil {
				keyer.Close()
				return nil, err
			}
			packet = t
		}
		return radio.NewLink(packet, keyer, false), nil
	default:
		return nil, fmt.Errorf("unknown transmit mode %v", mode)
	}
}

// withJournal opens the journal unless disabled, returning a nil journal
// and a no-op closer when path is empty.
func (a *app) withJournal(path string) (*journal.Journal, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	j, err := a.openJournal(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, func() {
		if err := j.Close(); err != nil {
			monitoring.Logf("journal close: %v", err)
		}
	}, nil
}
