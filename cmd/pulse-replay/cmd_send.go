package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/catalog"
	"github.com/banshee-data/pulse.replay/internal/monitoring"
	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/retry"
	"github.com/banshee-data/pulse.replay/internal/waveform"
)

type sendFlags struct {
	dryRun    bool
	mode      string
	hex       string
	capture   string
	noWake    bool
	bursts    int
	interval  time.Duration
	journal   string
	noJournal bool
}

func newSendCmd(a *app) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send [command]",
		Short: "Wake the receiver and replay a command",
		Long: "Send idle traffic for the wake duration, then repeat the command burst.\n" +
			"The payload comes from the catalog by name, from --capture, or from --hex.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return a.runSend(ctx, cmd, name, f)
		},
	}
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "run the schedule without touching hardware")
	cmd.Flags().StringVar(&f.mode, "mode", "", "packet or bitbang (overrides config)")
	cmd.Flags().StringVar(&f.hex, "hex", "", "literal payload instead of a catalog command")
	cmd.Flags().StringVar(&f.capture, "capture", "", "capture file to encode and send")
	cmd.Flags().BoolVar(&f.noWake, "no-wake", false, "skip the wake phase")
	cmd.Flags().IntVar(&f.bursts, "bursts", 0, "burst repeats (overrides config and catalog)")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "gap between burst repeats (overrides config and catalog)")
	cmd.Flags().StringVar(&f.journal, "journal", "", "journal database (overrides config)")
	cmd.Flags().BoolVar(&f.noJournal, "no-journal", false, "do not record the run")
	return cmd
}

// resolveCommand picks the payload source. Exactly one of name, --hex and
// --capture must be given.
func (a *app) resolveCommand(cat *catalog.Catalog, name string, f sendFlags) (retry.Command, error) {
	sources := 0
	for _, set := range []bool{name != "", f.hex != "", f.capture != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return retry.Command{}, errors.New("give exactly one of a command name, --hex or --capture")
	}

	switch {
	case f.hex != "":
		p, err := bitstream.ParseHex(f.hex)
		if err != nil {
			return retry.Command{}, fmt.Errorf("--hex: %w", err)
		}
		return retry.Command{Name: "hex", Payload: p}, nil
	case f.capture != "":
		c, err := a.loadCapture(f.capture)
		if err != nil {
			return retry.Command{}, err
		}
		p, err := bitstream.Encode(c.Durations, a.cfg.BitstreamOptions())
		if err != nil {
			return retry.Command{}, fmt.Errorf("%s: %w", f.capture, err)
		}
		return retry.Command{Name: f.capture, Payload: p}, nil
	default:
		return cat.Command(name)
	}
}

// idleCommand resolves the wake traffic. A missing idle command disables
// the wake phase rather than failing the send.
func (a *app) idleCommand(cat *catalog.Catalog) retry.Command {
	name := a.cfg.GetIdleCommand()
	if name == "" {
		return retry.Command{}
	}
	cmd, err := cat.Command(name)
	if err != nil {
		monitoring.Logf("idle command %q unavailable, skipping wake phase: %v", name, err)
		return retry.Command{}
	}
	return cmd
}

func (a *app) runSend(ctx context.Context, cmd *cobra.Command, name string, f sendFlags) error {
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	command, err := a.resolveCommand(cat, name, f)
	if err != nil {
		return err
	}

	wcfg := a.cfg.WaveformConfig()
	if f.mode != "" {
		m, err := radio.ParseMode(f.mode)
		if err != nil {
			return err
		}
		wcfg.Mode = m
		if m != radio.ModePacket {
			wcfg.Header = nil
		}
	}

	plan := a.cfg.Plan().WithCommand(command)
	if f.noWake {
		plan.WakeDuration = 0
	}
	if f.bursts > 0 {
		plan.BurstCount = f.bursts
	}
	if f.interval > 0 {
		plan.BurstInterval = f.interval
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	journalPath := a.cfg.GetJournalPath()
	if f.journal != "" {
		journalPath = f.journal
	}
	if f.noJournal {
		journalPath = ""
	}
	j, closeJournal, err := a.withJournal(journalPath)
	if err != nil {
		return err
	}
	defer closeJournal()

	t, err := a.openTransport(wcfg.Mode, f.dryRun)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			monitoring.Logf("transport close: %v", err)
		}
	}()

	tx, err := waveform.NewTransmitter(t, a.clock, wcfg)
	if err != nil {
		return err
	}
	sched := retry.NewScheduler(tx, a.clock, a.idleCommand(cat))

	runID := ""
	if j != nil {
		runID, err = j.Start(ctx, command, wcfg.Mode.String(), plan, f.dryRun)
		if err != nil {
			return err
		}
	}

	monitoring.Logf("sending %s (%d bytes, %s) wake=%s bursts=%d every %s",
		command.Name, len(command.Payload), wcfg.Mode, plan.WakeDuration, plan.BurstCount, plan.BurstInterval)
	res, sendErr := sched.Send(ctx, command, plan)

	if j != nil {
		// Record the outcome even when the send was interrupted.
		if err := j.Finish(context.WithoutCancel(ctx), runID, res, sendErr); err != nil {
			monitoring.Logf("failed to journal run %s: %v", runID, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: wake=%d burst=%d elapsed=%s", command.Name, res.WakeSent, res.BurstSent, res.Elapsed)
	if runID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " run=%s", runID)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	if res.Stopped {
		return fmt.Errorf("send interrupted: %w", sendErr)
	}
	return sendErr
}
