package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/capture"
)

type encodeFlags struct {
	format   string
	name     string
	out      string
	timeUnit int
	rounding string
	minOne   bool
}

func newEncodeCmd(a *app) *cobra.Command {
	var f encodeFlags
	cmd := &cobra.Command{
		Use:   "encode <capture>",
		Short: "Pack a capture into a replay payload",
		Long:  "Quantise the RAW_Data durations of a capture into symbols and print the packed payload.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEncode(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.format, "format", "f", "hex", "output format: hex, c or raw")
	cmd.Flags().StringVar(&f.name, "name", "", "label for C output (defaults to the capture file name)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().IntVar(&f.timeUnit, "time-unit", 0, "µs per symbol (overrides config)")
	cmd.Flags().StringVar(&f.rounding, "rounding", "", "half_even or truncate (overrides config)")
	cmd.Flags().BoolVar(&f.minOne, "min-one-symbol", false, "never drop a non-zero duration")
	return cmd
}

func (a *app) loadCapture(path string) (*capture.Capture, error) {
	r, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer r.Close()

	c, err := capture.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (a *app) encodeOptions(f encodeFlags) (bitstream.Options, error) {
	opts := a.cfg.BitstreamOptions()
	if f.timeUnit != 0 {
		opts.TimeUnitUS = f.timeUnit
	}
	if f.rounding != "" {
		r, err := bitstream.ParseRounding(f.rounding)
		if err != nil {
			return opts, err
		}
		opts.Rounding = r
	}
	if f.minOne {
		opts.MinOneSymbol = true
	}
	return opts, opts.Validate()
}

func (a *app) runEncode(cmd *cobra.Command, path string, f encodeFlags) error {
	opts, err := a.encodeOptions(f)
	if err != nil {
		return err
	}
	c, err := a.loadCapture(path)
	if err != nil {
		return err
	}
	payload, err := bitstream.Encode(c.Durations, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var out []byte
	switch strings.ToLower(f.format) {
	case "hex":
		out = []byte(bitstream.FormatHex(payload) + "\n")
	case "c":
		name := f.name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		out = []byte(bitstream.FormatC(payload, name) + "\n")
	case "raw":
		out = payload
	default:
		return fmt.Errorf("unknown format %q: expected hex, c or raw", f.format)
	}

	if a.verbose {
		s := c.Summary()
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d durations on %d lines, %d µs high, %d µs low -> %d bytes at %dµs\n",
			path, s.Count, c.MarkerLines, s.HighUS, s.LowUS, len(payload), opts.TimeUnitUS)
	}
	return a.writeOutput(cmd.OutOrStdout(), f.out, out)
}

// writeOutput writes data to path, or to stdout when path is empty.
func (a *app) writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	w, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return w.Close()
}
