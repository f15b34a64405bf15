package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/preview"
)

type previewFlags struct {
	out     string
	command string
	title   string
}

func newPreviewCmd(a *app) *cobra.Command {
	var f previewFlags
	cmd := &cobra.Command{
		Use:   "preview [capture]",
		Short: "Draw a capture and its packed payload",
		Long: "Render a capture next to the waveform its payload will replay, or a catalog\n" +
			"command on its own. The output format follows the extension: .html, .png, .svg or .pdf.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return a.runPreview(cmd, path, f)
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "preview.html", "output file")
	cmd.Flags().StringVar(&f.command, "command", "", "preview a catalog command instead of a capture")
	cmd.Flags().StringVar(&f.title, "title", "", "chart title")
	return cmd
}

func (a *app) previewTraces(path string, f previewFlags) ([]preview.Trace, string, error) {
	opts := a.cfg.BitstreamOptions()
	switch {
	case path != "" && f.command != "":
		return nil, "", errors.New("give a capture or --command, not both")
	case f.command != "":
		cat, err := a.catalog()
		if err != nil {
			return nil, "", err
		}
		cmd, err := cat.Command(f.command)
		if err != nil {
			return nil, "", err
		}
		tr, err := preview.FromPayload(cmd.Name, cmd.Payload, opts.TimeUnitUS)
		if err != nil {
			return nil, "", err
		}
		return []preview.Trace{tr}, cmd.Name, nil
	case path != "":
		c, err := a.loadCapture(path)
		if err != nil {
			return nil, "", err
		}
		payload, err := bitstream.Encode(c.Durations, opts)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		packed, err := preview.FromPayload(fmt.Sprintf("payload @ %dµs", opts.TimeUnitUS), payload, opts.TimeUnitUS)
		if err != nil {
			return nil, "", err
		}
		return []preview.Trace{preview.FromDurations("capture", c.Durations), packed}, filepath.Base(path), nil
	default:
		return nil, "", errors.New("give a capture or --command")
	}
}

func (a *app) runPreview(cmd *cobra.Command, path string, f previewFlags) error {
	traces, title, err := a.previewTraces(path, f)
	if err != nil {
		return err
	}
	if f.title != "" {
		title = f.title
	}

	var buf bytes.Buffer
	switch ext := strings.ToLower(filepath.Ext(f.out)); ext {
	case ".html", ".htm":
		err = preview.WriteHTML(&buf, title, traces...)
	case ".png":
		err = preview.WritePNG(&buf, title, traces...)
	case ".svg", ".pdf":
		// gonum/plot picks the format from the extension.
		if err := preview.Save(f.out, title, traces...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f.out)
		return nil
	default:
		return fmt.Errorf("unsupported preview format %q", ext)
	}
	if err != nil {
		return err
	}
	if err := a.writeOutput(cmd.OutOrStdout(), f.out, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f.out)
	return nil
}
