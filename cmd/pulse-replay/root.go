package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/pulse.replay/internal/version"
)

// newRootCmd creates the root command with every subcommand attached.
func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulse-replay",
		Short:         "Replay recorded OOK captures through a sub-GHz radio",
		Long:          "pulse-replay encodes RAW_Data captures into packed payloads and\nreplays them over a UART radio module or a GPIO-keyed transmitter.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.setupLogging(cmd.ErrOrStderr())
			return a.loadConfig()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "JSON config file (defaults apply when empty)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log diagnostics")
	flags.BoolVar(&a.trace, "trace", false, "log per-bit and per-repeat tracing")

	cmd.AddCommand(
		newEncodeCmd(a),
		newSendCmd(a),
		newPreviewCmd(a),
		newHistoryCmd(a),
		newDebugServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}
