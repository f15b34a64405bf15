package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.replay/internal/catalog"
	"github.com/banshee-data/pulse.replay/internal/httputil"
	"github.com/banshee-data/pulse.replay/internal/journal"
	"github.com/banshee-data/pulse.replay/internal/monitoring"
	"github.com/banshee-data/pulse.replay/internal/preview"
	"github.com/banshee-data/pulse.replay/internal/radio"
	"github.com/banshee-data/pulse.replay/internal/radio/uart"
)

// serialAdmin is a UART transport that can be monitored and debugged over
// HTTP.
type serialAdmin interface {
	radio.Transport
	Monitor(ctx context.Context) error
	AttachAdminRoutes(mux *http.ServeMux)
}

func newDebugServeCmd(a *app) *cobra.Command {
	var (
		listen  string
		dryRun  bool
		jrnPath string
	)
	cmd := &cobra.Command{
		Use:   "debug-serve",
		Short: "Serve the module, journal and preview debug pages",
		Long: "Serve /debug/ pages for the radio module (send-frame, tail), the run journal\n" +
			"(tailsql, runs) and catalog previews. Pages are limited to loopback and tailnet peers.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var port serialAdmin
			if dryRun {
				port = uart.NewDisabled()
			} else {
				t, err := uart.NewRealTransport(a.cfg.GetSerialPort(), a.cfg.PortOptions())
				if err != nil {
					return err
				}
				port = t
			}
			defer port.Close()

			path := a.cfg.GetJournalPath()
			if jrnPath != "" {
				path = jrnPath
			}
			j, closeJournal, err := a.withJournal(path)
			if err != nil {
				return err
			}
			defer closeJournal()

			cat, err := a.catalog()
			if err != nil {
				return err
			}

			mux, err := newDebugMux(port, j, cat, a.cfg.BitstreamOptions().TimeUnitUS)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveDebug(ctx, listen, mux, port)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "localhost:8080", "listen address")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "serve without opening the serial port")
	cmd.Flags().StringVar(&jrnPath, "journal", "", "journal database (overrides config)")
	return cmd
}

// newDebugMux mounts every debug page on one mux.
func newDebugMux(port serialAdmin, j *journal.Journal, cat *catalog.Catalog, unitUS int) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	port.AttachAdminRoutes(mux)
	if j != nil {
		if err := j.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("preview", "catalog command waveforms", func(w http.ResponseWriter, r *http.Request) {
		names := cat.Names()
		if n := r.URL.Query().Get("command"); n != "" {
			names = []string{n}
		}
		traces := make([]preview.Trace, 0, len(names))
		for _, n := range names {
			cmd, err := cat.Command(n)
			if err != nil {
				httputil.WriteError(w, err, catalog.ErrUnknownCommand)
				return
			}
			tr, err := preview.FromPayload(cmd.Name, cmd.Payload, unitUS)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			traces = append(traces, tr)
		}

		var buf bytes.Buffer
		if err := preview.WriteHTML(&buf, "pulse-replay commands", traces...); err != nil {
			httputil.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
	return mux, nil
}

// serveDebug runs the HTTP server and the port monitor until ctx is done.
func serveDebug(ctx context.Context, listen string, mux *http.ServeMux, port serialAdmin) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := port.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("failed to monitor serial port: %v", err)
		}
		monitoring.Logf("monitor routine terminated")
	}()

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errc)
	}()
	monitoring.Logf("debug pages on http://%s/debug/", listen)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	cancel()
	wg.Wait()
	return serveErr
}
