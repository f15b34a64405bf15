// Package journal keeps a sqlite history of every send: what was sent, on
// which schedule, and how far it got.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/httputil"
	"github.com/banshee-data/pulse.replay/internal/retry"
	"github.com/banshee-data/pulse.replay/internal/timeutil"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusStopped = "stopped"
	StatusFailed  = "failed"
)

// Journal is the run history database.
type Journal struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// Open opens (creating if needed) the journal at path and applies pending
// migrations.
func Open(path string) (*Journal, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an explicit clock for run timestamps.
func OpenWithClock(path string, clock timeutil.Clock) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY between
	// the scheduler and the debug server.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	j := &Journal{DB: db, path: path, clock: clock}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Run is one journal row.
type Run struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Mode       string     `json:"mode"`
	PayloadHex string     `json:"payload_hex"`
	Plan       retry.Plan `json:"plan"`
	DryRun     bool       `json:"dry_run"`
	Status     string     `json:"status"`
	WakeSent   int        `json:"wake_sent"`
	BurstSent  int        `json:"burst_sent"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Elapsed is the run's wall time, zero while running.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Start records the beginning of a send and returns its run ID.
func (j *Journal) Start(ctx context.Context, cmd retry.Command, mode string, plan retry.Plan, dryRun bool) (string, error) {
	id := uuid.NewString()
	_, err := j.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, command, mode, payload_hex,
			wake_duration_ms, wake_interval_ms, burst_count, burst_interval_ms,
			dry_run, status, started_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cmd.Name, mode, bitstream.FormatHex(cmd.Payload),
		plan.WakeDuration.Milliseconds(), plan.WakeInterval.Milliseconds(),
		plan.BurstCount, plan.BurstInterval.Milliseconds(),
		dryRun, StatusRunning, j.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a send.
func (j *Journal) Finish(ctx context.Context, id string, res retry.Result, sendErr error) error {
	status := StatusOK
	errText := ""
	switch {
	case res.Stopped:
		status = StatusStopped
	case sendErr != nil:
		status = StatusFailed
	}
	if sendErr != nil {
		errText = sendErr.Error()
	}

	r, err := j.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, wake_sent = ?, burst_sent = ?, error = ?, finished_unix_ns = ?
		WHERE run_id = ?`,
		status, res.WakeSent, res.BurstSent, errText, j.clock.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `run_id, command, mode, payload_hex,
	wake_duration_ms, wake_interval_ms, burst_count, burst_interval_ms,
	dry_run, status, wake_sent, burst_sent, error, started_unix_ns, finished_unix_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r                          Run
		wakeDur, wakeInt, burstInt int64
		started                    int64
		finished                   sql.NullInt64
	)
	err := s.Scan(&r.ID, &r.Command, &r.Mode, &r.PayloadHex,
		&wakeDur, &wakeInt, &r.Plan.BurstCount, &burstInt,
		&r.DryRun, &r.Status, &r.WakeSent, &r.BurstSent, &r.Error, &started, &finished)
	if err != nil {
		return Run{}, err
	}
	r.Plan.WakeDuration = time.Duration(wakeDur) * time.Millisecond
	r.Plan.WakeInterval = time.Duration(wakeInt) * time.Millisecond
	r.Plan.BurstInterval = time.Duration(burstInt) * time.Millisecond
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return r, nil
}

// Get returns one run.
func (j *Journal) Get(ctx context.Context, id string) (Run, error) {
	row := j.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_unix_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts tailsql over the journal and a JSON listing of
// recent runs under /debug/.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+j.path, j.DB, &tailsql.DBOptions{
		Label: "Replay journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleSilentFunc("runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		if id := r.URL.Query().Get("id"); id != "" {
			run, err := j.Get(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, err, ErrRunNotFound)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, run)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err := j.Recent(r.Context(), limit)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, runs)
	})
	return nil
}
