package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"portal-sync/internal/export"
	"portal-sync/internal/server"
	"portal-sync/internal/sync"
)

var errPassBusy = errors.New("another sync pass is running")

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// NewSyncCommand creates the "initial" or "periodic" command. Both run one
// pass under the run guard and print its reports.
func NewSyncCommand(rootOpts *RootOptions, kind sync.Kind) *cobra.Command {
	var asJSON bool

	short := "Pull courses, users, enrollments and completions from the LMS"
	if kind == sync.KindPeriodic {
		short = "Pull from the LMS, then push pending portal users and enrollments"
	}

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			sum, ran, err := a.runner().RunOnce(ctx, kind)
			if !ran && err == nil {
				return errPassBusy
			}
			if ran {
				if perr := printSummary(cmd.OutOrStdout(), sum, asJSON); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, sum sync.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	for _, r := range sum.Reports {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return err
		}
		for _, msg := range r.Errors {
			if _, err := fmt.Fprintf(w, "  - %s\n", msg); err != nil {
				return err
			}
		}
	}
	total := sum.Totals()
	_, err := fmt.Fprintf(w, "%s sync: %d examined, %d created, %d updated, %d skipped, %d errored in %s\n",
		sum.Kind, total.Examined, total.Created, total.Updated, total.Skipped, total.Errored,
		sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	return err
}

// NewServeCommand runs the scheduler and the health endpoints until
// interrupted.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var noSnapshots bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the initial sync, then a periodic sync every SYNC_INTERVAL",
		Long: `serve runs an initial sync at start and a periodic sync on every tick of
SYNC_INTERVAL. A tick that finds a pass still running is skipped. Health
and metrics are served on HTTP_ADDR.

After each pass a status snapshot is written to SNAPSHOT_DIR and, when
SFTP is configured, uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			runner := a.runner()
			if !noSnapshots {
				runner.OnPass(func(ctx context.Context, sum sync.Summary, _ error) {
					path, err := a.exportSnapshot(ctx, a.cfg.SnapshotDir, a.cfg.SFTPEnabled(), 500)
					if err != nil {
						a.log.Error("snapshot export failed", "kind", sum.Kind, "error", err)
						return
					}
					a.log.Info("snapshot written", "kind", sum.Kind, "path", path)
				})
			}

			runner.Start(ctx)
			defer runner.Stop()

			return server.New(a.cfg.HTTPAddr, a.engine, a.log).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noSnapshots, "no-snapshots", false, "do not write status snapshots after each pass")
	return cmd
}

// NewStatusCommand prints the sync status held in the portal database.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print per-entity sync totals as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.engine.GetSyncStatus(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}

type exportOptions struct {
	*RootOptions
	OutDir     string
	ErrorsCSV  string
	Upload     bool
	ErrorLimit int
}

// NewExportCommand writes a status snapshot and, optionally, a CSV of
// records whose last sync failed.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &exportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a compressed status snapshot",
		Long: `export writes portal-sync-<timestamp>.json.br (brotli-compressed JSON)
with per-entity totals and the records whose last sync failed.

Example:
  portalsync export --out ./snapshots
  portalsync export --errors-csv ./sync-errors.csv --sftp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "snapshot directory (default SNAPSHOT_DIR)")
	cmd.Flags().StringVar(&opts.ErrorsCSV, "errors-csv", "", "also write failed records to this CSV path")
	cmd.Flags().BoolVar(&opts.Upload, "sftp", false, "upload the snapshot via SFTP")
	cmd.Flags().IntVar(&opts.ErrorLimit, "error-limit", 500, "maximum failed records to include")
	return cmd
}

func runExport(cmd *cobra.Command, opts *exportOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	dir := opts.OutDir
	if dir == "" {
		dir = a.cfg.SnapshotDir
	}
	path, err := a.exportSnapshot(ctx, dir, opts.Upload, opts.ErrorLimit)
	if path != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
	}
	if err != nil {
		return err
	}

	if opts.ErrorsCSV == "" {
		return nil
	}
	rows, err := a.store.ListSyncErrors(ctx, opts.ErrorLimit)
	if err != nil {
		return fmt.Errorf("list sync errors: %w", err)
	}
	if d := filepath.Dir(opts.ErrorsCSV); d != "." && d != "" {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(opts.ErrorsCSV)
	if err != nil {
		return err
	}
	if err := export.WriteErrorsCSV(f, export.ErrorRecords(rows)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d failed records to %s\n", len(rows), opts.ErrorsCSV)
	return nil
}
