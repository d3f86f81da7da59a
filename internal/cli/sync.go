package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/store/postgres"
	"github.com/Sternrassler/portal-sync/pkg/syncer"
	"github.com/spf13/cobra"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Dir          string
	ProcessedDir string
	EnsureSchema bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge harvested files into the relational store",
		Long: `Sync every *_backup.json file waiting in the download directory into
Postgres, then move it to the processed directory.

The broker is taken from the file name and must exist in the brokers
table. Files whose broker is unknown, or whose sync lost the database
connection, stay in place for the next run.

Example:
  portal-sync sync --dir ./downloads
  portal-sync sync --ensure-schema`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "download directory to scan, overrides SYNC_DOWNLOAD_DIR")
	cmd.Flags().StringVar(&opts.ProcessedDir, "processed-dir", "", "where synced files are moved, overrides SYNC_PROCESSED_DIR")
	cmd.Flags().BoolVar(&opts.EnsureSchema, "ensure-schema", false, "create the sync tables when missing")

	return cmd
}

func runSync(ctx context.Context, opts *SyncOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config

	runnerCfg := syncer.RunnerConfig{
		DownloadDir:  cfg.Sync.DownloadDir,
		ProcessedDir: cfg.Sync.ProcessedDir,
	}
	if opts.Dir != "" {
		runnerCfg.DownloadDir = opts.Dir
		if opts.ProcessedDir == "" {
			runnerCfg.ProcessedDir = filepath.Join(opts.Dir, "processados")
		}
	}
	if opts.ProcessedDir != "" {
		runnerCfg.ProcessedDir = opts.ProcessedDir
	}

	opts.startMetrics(ctx)

	pool, err := postgres.NewPool(ctx, cfg.DB.ConnectionString(), postgres.DefaultPoolConfig())
	if err != nil {
		return WrapExitError(ExitCommandError, "connect to database", err)
	}
	defer pool.Close()

	st := postgres.New(pool)
	if opts.EnsureSchema {
		if err := st.EnsureSchema(ctx); err != nil {
			return WrapExitError(ExitCommandError, "ensure schema", err)
		}
	}

	engine := syncer.NewEngine(st, syncer.Config{
		TenantID:           cfg.Sync.TenantID,
		InsuranceCompanyID: cfg.Sync.InsuranceCompanyID,
		Now:                time.Now,
	})
	reports, err := syncer.NewRunner(engine, runnerCfg).Run(ctx)
	writeSyncReport(out, reports)
	if err != nil {
		return WrapExitError(ExitFailure, "sync incomplete", err)
	}
	return nil
}

var reportEntities = []syncer.Entity{
	syncer.EntityCustomers,
	syncer.EntityProposals,
	syncer.EntityPendingPayments,
	syncer.EntityLifeProducts,
	syncer.EntityPensionProducts,
}

// writeSyncReport prints one table per processed file.
func writeSyncReport(out io.Writer, reports []syncer.FileReport) {
	for _, r := range reports {
		status := "left in place"
		if r.Moved {
			status = "moved"
		}
		fmt.Fprintf(out, "%s (broker %q, %s)\n", filepath.Base(r.Path), r.Broker, status)
		if len(r.Result.Counts) == 0 {
			continue
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  entity\tinserted\tupdated\tunchanged\tskipped\tcancelled\tnot_delinquent\tfailed")
		for _, entity := range reportEntities {
			c, ok := r.Result.Counts[entity]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				entity, c.Inserted, c.Updated, c.Unchanged, c.Skipped, c.Cancelled, c.NotDelinquent, c.Failed)
		}
		tw.Flush()
	}
}
