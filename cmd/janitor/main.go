package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/lastseen/internal/config"
	"github.com/your-org/lastseen/internal/janitor"
	"github.com/your-org/lastseen/internal/observability"
	"github.com/your-org/lastseen/internal/storage"
)

type options struct {
	configPath string
	dryRun     bool
	minAge     time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "janitor",
		Short: "Reconcile stored image bytes with image records",
		Long: `Removes blobs that no image record references (left behind when a record
insert fails) and image records whose blob is gone (left behind when a delete
fails halfway).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "report what would be removed without removing it")
	rootCmd.PersistentFlags().DurationVar(&opts.minAge, "min-age", time.Hour, "ignore anything newer than this")

	rootCmd.AddCommand(
		newSweepCommand(opts, "orphans", "Delete blobs that no image record references", (*janitor.Janitor).SweepOrphans),
		newSweepCommand(opts, "dangling", "Delete image records whose blob is missing", (*janitor.Janitor).SweepDangling),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type sweepFunc func(*janitor.Janitor, context.Context) (*janitor.Report, error)

func newSweepCommand(opts *options, use, short string, sweep sweepFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

			db, err := storage.NewPostgresStore(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			minioStore, err := storage.NewMinIOStore(cfg.MinIO)
			if err != nil {
				return err
			}

			j := janitor.New(minioStore, db, janitor.Options{MinAge: opts.minAge, DryRun: opts.dryRun})
			report, err := sweep(j, cmd.Context())
			if err != nil {
				slog.Error("sweep failed", "sweep", use, "error", err)
				return err
			}

			for _, id := range report.Found {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			slog.Info("sweep finished",
				"sweep", use,
				"scanned", report.Scanned,
				"found", len(report.Found),
				"removed", report.Removed,
				"dry_run", opts.dryRun,
			)
			return nil
		},
	}
}
