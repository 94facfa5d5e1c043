package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sandeepkandula/blobsync/config"
	"github.com/sandeepkandula/blobsync/schedule"
	"github.com/sandeepkandula/blobsync/store"
	"github.com/sandeepkandula/blobsync/sync"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("blobsync failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		prefix     string
		skipCopy   bool
		skipUpd    bool
		skipDel    bool
		daemon     bool
	)

	cmd := &cobra.Command{
		Use:           "blobsync",
		Short:         "One-way incremental sync of a directory or bucket onto a bucket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("prefix") {
				cfg.Sync.Prefix = prefix
			}
			if skipCopy {
				cfg.Sync.SkipCopy = true
			}
			if skipUpd {
				cfg.Sync.SkipUpdates = true
			}
			if skipDel {
				cfg.Sync.SkipDelete = true
			}

			ctx := cmd.Context()
			source, target, err := buildStores(ctx, cfg)
			if err != nil {
				return err
			}
			syncer := sync.New(source, target)
			policy := policyFrom(cfg)

			if !daemon || !cfg.Schedule.Enabled() {
				_, err := syncer.Run(ctx, policy)
				return err
			}
			return runDaemon(ctx, cfg, syncer, policy)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (env vars apply on top)")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "restrict the run to paths under this prefix")
	cmd.Flags().BoolVar(&skipCopy, "skip-copy", false, "count creates as skipped instead of copying")
	cmd.Flags().BoolVar(&skipUpd, "skip-updates", false, "count updates as skipped instead of copying")
	cmd.Flags().BoolVar(&skipDel, "skip-delete", false, "count deletes as skipped instead of deleting")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "repeat on the configured schedule instead of running once")

	cmd.AddCommand(cleanMarkersCmd())
	return cmd
}

func runDaemon(ctx context.Context, cfg *config.Config, syncer *sync.Syncer, policy sync.Policy) error {
	interval, err := cfg.Schedule.Interval()
	if err != nil {
		return err
	}
	sched, err := schedule.Parse(cfg.Schedule.Weekday, cfg.Schedule.At, interval)
	if err != nil {
		return err
	}

	// Totals live here, not in the engine: every run returns its own
	// result and the daemon aggregates for logging only.
	var runs, created, updated, deleted, failed int
	schedule.Run(ctx, sched, func(ctx context.Context) error {
		res, err := syncer.Run(ctx, policy)
		if err != nil {
			return err
		}
		runs++
		created += res.Created
		updated += res.Updated
		deleted += res.Deleted
		failed += res.Failed()
		slog.Info("daemon totals",
			"runs", runs, "created", created, "updated", updated,
			"deleted", deleted, "failed", failed)
		return nil
	})
	return nil
}

func cleanMarkersCmd() *cobra.Command {
	var (
		configPath string
		prefix     string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "clean-markers",
		Short: "Remove folder marker objects from the target bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			target, err := buildTarget(ctx, cfg)
			if err != nil {
				return err
			}
			removed, err := sync.CleanMarkers(ctx, target, prefix, dryRun)
			slog.Info("markers cleaned", "removed", removed, "dry_run", dryRun)
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "only remove markers under this prefix")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count markers without deleting them")
	return cmd
}

func buildStores(ctx context.Context, cfg *config.Config) (sync.Source, sync.Target, error) {
	target, err := buildTarget(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Source.Path != "" {
		source, err := store.NewLocalSource(cfg.Source.Path)
		if err != nil {
			return nil, nil, err
		}
		return source, target, nil
	}

	client, err := s3Client(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store.NewS3Store(client, cfg.Source.Bucket, cfg.Source.Prefix), target, nil
}

func buildTarget(ctx context.Context, cfg *config.Config) (sync.Target, error) {
	client, err := s3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store.NewS3Store(client, cfg.Target.Bucket, cfg.Target.Prefix), nil
}

func s3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	return store.NewS3Client(ctx, store.S3Config{
		Region:    cfg.AWS.Region,
		Endpoint:  cfg.AWS.Endpoint,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
	})
}

func policyFrom(cfg *config.Config) sync.Policy {
	return sync.Policy{
		Prefix:          cfg.Sync.Prefix,
		SkipCopy:        cfg.Sync.SkipCopy,
		SkipUpdates:     cfg.Sync.SkipUpdates,
		SkipDelete:      cfg.Sync.SkipDelete,
		MetadataURLBase: cfg.Sync.MetadataURLBase,
		Concurrency:     cfg.Sync.Concurrency,
	}
}
