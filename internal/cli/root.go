package cli

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/Sternrassler/portal-sync/pkg/config"
	"github.com/Sternrassler/portal-sync/pkg/logging"
	"github.com/Sternrassler/portal-sync/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the configuration loaded for every
// command.
type RootOptions struct {
	EnvFile     string
	LogLevel    string
	Pretty      bool
	MetricsAddr string

	// Config is loaded before any subcommand runs.
	Config *config.Config

	logCloser io.Closer
}

// NewRootCommand creates the root command for the portal-sync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "portal-sync",
		Short: "Harvest partner-portal records and sync them into Postgres",
		Long: `portal-sync extracts customers, products, pending payments and proposal
statuses from the insurer's partner portal and merges the harvested files
into the relational store.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-readable console logs, overrides LOG_PRETTY")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address while the command runs, overrides METRICS_ADDR")

	cmd.AddCommand(NewHarvestCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return WrapExitError(ExitCommandError, "load "+o.EnvFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Log.Level = o.LogLevel
	}
	if f := cmd.Flags().Lookup("pretty"); f != nil && f.Changed {
		cfg.Log.Pretty = o.Pretty
	}
	if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Changed {
		cfg.Metrics.Addr = o.MetricsAddr
	}
	o.Config = cfg

	_, closer, err := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
		File:   cfg.Log.File,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "set up logging", err)
	}
	o.logCloser = closer
	return nil
}

// startMetrics serves /metrics until ctx is done when an address is set.
func (o *RootOptions) startMetrics(ctx context.Context) {
	addr := o.Config.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics listener failed")
		}
	}()
}

// connectRedis returns a Redis client when REDIS_ADDR is set and reachable.
// An unreachable Redis disables the features that use it instead of failing
// the command.
func (o *RootOptions) connectRedis(ctx context.Context) *redis.Client {
	rc := o.Config.Redis
	if !rc.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", rc.Addr).Msg("Redis unreachable; continuing without cache and session mirror")
		client.Close()
		return nil
	}
	log.Info().Str("addr", rc.Addr).Msg("Connected to Redis")
	return client
}

func requireRedis(client *redis.Client) error {
	if client == nil {
		return NewExitError(ExitCommandError, "this command needs Redis; set REDIS_ADDR")
	}
	return nil
}
