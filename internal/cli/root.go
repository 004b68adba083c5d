// Package cli defines the command-line interface for lvdashctl.
package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/config"
	"github.com/codex-k8s/lvdashctl/internal/env"
	"github.com/codex-k8s/lvdashctl/internal/logging"
	"github.com/codex-k8s/lvdashctl/internal/metrics"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath  string
	Environment string
	Dir         string
	EnvFiles    []string
	LogLevel    logging.Level
	MetricsFile string

	// newService builds the remote client; tests replace it with a fake.
	newService serviceFactory
	// now is the clock used for run timing and backup directory names.
	now func() time.Time
	// environ returns the process environment.
	environ func() env.Vars

	metrics *metrics.Recorder
}

func defaultOptions() *Options {
	return &Options{
		ConfigPath: config.DefaultPath,
		LogLevel:   logging.LevelInfo,
		newService: newLakeviewService,
		now:        time.Now,
		environ:    env.FromOS,
		metrics:    metrics.NewRecorder(),
	}
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	rootCmd := newRootCommand(defaultOptions(), logger)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lvdashctl",
		Short:         "lvdashctl manages Lakeview dashboards across dev, uat and prod",
		Long:          "lvdashctl validates dashboard definition files, deploys them to an environment, backs up deployed dashboards and smoke-tests that they are accessible.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyBaseEnv(cmd, opts, opts.environ()); err != nil {
				return err
			}
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level).With("run_id", uuid.NewString())
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "Path to lvdash.yaml configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Environment, "environment", "e", "", "Target environment (dev, uat, prod)")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "Directory holding dashboard and query files (overrides workDir)")
	cmd.PersistentFlags().StringArrayVar(&opts.EnvFiles, "env-file", nil, "Path to a .env file with credentials; may be repeated")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newValidateCommand(opts),
		newDeployCommand(opts),
		newBackupCommand(opts),
		newTestCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}

// recordRun updates run metrics and flushes them when --metrics-file is set.
func (o *Options) recordRun(logger *slog.Logger, command, environmentID string, started time.Time, err error) {
	o.metrics.ObserveRun(command, environmentID, started, o.now(), err)
	if o.MetricsFile == "" {
		return
	}
	if werr := o.metrics.WriteTextfile(o.MetricsFile); werr != nil {
		logger.Warn("failed to write metrics", "path", o.MetricsFile, "error", werr)
		return
	}
	logger.Debug("metrics written", "path", o.MetricsFile)
}
