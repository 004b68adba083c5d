package cli

import (
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/env"
)

// baseEnv defines root CLI defaults sourced from LVDASH_* env vars.
type baseEnv struct {
	// ConfigPath is the lvdash.yaml path from LVDASH_CONFIG.
	ConfigPath string `env:"LVDASH_CONFIG"`
	// Environment is the target environment from LVDASH_ENVIRONMENT.
	Environment string `env:"LVDASH_ENVIRONMENT"`
	// Dir is the definitions directory from LVDASH_DIR.
	Dir string `env:"LVDASH_DIR"`
	// LogLevel is the logging level from LVDASH_LOG_LEVEL.
	LogLevel string `env:"LVDASH_LOG_LEVEL"`
	// MetricsFile is the textfile metrics path from LVDASH_METRICS_FILE.
	MetricsFile string `env:"LVDASH_METRICS_FILE"`
	// EnvFiles lists .env files from LVDASH_ENV_FILES (comma-separated).
	EnvFiles []string `env:"LVDASH_ENV_FILES" envSeparator:","`
}

// backupEnv captures LVDASH_* inputs for the backup command.
type backupEnv struct {
	// GCSBucket is the mirror bucket from LVDASH_GCS_BUCKET.
	GCSBucket string `env:"LVDASH_GCS_BUCKET"`
	// GCSCredentials is a service account key path from LVDASH_GCS_CREDENTIALS.
	GCSCredentials string `env:"LVDASH_GCS_CREDENTIALS"`
	// GCSPrefix is the object name prefix from LVDASH_GCS_PREFIX.
	GCSPrefix string `env:"LVDASH_GCS_PREFIX"`
}

// parseEnv fills target from vars via caarlos0/env.
func parseEnv(target any, vars env.Vars) error {
	return envparse.ParseWithOptions(target, envparse.Options{Environment: vars})
}

// envPresent reports whether a non-empty variable exists in vars.
func envPresent(vars env.Vars, key string) bool {
	val, ok := vars.Lookup(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

// applyBaseEnv copies LVDASH_* values into flags the user did not set.
func applyBaseEnv(cmd *cobra.Command, opts *Options, vars env.Vars) error {
	var e baseEnv
	if err := parseEnv(&e, vars); err != nil {
		return err
	}
	if !cmd.Flags().Changed("config") && envPresent(vars, "LVDASH_CONFIG") {
		opts.ConfigPath = strings.TrimSpace(e.ConfigPath)
	}
	if !cmd.Flags().Changed("environment") && envPresent(vars, "LVDASH_ENVIRONMENT") {
		opts.Environment = strings.TrimSpace(e.Environment)
	}
	if !cmd.Flags().Changed("dir") && envPresent(vars, "LVDASH_DIR") {
		opts.Dir = strings.TrimSpace(e.Dir)
	}
	if !cmd.Flags().Changed("metrics-file") && envPresent(vars, "LVDASH_METRICS_FILE") {
		opts.MetricsFile = strings.TrimSpace(e.MetricsFile)
	}
	if !cmd.Flags().Changed("env-file") && len(e.EnvFiles) > 0 {
		for _, f := range e.EnvFiles {
			if f = strings.TrimSpace(f); f != "" {
				opts.EnvFiles = append(opts.EnvFiles, f)
			}
		}
	}
	if !cmd.Flags().Changed("log-level") && envPresent(vars, "LVDASH_LOG_LEVEL") {
		if err := cmd.Flags().Set("log-level", strings.TrimSpace(e.LogLevel)); err != nil {
			return err
		}
	}
	return nil
}
