package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/config"
	"github.com/codex-k8s/lvdashctl/internal/environment"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

const doctorTimeout = 2 * time.Minute

// newDoctorCommand creates the "doctor" subcommand that runs connectivity preflight checks.
func newDoctorCommand(opts *Options) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check credentials, environment resolution and workspace connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := loadSession(cmd, opts)
			if err != nil {
				return err
			}

			envID := environment.Normalize(opts.Environment)
			if envID == "" {
				envID = environment.Dev
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			if err := runDoctorChecks(ctx, sess, envID, offline); err != nil {
				return err
			}

			sess.logger.Info("doctor checks completed successfully", "environment", envID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the workspace connectivity check")

	return cmd
}

// runDoctorChecks runs every check and aggregates failures.
func runDoctorChecks(ctx context.Context, sess *session, envID string, offline bool) error {
	logger := sess.logger
	var failed []string

	report := func(check string, err error) {
		if err != nil {
			logger.Error("doctor check failed", "check", check, "environment", envID, "error", err, "result", logging.ResultFail)
			failed = append(failed, check)
			return
		}
		logger.Info("doctor check ok", "check", check, "environment", envID, "result", logging.ResultPass)
	}

	report("definitions", checkDefinitionsDir(sess, logger))
	report("environment", checkEnvironment(sess, envID, logger))

	settings, err := sess.settings()
	report("credentials", err)

	switch {
	case offline:
		logger.Info("skipping connectivity check", "check", "workspace")
	case err != nil:
		logger.Warn("skipping connectivity check without valid credentials", "check", "workspace")
	default:
		report("workspace", checkWorkspace(ctx, sess, settings, logger))
	}

	if len(failed) > 0 {
		return fmt.Errorf("doctor checks failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

func checkDefinitionsDir(sess *session, logger *slog.Logger) error {
	store := sess.store()
	files, err := store.DefinitionFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("no dashboard definitions in directory", "dir", store.Dir(), "suffix", store.Suffix(), "result", logging.ResultWarn)
	}
	return nil
}

func checkEnvironment(sess *session, envID string, logger *slog.Logger) error {
	if _, err := sess.environmentID(); err != nil && strings.TrimSpace(sess.opts.Environment) != "" {
		return err
	}
	profile, err := sess.profile(envID)
	if err != nil {
		return err
	}
	if profile.WarehouseID == environment.GenericWarehouseID {
		logger.Warn("environment resolves to the generic warehouse", "var", environment.WarehouseVar(envID), "result", logging.ResultWarn)
	}
	logger.Debug("environment resolved", "warehouse", profile.WarehouseID, "acl_entries", len(profile.DefaultAccessControl))
	return nil
}

func checkWorkspace(ctx context.Context, sess *session, settings config.Settings, logger *slog.Logger) error {
	svc, err := sess.opts.newService(settings, logger)
	if err != nil {
		return err
	}
	dashboards, err := svc.List(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("workspace %s did not respond: %w", settings.Host, err)
		}
		return err
	}
	logger.Info("workspace reachable", "host", settings.Host, "dashboards", len(dashboards))
	return nil
}
