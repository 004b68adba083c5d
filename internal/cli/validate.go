package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/logging"
	"github.com/codex-k8s/lvdashctl/internal/validate"
)

// newValidateCommand creates the "validate" subcommand that checks local definition and query files.
func newValidateCommand(opts *Options) *cobra.Command {
	var (
		only  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate dashboard definitions and SQL query files",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			kind, err := validate.ParseKind(only)
			if err != nil {
				return err
			}

			sess, err := loadSession(cmd, opts)
			if err != nil {
				return err
			}
			logger := sess.logger
			started := opts.now()
			defer func() { opts.recordRun(logger, "validate", "", started, err) }()

			store := sess.store()
			runner := validate.NewRunner(store, logger)

			rep, err := runValidation(runner, kind, opts)
			if err != nil {
				return err
			}
			if !watch {
				sess.publish(map[string]string{
					"validated": fmt.Sprint(rep.Total()),
					"invalid":   fmt.Sprint(len(rep.Failed())),
				}, validationSummary(rep))
				return validationError(rep)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchDefinitions(ctx, store, logger, defaultWatchDebounce, func() {
				if _, err := runValidation(runner, kind, opts); err != nil {
					logger.Error("validation run failed", "error", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&only, "only", string(validate.KindAll), "Restrict validation to dashboards or queries")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run validation whenever a definition or query file changes")

	return cmd
}

func runValidation(runner *validate.Runner, kind validate.Kind, opts *Options) (validate.Report, error) {
	rep, err := runner.Run(kind)
	if err != nil {
		return rep, err
	}
	opts.metrics.AddItems("validate", "", logging.ResultPass, rep.Total()-len(rep.Failed()))
	opts.metrics.AddItems("validate", "", logging.ResultFail, len(rep.Failed()))
	return rep, nil
}

func validationError(rep validate.Report) error {
	if rep.OK() {
		return nil
	}
	return fmt.Errorf("validation failed: %d of %d files invalid", len(rep.Failed()), rep.Total())
}

func validationSummary(rep validate.Report) string {
	status := "passed"
	if !rep.OK() {
		status = "failed"
	}
	return fmt.Sprintf("### Dashboard validation %s\n\n%d files checked, %d invalid.\n", status, rep.Total(), len(rep.Failed()))
}

const defaultWatchDebounce = 300 * time.Millisecond

// watchDefinitions blocks until ctx is done, calling rerun after bursts of
// changes to definition or query files in the store directory.
func watchDefinitions(ctx context.Context, store *definition.Store, logger *slog.Logger, debounce time.Duration, rerun func()) error {
	w, err := newDirWatcher(store.Dir())
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	logger.Info("watching for changes", "dir", store.Dir())
	return watchLoop(ctx, w, []string{store.Suffix(), definition.QuerySuffix}, debounce, logger.Warn, rerun)
}
