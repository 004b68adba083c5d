package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/deploy"
	"github.com/codex-k8s/lvdashctl/internal/ghoutput"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// newDeployCommand creates the "deploy" subcommand that creates environment-qualified dashboards.
func newDeployCommand(opts *Options) *cobra.Command {
	var (
		strict          bool
		skipPermissions bool
		parentPath      string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy every dashboard definition to an environment",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			sess, err := loadSession(cmd, opts)
			if err != nil {
				return err
			}
			envID, err := sess.environmentID()
			if err != nil {
				return err
			}
			logger := sess.logger.With("environment", envID)
			started := opts.now()
			defer func() { opts.recordRun(logger, "deploy", envID, started, err) }()

			profile, err := sess.profile(envID)
			if err != nil {
				return err
			}
			svc, err := sess.service()
			if err != nil {
				return err
			}

			defs, loadErrs, err := sess.store().LoadAll()
			if err != nil {
				return err
			}
			if len(defs) == 0 && len(loadErrs) == 0 {
				logger.Warn("no dashboard definitions found", "dir", sess.store().Dir())
			}
			for _, le := range loadErrs {
				logger.Error("failed to load dashboard definition", "file", le.Path, "error", le.Err, "result", logging.ResultFail)
			}

			if !cmd.Flags().Changed("parent-path") {
				parentPath = sess.cfg.ParentPath
			}
			logger.Info("deploying dashboards", "count", len(defs), "warehouse", profile.WarehouseID)
			deployer := deploy.NewDeployer(svc, logger, deploy.Options{
				ParentPath:      parentPath,
				SkipPermissions: skipPermissions,
			})
			rep := deployer.DeployAll(cmd.Context(), defs, profile)
			rep.AddLoadFailures(loadErrs)

			opts.metrics.AddItems("deploy", envID, logging.ResultPass, len(rep.Succeeded))
			opts.metrics.AddItems("deploy", envID, logging.ResultFail, len(rep.Failed))
			opts.metrics.AddItems("deploy", envID, logging.ResultWarn, len(rep.PermissionWarnings))

			failed := failedDeployNames(rep)
			logger.Info("deployment finished", "succeeded", len(rep.Succeeded), "failed", len(rep.Failed), "permission_warnings", len(rep.PermissionWarnings))
			sess.publish(map[string]string{
				"environment": envID,
				"deployed":    ghoutput.JoinNames(rep.SucceededNames()),
				"failed":      ghoutput.JoinNames(failed),
			}, deploySummary(rep, failed))

			if strict && !rep.OK() {
				return fmt.Errorf("deployment to %s failed for: %s", envID, strings.Join(failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any dashboard failed to deploy")
	cmd.Flags().BoolVar(&skipPermissions, "skip-permissions", false, "Do not apply the environment's default access control")
	cmd.Flags().StringVar(&parentPath, "parent-path", "", "Workspace folder for created dashboards (overrides parentPath)")

	return cmd
}

func failedDeployNames(rep deploy.Report) []string {
	out := make([]string, 0, len(rep.Failed))
	for _, f := range rep.Failed {
		out = append(out, f.Name)
	}
	return out
}

func deploySummary(rep deploy.Report, failed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Dashboard deployment to %s\n\n", rep.Environment)
	fmt.Fprintf(&b, "Deployed %d, failed %d.\n", len(rep.Succeeded), len(rep.Failed))
	for _, d := range rep.Succeeded {
		fmt.Fprintf(&b, "- %s (`%s`)\n", d.QualifiedName, d.DashboardID)
	}
	for _, name := range failed {
		fmt.Fprintf(&b, "- %s: failed\n", name)
	}
	return b.String()
}
