package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/ghoutput"
	"github.com/codex-k8s/lvdashctl/internal/logging"
	"github.com/codex-k8s/lvdashctl/internal/smoketest"
)

// newTestCommand creates the "test" subcommand that checks deployed dashboards are accessible.
func newTestCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that every local definition has an accessible dashboard in an environment",
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
			defer func() { opts.recordRun(logger, "test", envID, started, err) }()

			defs, err := definitionsByName(sess.store())
			if err != nil {
				return err
			}
			svc, err := sess.service()
			if err != nil {
				return err
			}

			rep := smoketest.NewTester(svc, logger).TestEnvironment(cmd.Context(), envID, defs)
			opts.metrics.AddItems("test", envID, logging.ResultPass, len(rep.Passed))
			opts.metrics.AddItems("test", envID, logging.ResultFail, len(rep.Failures))

			failed := rep.FailedNames()
			sess.publish(map[string]string{
				"environment": envID,
				"passed":      ghoutput.JoinNames(rep.Passed),
				"failed":      ghoutput.JoinNames(failed),
			}, fmt.Sprintf("### Dashboard tests in %s\n\n%d passed, %d failed.\n", envID, len(rep.Passed), len(failed)))

			if !rep.AllPassed() {
				return fmt.Errorf("dashboard tests failed in %s: %s", envID, strings.Join(failed, ", "))
			}
			return nil
		},
	}
	return cmd
}

// definitionsByName lists definitions by file name only; content is not needed
// to look a dashboard up.
func definitionsByName(store *definition.Store) ([]definition.Definition, error) {
	files, err := store.DefinitionFiles()
	if err != nil {
		return nil, err
	}
	defs := make([]definition.Definition, 0, len(files))
	for _, f := range files {
		defs = append(defs, definition.Definition{Name: store.NameFromPath(f), SourcePath: f})
	}
	return defs, nil
}
