package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/lvdashctl/internal/backup"
	"github.com/codex-k8s/lvdashctl/internal/env"
	"github.com/codex-k8s/lvdashctl/internal/gcs"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// newBackupCommand creates the "backup" subcommand that snapshots an environment's dashboards.
func newBackupCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up every dashboard deployed to an environment",
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
			defer func() { opts.recordRun(logger, "backup", envID, started, err) }()

			mirror, err := mirrorOptions(cmd, sess.vars)
			if err != nil {
				return err
			}

			svc, err := sess.service()
			if err != nil {
				return err
			}

			agentOpts := backup.Options{
				Root: sess.cfg.Path(sess.cfg.BackupRoot),
				Now:  opts.now,
			}
			if mirror.Bucket != "" {
				mirror.Logger = logger
				client, err := gcs.NewClient(cmd.Context(), mirror)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				agentOpts.Mirror = client
			}

			summary, err := backup.NewAgent(svc, logger, agentOpts).BackupEnvironment(cmd.Context(), envID)
			if err != nil {
				return fmt.Errorf("backup of %s failed: %w", envID, err)
			}
			opts.metrics.AddItems("backup", envID, logging.ResultPass, summary.Count)

			values := map[string]string{
				"environment":  envID,
				"backup_count": fmt.Sprint(summary.Count),
			}
			if summary.Count > 0 {
				values["backup_dir"] = summary.Directory
			}
			if summary.MirrorURI != "" {
				values["backup_uri"] = summary.MirrorURI
			}
			sess.publish(values, fmt.Sprintf("### Dashboard backup of %s\n\n%d dashboards saved.\n", envID, summary.Count))
			return nil
		},
	}

	cmd.Flags().String("gcs-bucket", "", "Also upload the backup to this Google Cloud Storage bucket")
	cmd.Flags().String("gcs-credentials", "", "Service account key for --gcs-bucket (default: application default credentials)")
	cmd.Flags().String("gcs-prefix", "", "Object name prefix inside --gcs-bucket")

	return cmd
}

// mirrorOptions reads the --gcs-* flags, falling back to LVDASH_GCS_* variables
// for flags that were not set. An empty Bucket disables mirroring.
func mirrorOptions(cmd *cobra.Command, vars env.Vars) (gcs.Options, error) {
	var e backupEnv
	if err := parseEnv(&e, vars); err != nil {
		return gcs.Options{}, err
	}

	pick := func(flag, key, fromEnv string) string {
		if !cmd.Flags().Changed(flag) && envPresent(vars, key) {
			return strings.TrimSpace(fromEnv)
		}
		return strings.TrimSpace(cmd.Flag(flag).Value.String())
	}
	return gcs.Options{
		Bucket:          pick("gcs-bucket", "LVDASH_GCS_BUCKET", e.GCSBucket),
		CredentialsFile: pick("gcs-credentials", "LVDASH_GCS_CREDENTIALS", e.GCSCredentials),
		Prefix:          pick("gcs-prefix", "LVDASH_GCS_PREFIX", e.GCSPrefix),
	}, nil
}
