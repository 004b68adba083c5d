// Package backup snapshots an environment's remote dashboards to local storage.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/codex-k8s/lvdashctl/internal/lakeview"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// TimestampFormat names each run directory (UTC).
const TimestampFormat = "20060102_150405"

// Record is the on-disk format of one backed-up dashboard.
type Record struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	SerializedDashboard string `json:"serialized_dashboard"`
	WarehouseID         string `json:"warehouse_id"`
	BackupTimestamp     string `json:"backup_timestamp"`
}

// Summary is the outcome of a backup run. Directory is only created when Count > 0.
type Summary struct {
	Environment string
	Count       int
	Directory   string
	Files       []string
	// MirrorURI is set when the run directory was uploaded to a mirror.
	MirrorURI string
}

// Mirror uploads a finished backup directory to remote storage.
type Mirror interface {
	UploadDir(ctx context.Context, localDir, prefix string) (string, error)
}

// Options configure an Agent.
type Options struct {
	// Root is the directory holding <env>/<timestamp> run directories.
	Root string
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
	// Mirror, when set, receives a copy of every non-empty run.
	Mirror Mirror
}

// Agent backs up dashboards. Any error aborts the run.
type Agent struct {
	svc    lakeview.Service
	logger *slog.Logger
	opts   Options
}

// NewAgent constructs an Agent.
func NewAgent(svc lakeview.Service, logger *slog.Logger, opts Options) *Agent {
	if opts.Root == "" {
		opts.Root = "backups"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Agent{svc: svc, logger: logging.OrDiscard(logger), opts: opts}
}

// Matches reports whether a display name belongs to the environment: it must
// contain the "_<env>" marker anywhere in the name.
func Matches(displayName, environmentID string) bool {
	return strings.Contains(displayName, "_"+environmentID)
}

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

// SanitizeName converts a display name into a safe file base name.
func SanitizeName(displayName string) string {
	return nameReplacer.Replace(displayName)
}

// BackupEnvironment writes one Record per matching dashboard into a fresh
// run directory.
func (a *Agent) BackupEnvironment(ctx context.Context, environmentID string) (Summary, error) {
	runAt := a.opts.Now().UTC()
	stamp := runAt.Format(TimestampFormat)
	sum := Summary{
		Environment: environmentID,
		Directory:   filepath.Join(a.opts.Root, environmentID, stamp),
	}

	dashboards, err := a.svc.List(ctx)
	if err != nil {
		a.logger.Error("backup failed", "environment", environmentID, "error", err)
		return Summary{}, fmt.Errorf("list dashboards: %w", err)
	}

	created := false
	written := make(map[string]string)
	for _, d := range dashboards {
		if !Matches(d.DisplayName, environmentID) {
			continue
		}
		file, err := a.backupOne(ctx, d, sum.Directory, &created)
		if err != nil {
			a.logger.Error("backup failed", "environment", environmentID, "dashboard", d.DisplayName, "error", err)
			return Summary{}, err
		}
		if prev, dup := written[file]; dup {
			a.logger.Warn("duplicate display name overwrote an earlier backup file", "file", file, "id", d.ID, "previous_id", prev)
		}
		written[file] = d.ID
		sum.Count++
		sum.Files = append(sum.Files, file)
		a.logger.Info("backed up dashboard", "dashboard", d.DisplayName, "id", d.ID, "file", file, "result", logging.ResultPass)
	}

	if sum.Count == 0 {
		a.logger.Warn("no dashboards found to backup", "environment", environmentID)
		return sum, nil
	}
	a.logger.Info("backup completed", "environment", environmentID, "count", sum.Count, "dir", sum.Directory)

	if a.opts.Mirror != nil {
		uri, err := a.opts.Mirror.UploadDir(ctx, sum.Directory, path.Join(environmentID, stamp))
		if err != nil {
			return Summary{}, fmt.Errorf("mirror backup %s: %w", sum.Directory, err)
		}
		sum.MirrorURI = uri
		a.logger.Info("backup mirrored", "uri", uri)
	}
	return sum, nil
}

func (a *Agent) backupOne(ctx context.Context, summary lakeview.Dashboard, dir string, created *bool) (string, error) {
	full, err := a.svc.Get(ctx, summary.ID)
	if err != nil {
		return "", fmt.Errorf("get dashboard %s (%s): %w", summary.DisplayName, summary.ID, err)
	}

	if err := ensureDir(dir, created); err != nil {
		return "", err
	}

	rec := Record{
		ID:                  summary.ID,
		DisplayName:         summary.DisplayName,
		SerializedDashboard: full.SerializedDashboard,
		WarehouseID:         full.WarehouseID,
		BackupTimestamp:     a.opts.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup of %s: %w", summary.DisplayName, err)
	}

	file := filepath.Join(dir, SanitizeName(summary.DisplayName)+".json")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup file %s: %w", file, err)
	}
	return file, nil
}

// ensureDir creates the run directory on first use and requires that it did not
// exist before this run. Later calls only re-ensure its existence.
func ensureDir(dir string, created *bool) error {
	if *created {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure backup directory %s: %w", dir, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("create backup root %s: %w", filepath.Dir(dir), err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("backup directory %s already exists", dir)
		}
		return fmt.Errorf("create backup directory %s: %w", dir, err)
	}
	*created = true
	return nil
}
