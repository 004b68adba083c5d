// Package deploy pushes dashboard definitions to an environment.
//
// Deployment is best effort: every definition is processed independently and a
// failure never stops the rest of the batch. Dashboards are always created,
// never updated, so repeated runs leave one dashboard per run.
package deploy

import (
	"context"
	"log/slog"

	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/environment"
	"github.com/codex-k8s/lvdashctl/internal/lakeview"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// ErrorKind classifies a failed definition.
type ErrorKind string

const (
	// KindParse marks definitions that could not be read or serialized.
	KindParse ErrorKind = "parse"
	// KindRemote marks definitions whose create call failed.
	KindRemote ErrorKind = "remote"
)

// Failure describes a definition that was not deployed.
type Failure struct {
	Name string
	Kind ErrorKind
	Err  error
}

// Deployed describes a created dashboard.
type Deployed struct {
	Name          string
	QualifiedName string
	DashboardID   string
	WarehouseID   string
}

// Report is the outcome of DeployAll.
type Report struct {
	Environment string
	Succeeded   []Deployed
	Failed      []Failure
	// PermissionWarnings lists qualified names whose permissions could not be set.
	PermissionWarnings []string
}

// OK reports whether every definition was deployed.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// SucceededNames returns the qualified names of deployed dashboards.
func (r Report) SucceededNames() []string {
	out := make([]string, 0, len(r.Succeeded))
	for _, d := range r.Succeeded {
		out = append(out, d.QualifiedName)
	}
	return out
}

// AddLoadFailures records definitions that failed to load before deployment.
func (r *Report) AddLoadFailures(errs []*definition.LoadError) {
	for _, e := range errs {
		r.Failed = append(r.Failed, Failure{Name: e.Name, Kind: KindParse, Err: e})
	}
}

// Options tune a Deployer.
type Options struct {
	// ParentPath is the workspace folder dashboards are created in.
	ParentPath string
	// SkipPermissions disables the access-control step.
	SkipPermissions bool
}

// Deployer creates dashboards through a lakeview.Service.
type Deployer struct {
	svc    lakeview.Service
	logger *slog.Logger
	opts   Options
}

// NewDeployer constructs a Deployer.
func NewDeployer(svc lakeview.Service, logger *slog.Logger, opts Options) *Deployer {
	return &Deployer{svc: svc, logger: logging.OrDiscard(logger), opts: opts}
}

// DeployAll deploys every definition to profile's environment.
func (d *Deployer) DeployAll(ctx context.Context, defs []definition.Definition, profile environment.Profile) Report {
	rep := Report{Environment: profile.EnvironmentID}
	for _, def := range defs {
		d.deployOne(ctx, def, profile, &rep)
	}
	return rep
}

func (d *Deployer) deployOne(ctx context.Context, def definition.Definition, profile environment.Profile, rep *Report) {
	name := def.QualifiedName(profile.EnvironmentID)
	log := d.logger.With("dashboard", name, "file", def.SourcePath)

	serialized, err := def.Serialized()
	if err != nil {
		log.Error("failed to deploy dashboard", "error", err, "result", logging.ResultFail)
		rep.Failed = append(rep.Failed, Failure{Name: def.Name, Kind: KindParse, Err: err})
		return
	}

	created, err := d.svc.Create(ctx, lakeview.CreateRequest{
		DisplayName:         name,
		SerializedDashboard: serialized,
		WarehouseID:         profile.WarehouseID,
		ParentPath:          d.opts.ParentPath,
	})
	if err != nil {
		log.Error("failed to deploy dashboard", "error", err, "result", logging.ResultFail)
		rep.Failed = append(rep.Failed, Failure{Name: def.Name, Kind: KindRemote, Err: err})
		return
	}

	log.Info("deployed dashboard", "id", created.ID, "warehouse", profile.WarehouseID, "result", logging.ResultPass)
	rep.Succeeded = append(rep.Succeeded, Deployed{
		Name:          def.Name,
		QualifiedName: name,
		DashboardID:   created.ID,
		WarehouseID:   profile.WarehouseID,
	})

	d.applyPermissions(ctx, log, created.ID, name, profile, rep)
}

// applyPermissions never fails the deployment; errors become warnings.
func (d *Deployer) applyPermissions(ctx context.Context, log *slog.Logger, id, name string, profile environment.Profile, rep *Report) {
	switch {
	case d.opts.SkipPermissions:
		log.Info("skipping permission setup", "id", id)
		return
	case len(profile.DefaultAccessControl) == 0:
		log.Debug("no default access control for environment", "environment", profile.EnvironmentID)
		return
	}

	if err := d.svc.SetPermissions(ctx, id, profile.DefaultAccessControl); err != nil {
		log.Warn("failed to set permissions", "id", id, "error", err, "result", logging.ResultWarn)
		rep.PermissionWarnings = append(rep.PermissionWarnings, name)
		return
	}
	log.Debug("permissions applied", "id", id, "entries", len(profile.DefaultAccessControl))
}
