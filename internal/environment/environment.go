// Package environment resolves an environment id into the warehouse and default
// access-control list used for deployments.
package environment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codex-k8s/lvdashctl/internal/config"
	"github.com/codex-k8s/lvdashctl/internal/env"
	"github.com/codex-k8s/lvdashctl/internal/lakeview"
)

// Known environment ids.
const (
	Dev  = "dev"
	UAT  = "uat"
	Prod = "prod"
)

// GenericWarehouseID is used for environments without a known default.
const GenericWarehouseID = "default-warehouse"

// Profile is the resolved deployment target for one environment.
type Profile struct {
	EnvironmentID        string
	WarehouseID          string
	DefaultAccessControl []lakeview.AccessControl
}

type defaults struct {
	warehouseID   string
	accessControl []lakeview.AccessControl
}

func group(name string, level lakeview.PermissionLevel) lakeview.AccessControl {
	return lakeview.AccessControl{Principal: name, PrincipalType: lakeview.PrincipalGroup, Level: level}
}

var builtin = map[string]defaults{
	Dev: {
		warehouseID: "default-dev-warehouse",
		accessControl: []lakeview.AccessControl{
			group("developers", lakeview.CanManage),
			group("analysts", lakeview.CanRead),
		},
	},
	UAT: {
		warehouseID: "default-uat-warehouse",
		accessControl: []lakeview.AccessControl{
			group("developers", lakeview.CanManage),
			group("testers", lakeview.CanRun),
		},
	},
	Prod: {
		warehouseID: "default-prod-warehouse",
		accessControl: []lakeview.AccessControl{
			group("business_users", lakeview.CanRead),
			group("dashboard_admins", lakeview.CanManage),
		},
	},
}

// Known returns the built-in environment ids in promotion order.
func Known() []string {
	return []string{Dev, UAT, Prod}
}

// IsKnown reports whether id is a built-in environment.
func IsKnown(id string) bool {
	_, ok := builtin[Normalize(id)]
	return ok
}

// Normalize lower-cases and trims an environment id.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// WarehouseVar returns the override variable name for an environment, e.g. UAT_WAREHOUSE_ID.
func WarehouseVar(id string) string {
	return strings.ToUpper(Normalize(id)) + "_WAREHOUSE_ID"
}

// Resolver maps environment ids to profiles. It snapshots its inputs, so
// Resolve is pure.
type Resolver struct {
	vars  env.Vars
	table map[string]defaults
}

// NewResolver builds a Resolver from variables and optional lvdash.yaml overrides.
func NewResolver(vars env.Vars, cfg *config.Config) (*Resolver, error) {
	table := make(map[string]defaults, len(builtin))
	for id, d := range builtin {
		table[id] = d
	}

	if cfg != nil {
		names := make([]string, 0, len(cfg.Environments))
		for name := range cfg.Environments {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			override, err := config.ResolveEnvironment(cfg, name)
			if err != nil {
				if errors.Is(err, config.ErrUnknownEnvironment) {
					continue
				}
				return nil, fmt.Errorf("resolve environment %q: %w", name, err)
			}
			id := Normalize(name)
			d := table[id]
			if override.WarehouseID != "" {
				d.warehouseID = override.WarehouseID
			}
			if len(override.AccessControl) > 0 {
				d.accessControl = convertACL(override.AccessControl)
			}
			if d.warehouseID == "" {
				d.warehouseID = GenericWarehouseID
			}
			table[id] = d
		}
	}

	return &Resolver{vars: vars.Clone(), table: table}, nil
}

func convertACL(in []config.AccessControl) []lakeview.AccessControl {
	out := make([]lakeview.AccessControl, 0, len(in))
	for _, ace := range in {
		kind := lakeview.PrincipalType(ace.Type)
		if kind == "" {
			kind = lakeview.PrincipalGroup
		}
		out = append(out, lakeview.AccessControl{
			Principal:     ace.Principal,
			PrincipalType: kind,
			Level:         lakeview.PermissionLevel(ace.Level),
		})
	}
	return out
}

// Resolve returns the profile for id. It never fails: unrecognized environments
// get the generic warehouse and an empty access-control list.
func (r *Resolver) Resolve(id string) Profile {
	id = Normalize(id)
	d, ok := r.table[id]
	if !ok {
		return Profile{EnvironmentID: id, WarehouseID: GenericWarehouseID, DefaultAccessControl: []lakeview.AccessControl{}}
	}

	warehouse := r.vars.GetOr(WarehouseVar(id), d.warehouseID)
	return Profile{
		EnvironmentID:        id,
		WarehouseID:          warehouse,
		DefaultAccessControl: append([]lakeview.AccessControl{}, d.accessControl...),
	}
}
