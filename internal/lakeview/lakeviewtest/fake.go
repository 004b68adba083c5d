// Package lakeviewtest provides an in-memory lakeview.Service for tests.
package lakeviewtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/codex-k8s/lvdashctl/internal/lakeview"
)

// PermissionCall records a SetPermissions invocation.
type PermissionCall struct {
	ID  string
	ACL []lakeview.AccessControl
}

// Fake stores dashboards in memory. Error maps inject failures per display name
// (create) or per id (get, set permissions).
type Fake struct {
	mu sync.Mutex

	dashboards []lakeview.Dashboard
	nextID     int

	ListErr        error
	CreateErrs     map[string]error
	GetErrs        map[string]error
	PermissionErrs map[string]error

	CreateCalls     []lakeview.CreateRequest
	GetCalls        []string
	PermissionCalls []PermissionCall
	ListCalls       int
}

var _ lakeview.Service = (*Fake)(nil)

// NewFake returns a Fake seeded with dashboards.
func NewFake(seed ...lakeview.Dashboard) *Fake {
	f := &Fake{}
	for _, d := range seed {
		f.Add(d)
	}
	return f
}

// Add stores a dashboard, assigning an id when empty.
func (f *Fake) Add(d lakeview.Dashboard) lakeview.Dashboard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(d)
}

func (f *Fake) addLocked(d lakeview.Dashboard) lakeview.Dashboard {
	f.nextID++
	if d.ID == "" {
		d.ID = fmt.Sprintf("dash-%03d", f.nextID)
	}
	if d.LifecycleState == "" {
		d.LifecycleState = "ACTIVE"
	}
	f.dashboards = append(f.dashboards, d)
	return d
}

// Dashboards returns a snapshot of stored dashboards in insertion order.
func (f *Fake) Dashboards() []lakeview.Dashboard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lakeview.Dashboard(nil), f.dashboards...)
}

// List implements lakeview.Service. Summaries omit serialized content.
func (f *Fake) List(_ context.Context) ([]lakeview.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]lakeview.Dashboard, 0, len(f.dashboards))
	for _, d := range f.dashboards {
		d.SerializedDashboard = ""
		out = append(out, d)
	}
	return out, nil
}

// Get implements lakeview.Service.
func (f *Fake) Get(_ context.Context, id string) (lakeview.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls = append(f.GetCalls, id)
	if err := f.GetErrs[id]; err != nil {
		return lakeview.Dashboard{}, err
	}
	for _, d := range f.dashboards {
		if d.ID == id {
			return d, nil
		}
	}
	return lakeview.Dashboard{}, &lakeview.APIError{
		Method:     http.MethodGet,
		Path:       "/api/2.0/lakeview/dashboards/" + id,
		StatusCode: http.StatusNotFound,
		ErrorCode:  "RESOURCE_DOES_NOT_EXIST",
		Message:    "dashboard " + id + " does not exist",
	}
}

// Create implements lakeview.Service. Duplicate display names are accepted.
func (f *Fake) Create(_ context.Context, req lakeview.CreateRequest) (lakeview.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls = append(f.CreateCalls, req)
	if err := f.CreateErrs[req.DisplayName]; err != nil {
		return lakeview.Dashboard{}, err
	}
	return f.addLocked(lakeview.Dashboard{
		DisplayName:         req.DisplayName,
		SerializedDashboard: req.SerializedDashboard,
		WarehouseID:         req.WarehouseID,
		ParentPath:          req.ParentPath,
	}), nil
}

// SetPermissions implements lakeview.Service.
func (f *Fake) SetPermissions(_ context.Context, id string, acl []lakeview.AccessControl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PermissionCalls = append(f.PermissionCalls, PermissionCall{ID: id, ACL: append([]lakeview.AccessControl(nil), acl...)})
	return f.PermissionErrs[id]
}
