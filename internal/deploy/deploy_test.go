package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/env"
	"github.com/codex-k8s/lvdashctl/internal/environment"
	"github.com/codex-k8s/lvdashctl/internal/lakeview"
	"github.com/codex-k8s/lvdashctl/internal/lakeview/lakeviewtest"
)

func defs(names ...string) []definition.Definition {
	out := make([]definition.Definition, 0, len(names))
	for _, n := range names {
		out = append(out, definition.Definition{
			Name:       n,
			Content:    json.RawMessage(`{"pages": [{"name": "` + n + `"}]}`),
			SourcePath: n + ".lvdash.json",
		})
	}
	return out
}

func uatProfile(t *testing.T) environment.Profile {
	t.Helper()
	r, err := environment.NewResolver(env.Vars{"UAT_WAREHOUSE_ID": "wh-uat"}, nil)
	require.NoError(t, err)
	return r.Resolve("uat")
}

func TestDeployAllQualifiesNamesAndWarehouse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.lvdash.json"), []byte(`{"pages": []}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.lvdash.json"), []byte(`{"datasets": []}`), 0o600))
	loaded, failed, err := definition.NewStore(dir, ".lvdash.json").LoadAll()
	require.NoError(t, err)
	require.Empty(t, failed)

	fake := lakeviewtest.NewFake()
	profile := uatProfile(t)
	rep := NewDeployer(fake, nil, Options{}).DeployAll(context.Background(), loaded, profile)

	assert.True(t, rep.OK())
	assert.ElementsMatch(t, []string{"sales_uat", "ops_uat"}, rep.SucceededNames())
	require.Len(t, fake.CreateCalls, 2)
	for _, call := range fake.CreateCalls {
		assert.Equal(t, "wh-uat", call.WarehouseID)
	}
	assert.Equal(t, `{"datasets":[]}`, fake.CreateCalls[0].SerializedDashboard)

	require.Len(t, fake.PermissionCalls, 2)
	assert.Equal(t, profile.DefaultAccessControl, fake.PermissionCalls[0].ACL)
}

func TestDeployAllIsolatesCreateFailure(t *testing.T) {
	fake := lakeviewtest.NewFake()
	fake.CreateErrs = map[string]error{
		"beta_uat": &lakeview.APIError{Method: http.MethodPost, Path: "/api/2.0/lakeview/dashboards", StatusCode: http.StatusInternalServerError},
	}

	rep := NewDeployer(fake, nil, Options{}).DeployAll(context.Background(), defs("alpha", "beta", "gamma", "delta"), uatProfile(t))

	assert.False(t, rep.OK())
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "beta", rep.Failed[0].Name)
	assert.Equal(t, KindRemote, rep.Failed[0].Kind)
	var apiErr *lakeview.APIError
	assert.True(t, errors.As(rep.Failed[0].Err, &apiErr))
	assert.Equal(t, []string{"alpha_uat", "gamma_uat", "delta_uat"}, rep.SucceededNames())
	assert.Len(t, fake.CreateCalls, 4)
}

func TestDeployAllIsNotIdempotent(t *testing.T) {
	fake := lakeviewtest.NewFake()
	d := NewDeployer(fake, nil, Options{})
	input := defs("sales", "ops")
	profile := uatProfile(t)

	first := d.DeployAll(context.Background(), input, profile)
	second := d.DeployAll(context.Background(), input, profile)

	assert.Equal(t, first.SucceededNames(), second.SucceededNames())
	assert.Len(t, second.Succeeded, 2)
	assert.Len(t, fake.Dashboards(), 4, "each run creates new dashboards")
	assert.NotEqual(t, first.Succeeded[0].DashboardID, second.Succeeded[0].DashboardID)
}

func TestDeployAllPermissionFailureIsNonFatal(t *testing.T) {
	fake := lakeviewtest.NewFake()
	fake.PermissionErrs = map[string]error{"dash-001": errors.New("permission denied")}

	rep := NewDeployer(fake, nil, Options{}).DeployAll(context.Background(), defs("sales", "ops"), uatProfile(t))

	assert.True(t, rep.OK())
	assert.Equal(t, []string{"sales_uat", "ops_uat"}, rep.SucceededNames())
	assert.Equal(t, []string{"sales_uat"}, rep.PermissionWarnings)
	assert.Len(t, fake.PermissionCalls, 2)
}

func TestDeployAllSkipPermissions(t *testing.T) {
	fake := lakeviewtest.NewFake()

	rep := NewDeployer(fake, nil, Options{SkipPermissions: true, ParentPath: "/Shared/bi"}).
		DeployAll(context.Background(), defs("sales"), uatProfile(t))

	assert.True(t, rep.OK())
	assert.Empty(t, fake.PermissionCalls)
	require.Len(t, fake.CreateCalls, 1)
	assert.Equal(t, "/Shared/bi", fake.CreateCalls[0].ParentPath)
}

func TestDeployAllUnknownEnvironmentSkipsEmptyACL(t *testing.T) {
	r, err := environment.NewResolver(nil, nil)
	require.NoError(t, err)
	fake := lakeviewtest.NewFake()

	rep := NewDeployer(fake, nil, Options{}).DeployAll(context.Background(), defs("sales"), r.Resolve("sandbox"))

	assert.Equal(t, []string{"sales_sandbox"}, rep.SucceededNames())
	assert.Equal(t, environment.GenericWarehouseID, fake.CreateCalls[0].WarehouseID)
	assert.Empty(t, fake.PermissionCalls)
}

func TestAddLoadFailures(t *testing.T) {
	var rep Report
	rep.AddLoadFailures([]*definition.LoadError{{Name: "broken", Path: "broken.lvdash.json", Err: errors.New("invalid JSON")}})

	require.Len(t, rep.Failed, 1)
	assert.Equal(t, KindParse, rep.Failed[0].Kind)
	assert.False(t, rep.OK())
}
