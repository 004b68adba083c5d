package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/lvdashctl/internal/config"
	"github.com/codex-k8s/lvdashctl/internal/env"
	"github.com/codex-k8s/lvdashctl/internal/lakeview"
	"github.com/codex-k8s/lvdashctl/internal/lakeview/lakeviewtest"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type harness struct {
	dir    string
	config string
	output string
	fake   *lakeviewtest.Fake
	vars   env.Vars
	opts   *Options
}

func newHarness(t *testing.T, yaml string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:    dir,
		config: filepath.Join(dir, "lvdash.yaml"),
		output: filepath.Join(dir, "github_output"),
		fake:   lakeviewtest.NewFake(),
	}
	require.NoError(t, os.WriteFile(h.config, []byte(yaml), 0o600))
	h.vars = env.Vars{
		"DATABRICKS_HOST":  "https://adb-1.example.net",
		"DATABRICKS_TOKEN": "dapi-test",
		"GITHUB_OUTPUT":    h.output,
	}
	opts := defaultOptions()
	opts.newService = func(config.Settings, *slog.Logger) (lakeview.Service, error) { return h.fake, nil }
	opts.environ = func() env.Vars { return h.vars }
	opts.now = func() time.Time { return fixedNow }
	h.opts = opts
	return h
}

func (h *harness) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, name), []byte(content), 0o600))
}

func (h *harness) run(args ...string) error {
	cmd := newRootCommand(h.opts, logging.Discard())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--config", h.config, "--log-level", "error"))
	return cmd.ExecuteContext(context.Background())
}

func (h *harness) outputs(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.output)
	require.NoError(t, err)
	return string(data)
}

func TestValidateCommand(t *testing.T) {
	h := newHarness(t, "")
	h.write(t, "sales.lvdash.json", `{"pages":[],"datasets":[]}`)
	h.write(t, "daily.sql", "SELECT 1")

	require.NoError(t, h.run("validate"))
	assert.Contains(t, h.outputs(t), "invalid=0\nvalidated=2\n")
}

func TestValidateCommandFailsOnInvalidFile(t *testing.T) {
	h := newHarness(t, "")
	h.write(t, "sales.lvdash.json", `{"pages":[]}`)
	h.write(t, "broken.lvdash.json", `{not json`)

	err := h.run("validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files invalid")
}

func TestValidateCommandOnlyQueries(t *testing.T) {
	h := newHarness(t, "")
	h.write(t, "broken.lvdash.json", `{not json`)
	h.write(t, "daily.sql", "SELECT 1")

	require.NoError(t, h.run("validate", "--only", "queries"))
	require.Error(t, h.run("validate", "--only", "widgets"))
}

func TestValidateCommandDirFlag(t *testing.T) {
	h := newHarness(t, "")
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "empty.sql"), []byte("  "), 0o600))

	err := h.run("validate", "--dir", other)
	require.Error(t, err)
}

func TestDeployRequiresEnvironment(t *testing.T) {
	h := newHarness(t, "")

	err := h.run("deploy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--environment is required")

	err = h.run("deploy", "--environment", "staging")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid environment "staging"`)
	assert.Empty(t, h.fake.CreateCalls)
}

func TestDeployCommand(t *testing.T) {
	h := newHarness(t, "")
	h.vars["UAT_WAREHOUSE_ID"] = "wh-uat-42"
	h.write(t, "sales.lvdash.json", `{"pages":[]}`)
	h.write(t, "ops.lvdash.json", `{"pages":[]}`)

	require.NoError(t, h.run("deploy", "--environment", "uat"))

	got := h.fake.Dashboards()
	require.Len(t, got, 2)
	assert.Equal(t, "ops_uat", got[0].DisplayName)
	assert.Equal(t, "sales_uat", got[1].DisplayName)
	for _, d := range got {
		assert.Equal(t, "wh-uat-42", d.WarehouseID)
	}
	assert.Len(t, h.fake.PermissionCalls, 2)
	assert.Contains(t, h.outputs(t), "deployed=ops_uat,sales_uat\nenvironment=uat\n")
}

func TestDeployCommandContinuesAndStrict(t *testing.T) {
	h := newHarness(t, "parentPath: /Shared/dashboards\n")
	h.fake.CreateErrs = map[string]error{"ops_dev": errors.New("quota exceeded")}
	h.write(t, "sales.lvdash.json", `{"pages":[]}`)
	h.write(t, "ops.lvdash.json", `{"pages":[]}`)

	require.NoError(t, h.run("deploy", "-e", "dev", "--skip-permissions"))
	require.Len(t, h.fake.Dashboards(), 1)
	assert.Equal(t, "/Shared/dashboards", h.fake.Dashboards()[0].ParentPath)
	assert.Empty(t, h.fake.PermissionCalls)

	err := h.run("deploy", "-e", "dev", "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ops")
}

func TestDeployCommandRequiresCredentials(t *testing.T) {
	h := newHarness(t, "")
	delete(h.vars, "DATABRICKS_TOKEN")
	h.write(t, "sales.lvdash.json", `{}`)

	err := h.run("deploy", "-e", "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid settings")
}

func TestDeployCommandUsesEnvFile(t *testing.T) {
	h := newHarness(t, "")
	delete(h.vars, "DATABRICKS_TOKEN")
	h.write(t, ".env", "DATABRICKS_TOKEN=from-file\nPROD_WAREHOUSE_ID=wh-prod-file\n")
	h.write(t, "sales.lvdash.json", `{}`)

	require.NoError(t, h.run("deploy", "-e", "prod", "--env-file", filepath.Join(h.dir, ".env")))
	require.Len(t, h.fake.Dashboards(), 1)
	assert.Equal(t, "wh-prod-file", h.fake.Dashboards()[0].WarehouseID)
}

func TestEnvironmentDeclaredInConfigIsAccepted(t *testing.T) {
	h := newHarness(t, `
environments:
  staging:
    warehouseId: wh-staging
`)
	h.write(t, "sales.lvdash.json", `{}`)

	require.NoError(t, h.run("deploy", "-e", "staging"))
	got := h.fake.Dashboards()
	require.Len(t, got, 1)
	assert.Equal(t, "sales_staging", got[0].DisplayName)
	assert.Equal(t, "wh-staging", got[0].WarehouseID)
}

func TestEnvironmentFromLVDASHVariable(t *testing.T) {
	h := newHarness(t, "")
	h.vars["LVDASH_ENVIRONMENT"] = "uat"
	h.write(t, "sales.lvdash.json", `{}`)

	require.NoError(t, h.run("deploy"))
	assert.Equal(t, "sales_uat", h.fake.Dashboards()[0].DisplayName)
}

func TestBackupCommand(t *testing.T) {
	h := newHarness(t, "backupRoot: snapshots\n")
	h.fake.Add(lakeview.Dashboard{ID: "1", DisplayName: "sales_prod", SerializedDashboard: `{"pages":[]}`})
	h.fake.Add(lakeview.Dashboard{ID: "2", DisplayName: "sales_uat"})

	require.NoError(t, h.run("backup", "--environment", "prod"))

	want := filepath.Join(h.dir, "snapshots", "prod", "20260314_092653", "sales_prod.json")
	assert.FileExists(t, want)
	assert.Contains(t, h.outputs(t), "backup_count=1\n")
}

func TestBackupCommandFailsOnRemoteError(t *testing.T) {
	h := newHarness(t, "")
	h.fake.Add(lakeview.Dashboard{ID: "1", DisplayName: "sales_prod"})
	h.fake.GetErrs = map[string]error{"1": errors.New("boom")}

	err := h.run("backup", "-e", "prod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup of prod failed")
}

func TestTestCommand(t *testing.T) {
	h := newHarness(t, "")
	h.write(t, "sales.lvdash.json", `{}`)
	h.fake.Add(lakeview.Dashboard{ID: "p", DisplayName: "sales_prod"})

	err := h.run("test", "-e", "uat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sales_uat")

	h.fake.Add(lakeview.Dashboard{ID: "u", DisplayName: "sales_uat"})
	require.NoError(t, h.run("test", "-e", "uat"))
	assert.Empty(t, h.fake.CreateCalls)
}

func TestMetricsFileWritten(t *testing.T) {
	h := newHarness(t, "")
	h.write(t, "sales.lvdash.json", `{}`)
	metricsPath := filepath.Join(h.dir, "lvdash.prom")

	require.NoError(t, h.run("deploy", "-e", "dev", "--metrics-file", metricsPath))

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lvdash_runs_total{command="deploy",environment="dev",outcome="success"} 1`)
	assert.Contains(t, string(data), `lvdash_items_total{command="deploy",environment="dev",result="pass"} 1`)
}

func TestDoctorCommand(t *testing.T) {
	h := newHarness(t, "")
	h.write(t, "sales.lvdash.json", `{}`)
	require.NoError(t, h.run("doctor", "-e", "uat"))
	assert.Equal(t, 1, h.fake.ListCalls)

	require.NoError(t, h.run("doctor", "--offline"))
	assert.Equal(t, 1, h.fake.ListCalls)
}

func TestDoctorCommandAggregatesFailures(t *testing.T) {
	h := newHarness(t, "")
	delete(h.vars, "DATABRICKS_HOST")

	err := h.run("doctor", "-e", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment, credentials")
	assert.Zero(t, h.fake.ListCalls)
}

func TestDoctorCommandReportsUnreachableWorkspace(t *testing.T) {
	h := newHarness(t, "")
	h.fake.ListErr = errors.New("connection refused")

	err := h.run("doctor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace")
}

func TestMirrorOptions(t *testing.T) {
	cmd := newBackupCommand(defaultOptions())
	require.NoError(t, cmd.ParseFlags([]string{"--gcs-bucket", "flag-bucket"}))

	got, err := mirrorOptions(cmd, env.Vars{
		"LVDASH_GCS_BUCKET":      "env-bucket",
		"LVDASH_GCS_CREDENTIALS": " /keys/sa.json ",
		"LVDASH_GCS_PREFIX":      "nightly",
	})
	require.NoError(t, err)
	assert.Equal(t, "flag-bucket", got.Bucket)
	assert.Equal(t, "/keys/sa.json", got.CredentialsFile)
	assert.Equal(t, "nightly", got.Prefix)
}

func TestMirrorOptionsDisabledByDefault(t *testing.T) {
	cmd := newBackupCommand(defaultOptions())
	require.NoError(t, cmd.ParseFlags(nil))

	got, err := mirrorOptions(cmd, env.Vars{})
	require.NoError(t, err)
	assert.Empty(t, got.Bucket)
}
