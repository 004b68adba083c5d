package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItems(t *testing.T) {
	r := NewRecorder()
	r.AddItems("deploy", "uat", "pass", 2)
	r.AddItems("deploy", "uat", "pass", 1)
	r.AddItems("deploy", "uat", "fail", 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.items.WithLabelValues("deploy", "uat", "pass")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.items))
}

func TestObserveRun(t *testing.T) {
	r := NewRecorder()
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)

	r.ObserveRun("backup", "prod", start, end, nil)
	r.ObserveRun("backup", "prod", start, end, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("backup", "prod", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("backup", "prod", "failure")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.duration.WithLabelValues("backup", "prod")))
	assert.Equal(t, float64(end.Unix()), testutil.ToFloat64(r.lastSuccess.WithLabelValues("backup", "prod")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.AddItems("validate", "", "pass", 4)
	path := filepath.Join(t.TempDir(), "lvdash.prom")

	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lvdash_items_total{command="validate",environment="",result="pass"} 4`)
}

func TestWriteTextfileBadDir(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	require.Error(t, err)
}
