// Package ghoutput publishes run results to GitHub Actions step outputs.
package ghoutput

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/codex-k8s/lvdashctl/internal/env"
)

const (
	// OutputVar names the file GitHub Actions reads step outputs from.
	OutputVar = "GITHUB_OUTPUT"
	// SummaryVar names the job summary markdown file.
	SummaryVar = "GITHUB_STEP_SUMMARY"
)

// Writer appends outputs and summaries to the files named by the runner.
// Empty paths turn the corresponding method into a no-op.
type Writer struct {
	OutputPath  string
	SummaryPath string
}

// FromEnv builds a Writer from GITHUB_OUTPUT and GITHUB_STEP_SUMMARY.
func FromEnv(vars env.Vars) Writer {
	return Writer{
		OutputPath:  vars.GetOr(OutputVar, ""),
		SummaryPath: vars.GetOr(SummaryVar, ""),
	}
}

// Enabled reports whether any destination is configured.
func (w Writer) Enabled() bool {
	return w.OutputPath != "" || w.SummaryPath != ""
}

// Write appends key=value lines sorted by key.
func (w Writer) Write(values map[string]string) error {
	if w.OutputPath == "" || len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(w.OutputPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, sanitize(values[key])); err != nil {
			return err
		}
	}
	return nil
}

// Summary appends markdown to the job summary.
func (w Writer) Summary(markdown string) error {
	if w.SummaryPath == "" || strings.TrimSpace(markdown) == "" {
		return nil
	}
	f, err := os.OpenFile(w.SummaryPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	_, err = f.WriteString(markdown)
	return err
}

// JoinNames renders a name list as a single output value.
func JoinNames(names []string) string {
	return strings.Join(names, ",")
}

func sanitize(value string) string {
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "%", "%25")
	value = strings.ReplaceAll(value, "\r", "%0D")
	value = strings.ReplaceAll(value, "\n", "%0A")
	return value
}
