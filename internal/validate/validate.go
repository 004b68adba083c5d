// Package validate performs shallow structural checks on dashboard definitions
// and companion SQL query files.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// DeniedKeywords are SQL keywords that trigger an advisory warning.
var DeniedKeywords = []string{"DROP", "DELETE", "TRUNCATE", "ALTER"}

var (
	selectPattern  = regexp.MustCompile(`(?i)\bSELECT\b`)
	deniedPatterns = compileDenied(DeniedKeywords)
)

func compileDenied(words []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(words))
	for _, w := range words {
		out[w] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

// ParseError reports a file that is not structurally acceptable.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the outcome of validating one file.
type Result struct {
	Path     string
	OK       bool
	Warnings []string
	Err      error
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) fail(reason string, err error) {
	r.OK = false
	r.Err = &ParseError{Path: r.Path, Reason: reason, Err: err}
}

// Dashboard validates a single dashboard definition file.
func Dashboard(path string) Result {
	res := Result{Path: path, OK: true}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.fail("file not found", err)
		} else {
			res.fail("unreadable", err)
		}
		return res
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.fail("invalid JSON", err)
		return res
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		res.fail("must be a JSON object", nil)
		return res
	}

	_, hasPages := obj["pages"]
	_, hasDatasets := obj["datasets"]
	if !hasPages && !hasDatasets {
		res.warn("neither pages nor datasets present; may not match Lakeview dashboard format")
	}
	return res
}

// Query validates a single SQL query file.
func Query(path string) Result {
	res := Result{Path: path, OK: true}

	raw, err := os.ReadFile(path)
	if err != nil {
		res.fail("unreadable", err)
		return res
	}
	sql := string(raw)
	if strings.TrimSpace(sql) == "" {
		res.fail("empty SQL file", nil)
		return res
	}

	if !selectPattern.MatchString(sql) {
		res.warn("no SELECT statement found")
	}
	for _, kw := range DeniedKeywords {
		if deniedPatterns[kw].MatchString(sql) {
			res.warn("potentially dangerous keyword %q found", kw)
		}
	}
	return res
}

// Kind selects which file families a batch validates.
type Kind string

const (
	KindAll        Kind = "all"
	KindDashboards Kind = "dashboards"
	KindQueries    Kind = "queries"
)

// ParseKind converts a flag value into a Kind.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case "", KindAll:
		return KindAll, nil
	case KindDashboards, KindQueries:
		return k, nil
	default:
		return "", fmt.Errorf("unknown validation kind %q (want all, dashboards or queries)", value)
	}
}

// Report summarizes a batch run.
type Report struct {
	Dashboards []Result
	Queries    []Result
}

// Failed returns every failing result.
func (r Report) Failed() []Result {
	var out []Result
	for _, set := range [][]Result{r.Dashboards, r.Queries} {
		for _, res := range set {
			if !res.OK {
				out = append(out, res)
			}
		}
	}
	return out
}

// OK reports whether no file failed. Warnings never affect the outcome.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Total returns the number of files validated.
func (r Report) Total() int {
	return len(r.Dashboards) + len(r.Queries)
}

// Runner validates every matching file of a definition store.
type Runner struct {
	store  *definition.Store
	logger *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(store *definition.Store, logger *slog.Logger) *Runner {
	return &Runner{store: store, logger: logging.OrDiscard(logger)}
}

// Run validates the selected file families. The returned error is non-nil only
// when the directory itself could not be read.
func (r *Runner) Run(kind Kind) (Report, error) {
	var rep Report
	r.logger.Info("checking directory", "dir", r.store.Dir())

	if kind == KindAll || kind == KindDashboards {
		files, err := r.store.DefinitionFiles()
		if err != nil {
			return rep, err
		}
		rep.Dashboards = r.batch("dashboard", files, Dashboard)
	}
	if kind == KindAll || kind == KindQueries {
		files, err := r.store.QueryFiles()
		if err != nil {
			return rep, err
		}
		rep.Queries = r.batch("query", files, Query)
	}
	return rep, nil
}

func (r *Runner) batch(label string, files []string, check func(string) Result) []Result {
	if len(files) == 0 {
		r.logger.Warn("no files found; nothing to validate", "kind", label, "dir", r.store.Dir(), "result", logging.ResultWarn)
		if all, err := r.store.AllFiles(); err == nil {
			r.logger.Debug("files in directory", "files", all)
		}
		return nil
	}

	results := make([]Result, 0, len(files))
	valid := 0
	for _, path := range files {
		res := check(path)
		for _, w := range res.Warnings {
			r.logger.Warn(w, "kind", label, "file", path, "result", logging.ResultWarn)
		}
		if res.OK {
			valid++
			r.logger.Info("valid "+label+" file", "file", path, "result", logging.ResultPass)
		} else {
			r.logger.Error("invalid "+label+" file", "file", path, "error", res.Err, "result", logging.ResultFail)
		}
		results = append(results, res)
	}
	r.logger.Info("validation complete", "kind", label, "valid", valid, "total", len(files))
	return results
}
