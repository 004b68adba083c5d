// Package smoketest checks that deployed dashboards exist and load.
package smoketest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codex-k8s/lvdashctl/internal/definition"
	"github.com/codex-k8s/lvdashctl/internal/lakeview"
	"github.com/codex-k8s/lvdashctl/internal/logging"
)

// NotFoundError reports a qualified dashboard missing from the remote listing.
type NotFoundError struct {
	Name        string
	Environment string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dashboard %s not found in environment %s", e.Name, e.Environment)
}

// Failure describes one dashboard that did not pass.
type Failure struct {
	Name string
	Err  error
}

// Report is the outcome of TestEnvironment.
type Report struct {
	Environment string
	Passed      []string
	Failures    []Failure
}

// AllPassed reports whether every dashboard passed.
func (r Report) AllPassed() bool { return len(r.Failures) == 0 }

// FailedNames returns the qualified names that failed.
func (r Report) FailedNames() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Name)
	}
	return out
}

// Tester runs read-only accessibility checks.
type Tester struct {
	svc    lakeview.Service
	logger *slog.Logger
}

// NewTester constructs a Tester.
func NewTester(svc lakeview.Service, logger *slog.Logger) *Tester {
	return &Tester{svc: svc, logger: logging.OrDiscard(logger)}
}

// TestEnvironment checks each definition's qualified dashboard. It never
// mutates remote state.
func (t *Tester) TestEnvironment(ctx context.Context, environmentID string, defs []definition.Definition) Report {
	rep := Report{Environment: environmentID}
	if len(defs) == 0 {
		t.logger.Warn("no dashboard definitions found for testing", "environment", environmentID)
		return rep
	}

	listing, listErr := t.svc.List(ctx)
	if listErr != nil {
		t.logger.Error("failed to list dashboards", "environment", environmentID, "error", listErr)
	}

	for _, def := range defs {
		name := def.QualifiedName(environmentID)
		if listErr != nil {
			rep.Failures = append(rep.Failures, Failure{Name: name, Err: fmt.Errorf("list dashboards: %w", listErr)})
			continue
		}
		if err := t.check(ctx, name, environmentID, listing); err != nil {
			t.logger.Error("dashboard check failed", "dashboard", name, "error", err, "result", logging.ResultFail)
			rep.Failures = append(rep.Failures, Failure{Name: name, Err: err})
			continue
		}
		rep.Passed = append(rep.Passed, name)
	}

	if rep.AllPassed() {
		t.logger.Info("all dashboards passed accessibility tests", "environment", environmentID, "count", len(rep.Passed))
	} else {
		t.logger.Error("some dashboard tests failed", "environment", environmentID, "failed", len(rep.Failures), "passed", len(rep.Passed))
	}
	return rep
}

func (t *Tester) check(ctx context.Context, name, environmentID string, listing []lakeview.Dashboard) error {
	match, ok := findExact(listing, name)
	if !ok {
		return &NotFoundError{Name: name, Environment: environmentID}
	}
	t.logger.Info("testing dashboard", "dashboard", name, "id", match.ID)

	if _, err := t.svc.Get(ctx, match.ID); err != nil {
		if lakeview.IsNotFound(err) {
			t.logger.Warn("dashboard deleted since listing", "dashboard", name, "id", match.ID)
			return fmt.Errorf("dashboard %s (%s) was deleted since listing: %w", name, match.ID, err)
		}
		return fmt.Errorf("dashboard %s (%s) is not accessible: %w", name, match.ID, err)
	}
	t.logger.Info("dashboard is accessible", "dashboard", name, "id", match.ID, "result", logging.ResultPass)
	return nil
}

// findExact returns the first dashboard whose display name equals name.
func findExact(listing []lakeview.Dashboard, name string) (lakeview.Dashboard, bool) {
	for _, d := range listing {
		if d.DisplayName == name {
			return d, true
		}
	}
	return lakeview.Dashboard{}, false
}
