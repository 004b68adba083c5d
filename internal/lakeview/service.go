// Package lakeview provides the dashboard service interface and a REST client for
// the Lakeview dashboards API.
package lakeview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Service is the set of remote operations the workflows depend on.
type Service interface {
	// List returns a summary of every dashboard visible to the caller.
	List(ctx context.Context) ([]Dashboard, error)
	// Get returns a dashboard including its serialized content.
	Get(ctx context.Context, id string) (Dashboard, error)
	// Create creates a new dashboard. It never updates an existing one.
	Create(ctx context.Context, req CreateRequest) (Dashboard, error)
	// SetPermissions replaces the dashboard's direct access-control list.
	SetPermissions(ctx context.Context, id string, acl []AccessControl) error
}

// ErrNotFound matches APIError values for missing resources via errors.Is.
var ErrNotFound = errors.New("resource not found")

// APIError is a failed remote call.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.ErrorCode, msg)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is reports 404 and RESOURCE_DOES_NOT_EXIST responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.StatusCode == http.StatusNotFound || e.ErrorCode == "RESOURCE_DOES_NOT_EXIST"
}

// IsNotFound reports whether err describes a missing remote resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
