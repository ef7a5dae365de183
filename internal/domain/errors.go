// Package domain defines the deployment entity, its status state machine and
// the error kinds shared by every layer of the orchestrator.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Layers wrap these with context and callers match with errors.Is.
var (
	ErrValidation              = errors.New("validation failed")
	ErrAuthorizationMismatch   = errors.New("caller does not own this deployment")
	ErrCriticalApply           = errors.New("critical resource failed to apply")
	ErrNonCriticalApply        = errors.New("non-critical resource failed to apply")
	ErrReadinessTimeout        = errors.New("workload did not become ready in time")
	ErrControlPlaneUnavailable = errors.New("control plane unavailable")
	ErrNotFound                = errors.New("not found")
	ErrAlreadyExists           = errors.New("already exists")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrNamespaceCollision      = errors.New("namespace belongs to another owner/project")
	ErrShuttingDown            = errors.New("service is shutting down")
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors collects every field problem found in a request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Fields returns the offending field names in the order they were found.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for _, e := range v {
		fields = append(fields, e.Field)
	}
	return fields
}
