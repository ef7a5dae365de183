// Package datastore defines persistence for deployment records and the
// manifests generated for them.
package datastore

import (
	"context"
	"time"

	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/manifest"
)

// Store persists deployment records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create inserts a new record. A duplicate id returns domain.ErrAlreadyExists.
	Create(ctx context.Context, rec *domain.Record) error

	// Get returns the record, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Record, error)

	// Update applies patch and returns the updated record. A status change
	// that the lifecycle does not allow returns domain.ErrInvalidTransition
	// and leaves the record untouched.
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Record, error)

	// ListByProject returns one page of a project's records, newest first,
	// together with the project's total record count.
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Record, int, error)

	// CountByStatus returns the number of records in each status that has any.
	CountByStatus(ctx context.Context) ([]domain.StatusCount, error)

	// ListStale returns records in one of statuses whose last update is
	// older than before.
	ListStale(ctx context.Context, statuses []domain.Status, before time.Time) ([]*domain.Record, error)

	// SaveManifests replaces the stored manifest set of a record.
	SaveManifests(ctx context.Context, id string, set *manifest.Set) error

	// GetManifests returns the stored manifest set, which is empty when none
	// was saved, or domain.ErrNotFound when the record does not exist.
	GetManifests(ctx context.Context, id string) (*manifest.Set, error)

	Ping(ctx context.Context) error
	Close() error
}
