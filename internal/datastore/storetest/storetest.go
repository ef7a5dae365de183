// Package storetest provides contract tests for datastore.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator-go/internal/datastore"
	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/manifest"
)

// Factory creates a fresh, empty store for each test.
type Factory func(t *testing.T) datastore.Store

// Record returns a pending record with the given id and project.
func Record(id, projectID string, created time.Time) *domain.Record {
	return &domain.Record{
		ID:              id,
		ProjectID:       projectID,
		ProjectName:     "Shop",
		Owner:           "alice",
		ServiceName:     "frontend",
		DisplayName:     "Frontend",
		ImageReference:  "ghcr.io/alice/shop-frontend:1.0.0",
		Namespace:       "alice-shop",
		Status:          domain.StatusPending,
		ReplicasDesired: 2,
		ManifestTypes:   []string{"namespace", "workload", "service", "ingress"},
		AccessURL:       "http://apps.example.com/alice/Shop/frontend",
		HealthCheck: domain.HealthCheckSummary{
			Enabled:       true,
			LivenessPath:  "/health",
			ReadinessPath: "/ready",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Run exercises the datastore.Store contract.
func Run(t *testing.T, factory Factory) {
	base := time.Date(2024, 3, 14, 9, 26, 53, 589793000, time.UTC)

	t.Run("CreateAndGet", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		rec := Record("d1", "42", base)
		require.NoError(t, store.Create(ctx, rec))

		got, err := store.Get(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, rec, got)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, Record("d1", "42", base)))
		err := store.Create(ctx, Record("d1", "42", base))
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UpdateWalksLifecycle", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Record("d1", "42", base)))

		started := base.Add(time.Second)
		got, err := store.Update(ctx, "d1", domain.PatchStatus(domain.StatusDeploying).WithStarted(started))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDeploying, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.True(t, started.Equal(*got.StartedAt))
		assert.True(t, got.UpdatedAt.After(base))

		got, err = store.Update(ctx, "d1", domain.Patch{}.WithReplicas(2, 1))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDeploying, got.Status)
		assert.Equal(t, int32(1), got.ReplicasReady)

		completed := base.Add(time.Minute)
		_, err = store.Update(ctx, "d1", domain.PatchStatus(domain.StatusRunning).WithReplicas(2, 2).WithCompleted(completed))
		require.NoError(t, err)

		got, err = store.Get(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRunning, got.Status)
		assert.Equal(t, int32(2), got.ReplicasReady)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, completed.Equal(*got.CompletedAt))
	})

	t.Run("UpdateRejectsRegression", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Record("d1", "42", base)))
		_, err := store.Update(ctx, "d1", domain.PatchStatus(domain.StatusStopped))
		require.NoError(t, err)

		for _, next := range []domain.Status{domain.StatusPending, domain.StatusDeploying, domain.StatusRunning, domain.StatusFailed} {
			_, err := store.Update(ctx, "d1", domain.PatchStatus(next).WithError("late"))
			assert.ErrorIs(t, err, domain.ErrInvalidTransition, "stopped -> %s", next)
		}

		got, err := store.Get(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusStopped, got.Status)
		assert.Empty(t, got.ErrorMessage, "a rejected patch changes nothing")
	})

	t.Run("EmptyPatchStampsUpdatedAt", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Record("d1", "42", base)))

		got, err := store.Update(ctx, "d1", domain.Patch{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.True(t, got.UpdatedAt.After(base))

		stored, err := store.Get(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, stored.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Update(context.Background(), "missing", domain.PatchStatus(domain.StatusFailed))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListByProjectPages", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, store.Create(ctx, Record(fmt.Sprintf("d%d", i), "42", base.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, store.Create(ctx, Record("other", "43", base)))

		page, total, err := store.ListByProject(ctx, "42", 2, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "d4", page[0].ID, "newest first")
		assert.Equal(t, "d3", page[1].ID)

		page, total, err = store.ListByProject(ctx, "42", 2, 4)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 1)
		assert.Equal(t, "d0", page[0].ID)

		page, total, err = store.ListByProject(ctx, "nope", 10, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, page)
	})

	t.Run("CountByStatus", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Create(ctx, Record(fmt.Sprintf("d%d", i), "42", base)))
		}
		_, err := store.Update(ctx, "d0", domain.PatchStatus(domain.StatusFailed).WithError("boom"))
		require.NoError(t, err)

		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.StatusCount{
			{Status: domain.StatusFailed, Count: 1},
			{Status: domain.StatusPending, Count: 2},
		}, counts)
	})

	t.Run("ListStale", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		old := time.Now().Add(-time.Hour)

		require.NoError(t, store.Create(ctx, Record("old-pending", "42", old)))
		require.NoError(t, store.Create(ctx, Record("old-stopped", "42", old)))
		require.NoError(t, store.Create(ctx, Record("fresh", "42", time.Now())))
		_, err := store.Update(ctx, "old-stopped", domain.PatchStatus(domain.StatusStopped))
		require.NoError(t, err)

		stale, err := store.ListStale(ctx, []domain.Status{domain.StatusPending, domain.StatusDeploying}, time.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "old-pending", stale[0].ID)

		none, err := store.ListStale(ctx, nil, time.Now())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Manifests", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Record("d1", "42", base)))

		empty, err := store.GetManifests(ctx, "d1")
		require.NoError(t, err)
		assert.Zero(t, empty.Len())

		set := manifest.NewSet(
			manifest.Document{Type: manifest.TypeNamespace, YAML: []byte("kind: Namespace\n")},
			manifest.Document{Type: manifest.TypeWorkload, YAML: []byte("kind: Deployment\n")},
		)
		require.NoError(t, store.SaveManifests(ctx, "d1", set))
		require.NoError(t, store.SaveManifests(ctx, "d1", set), "saving again replaces")

		got, err := store.GetManifests(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, []manifest.Type{manifest.TypeNamespace, manifest.TypeWorkload}, got.Types())
		assert.Equal(t, set.Strings(), got.Strings())

		_, err = store.GetManifests(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.SaveManifests(ctx, "missing", set), domain.ErrNotFound)
	})

	t.Run("Ping", func(t *testing.T) {
		store := factory(t)
		assert.NoError(t, store.Ping(context.Background()))
	})
}
