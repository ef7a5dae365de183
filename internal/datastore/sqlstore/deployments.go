package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/datastore"
	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/manifest"
)

var _ datastore.Store = (*Store)(nil)

const deploymentColumns = `id, project_id, project_name, owner, service_name, display_name, description,
	image_reference, namespace, status, replicas_desired, replicas_ready, manifest_types, access_url,
	health_check_enabled, liveness_path, readiness_path, error_message,
	created_at, updated_at, started_at, completed_at`

// updateAttempts bounds retries when a concurrent writer changes status
// between the read and the guarded write.
const updateAttempts = 3

type deploymentRow struct {
	ID                 string       `db:"id"`
	ProjectID          string       `db:"project_id"`
	ProjectName        string       `db:"project_name"`
	Owner              string       `db:"owner"`
	ServiceName        string       `db:"service_name"`
	DisplayName        string       `db:"display_name"`
	Description        string       `db:"description"`
	ImageReference     string       `db:"image_reference"`
	Namespace          string       `db:"namespace"`
	Status             string       `db:"status"`
	ReplicasDesired    int32        `db:"replicas_desired"`
	ReplicasReady      int32        `db:"replicas_ready"`
	ManifestTypes      string       `db:"manifest_types"`
	AccessURL          string       `db:"access_url"`
	HealthCheckEnabled bool         `db:"health_check_enabled"`
	LivenessPath       string       `db:"liveness_path"`
	ReadinessPath      string       `db:"readiness_path"`
	ErrorMessage       string       `db:"error_message"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
	StartedAt          sql.NullTime `db:"started_at"`
	CompletedAt        sql.NullTime `db:"completed_at"`
}

func toRow(rec *domain.Record) (*deploymentRow, error) {
	types := rec.ManifestTypes
	if types == nil {
		types = []string{}
	}
	mt, err := json.Marshal(types)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest types: %w", err)
	}
	return &deploymentRow{
		ID:                 rec.ID,
		ProjectID:          rec.ProjectID,
		ProjectName:        rec.ProjectName,
		Owner:              rec.Owner,
		ServiceName:        rec.ServiceName,
		DisplayName:        rec.DisplayName,
		Description:        rec.Description,
		ImageReference:     rec.ImageReference,
		Namespace:          rec.Namespace,
		Status:             string(rec.Status),
		ReplicasDesired:    rec.ReplicasDesired,
		ReplicasReady:      rec.ReplicasReady,
		ManifestTypes:      string(mt),
		AccessURL:          rec.AccessURL,
		HealthCheckEnabled: rec.HealthCheck.Enabled,
		LivenessPath:       rec.HealthCheck.LivenessPath,
		ReadinessPath:      rec.HealthCheck.ReadinessPath,
		ErrorMessage:       rec.ErrorMessage,
		CreatedAt:          dbTime(rec.CreatedAt),
		UpdatedAt:          dbTime(rec.UpdatedAt),
		StartedAt:          nullTime(rec.StartedAt),
		CompletedAt:        nullTime(rec.CompletedAt),
	}, nil
}

func (r *deploymentRow) record() (*domain.Record, error) {
	var types []string
	if err := json.Unmarshal([]byte(r.ManifestTypes), &types); err != nil {
		return nil, fmt.Errorf("unmarshal manifest types of %s: %w", r.ID, err)
	}
	return &domain.Record{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		ProjectName:     r.ProjectName,
		Owner:           r.Owner,
		ServiceName:     r.ServiceName,
		DisplayName:     r.DisplayName,
		Description:     r.Description,
		ImageReference:  r.ImageReference,
		Namespace:       r.Namespace,
		Status:          domain.Status(r.Status),
		ReplicasDesired: r.ReplicasDesired,
		ReplicasReady:   r.ReplicasReady,
		ManifestTypes:   types,
		AccessURL:       r.AccessURL,
		HealthCheck: domain.HealthCheckSummary{
			Enabled:       r.HealthCheckEnabled,
			LivenessPath:  r.LivenessPath,
			ReadinessPath: r.ReadinessPath,
		},
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		StartedAt:    timePtr(r.StartedAt),
		CompletedAt:  timePtr(r.CompletedAt),
	}, nil
}

// dbTime normalizes t to the precision both backends store.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: dbTime(*t), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// Create inserts rec. Its timestamps are normalized in place.
func (s *Store) Create(ctx context.Context, rec *domain.Record) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("create deployment %s: unknown status %q", rec.ID, rec.Status)
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO deployments (`+deploymentColumns+`) VALUES (
		:id, :project_id, :project_name, :owner, :service_name, :display_name, :description,
		:image_reference, :namespace, :status, :replicas_desired, :replicas_ready, :manifest_types, :access_url,
		:health_check_enabled, :liveness_path, :readiness_path, :error_message,
		:created_at, :updated_at, :started_at, :completed_at)`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deployment %q: %w", rec.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert deployment: %w", err)
	}

	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (*domain.Record, error) {
	var row deploymentRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return row.record()
}

// Update reads the record, applies patch and writes it back guarded on the
// status that was read, so a concurrent status change is never overwritten.
// Every update stamps updated_at, so an empty patch touches the record.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for attempt := 1; attempt <= updateAttempts; attempt++ {
		rec, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if patch.Status != nil && !rec.Status.CanTransitionTo(*patch.Status) {
			return rec, fmt.Errorf("deployment %q %s -> %s: %w", id, rec.Status, *patch.Status, domain.ErrInvalidTransition)
		}

		current := rec.Status
		patch.Apply(rec, time.Now())
		row, err := toRow(rec)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE deployments SET
			status = ?, replicas_desired = ?, replicas_ready = ?, access_url = ?, error_message = ?,
			updated_at = ?, started_at = ?, completed_at = ?
			WHERE id = ? AND status = ?`),
			row.Status, row.ReplicasDesired, row.ReplicasReady, row.AccessURL, row.ErrorMessage,
			row.UpdatedAt, row.StartedAt, row.CompletedAt,
			id, string(current),
		)
		if err != nil {
			return nil, fmt.Errorf("update deployment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update deployment: %w", err)
		}
		if n == 1 {
			return row.record()
		}

		s.logger.Debug("deployment status changed concurrently, retrying update",
			zap.String("deployment_id", id),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("update deployment %q: status kept changing after %d attempts", id, updateAttempts)
}

func (s *Store) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Record, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(`SELECT COUNT(*) FROM deployments WHERE project_id = ?`), projectID); err != nil {
		return nil, 0, fmt.Errorf("count deployments: %w", err)
	}

	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT `+deploymentColumns+` FROM deployments
		WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), projectID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deployments: %w", err)
	}

	records, err := toRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Store) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM deployments GROUP BY status ORDER BY status`); err != nil {
		return nil, fmt.Errorf("count deployments by status: %w", err)
	}

	counts := make([]domain.StatusCount, len(rows))
	for i, r := range rows {
		counts[i] = domain.StatusCount{Status: domain.Status(r.Status), Count: r.Count}
	}
	return counts, nil
}

func (s *Store) ListStale(ctx context.Context, statuses []domain.Status, before time.Time) ([]*domain.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	query, args, err := sqlx.In(`SELECT `+deploymentColumns+` FROM deployments
		WHERE status IN (?) AND updated_at < ? ORDER BY updated_at`, names, dbTime(before))
	if err != nil {
		return nil, fmt.Errorf("build stale query: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []deploymentRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list stale deployments: %w", err)
	}
	return toRecords(rows)
}

func toRecords(rows []deploymentRow) ([]*domain.Record, error) {
	records := make([]*domain.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveManifests replaces the manifests of a record in one transaction.
func (s *Store) SaveManifests(ctx context.Context, id string, set *manifest.Set) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM deployments WHERE id = ?`), id); err != nil {
		return fmt.Errorf("check deployment: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("deployment %q: %w", id, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM deployment_manifests WHERE deployment_id = ?`), id); err != nil {
		return fmt.Errorf("clear manifests: %w", err)
	}
	for i, doc := range set.Documents() {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO deployment_manifests (deployment_id, resource_type, position, content)
			VALUES (?, ?, ?, ?)`), id, string(doc.Type), i, string(doc.YAML))
		if err != nil {
			return fmt.Errorf("insert %s manifest: %w", doc.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manifests: %w", err)
	}
	return nil
}

func (s *Store) GetManifests(ctx context.Context, id string) (*manifest.Set, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}

	var rows []struct {
		Type    string `db:"resource_type"`
		Content string `db:"content"`
	}
	err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT resource_type, content FROM deployment_manifests
		WHERE deployment_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("get manifests: %w", err)
	}

	docs := make([]manifest.Document, len(rows))
	for i, r := range rows {
		docs[i] = manifest.Document{Type: manifest.Type(r.Type), YAML: []byte(r.Content)}
	}
	return manifest.NewSet(docs...), nil
}
