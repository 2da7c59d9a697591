package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/identity-sync/internal/observability"
)

// PassRecord is one persisted reconciliation pass summary.
type PassRecord struct {
	ID                 string
	DryRun             bool
	GroupsProcessed    int
	GroupsSkipped      int
	UsersCreated       int
	UsersUpdated       int
	UsersOffboarded    int
	GroupsCreated      int
	MembershipsAdded   int
	MembershipsRemoved int
	EnrollmentChanges  int
	MembersSkipped     int
	UnmanagedIgnored   int
	ErrorCount         int
	DurationMS         int64
	StartedAt          time.Time
	FinishedAt         time.Time
}

// ActionRecord is one persisted per-user action within a pass.
type ActionRecord struct {
	ID       string
	PassID   string
	Action   string
	SourceID string
	TargetID string
	Username string
	DryRun   bool
	Detail   []byte
}

// PassRepository persists pass summaries and their per-user audit actions.
type PassRepository interface {
	RecordPass(ctx context.Context, rec *PassRecord) error
	RecordAction(ctx context.Context, rec *ActionRecord) error
	GetPass(ctx context.Context, id string) (*PassRecord, error)
	ListPasses(ctx context.Context, limit int) ([]PassRecord, error)
	ListActions(ctx context.Context, passID string, limit int) ([]ActionRecord, error)
}

type passRepository struct {
	pool *pgxpool.Pool
}

// NewPassRepository instantiates repository.
func NewPassRepository(pool *pgxpool.Pool) PassRepository {
	return &passRepository{pool: pool}
}

// FromStats builds a PassRecord from a pass snapshot.
func FromStats(stats observability.PassStats, startedAt time.Time) *PassRecord {
	return &PassRecord{
		ID:                 stats.PassID,
		DryRun:             stats.DryRun,
		GroupsProcessed:    stats.GroupsProcessed,
		GroupsSkipped:      stats.GroupsSkipped,
		UsersCreated:       stats.UsersCreated,
		UsersUpdated:       stats.UsersUpdated,
		UsersOffboarded:    stats.UsersOffboarded,
		GroupsCreated:      stats.GroupsCreated,
		MembershipsAdded:   stats.MembershipsAdded,
		MembershipsRemoved: stats.MembershipsRemoved,
		EnrollmentChanges:  stats.EnrollmentChanges,
		MembersSkipped:     stats.MembersSkipped,
		UnmanagedIgnored:   stats.UnmanagedIgnored,
		ErrorCount:         stats.Errors,
		DurationMS:         stats.Duration.Milliseconds(),
		StartedAt:          startedAt,
		FinishedAt:         startedAt.Add(stats.Duration),
	}
}

func (r *passRepository) RecordPass(ctx context.Context, rec *PassRecord) error {
	const query = `
        INSERT INTO sync_passes (id, dry_run, groups_processed, groups_skipped, users_created, users_updated,
            users_offboarded, groups_created, memberships_added, memberships_removed, enrollment_changes,
            members_skipped, unmanaged_ignored, error_count, duration_ms, started_at, finished_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.DryRun,
		rec.GroupsProcessed,
		rec.GroupsSkipped,
		rec.UsersCreated,
		rec.UsersUpdated,
		rec.UsersOffboarded,
		rec.GroupsCreated,
		rec.MembershipsAdded,
		rec.MembershipsRemoved,
		rec.EnrollmentChanges,
		rec.MembersSkipped,
		rec.UnmanagedIgnored,
		rec.ErrorCount,
		rec.DurationMS,
		rec.StartedAt,
		rec.FinishedAt,
	)
	return err
}

func (r *passRepository) RecordAction(ctx context.Context, rec *ActionRecord) error {
	const query = `
        INSERT INTO sync_actions (id, pass_id, action, source_id, target_id, username, dry_run, detail)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.PassID,
		rec.Action,
		rec.SourceID,
		rec.TargetID,
		rec.Username,
		rec.DryRun,
		rec.Detail,
	)
	return err
}

func (r *passRepository) GetPass(ctx context.Context, id string) (*PassRecord, error) {
	const query = `
        SELECT id, dry_run, groups_processed, groups_skipped, users_created, users_updated,
               users_offboarded, groups_created, memberships_added, memberships_removed, enrollment_changes,
               members_skipped, unmanaged_ignored, error_count, duration_ms, started_at, finished_at
        FROM sync_passes WHERE id=$1`
	var rec PassRecord
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.DryRun,
		&rec.GroupsProcessed,
		&rec.GroupsSkipped,
		&rec.UsersCreated,
		&rec.UsersUpdated,
		&rec.UsersOffboarded,
		&rec.GroupsCreated,
		&rec.MembershipsAdded,
		&rec.MembershipsRemoved,
		&rec.EnrollmentChanges,
		&rec.MembersSkipped,
		&rec.UnmanagedIgnored,
		&rec.ErrorCount,
		&rec.DurationMS,
		&rec.StartedAt,
		&rec.FinishedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *passRepository) ListPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id, dry_run, groups_processed, groups_skipped, users_created, users_updated,
               users_offboarded, groups_created, memberships_added, memberships_removed, enrollment_changes,
               members_skipped, unmanaged_ignored, error_count, duration_ms, started_at, finished_at
        FROM sync_passes ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPasses(rows)
}

func (r *passRepository) ListActions(ctx context.Context, passID string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, pass_id, action, source_id, target_id, username, dry_run, detail
        FROM sync_actions WHERE pass_id=$1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, passID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.PassID,
			&rec.Action,
			&rec.SourceID,
			&rec.TargetID,
			&rec.Username,
			&rec.DryRun,
			&rec.Detail,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanPasses(rows pgx.Rows) ([]PassRecord, error) {
	var result []PassRecord
	for rows.Next() {
		var rec PassRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.DryRun,
			&rec.GroupsProcessed,
			&rec.GroupsSkipped,
			&rec.UsersCreated,
			&rec.UsersUpdated,
			&rec.UsersOffboarded,
			&rec.GroupsCreated,
			&rec.MembershipsAdded,
			&rec.MembershipsRemoved,
			&rec.EnrollmentChanges,
			&rec.MembersSkipped,
			&rec.UnmanagedIgnored,
			&rec.ErrorCount,
			&rec.DurationMS,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
