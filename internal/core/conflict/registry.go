// Package conflict records unresolved comparator conflicts and carries out
// their resolution once a caller (automatic policy or a human reviewing
// the job) picks a ConflictResolution.
package conflict

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry persists ConflictRecords in the conflicts table.
type Registry struct {
	db                *sql.DB
	defaultResolution model.ConflictResolution
	log               *zap.Logger
}

// NewRegistry wraps an already-migrated *sql.DB. defaultResolution applies
// whenever Resolve is called without an explicit override.
func NewRegistry(db *sql.DB, defaultResolution model.ConflictResolution) *Registry {
	return &Registry{db: db, defaultResolution: defaultResolution, log: logger.Named("core.conflict")}
}

// Record inserts a new unresolved conflict and returns its ID.
func (r *Registry) Record(ctx context.Context, jobID uuid.UUID, filePath string, kind model.ConflictKind, sourceInfo, destInfo *conflictSide) (int64, error) {
	now := time.Now().Unix()

	var sourceSize, sourceTime, destSize, destTime sql.NullInt64
	if sourceInfo != nil {
		sourceSize = sql.NullInt64{Int64: sourceInfo.Size, Valid: true}
		sourceTime = sql.NullInt64{Int64: sourceInfo.ModifiedTime, Valid: true}
	}
	if destInfo != nil {
		destSize = sql.NullInt64{Int64: destInfo.Size, Valid: true}
		destTime = sql.NullInt64{Int64: destInfo.ModifiedTime, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO conflicts (job_id, file_path, conflict_type, source_size, source_time, dest_size, dest_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID.String(), filePath, string(kind), sourceSize, sourceTime, destSize, destTime, now)
	if err != nil {
		return 0, fmt.Errorf("record conflict: %w", err)
	}
	return res.LastInsertId()
}

// conflictSide carries the size/mtime pair Record stores for one side of a
// conflicting path; storage.FileInfo isn't imported directly to keep this
// package free of a storage dependency.
type conflictSide struct {
	Size         int64
	ModifiedTime int64
}

// SideInfo builds a conflictSide from raw size/mtime values.
func SideInfo(size, modifiedTime int64) *conflictSide {
	return &conflictSide{Size: size, ModifiedTime: modifiedTime}
}

// PendingConflicts returns jobID's unresolved conflicts, most recent first.
func (r *Registry) PendingConflicts(ctx context.Context, jobID uuid.UUID) ([]model.ConflictRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, file_path, conflict_type, resolution, source_size, source_time, dest_size, dest_time, created_at
		 FROM conflicts WHERE job_id = ? AND resolution IS NULL ORDER BY created_at DESC`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("query pending conflicts: %w", err)
	}
	defer rows.Close()

	var records []model.ConflictRecord
	for rows.Next() {
		rec, err := scanConflictRow(rows, jobID)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConflictRow(row scanner, jobID uuid.UUID) (model.ConflictRecord, error) {
	var rec model.ConflictRecord
	var jobIDStr, kind string
	var resolution sql.NullString
	var sourceSize, sourceTime, destSize, destTime sql.NullInt64
	var createdAt int64

	if err := row.Scan(&rec.ID, &jobIDStr, &rec.FilePath, &kind, &resolution, &sourceSize, &sourceTime, &destSize, &destTime, &createdAt); err != nil {
		return rec, fmt.Errorf("scan conflict row: %w", err)
	}

	rec.JobID = jobID
	rec.Kind = model.ConflictKind(kind)
	rec.CreatedAt = time.Unix(createdAt, 0)
	if resolution.Valid {
		res := model.ParseConflictResolution(resolution.String)
		rec.Resolution = &res
	}
	if sourceSize.Valid {
		rec.SourceSize = &sourceSize.Int64
	}
	if sourceTime.Valid {
		rec.SourceTime = &sourceTime.Int64
	}
	if destSize.Valid {
		rec.DestSize = &destSize.Int64
	}
	if destTime.Valid {
		rec.DestTime = &destTime.Int64
	}
	return rec, nil
}

// Resolve applies (by persisting) a resolution chosen for conflict id.
func (r *Registry) Resolve(ctx context.Context, id int64, resolution model.ConflictResolution) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conflicts SET resolution = ? WHERE id = ?`, string(resolution), id)
	if err != nil {
		return fmt.Errorf("resolve conflict %d: %w", id, err)
	}
	return nil
}

// ResolveMany applies resolutions to multiple conflicts in one transaction.
func (r *Registry) ResolveMany(ctx context.Context, resolutions map[int64]model.ConflictResolution) error {
	if len(resolutions) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve many: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE conflicts SET resolution = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare resolve many: %w", err)
	}
	defer stmt.Close()

	for id, resolution := range resolutions {
		if _, err := stmt.ExecContext(ctx, string(resolution), id); err != nil {
			return fmt.Errorf("resolve conflict %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// CleanupResolved deletes every resolved conflict for jobID, returning the
// count removed.
func (r *Registry) CleanupResolved(ctx context.Context, jobID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE job_id = ? AND resolution IS NOT NULL`, jobID.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup resolved conflicts: %w", err)
	}
	return res.RowsAffected()
}

// ResolutionFor returns the effective resolution for a conflict: override
// if non-nil, otherwise the registry's configured default.
func (r *Registry) ResolutionFor(override *model.ConflictResolution) model.ConflictResolution {
	if override != nil {
		return *override
	}
	return r.defaultResolution
}

var _ ports.ConflictRegistry = (*Registry)(nil)
