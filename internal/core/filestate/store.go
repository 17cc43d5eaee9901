// Package filestate tracks the last successfully synced size/hash for
// each (job, path) pair, enabling incremental sync runs to skip files that
// haven't changed since without re-transferring them, and provides the
// content-hash functions used to detect that change.
package filestate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists FileState rows in the file_states table.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, log: logger.Named("core.filestate")}
}

// GetJobStates returns every FileState for jobID, keyed by file path for
// O(1) lookup during comparison.
func (s *Store) GetJobStates(ctx context.Context, jobID uuid.UUID) (map[string]model.FileState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, file_path, file_size, modified_time, checksum, last_sync_time
		 FROM file_states WHERE job_id = ?`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("query file states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]model.FileState)
	for rows.Next() {
		var st model.FileState
		var jobIDStr string
		var checksum sql.NullString
		if err := rows.Scan(&jobIDStr, &st.FilePath, &st.Size, &st.ModifiedTime, &checksum, &st.LastSyncTime); err != nil {
			return nil, fmt.Errorf("scan file state: %w", err)
		}
		st.JobID = jobID
		st.Checksum = checksum.String
		states[st.FilePath] = st
	}
	return states, rows.Err()
}

// GetFileState returns the state for one (jobID, path), or nil if absent.
func (s *Store) GetFileState(ctx context.Context, jobID uuid.UUID, path string) (*model.FileState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, file_path, file_size, modified_time, checksum, last_sync_time
		 FROM file_states WHERE job_id = ? AND file_path = ?`, jobID.String(), path)

	var st model.FileState
	var jobIDStr string
	var checksum sql.NullString
	err := row.Scan(&jobIDStr, &st.FilePath, &st.Size, &st.ModifiedTime, &checksum, &st.LastSyncTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query file state: %w", err)
	}
	st.JobID = jobID
	st.Checksum = checksum.String
	return &st, nil
}

// Upsert inserts or updates one FileState row.
func (s *Store) Upsert(ctx context.Context, st model.FileState) error {
	lastSync := st.LastSyncTime
	if lastSync == 0 {
		lastSync = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_states (job_id, file_path, file_size, modified_time, checksum, last_sync_time)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, file_path) DO UPDATE SET
		   file_size = excluded.file_size,
		   modified_time = excluded.modified_time,
		   checksum = excluded.checksum,
		   last_sync_time = excluded.last_sync_time`,
		st.JobID.String(), st.FilePath, st.Size, st.ModifiedTime, st.Checksum, lastSync)
	if err != nil {
		return fmt.Errorf("upsert file state: %w", err)
	}
	return nil
}

// BatchUpsert upserts states in one transaction.
func (s *Store) BatchUpsert(ctx context.Context, states []model.FileState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_states (job_id, file_path, file_size, modified_time, checksum, last_sync_time)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, file_path) DO UPDATE SET
		   file_size = excluded.file_size,
		   modified_time = excluded.modified_time,
		   checksum = excluded.checksum,
		   last_sync_time = excluded.last_sync_time`)
	if err != nil {
		return fmt.Errorf("prepare batch upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, st := range states {
		lastSync := st.LastSyncTime
		if lastSync == 0 {
			lastSync = now
		}
		if _, err := stmt.ExecContext(ctx, st.JobID.String(), st.FilePath, st.Size, st.ModifiedTime, st.Checksum, lastSync); err != nil {
			return fmt.Errorf("batch upsert %s: %w", st.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch upsert: %w", err)
	}
	s.log.Info("batch upserted file states", zap.Int("count", len(states)))
	return nil
}

// Delete removes the state for one (jobID, path).
func (s *Store) Delete(ctx context.Context, jobID uuid.UUID, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_states WHERE job_id = ? AND file_path = ?`, jobID.String(), path)
	if err != nil {
		return fmt.Errorf("delete file state: %w", err)
	}
	return nil
}

// DeleteJobStates removes every state row for jobID, returning the count
// removed.
func (s *Store) DeleteJobStates(ctx context.Context, jobID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM file_states WHERE job_id = ?`, jobID.String())
	if err != nil {
		return 0, fmt.Errorf("delete job states: %w", err)
	}
	return res.RowsAffected()
}

// CleanupMissing deletes state rows for jobID whose path is not present in
// existingPaths, reclaiming entries for files removed from both sides. An
// empty existingPaths deletes nothing.
func (s *Store) CleanupMissing(ctx context.Context, jobID uuid.UUID, existingPaths []string) (int64, error) {
	if len(existingPaths) == 0 {
		return 0, nil
	}

	placeholders := make([]byte, 0, len(existingPaths)*2)
	args := make([]any, 0, len(existingPaths)+1)
	args = append(args, jobID.String())
	for i, p := range existingPaths {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, p)
	}

	query := fmt.Sprintf(`DELETE FROM file_states WHERE job_id = ? AND file_path NOT IN (%s)`, string(placeholders))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup missing file states: %w", err)
	}
	n, err := res.RowsAffected()
	if n > 0 {
		s.log.Debug("cleaned up stale file states", zap.Int64("count", n))
	}
	return n, err
}
