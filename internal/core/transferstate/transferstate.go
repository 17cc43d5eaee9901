// Package transferstate tracks per-transfer progress so a large streamed
// copy interrupted mid-flight can report how far it got, and so a future
// resumable-upload path (multipart S3 uploads) has somewhere to persist
// its upload ID and completed part list.
package transferstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists TransferState rows in the transfer_states table.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, log: logger.Named("core.transferstate")}
}

// Start records the beginning of a transfer for (jobID, path).
func (s *Store) Start(ctx context.Context, jobID uuid.UUID, path string, totalSize int64) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfer_states (job_id, file_path, total_size, transferred_size, parts_completed, status, started_at, updated_at)
		 VALUES (?, ?, ?, 0, '[]', ?, ?, ?)
		 ON CONFLICT(job_id, file_path) DO UPDATE SET
		   total_size = excluded.total_size,
		   transferred_size = 0,
		   parts_completed = '[]',
		   status = excluded.status,
		   started_at = excluded.started_at,
		   updated_at = excluded.updated_at`,
		jobID.String(), path, totalSize, string(model.TransferInProgress), now, now)
	if err != nil {
		return fmt.Errorf("start transfer state: %w", err)
	}
	return nil
}

// UpdateProgress records bytes transferred so far for (jobID, path).
func (s *Store) UpdateProgress(ctx context.Context, jobID uuid.UUID, path string, transferredSize int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transfer_states SET transferred_size = ?, updated_at = ? WHERE job_id = ? AND file_path = ?`,
		transferredSize, time.Now().Unix(), jobID.String(), path)
	if err != nil {
		return fmt.Errorf("update transfer progress: %w", err)
	}
	return nil
}

// Finish marks (jobID, path) with a terminal status.
func (s *Store) Finish(ctx context.Context, jobID uuid.UUID, path string, status model.TransferStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transfer_states SET status = ?, updated_at = ? WHERE job_id = ? AND file_path = ?`,
		string(status), time.Now().Unix(), jobID.String(), path)
	if err != nil {
		return fmt.Errorf("finish transfer state: %w", err)
	}
	return nil
}

// Get returns the transfer state for (jobID, path), or nil if absent.
func (s *Store) Get(ctx context.Context, jobID uuid.UUID, path string) (*model.TransferState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, file_path, total_size, transferred_size, upload_id, parts_completed, status, started_at, updated_at
		 FROM transfer_states WHERE job_id = ? AND file_path = ?`, jobID.String(), path)

	st, err := scanTransferState(row, jobID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// InProgress returns every pending or in-progress transfer for jobID
// (paused rows are not included), used to report on an interrupted run.
func (s *Store) InProgress(ctx context.Context, jobID uuid.UUID) ([]model.TransferState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, file_path, total_size, transferred_size, upload_id, parts_completed, status, started_at, updated_at
		 FROM transfer_states WHERE job_id = ? AND status IN (?, ?)`,
		jobID.String(), string(model.TransferPending), string(model.TransferInProgress))
	if err != nil {
		return nil, fmt.Errorf("query in-progress transfers: %w", err)
	}
	defer rows.Close()

	var states []model.TransferState
	for rows.Next() {
		st, err := scanTransferState(rows, jobID)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// Delete removes the transfer state for (jobID, path), e.g. once an
// engine run cleans up after itself.
func (s *Store) Delete(ctx context.Context, jobID uuid.UUID, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transfer_states WHERE job_id = ? AND file_path = ?`, jobID.String(), path)
	if err != nil {
		return fmt.Errorf("delete transfer state: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransferState(row scanner, jobID uuid.UUID) (model.TransferState, error) {
	var st model.TransferState
	var jobIDStr, status, partsJSON string
	var uploadID sql.NullString
	var startedAt, updatedAt int64

	if err := row.Scan(&st.ID, &jobIDStr, &st.FilePath, &st.TotalSize, &st.TransferredSize, &uploadID,
		&partsJSON, &status, &startedAt, &updatedAt); err != nil {
		return st, fmt.Errorf("scan transfer state: %w", err)
	}

	st.JobID = jobID
	st.UploadID = uploadID.String
	st.Status = model.TransferStatus(status)
	st.StartedAt = time.Unix(startedAt, 0)
	st.UpdatedAt = time.Unix(updatedAt, 0)

	if err := json.Unmarshal([]byte(partsJSON), &st.PartsCompleted); err != nil {
		return st, fmt.Errorf("unmarshal parts_completed: %w", err)
	}
	return st, nil
}
