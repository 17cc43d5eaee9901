// Package historysink persists terminated engine runs in the sync_logs
// table so a job's history survives process restarts.
package historysink

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

// Sink persists and retrieves HistoryRows.
type Sink struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSink wraps an already-migrated *sql.DB.
func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db, log: logger.Named("core.historysink")}
}

// Start records the beginning of a run, returning its row ID.
func (s *Sink) Start(ctx context.Context, jobID uuid.UUID, startTime time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_logs (job_id, start_time, status) VALUES (?, ?, ?)`,
		jobID.String(), startTime.Unix(), string(model.StatusScanning))
	if err != nil {
		return 0, fmt.Errorf("start history row: %w", err)
	}
	return res.LastInsertId()
}

// Finish records the outcome of a run previously opened by Start.
func (s *Sink) Finish(ctx context.Context, id int64, report model.SyncReport) error {
	var errMsg sql.NullString
	if len(report.Errors) > 0 {
		errMsg = sql.NullString{String: joinErrors(report.Errors), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_logs SET end_time = ?, status = ?, files_scanned = ?, files_copied = ?,
		   files_deleted = ?, files_skipped = ?, files_failed = ?, bytes_transferred = ?, error_message = ?
		 WHERE id = ?`,
		report.EndTime.Unix(), string(report.Status), report.FilesScanned, report.FilesCopied,
		report.FilesDeleted, report.FilesSkipped, report.FilesFailed, report.BytesTransferred, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish history row: %w", err)
	}
	s.log.Info("recorded run outcome", zap.Int64("history_id", id), zap.String("status", string(report.Status)))
	return nil
}

// History returns jobID's run history, most recent first, capped at limit
// rows (0 means unlimited).
func (s *Sink) History(ctx context.Context, jobID uuid.UUID, limit int) ([]model.HistoryRow, error) {
	query := `SELECT id, job_id, start_time, end_time, status, files_scanned, files_copied,
	                 files_deleted, files_skipped, files_failed, bytes_transferred, error_message
	          FROM sync_logs WHERE job_id = ? ORDER BY start_time DESC`
	args := []any{jobID.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []model.HistoryRow
	for rows.Next() {
		row, err := scanHistoryRow(rows, jobID)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistoryRow(row scanner, jobID uuid.UUID) (model.HistoryRow, error) {
	var h model.HistoryRow
	var jobIDStr, status string
	var startTime int64
	var endTime sql.NullInt64
	var errMsg sql.NullString

	if err := row.Scan(&h.ID, &jobIDStr, &startTime, &endTime, &status, &h.FilesScanned, &h.FilesCopied,
		&h.FilesDeleted, &h.FilesSkipped, &h.FilesFailed, &h.BytesTransferred, &errMsg); err != nil {
		return h, fmt.Errorf("scan history row: %w", err)
	}

	h.JobID = jobID
	h.Status = model.RunStatus(status)
	h.StartTime = time.Unix(startTime, 0)
	if endTime.Valid {
		t := time.Unix(endTime.Int64, 0)
		h.EndTime = &t
	}
	h.ErrorMessage = errMsg.String
	return h, nil
}

func joinErrors(errs []string) string {
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

var _ ports.HistorySink = (*Sink)(nil)
