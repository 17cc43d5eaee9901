// Package jobstore persists SyncJob definitions in the sync_jobs table.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudsync/enginecore/internal/core/crypto"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists and retrieves SyncJob rows. Storage configs, which carry
// backend credentials (S3 keys, WebDAV passwords), are encrypted at rest
// via enc before being written to the source_config/dest_config columns.
type Store struct {
	db  *sql.DB
	enc *crypto.Encryptor
	log *zap.Logger
}

// NewStore wraps an already-migrated *sql.DB. enc controls how stored
// configs are protected at rest; pass an Encryptor built from an empty
// key to store them unencrypted (base64-encoded JSON).
func NewStore(db *sql.DB, enc *crypto.Encryptor) *Store {
	return &Store{db: db, enc: enc, log: logger.Named("core.jobstore")}
}

// Create inserts job, assigning timestamps if unset.
func (s *Store) Create(ctx context.Context, job model.SyncJob) (model.SyncJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	sourceEnc, err := s.encryptConfig(job.SourceCfg)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("encrypt source config: %w", err)
	}
	destEnc, err := s.encryptConfig(job.DestCfg)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("encrypt dest config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_jobs (id, name, source_config, dest_config, mode, schedule, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Name, sourceEnc, destEnc, string(job.Mode), job.Schedule,
		boolToInt(job.Enabled), job.CreatedAt.Unix(), job.UpdatedAt.Unix())
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("insert sync job: %w", err)
	}

	s.log.Info("created sync job", zap.String("id", job.ID.String()), zap.String("name", job.Name))
	return job, nil
}

// Get returns the job with id, or nil if not found.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.SyncJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_config, dest_config, mode, schedule, enabled, created_at, updated_at
		 FROM sync_jobs WHERE id = ?`, id.String())
	job, err := s.scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns every job, ordered by creation time descending.
func (s *Store) List(ctx context.Context) ([]model.SyncJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_config, dest_config, mode, schedule, enabled, created_at, updated_at
		 FROM sync_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.SyncJob
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Update replaces job's mutable fields, bumping UpdatedAt.
func (s *Store) Update(ctx context.Context, job model.SyncJob) error {
	job.UpdatedAt = time.Now()

	sourceEnc, err := s.encryptConfig(job.SourceCfg)
	if err != nil {
		return fmt.Errorf("encrypt source config: %w", err)
	}
	destEnc, err := s.encryptConfig(job.DestCfg)
	if err != nil {
		return fmt.Errorf("encrypt dest config: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_jobs SET name = ?, source_config = ?, dest_config = ?, mode = ?, schedule = ?, enabled = ?, updated_at = ?
		 WHERE id = ?`,
		job.Name, sourceEnc, destEnc, string(job.Mode), job.Schedule,
		boolToInt(job.Enabled), job.UpdatedAt.Unix(), job.ID.String())
	if err != nil {
		return fmt.Errorf("update sync job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sync job %s not found", job.ID)
	}
	return nil
}

// Delete removes the job with id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_jobs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete sync job: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanJob(row scanner) (model.SyncJob, error) {
	var job model.SyncJob
	var idStr, sourceEnc, destEnc, mode string
	var enabled int
	var createdAt, updatedAt int64

	if err := row.Scan(&idStr, &job.Name, &sourceEnc, &destEnc, &mode, &job.Schedule, &enabled, &createdAt, &updatedAt); err != nil {
		return job, fmt.Errorf("scan sync job: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return job, fmt.Errorf("parse job id: %w", err)
	}
	job.ID = id
	job.Mode = model.SyncMode(mode)
	job.Enabled = enabled != 0
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	if err := s.decryptConfig(sourceEnc, &job.SourceCfg); err != nil {
		return job, fmt.Errorf("decrypt source config: %w", err)
	}
	if err := s.decryptConfig(destEnc, &job.DestCfg); err != nil {
		return job, fmt.Errorf("decrypt dest config: %w", err)
	}
	return job, nil
}

// encryptConfig marshals cfg to JSON, encrypts it via s.enc, and returns
// the result base64-encoded for storage in a TEXT column.
func (s *Store) encryptConfig(cfg model.StorageConfig) (string, error) {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	cipherBytes, err := s.enc.EncryptConfig(map[string]string{"json": string(plain)})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(cipherBytes), nil
}

// decryptConfig reverses encryptConfig, populating cfg in place.
func (s *Store) decryptConfig(encoded string, cfg *model.StorageConfig) error {
	cipherBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	fields, err := s.enc.DecryptConfig(cipherBytes)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fields["json"]), cfg)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.JobStore = (*Store)(nil)
