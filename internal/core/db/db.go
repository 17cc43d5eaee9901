// Package db owns the sqlite connection the engine's persistence packages
// (jobstore, historysink, filestate, transferstate, conflict) share, plus
// the versioned migrations that create their tables.
package db

import (
	"database/sql"
	"fmt"

	"github.com/cloudsync/enginecore/internal/core/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func log() *zap.Logger {
	return logger.Named("core.db")
}

// FileSDN builds a file-backed sqlite DSN with WAL journaling, a 5s busy
// timeout, and NORMAL synchronous mode — the combination the rest of the
// retrieval pack uses to let multiple goroutines hit one sqlite file
// without serializing on SQLITE_BUSY.
func FileSDN(path string) string {
	return fmt.Sprintf("file:%s?_fk=1&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
}

// InMemoryDSN builds a shared in-memory sqlite DSN, used by tests that
// want InitDB's full migration path without touching disk.
func InMemoryDSN() string {
	return "file::memory:?cache=shared&_fk=1&_busy_timeout=5000"
}

// InitDBOptions configures InitDB.
type InitDBOptions struct {
	DSN           string
	MigrationMode MigrationMode
	EnableDebug   bool
	Environment   string
}

// InitDB opens the sqlite connection described by opts and brings its
// schema up to date via the embedded migrations.
func InitDB(opts InitDBOptions) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}
	// sqlite only supports one writer at a time; let database/sql's pool
	// serialize through the busy_timeout rather than spawn writers that
	// fight immediately.
	conn.SetMaxOpenConns(1)

	if err := Migrate(conn, opts.Environment); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if opts.EnableDebug {
		log().Debug("database initialized", zap.String("dsn", opts.DSN), zap.String("migration_mode", string(opts.MigrationMode)))
	}

	return conn, nil
}

// CloseDB closes conn, tolerating a nil receiver so callers can defer it
// unconditionally.
func CloseDB(conn *sql.DB) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}
