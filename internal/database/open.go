// Package database opens SQLite batch databases and classifies their
// errors for retry decisions.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the sqlite3 driver with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/batchline/runtime/internal/logger"
)

// DriverSQLite is the database/sql driver name for batch storage.
const DriverSQLite = "sqlite3"

// Default connection settings
const (
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 1
)

// Config holds connection settings for a batch database.
type Config struct {
	// Path is the SQLite database file. ":memory:" opens an in-memory
	// database.
	Path string

	// BusyTimeout is how long SQLite waits on a locked database before
	// returning SQLITE_BUSY. Defaults to 5s.
	BusyTimeout time.Duration

	// MaxOpenConns bounds the connection pool. Defaults to 1, which
	// serializes writers and avoids lock contention on a single file.
	MaxOpenConns int

	// ConnMaxLifetime recycles connections older than this. Zero keeps
	// them open indefinitely.
	ConnMaxLifetime time.Duration
}

// Open opens a SQLite database and verifies the connection.
// Failures come back as *DatabaseError.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, NewConnectionError("database path is required", nil)
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, busyTimeout.Milliseconds())

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, NewConnectionError("opening database", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// sql.Open is lazy; ping forces the file open so config errors
	// surface here instead of on first use.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, ClassifyDatabaseError(err, "connect", "", 0)
	}

	logger.Debug("database opened",
		slog.String("path", cfg.Path),
		slog.Int64("busy_timeout_ms", busyTimeout.Milliseconds()),
		slog.Int("max_open_conns", maxOpen),
	)

	return db, nil
}
