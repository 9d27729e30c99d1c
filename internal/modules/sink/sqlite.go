// Package sink provides implementations for sink modules.
// SQLiteSink upserts processed records into a SQLite table.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/batchline/runtime/internal/database"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Default configuration values for the sqlite sink
const (
	defaultSinkTable   = "processed_records"
	defaultSendTimeout = 30 * time.Second
)

// Error types for sqlite sink module
var (
	ErrSQLiteSinkNilConfig   = errors.New("sqlite sink configuration is nil")
	ErrSQLiteSinkMissingPath = errors.New("path is required for sqlite sink")
	ErrSQLiteSinkBadTable    = errors.New("table name contains invalid characters")
)

// tableNamePattern restricts table names to plain identifiers. Table
// names are interpolated into DDL and cannot be bound as parameters.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSinkConfig holds configuration for the sqlite sink module.
type SQLiteSinkConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path"`
	// Table is the destination table. Defaults to "processed_records".
	Table string `json:"table,omitempty"`
	// Transaction wraps each send in a single transaction (default true).
	Transaction bool `json:"transaction"`
	// OnError specifies per-record error handling: "fail" (default),
	// "skip", "log".
	OnError string `json:"onError,omitempty"`
	// TimeoutMs bounds each send. Defaults to 30s.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// SQLiteSink writes records into a SQLite table keyed by record_id.
// Sends are upserts, so retrying a failed send cannot duplicate rows.
type SQLiteSink struct {
	db          *sql.DB
	table       string
	transaction bool
	onError     string
	timeout     time.Duration
}

// parseSQLiteSinkConfig parses the raw configuration map.
func parseSQLiteSinkConfig(cfg map[string]interface{}) SQLiteSinkConfig {
	config := SQLiteSinkConfig{Transaction: true}

	if v, ok := cfg["path"].(string); ok {
		config.Path = v
	}
	if v, ok := cfg["table"].(string); ok {
		config.Table = v
	}
	if v, ok := cfg["transaction"].(bool); ok {
		config.Transaction = v
	}
	if v, ok := cfg["onError"].(string); ok {
		config.OnError = v
	}
	if v, ok := cfg["timeoutMs"].(float64); ok {
		config.TimeoutMs = int(v)
	}

	return config
}

// NewSQLiteSinkFromConfig creates a new sqlite sink module from configuration.
// The destination table is created if it does not exist.
func NewSQLiteSinkFromConfig(cfg *batch.ModuleConfig) (*SQLiteSink, error) {
	if cfg == nil {
		return nil, ErrSQLiteSinkNilConfig
	}

	config := parseSQLiteSinkConfig(cfg.Config)

	if config.Path == "" {
		return nil, ErrSQLiteSinkMissingPath
	}

	table := config.Table
	if table == "" {
		table = defaultSinkTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrSQLiteSinkBadTable, table)
	}

	onError := config.OnError
	if onError == "" {
		onError = "fail"
	}
	if onError != "fail" && onError != "skip" && onError != "log" {
		logger.Warn("invalid onError value for sqlite sink; defaulting to fail",
			slog.String("on_error", onError),
		)
		onError = "fail"
	}

	timeout := defaultSendTimeout
	if config.TimeoutMs > 0 {
		timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	}

	db, err := database.Open(database.Config{Path: config.Path})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite sink database: %w", err)
	}

	sink := &SQLiteSink{
		db:          db,
		table:       table,
		transaction: config.Transaction,
		onError:     onError,
		timeout:     timeout,
	}

	if err := sink.ensureTable(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("sqlite sink module created",
		slog.String("path", config.Path),
		slog.String("table", table),
		slog.Bool("transaction", config.Transaction),
		slog.String("on_error", onError),
	)

	return sink, nil
}

// ensureTable creates the destination table if missing.
func (s *SQLiteSink) ensureTable() error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	record_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	numeric_value REAL NOT NULL,
	is_processed INTEGER NOT NULL
)`, s.table)

	if _, err := s.db.Exec(ddl); err != nil {
		return database.ClassifyDatabaseError(err, "create", ddl, 0)
	}
	return nil
}

// Send upserts all records into the destination table.
// Returns the number of records written.
func (s *SQLiteSink) Send(ctx context.Context, records []batch.Processed) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	startTime := time.Now()

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sentCount int
	var err error
	if s.transaction {
		sentCount, err = s.sendWithTransaction(sendCtx, records)
	} else {
		sentCount, err = s.sendWithoutTransaction(sendCtx, records)
	}

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("sqlite sink send failed",
			slog.String("module_type", "sqlite"),
			slog.String("table", s.table),
			slog.Int("sent_count", sentCount),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return sentCount, err
	}

	logger.Info("sqlite sink send completed",
		slog.String("module_type", "sqlite"),
		slog.String("table", s.table),
		slog.Int("record_count", len(records)),
		slog.Int("sent_count", sentCount),
		slog.Duration("duration", duration),
	)

	return sentCount, nil
}

// sendWithTransaction upserts all records within a single transaction.
// A per-record failure under onError=fail rolls the whole send back.
func (s *SQLiteSink) sendWithTransaction(ctx context.Context, records []batch.Processed) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.ClassifyDatabaseError(err, "begin", "", 0)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		_ = tx.Rollback()
		return 0, database.ClassifyDatabaseError(err, "prepare", s.upsertQuery(), 0)
	}
	defer func() {
		_ = stmt.Close()
	}()

	sentCount := 0
	for recordIdx, record := range records {
		if _, err := stmt.ExecContext(ctx, s.upsertArgs(record)...); err != nil {
			if handleErr := s.handleRecordError(err, recordIdx); handleErr != nil {
				_ = tx.Rollback()
				return 0, handleErr
			}
			continue
		}
		sentCount++
	}

	if err := tx.Commit(); err != nil {
		return 0, database.ClassifyDatabaseError(err, "commit", "", 0)
	}

	return sentCount, nil
}

// sendWithoutTransaction upserts records one at a time. Records written
// before a failure stay written.
func (s *SQLiteSink) sendWithoutTransaction(ctx context.Context, records []batch.Processed) (int, error) {
	sentCount := 0
	for recordIdx, record := range records {
		if _, err := s.db.ExecContext(ctx, s.upsertQuery(), s.upsertArgs(record)...); err != nil {
			if handleErr := s.handleRecordError(err, recordIdx); handleErr != nil {
				return sentCount, handleErr
			}
			continue
		}
		sentCount++
	}
	return sentCount, nil
}

// handleRecordError applies the onError mode to a per-record failure.
// A nil return means the record was dropped and processing continues.
func (s *SQLiteSink) handleRecordError(err error, recordIdx int) error {
	dbErr := database.ClassifyDatabaseError(err, "exec", s.upsertQuery(), 4)

	switch s.onError {
	case "skip":
		logger.Warn("skipping record due to database error",
			slog.String("module_type", "sqlite"),
			slog.Int("record_index", recordIdx),
			slog.String("error", dbErr.Error()),
		)
		return nil
	case "log":
		logger.Error("database error (continuing)",
			slog.String("module_type", "sqlite"),
			slog.Int("record_index", recordIdx),
			slog.String("error", dbErr.Error()),
		)
		return nil
	default:
		return dbErr
	}
}

func (s *SQLiteSink) upsertQuery() string {
	return fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (record_id, display_name, numeric_value, is_processed) VALUES (?, ?, ?, ?)",
		s.table,
	)
}

func (s *SQLiteSink) upsertArgs(record batch.Processed) []interface{} {
	return []interface{}{
		recordIDText(record.RecordID),
		record.DisplayName,
		record.NumericValue,
		boolToInt(record.IsProcessed),
	}
}

// recordIDText normalizes a record id for the TEXT primary key column.
// Integral floats render without a trailing ".0" so ids keep their
// source form.
func recordIDText(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close releases the database connection.
func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Verify SQLiteSink implements Module
var _ Module = (*SQLiteSink)(nil)
