// Package source provides implementations for source modules.
// SQLiteSource fetches raw records from a SQLite database.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/batchline/runtime/internal/database"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Default configuration values for the sqlite source
const (
	defaultQueryTimeout = 30 * time.Second
	defaultBatchSize    = 100
)

// Error types for the sqlite source module
var (
	ErrSQLiteNilConfig    = errors.New("sqlite source configuration is nil")
	ErrSQLiteMissingPath  = errors.New("path is required for sqlite source")
	ErrSQLiteMissingQuery = errors.New("query or table is required for sqlite source")
	ErrSQLiteBadTable     = errors.New("table is not a valid identifier")
)

// identifierPattern matches table names that are safe to interpolate.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSourceConfig holds configuration for the sqlite source module.
type SQLiteSourceConfig struct {
	// Path is the database file. ":memory:" opens an in-memory database.
	Path string `json:"path"`

	// Query is the SELECT statement to run. Use query OR table.
	Query string `json:"query"`

	// Table selects all rows from a single table when no query is given.
	Table string `json:"table"`

	// Parameters are bound to ? placeholders in the query, in order.
	Parameters []interface{} `json:"parameters"`

	// BatchSize is the page size for LIMIT/OFFSET fetching.
	BatchSize int `json:"batchSize"`

	// TimeoutMs bounds each page query.
	TimeoutMs int `json:"timeoutMs"`
}

// SQLiteSource fetches records from a SQLite database in pages.
type SQLiteSource struct {
	config  SQLiteSourceConfig
	db      *sql.DB
	query   string
	timeout time.Duration
}

// NewSQLiteSourceFromConfig creates a new sqlite source module from configuration.
func NewSQLiteSourceFromConfig(cfg *batch.ModuleConfig) (*SQLiteSource, error) {
	if cfg == nil {
		return nil, ErrSQLiteNilConfig
	}

	config := parseSQLiteSourceConfig(cfg.Config)
	if config.Path == "" {
		return nil, ErrSQLiteMissingPath
	}

	query := config.Query
	if query == "" {
		if config.Table == "" {
			return nil, ErrSQLiteMissingQuery
		}
		if !identifierPattern.MatchString(config.Table) {
			return nil, fmt.Errorf("%w: %q", ErrSQLiteBadTable, config.Table)
		}
		query = "SELECT * FROM " + config.Table
	}

	timeout := defaultQueryTimeout
	if config.TimeoutMs > 0 {
		timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	}

	db, err := database.Open(database.Config{Path: config.Path})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	logger.Debug("sqlite source module created",
		"path", config.Path,
		"batch_size", config.BatchSize,
		"timeout", timeout.String(),
	)

	return &SQLiteSource{
		config:  config,
		db:      db,
		query:   query,
		timeout: timeout,
	}, nil
}

// parseSQLiteSourceConfig parses the raw configuration map into SQLiteSourceConfig.
func parseSQLiteSourceConfig(cfg map[string]interface{}) SQLiteSourceConfig {
	config := SQLiteSourceConfig{}

	if v, ok := cfg["path"].(string); ok {
		config.Path = v
	}
	if v, ok := cfg["query"].(string); ok {
		config.Query = v
	}
	if v, ok := cfg["table"].(string); ok {
		config.Table = v
	}
	if v, ok := cfg["parameters"].([]interface{}); ok {
		config.Parameters = v
	}
	if v, ok := cfg["batchSize"].(float64); ok && v > 0 {
		config.BatchSize = int(v)
	}
	if v, ok := cfg["timeoutMs"].(float64); ok {
		config.TimeoutMs = int(v)
	}

	return config
}

// Fetch retrieves all rows, paging with LIMIT/OFFSET.
func (s *SQLiteSource) Fetch(ctx context.Context) ([]batch.Raw, error) {
	startTime := time.Now()

	limit := s.config.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}

	var allRecords []batch.Raw
	offset := 0

	for {
		pageQuery := fmt.Sprintf("%s LIMIT %d OFFSET %d", s.query, limit, offset)

		records, err := s.fetchPage(ctx, pageQuery)
		if err != nil {
			logger.Error("sqlite source fetch failed",
				"module_type", "sqlite",
				"duration", time.Since(startTime),
				"error", err.Error(),
			)
			return nil, err
		}

		allRecords = append(allRecords, records...)

		if len(records) < limit {
			break
		}
		offset += limit
	}

	logger.Info("sqlite source fetch completed",
		"module_type", "sqlite",
		"record_count", len(allRecords),
		"duration", time.Since(startTime),
	)

	return allRecords, nil
}

// fetchPage runs a single page query within the configured timeout.
func (s *SQLiteSource) fetchPage(ctx context.Context, query string) ([]batch.Raw, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, query, s.config.Parameters...)
	if err != nil {
		return nil, database.ClassifyDatabaseError(err, "select", query, len(s.config.Parameters))
	}
	defer func() {
		_ = rows.Close()
	}()

	return rowsToRecords(rows)
}

// rowsToRecords converts sql.Rows to a slice of raw records.
func rowsToRecords(rows *sql.Rows) ([]batch.Raw, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("getting column names: %w", err)
	}

	var records []batch.Raw

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		record := make(batch.Raw, len(columns))
		for i, col := range columns {
			record[col] = convertDatabaseValue(values[i])
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return records, nil
}

// convertDatabaseValue converts database values to record-friendly Go types.
func convertDatabaseValue(val interface{}) interface{} {
	if val == nil {
		return nil
	}

	if b, ok := val.([]byte); ok {
		return string(b)
	}

	if t, ok := val.(time.Time); ok {
		return t.Format(time.RFC3339)
	}

	return val
}

// Close releases resources held by the sqlite source module.
func (s *SQLiteSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Verify SQLiteSource implements Module
var _ Module = (*SQLiteSource)(nil)
