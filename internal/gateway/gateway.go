// Package gateway is the storage boundary for batch files. It reads and
// writes JSON record batches with transparent compression by file
// extension, atomic writes, and content checksums for change detection.
//
// The Load/Save layer returns typed errors for the runtime to classify;
// the ReadBatch/WriteBatch layer recovers from every failure so callers
// only ever see in-memory slices.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Load reads and decodes a batch file.
// Returns *NotFoundError when the file does not exist and
// *MalformedBatchError when its content cannot be decoded.
func Load(path string) ([]batch.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading batch file %s: %w", path, err)
	}

	codec := ForPath(path)
	raw, err := codec.Decompress(data)
	if err != nil {
		return nil, &MalformedBatchError{Path: path, Err: err}
	}

	var records []batch.Raw
	if err := json.Unmarshal(raw, &records); err != nil {
		line, col := lineCol(raw, jsonErrorOffset(err))
		return nil, &MalformedBatchError{Path: path, Line: line, Column: col, Err: err}
	}
	if records == nil {
		records = []batch.Raw{}
	}

	logger.Debug("batch loaded",
		slog.String("path", path),
		slog.Int("record_count", len(records)),
		slog.String("codec", codec.Name()),
		slog.String("checksum", FormatChecksum(Checksum(data))),
	)

	return records, nil
}

// Save encodes v as 2-space-indented JSON and writes it to path,
// compressing per the path's extension. The write is atomic: data goes to
// a temp file in the target directory first, then a rename.
// All failures come back as *WriteError.
func Save(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("marshaling: %w", err)}
	}

	codec := ForPath(path)
	encoded, err := codec.Compress(data)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &WriteError{Path: path, Err: fmt.Errorf("creating directory: %w", err)}
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, encoded, 0644); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("writing temp file: %w", err)}
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return &WriteError{Path: path, Err: fmt.Errorf("renaming temp file: %w", err)}
	}

	logger.Debug("batch saved",
		slog.String("path", path),
		slog.Int("bytes", len(encoded)),
		slog.String("codec", codec.Name()),
		slog.String("checksum", FormatChecksum(Checksum(encoded))),
	)

	return nil
}

// LoadProcessed reads and decodes a processed batch file (sink output).
// Error behavior matches Load.
func LoadProcessed(path string) ([]batch.Processed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading batch file %s: %w", path, err)
	}

	codec := ForPath(path)
	raw, err := codec.Decompress(data)
	if err != nil {
		return nil, &MalformedBatchError{Path: path, Err: err}
	}

	var records []batch.Processed
	if err := json.Unmarshal(raw, &records); err != nil {
		line, col := lineCol(raw, jsonErrorOffset(err))
		return nil, &MalformedBatchError{Path: path, Line: line, Column: col, Err: err}
	}
	if records == nil {
		records = []batch.Processed{}
	}

	logger.Debug("processed batch loaded",
		slog.String("path", path),
		slog.Int("record_count", len(records)),
		slog.String("codec", codec.Name()),
	)

	return records, nil
}

// ReadBatch reads a batch file, recovering from every failure.
// Missing or malformed files log a diagnostic and yield an empty slice.
func ReadBatch(path string) []batch.Raw {
	records, err := Load(path)
	if err != nil {
		logger.Warn("batch read failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return []batch.Raw{}
	}
	return records
}

// WriteBatch writes records to a batch file, recovering from every
// failure. Returns false and logs a diagnostic when the write fails.
func WriteBatch(path string, records []batch.Raw) bool {
	if err := Save(path, records); err != nil {
		logger.Warn("batch write failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Checksum returns the xxhash64 digest of data.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FormatChecksum renders a digest as a fixed-width hex string.
func FormatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// ChecksumFile returns the formatted digest of a file's stored bytes.
// Compressed files are hashed as stored, not as decoded.
func ChecksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Path: path}
		}
		return "", fmt.Errorf("reading batch file %s: %w", path, err)
	}
	return FormatChecksum(Checksum(data)), nil
}

// jsonErrorOffset extracts the byte offset from a JSON decode error.
// Returns 0 when the error carries no position.
func jsonErrorOffset(err error) int64 {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Offset
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Offset
	}
	return 0
}

// lineCol converts a byte offset into a 1-based line and column.
func lineCol(data []byte, offset int64) (int, int) {
	if offset <= 0 || offset > int64(len(data)) {
		return 0, 0
	}
	line, col := 1, 1
	for _, b := range data[:offset-1] {
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
