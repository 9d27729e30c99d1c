// Package persistence provides state persistence for pipeline execution.
// It tracks per-pipeline run history and the checksum of the last source
// batch so repeated runs over unchanged input can be detected.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/batchline/runtime/internal/logger"
)

// DefaultStatePath is the default directory for state files.
const DefaultStatePath = ".batchline/state"

// Common errors
var (
	// ErrInvalidPipelineID is returned when pipeline ID is empty.
	ErrInvalidPipelineID = errors.New("pipeline ID is required")

	// ErrNilState is returned when state is nil.
	ErrNilState = errors.New("state is nil")
)

// State represents the persisted state for a pipeline.
// Counters accumulate across runs; they are never reset by the runtime.
type State struct {
	// PipelineID is the unique identifier for the pipeline.
	PipelineID string `json:"pipeline_id"`

	// LastRun is when the pipeline last finished a run.
	LastRun *time.Time `json:"last_run,omitempty"`

	// LastStatus is the status of the last run ("completed", "partial",
	// "failed").
	LastStatus string `json:"last_status,omitempty"`

	// Runs counts completed executions, whatever their status.
	Runs int `json:"runs"`

	// LifetimeProcessed counts records successfully processed across all
	// runs.
	LifetimeProcessed int `json:"lifetime_processed"`

	// LifetimeFailed counts records that failed processing across all
	// runs.
	LifetimeFailed int `json:"lifetime_failed"`

	// LastSourceChecksum is the checksum of the source batch from the
	// last run. Watch mode uses it to skip runs over unchanged input.
	LastSourceChecksum string `json:"last_source_checksum,omitempty"`

	// UpdatedAt is when this state was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordRun folds one finished run into the state.
func (s *State) RecordRun(status string, processed, failed int, completedAt time.Time) {
	s.LastRun = &completedAt
	s.LastStatus = status
	s.Runs++
	s.LifetimeProcessed += processed
	s.LifetimeFailed += failed
}

// LastRunRFC3339 returns LastRun formatted as RFC3339, or an empty string
// when the pipeline has never run.
func (s *State) LastRunRFC3339() string {
	if s.LastRun == nil {
		return ""
	}
	return s.LastRun.Format(time.RFC3339)
}

// StateStore provides thread-safe persistence of pipeline state.
// State files are stored as JSON in the configured base path.
type StateStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewStateStore creates a new StateStore with the specified base path.
// If basePath is empty, DefaultStatePath is used.
func NewStateStore(basePath string) *StateStore {
	if basePath == "" {
		basePath = DefaultStatePath
	}
	return &StateStore{
		basePath: basePath,
	}
}

// filePath returns the full path for a pipeline's state file.
func (s *StateStore) filePath(pipelineID string) string {
	// Sanitize pipeline ID to prevent directory traversal
	safeName := filepath.Base(pipelineID)
	return filepath.Join(s.basePath, safeName+".json")
}

// Save persists the state for a pipeline.
// Uses atomic write (temp file + rename) to prevent corruption.
// Creates the base directory if it doesn't exist.
func (s *StateStore) Save(pipelineID string, state *State) error {
	if pipelineID == "" {
		return ErrInvalidPipelineID
	}
	if state == nil {
		return ErrNilState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// MkdirAll succeeds when another process wins the creation race, so
	// only a stat failure after an error is fatal
	if err := os.MkdirAll(s.basePath, 0700); err != nil {
		if _, statErr := os.Stat(s.basePath); statErr == nil {
			logger.Debug("state directory created by another process",
				"path", s.basePath,
			)
		} else {
			logger.Warn("failed to create state directory",
				"path", s.basePath,
				"error", err.Error(),
			)
			return fmt.Errorf("creating state directory: %w", err)
		}
	}

	state.PipelineID = pipelineID
	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal state",
			"pipeline_id", pipelineID,
			"error", err.Error(),
		)
		return fmt.Errorf("marshaling state: %w", err)
	}

	filePath := s.filePath(pipelineID)
	tempPath := filePath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		logger.Warn("failed to write temp state file",
			"pipeline_id", pipelineID,
			"path", tempPath,
			"error", err.Error(),
		)
		return fmt.Errorf("writing temp state file: %w", err)
	}

	// Rename is atomic on POSIX
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		logger.Warn("failed to rename state file",
			"pipeline_id", pipelineID,
			"temp_path", tempPath,
			"final_path", filePath,
			"error", err.Error(),
		)
		return fmt.Errorf("renaming state file: %w", err)
	}

	logger.Debug("state saved",
		"pipeline_id", pipelineID,
		"path", filePath,
		"runs", state.Runs,
	)

	return nil
}

// Load retrieves the state for a pipeline.
// Returns nil, nil if the state file doesn't exist (first execution).
func (s *StateStore) Load(pipelineID string) (*State, error) {
	if pipelineID == "" {
		return nil, ErrInvalidPipelineID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.filePath(pipelineID)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no state file found (first execution)",
				"pipeline_id", pipelineID,
				"path", filePath,
			)
			return nil, nil
		}
		logger.Warn("failed to read state file",
			"pipeline_id", pipelineID,
			"path", filePath,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("failed to unmarshal state",
			"pipeline_id", pipelineID,
			"path", filePath,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}

	logger.Debug("state loaded",
		"pipeline_id", pipelineID,
		"path", filePath,
		"runs", state.Runs,
	)

	return &state, nil
}

// Delete removes the state file for a pipeline.
// Returns nil if the file doesn't exist.
func (s *StateStore) Delete(pipelineID string) error {
	if pipelineID == "" {
		return ErrInvalidPipelineID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.filePath(pipelineID)

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Warn("failed to delete state file",
			"pipeline_id", pipelineID,
			"path", filePath,
			"error", err.Error(),
		)
		return fmt.Errorf("deleting state file: %w", err)
	}

	logger.Debug("state deleted",
		"pipeline_id", pipelineID,
		"path", filePath,
	)

	return nil
}

// Exists checks if a state file exists for a pipeline.
func (s *StateStore) Exists(pipelineID string) (bool, error) {
	if pipelineID == "" {
		return false, ErrInvalidPipelineID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.filePath(pipelineID)
	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking state file: %w", err)
	}
	return true, nil
}
