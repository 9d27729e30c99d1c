// Package watch re-runs a pipeline when its source batch file changes.
// It backs the CLI's run --watch mode: an fsnotify watcher on the source
// file's directory, debounced so editor save bursts trigger one run, with
// a content-checksum guard so rewrites of identical bytes are skipped.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/internal/persistence"
)

// DefaultDebounce is how long the source file must stay quiet after an
// event before the pipeline re-runs.
const DefaultDebounce = 500 * time.Millisecond

// Common errors
var (
	// ErrNoPath is returned when the watch path is empty.
	ErrNoPath = errors.New("watch path is required")

	// ErrNilRunFunc is returned when no run function is provided.
	ErrNilRunFunc = errors.New("run function is required")
)

// RunFunc executes one pipeline run. The watcher calls it after each
// settled change to the watched file.
type RunFunc func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	// Path is the source batch file to watch (required).
	Path string

	// PipelineID names the pipeline in logs and state lookups.
	PipelineID string

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration

	// Store enables the checksum guard: when the watched file's content
	// hash matches the pipeline's last recorded source checksum, the
	// change is skipped. Nil disables the guard.
	Store *persistence.StateStore
}

// Stats counts watcher activity.
type Stats struct {
	// Events is the number of relevant filesystem events seen.
	Events int

	// Runs is the number of pipeline runs triggered.
	Runs int

	// Skips is the number of settled changes skipped by the checksum guard.
	Skips int

	// LastEventAt is when the last relevant event arrived.
	LastEventAt time.Time
}

// Watcher re-executes a pipeline when its source file is written or
// created. Watching covers the file's directory, not the file itself,
// so atomic editor saves (write temp, rename over) are still observed.
type Watcher struct {
	path     string
	debounce time.Duration
	cfg      Config
	run      RunFunc
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	stats Stats
}

// New creates a watcher for the file named by cfg.Path. The file's
// directory must exist; the file itself may appear later.
func New(cfg Config, run RunFunc) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if run == nil {
		return nil, ErrNilRunFunc
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	path := filepath.Clean(cfg.Path)
	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	logger.Info("watching source file for changes",
		slog.String("pipeline_id", cfg.PipelineID),
		slog.String("path", path),
		slog.Duration("debounce", debounce),
	)

	return &Watcher{
		path:     path,
		debounce: debounce,
		cfg:      cfg,
		run:      run,
		watcher:  fsWatcher,
	}, nil
}

// Watch blocks, re-running the pipeline after each settled change, until
// the context is canceled or the watcher is closed. It returns the
// context's error on cancellation and nil when the watcher closes.
func (w *Watcher) Watch(ctx context.Context) error {
	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var dirty bool
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch mode stopped",
				slog.String("pipeline_id", w.cfg.PipelineID))
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("source file event",
				slog.String("pipeline_id", w.cfg.PipelineID),
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)
			w.mu.Lock()
			w.stats.Events++
			w.stats.LastEventAt = time.Now()
			w.mu.Unlock()
			dirty = true
			lastEvent = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error",
				slog.String("pipeline_id", w.cfg.PipelineID),
				slog.String("error", err.Error()),
			)

		case <-ticker.C:
			if dirty && time.Since(lastEvent) >= w.debounce {
				dirty = false
				w.maybeRun(ctx)
			}
		}
	}
}

// Close stops the underlying filesystem watcher. A blocked Watch call
// returns nil once the event channel drains.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// GetStats returns a snapshot of the watcher's counters.
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// relevant reports whether the event is a write or create of the watched
// file. Chmod, remove, and sibling-file events are ignored; an atomic
// replace surfaces as a create of the watched path.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)
}

// maybeRun executes the pipeline unless the checksum guard proves the
// file content has not changed since the last recorded run.
func (w *Watcher) maybeRun(ctx context.Context) {
	if w.unchangedSinceLastRun() {
		w.mu.Lock()
		w.stats.Skips++
		w.mu.Unlock()
		logger.Debug("source content unchanged; skipping run",
			slog.String("pipeline_id", w.cfg.PipelineID),
			slog.String("path", w.path),
		)
		return
	}

	logger.Info("source file changed; re-running pipeline",
		slog.String("pipeline_id", w.cfg.PipelineID),
		slog.String("path", w.path),
	)

	w.mu.Lock()
	w.stats.Runs++
	w.mu.Unlock()

	if err := w.run(ctx); err != nil {
		logger.Error("watched pipeline run failed",
			slog.String("pipeline_id", w.cfg.PipelineID),
			slog.String("error", err.Error()),
		)
	}
}

// unchangedSinceLastRun compares the watched file's checksum with the
// pipeline state's recorded source checksum. Any doubt (no store, no
// state, unreadable file) counts as changed so the run proceeds.
func (w *Watcher) unchangedSinceLastRun() bool {
	if w.cfg.Store == nil || w.cfg.PipelineID == "" {
		return false
	}

	state, err := w.cfg.Store.Load(w.cfg.PipelineID)
	if err != nil || state == nil || state.LastSourceChecksum == "" {
		return false
	}

	checksum, err := gateway.ChecksumFile(w.path)
	if err != nil {
		return false
	}
	return checksum == state.LastSourceChecksum
}
