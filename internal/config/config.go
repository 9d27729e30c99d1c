// Package config provides functionality for parsing and validating
// pipeline definition files (JSON/YAML).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/batchline/runtime/pkg/batch"
)

// Loader reads pipeline definitions from files and turns them into
// runnable Pipeline structs.
type Loader struct {
	// basePath is the base directory for definition files. Relative
	// paths passed to Load are resolved against it.
	basePath string
}

// NewLoader creates a new definition loader. An empty basePath leaves
// paths untouched.
func NewLoader(basePath string) *Loader {
	return &Loader{
		basePath: basePath,
	}
}

// Load reads, parses, validates and converts a pipeline definition.
// Supports both JSON and YAML formats.
func (l *Loader) Load(path string) (*batch.Pipeline, error) {
	resolved := l.resolve(path)

	result := ParseConfig(resolved)
	if !result.IsValid() {
		return nil, fmt.Errorf("invalid pipeline definition %s:\n%s", resolved, formatResultErrors(result))
	}

	pipeline, err := ConvertToPipeline(result.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline definition %s: %w", resolved, err)
	}

	return pipeline, nil
}

// resolve joins path with the loader's base path unless it is already
// absolute.
func (l *Loader) resolve(path string) string {
	if l.basePath == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}

// formatResultErrors renders all parse and validation errors, one per
// line, for inclusion in a Load error.
func formatResultErrors(result *Result) string {
	var lines []string
	for _, e := range result.AllErrors() {
		lines = append(lines, "  - "+e.Error())
	}
	return strings.Join(lines, "\n")
}
