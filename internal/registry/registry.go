// Package registry provides module registries for source, filter, and sink modules.
//
// # Overview
//
// Modules register their constructors by type string instead of being wired
// through hard-coded switch statements, so new module types can be added
// without touching the factory.
//
// # Adding a New Module
//
// To add a new module type (e.g., a "kafka" source):
//
//  1. Implement the appropriate interface (source.Module, filter.Module, or sink.Module)
//  2. Create a constructor function matching the registry signature
//  3. Register the constructor in an init() function
//
// Example for a new source module:
//
//	package kafka
//
//	import (
//	    "github.com/batchline/runtime/internal/modules/source"
//	    "github.com/batchline/runtime/internal/registry"
//	    "github.com/batchline/runtime/pkg/batch"
//	)
//
//	func init() {
//	    registry.RegisterSource("kafka", NewKafkaSource)
//	}
//
//	func NewKafkaSource(cfg *batch.ModuleConfig) (source.Module, error) {
//	    // Parse cfg.Config and return your implementation
//	    return &KafkaSource{...}, nil
//	}
//
// # Built-in Modules
//
// Built-in modules (file, sqlite, inline sources; condition, script, set,
// remove filters; file, console, sqlite sinks) are registered automatically
// at startup via init() functions.
//
// # Stub Fallback
//
// Unknown types resolve to stub implementations that log their invocation.
// This allows pipeline definitions to run end to end before every module
// type they name is implemented.
package registry

import (
	"sync"

	"github.com/batchline/runtime/internal/modules/filter"
	"github.com/batchline/runtime/internal/modules/sink"
	"github.com/batchline/runtime/internal/modules/source"
	"github.com/batchline/runtime/pkg/batch"
)

// SourceConstructor is a function that creates a source module from
// configuration. Returns an error if the configuration is invalid.
type SourceConstructor func(cfg *batch.ModuleConfig) (source.Module, error)

// FilterConstructor is a function that creates a filter module from
// configuration. The constructor receives the ModuleConfig and the filter's
// index in the pipeline. Returns an error if the configuration is invalid.
type FilterConstructor func(cfg batch.ModuleConfig, index int) (filter.Module, error)

// SinkConstructor is a function that creates a sink module from
// configuration. Returns an error if the configuration is invalid.
type SinkConstructor func(cfg *batch.ModuleConfig) (sink.Module, error)

// sourceRegistry holds registered source module constructors.
var (
	sourceMu       sync.RWMutex
	sourceRegistry = make(map[string]SourceConstructor)
)

// filterRegistry holds registered filter module constructors.
var (
	filterMu       sync.RWMutex
	filterRegistry = make(map[string]FilterConstructor)
)

// sinkRegistry holds registered sink module constructors.
var (
	sinkMu       sync.RWMutex
	sinkRegistry = make(map[string]SinkConstructor)
)

// RegisterSource registers a source module constructor by type string.
// Registering an already registered type overwrites the previous
// constructor.
//
// Safe for concurrent use; typically called from init() functions.
func RegisterSource(moduleType string, constructor SourceConstructor) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	sourceRegistry[moduleType] = constructor
}

// RegisterFilter registers a filter module constructor by type string.
// Registering an already registered type overwrites the previous
// constructor.
//
// Safe for concurrent use; typically called from init() functions.
func RegisterFilter(moduleType string, constructor FilterConstructor) {
	filterMu.Lock()
	defer filterMu.Unlock()
	filterRegistry[moduleType] = constructor
}

// RegisterSink registers a sink module constructor by type string.
// Registering an already registered type overwrites the previous
// constructor.
//
// Safe for concurrent use; typically called from init() functions.
func RegisterSink(moduleType string, constructor SinkConstructor) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sinkRegistry[moduleType] = constructor
}

// GetSourceConstructor returns the registered constructor for a source
// module type, or nil if none is registered.
func GetSourceConstructor(moduleType string) SourceConstructor {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	return sourceRegistry[moduleType]
}

// GetFilterConstructor returns the registered constructor for a filter
// module type, or nil if none is registered.
func GetFilterConstructor(moduleType string) FilterConstructor {
	filterMu.RLock()
	defer filterMu.RUnlock()
	return filterRegistry[moduleType]
}

// GetSinkConstructor returns the registered constructor for a sink module
// type, or nil if none is registered.
func GetSinkConstructor(moduleType string) SinkConstructor {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sinkRegistry[moduleType]
}

// ListSourceTypes returns all registered source module type names.
func ListSourceTypes() []string {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	types := make([]string, 0, len(sourceRegistry))
	for t := range sourceRegistry {
		types = append(types, t)
	}
	return types
}

// ListFilterTypes returns all registered filter module type names.
func ListFilterTypes() []string {
	filterMu.RLock()
	defer filterMu.RUnlock()
	types := make([]string, 0, len(filterRegistry))
	for t := range filterRegistry {
		types = append(types, t)
	}
	return types
}

// ListSinkTypes returns all registered sink module type names.
func ListSinkTypes() []string {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	types := make([]string, 0, len(sinkRegistry))
	for t := range sinkRegistry {
		types = append(types, t)
	}
	return types
}

// ClearRegistries removes all registered constructors.
// This is intended for testing purposes only.
func ClearRegistries() {
	sourceMu.Lock()
	sourceRegistry = make(map[string]SourceConstructor)
	sourceMu.Unlock()

	filterMu.Lock()
	filterRegistry = make(map[string]FilterConstructor)
	filterMu.Unlock()

	sinkMu.Lock()
	sinkRegistry = make(map[string]SinkConstructor)
	sinkMu.Unlock()
}
