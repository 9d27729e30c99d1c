// Package factory provides module creation functions for the pipeline runtime.
// It centralizes the logic for instantiating source, filter, and sink modules
// from their configuration using the module registry.
//
// # Module Creation
//
// The factory uses the registry package to look up module constructors by
// type. Built-in modules are registered automatically at startup. Unknown
// types resolve to stub implementations.
//
// # Adding New Module Types
//
// To add a new module type, see the documentation in internal/registry.
// You do NOT need to modify this factory; just register your constructor.
package factory

import (
	"log/slog"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/internal/modules/filter"
	"github.com/batchline/runtime/internal/modules/sink"
	"github.com/batchline/runtime/internal/modules/source"
	"github.com/batchline/runtime/internal/registry"
	"github.com/batchline/runtime/pkg/batch"
)

// CreateSourceModule creates a source module instance from configuration.
// Uses the registry to look up the constructor by type.
// Returns a stub module for unregistered types.
func CreateSourceModule(cfg *batch.ModuleConfig) (source.Module, error) {
	if cfg == nil {
		return nil, nil
	}

	constructor := registry.GetSourceConstructor(cfg.Type)
	if constructor != nil {
		return constructor(cfg)
	}

	logger.Warn("unknown source module type; using stub",
		slog.String("module_type", cfg.Type),
	)
	return source.NewStub(cfg.Type), nil
}

// CreateFilterModules creates filter module instances from configuration,
// preserving pipeline order. Unregistered types use stub implementations.
func CreateFilterModules(cfgs []batch.ModuleConfig) ([]filter.Module, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	modules := make([]filter.Module, 0, len(cfgs))
	for i, cfg := range cfgs {
		constructor := registry.GetFilterConstructor(cfg.Type)
		if constructor == nil {
			logger.Warn("unknown filter module type; using stub",
				slog.String("module_type", cfg.Type),
				slog.Int("filter_index", i),
			)
			modules = append(modules, filter.NewStub(cfg.Type, i))
			continue
		}

		module, err := constructor(cfg, i)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, nil
}

// CreateSinkModule creates a sink module instance from configuration.
// Uses the registry to look up the constructor by type.
// Returns a stub module for unregistered types.
func CreateSinkModule(cfg *batch.ModuleConfig) (sink.Module, error) {
	if cfg == nil {
		return nil, nil
	}

	constructor := registry.GetSinkConstructor(cfg.Type)
	if constructor != nil {
		return constructor(cfg)
	}

	logger.Warn("unknown sink module type; using stub",
		slog.String("module_type", cfg.Type),
	)
	return sink.NewStub(cfg.Type), nil
}
