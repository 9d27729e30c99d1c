// Package registry provides module registries for the batchline runtime.
// This file registers all built-in modules during initialization.
package registry

import (
	"fmt"

	"github.com/batchline/runtime/internal/modules/filter"
	"github.com/batchline/runtime/internal/modules/sink"
	"github.com/batchline/runtime/internal/modules/source"
	"github.com/batchline/runtime/pkg/batch"
)

func init() {
	registerBuiltinSourceModules()
	registerBuiltinFilterModules()
	registerBuiltinSinkModules()
}

// registerBuiltinSourceModules registers all built-in source module types.
func registerBuiltinSourceModules() {
	// file - JSON batch file source
	RegisterSource("file", func(cfg *batch.ModuleConfig) (source.Module, error) {
		return source.NewFileSourceFromConfig(cfg)
	})

	// sqlite - SQLite query source
	RegisterSource("sqlite", func(cfg *batch.ModuleConfig) (source.Module, error) {
		return source.NewSQLiteSourceFromConfig(cfg)
	})

	// inline - records embedded in the pipeline definition
	RegisterSource("inline", func(cfg *batch.ModuleConfig) (source.Module, error) {
		return source.NewInlineSourceFromConfig(cfg)
	})
}

// registerBuiltinFilterModules registers all built-in filter module types.
func registerBuiltinFilterModules() {
	// condition - keep or drop records based on a boolean expression
	RegisterFilter("condition", func(cfg batch.ModuleConfig, index int) (filter.Module, error) {
		condConfig, err := filter.ParseConditionConfig(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid condition config at index %d: %w", index, err)
		}
		module, err := filter.NewConditionFromConfig(condConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid condition config at index %d: %w", index, err)
		}
		return module, nil
	})

	// script - JavaScript transformation using Goja
	RegisterFilter("script", func(cfg batch.ModuleConfig, index int) (filter.Module, error) {
		scriptConfig, err := filter.ParseScriptConfig(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid script config at index %d: %w", index, err)
		}
		module, err := filter.NewScriptFromConfig(scriptConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid script config at index %d: %w", index, err)
		}
		return module, nil
	})

	// set - assign a static value to a field on each record
	RegisterFilter("set", func(cfg batch.ModuleConfig, index int) (filter.Module, error) {
		setConfig, err := filter.ParseSetConfig(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid set config at index %d: %w", index, err)
		}
		module, err := filter.NewSetFromConfig(setConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid set config at index %d: %w", index, err)
		}
		return module, nil
	})

	// remove - delete fields from each record
	RegisterFilter("remove", func(cfg batch.ModuleConfig, index int) (filter.Module, error) {
		removeConfig, err := filter.ParseRemoveConfig(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid remove config at index %d: %w", index, err)
		}
		module, err := filter.NewRemoveFromConfig(removeConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid remove config at index %d: %w", index, err)
		}
		return module, nil
	})
}

// registerBuiltinSinkModules registers all built-in sink module types.
func registerBuiltinSinkModules() {
	// file - JSON batch file sink
	RegisterSink("file", func(cfg *batch.ModuleConfig) (sink.Module, error) {
		return sink.NewFileSinkFromConfig(cfg)
	})

	// console - indented JSON on standard output
	RegisterSink("console", func(_ *batch.ModuleConfig) (sink.Module, error) {
		return sink.NewConsoleSink(), nil
	})

	// sqlite - upsert into a SQLite table
	RegisterSink("sqlite", func(cfg *batch.ModuleConfig) (sink.Module, error) {
		return sink.NewSQLiteSinkFromConfig(cfg)
	})
}
