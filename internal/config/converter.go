// Package config provides functionality for parsing and validating
// pipeline definition files (JSON/YAML).
package config

import (
	"fmt"
	"time"

	"github.com/batchline/runtime/pkg/batch"
)

// ConvertToPipeline converts parsed definition data to a Pipeline struct.
// The input data should have been validated against the schema before
// calling this function.
//
// The definition is expected to have this structure:
//
//	{
//	  "schemaVersion": "1.0.0",
//	  "pipeline": {
//	    "name": "...",
//	    "version": "...",
//	    "source": {...},
//	    "filters": [...],
//	    "processing": {...},
//	    "aggregation": {...},
//	    "sink": {...},
//	    "errorHandling": {...},
//	    "dryRun": {...}
//	  }
//	}
func ConvertToPipeline(data map[string]interface{}) (*batch.Pipeline, error) {
	if data == nil {
		return nil, fmt.Errorf("definition data is nil")
	}

	pipelineData, ok := data["pipeline"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline' section")
	}

	now := time.Now()
	pipeline := &batch.Pipeline{
		CreatedAt: now,
		UpdatedAt: now,
	}

	name, ok := pipelineData["name"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'pipeline.name'")
	}
	pipeline.Name = name
	// Use name as ID unless one is specified
	pipeline.ID = name
	if id, okID := pipelineData["id"].(string); okID {
		pipeline.ID = id
	}

	version, ok := pipelineData["version"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'pipeline.version'")
	}
	pipeline.Version = version

	if description, okDesc := pipelineData["description"].(string); okDesc {
		pipeline.Description = description
	}

	if enabled, okEnabled := pipelineData["enabled"].(bool); okEnabled {
		pipeline.Enabled = &enabled
	}

	sourceData, ok := pipelineData["source"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline.source' section")
	}
	sourceConfig, err := convertModuleConfig(sourceData)
	if err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}
	pipeline.Source = sourceConfig

	if filtersData, okFilters := pipelineData["filters"].([]interface{}); okFilters {
		for i, filterData := range filtersData {
			filterMap, isMap := filterData.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("invalid filter at index %d", i)
			}
			filterConfig, convertErr := convertModuleConfig(filterMap)
			if convertErr != nil {
				return nil, fmt.Errorf("invalid filter at index %d: %w", i, convertErr)
			}
			pipeline.Filters = append(pipeline.Filters, *filterConfig)
		}
	}

	if processingData, okProc := pipelineData["processing"].(map[string]interface{}); okProc {
		pipeline.Processing = convertProcessing(processingData)
	}

	if aggregationData, okAgg := pipelineData["aggregation"].(map[string]interface{}); okAgg {
		pipeline.Aggregation = convertAggregation(aggregationData)
	}

	sinkData, ok := pipelineData["sink"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline.sink' section")
	}
	sinkConfig, err := convertModuleConfig(sinkData)
	if err != nil {
		return nil, fmt.Errorf("invalid sink config: %w", err)
	}
	pipeline.Sink = sinkConfig

	if errorHandling, okErrHandling := pipelineData["errorHandling"].(map[string]interface{}); okErrHandling {
		pipeline.ErrorHandling = convertErrorHandling(errorHandling)
	}

	if dryRunData, okDryRun := pipelineData["dryRun"].(map[string]interface{}); okDryRun {
		pipeline.DryRunOptions = convertDryRunOptions(dryRunData)
	}

	return pipeline, nil
}

// convertModuleConfig converts a raw module configuration map to ModuleConfig.
func convertModuleConfig(data map[string]interface{}) (*batch.ModuleConfig, error) {
	moduleConfig := &batch.ModuleConfig{
		Config: make(map[string]interface{}),
	}

	moduleType, ok := data["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'type'")
	}
	moduleConfig.Type = moduleType

	// Everything except 'type' is module configuration
	for key, value := range data {
		if key != "type" {
			moduleConfig.Config[key] = value
		}
	}

	return moduleConfig, nil
}

// convertProcessing converts a raw processing configuration map.
func convertProcessing(data map[string]interface{}) *batch.ProcessingConfig {
	processing := &batch.ProcessingConfig{}

	if fields, ok := data["requiredFields"].([]interface{}); ok {
		for _, f := range fields {
			if s, isString := f.(string); isString {
				processing.RequiredFields = append(processing.RequiredFields, s)
			}
		}
	}

	if threshold, ok := data["errorThreshold"].(float64); ok {
		processing.ErrorThreshold = &threshold
	}

	return processing
}

// convertAggregation converts a raw aggregation configuration map.
func convertAggregation(data map[string]interface{}) *batch.AggregationConfig {
	aggregation := &batch.AggregationConfig{}

	if threshold, ok := data["threshold"].(float64); ok {
		aggregation.Threshold = &threshold
	}

	if computeAverage, ok := data["computeAverage"].(bool); ok {
		aggregation.ComputeAverage = computeAverage
	}

	return aggregation
}

// convertErrorHandling converts a raw error handling configuration map.
// Absent keys fall back to the runtime defaults so a partial block keeps
// retries enabled.
func convertErrorHandling(data map[string]interface{}) *batch.ErrorHandling {
	errorHandling := &batch.ErrorHandling{
		RetryCount: 3,
		RetryDelay: 1000,
		OnError:    "fail",
	}

	if retryCount, ok := data["retryCount"].(float64); ok {
		errorHandling.RetryCount = int(retryCount)
	}

	if retryDelay, ok := data["retryDelay"].(float64); ok {
		errorHandling.RetryDelay = int(retryDelay)
	}

	if onError, ok := data["onError"].(string); ok {
		errorHandling.OnError = onError
	}

	return errorHandling
}

// convertDryRunOptions converts a raw dry-run configuration map.
func convertDryRunOptions(data map[string]interface{}) *batch.DryRunOptions {
	options := &batch.DryRunOptions{}

	if previewLimit, ok := data["previewLimit"].(float64); ok {
		options.PreviewLimit = int(previewLimit)
	}

	return options
}
