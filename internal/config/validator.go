// Package config provides functionality for parsing and validating
// pipeline definition files (JSON/YAML).
//
// This file validates parsed definitions against the embedded JSON
// Schema.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/pipeline-schema.json
var embeddedSchema []byte

const schemaURL = "https://batchline.dev/schemas/pipeline/v1.0.0/pipeline-schema.json"

// loadSchema compiles the embedded schema once; every validation call
// shares the compiled form.
var loadSchema = sync.OnceValues(compileSchema)

func compileSchema() (*jsonschema.Schema, error) {
	var doc interface{}
	if err := json.Unmarshal(embeddedSchema, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// GetEmbeddedSchema returns the embedded pipeline schema document.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

// ValidateConfig validates a parsed pipeline definition against the
// schema and reports every violation found.
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	switch {
	case data == nil:
		return invalidResult("/", "required", "definition data is nil")
	case len(data) == 0:
		return invalidResult("/", "required", "definition data is empty")
	}

	schema, err := loadSchema()
	if err != nil {
		return invalidResult("/", "schema", fmt.Sprintf("failed to load schema: %v", err))
	}

	err = schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{}
	if detailed, ok := err.(*jsonschema.ValidationError); ok {
		flattenSchemaError(detailed, &result.Errors)
	} else {
		result.Errors = []ValidationError{{Path: "/", Type: "validation", Message: err.Error()}}
	}
	return result
}

func invalidResult(path, errType, message string) *ValidationResult {
	return &ValidationResult{
		Errors: []ValidationError{{Path: path, Type: errType, Message: message}},
	}
}

// flattenSchemaError walks the validation error tree depth-first and
// appends one ValidationError per node carrying an ErrorKind.
func flattenSchemaError(err *jsonschema.ValidationError, out *[]ValidationError) {
	if err.ErrorKind != nil {
		*out = append(*out, ValidationError{
			Path:    instancePath(err.InstanceLocation),
			Type:    classifyKeyword(err),
			Message: err.Error(),
		})
	}
	for _, cause := range err.Causes {
		flattenSchemaError(cause, out)
	}
}

// instancePath renders an instance location as a JSON pointer.
func instancePath(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

// keywordKinds maps message substrings to simplified error types.
// Order matters: the first match wins, and "required" must be tried
// before "type" because required-property messages may mention both.
var keywordKinds = []struct {
	substr string
	kind   string
}{
	{"required", "required"},
	{"type", "type"},
	{"pattern", "pattern"},
	{"enum", "enum"},
	{"minimum", "range"},
	{"maximum", "range"},
	{"format", "format"},
	{"additionalproperties", "additionalProperties"},
}

func classifyKeyword(err *jsonschema.ValidationError) string {
	msg := strings.ToLower(err.Error())
	for _, kk := range keywordKinds {
		if strings.Contains(msg, kk.substr) {
			return kk.kind
		}
	}
	return "validation"
}
