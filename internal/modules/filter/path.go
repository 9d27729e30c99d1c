// Package filter provides implementations for filter modules.
// This file contains path utilities for navigating and manipulating nested
// record structures.
//
// Path notation supports:
// - Dot notation for nested objects: "customer.address.city"
// - Array indexing: "items[0].name", "tags[2]"
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/batchline/runtime/pkg/batch"
)

// Path parsing errors
var (
	ErrEmptyPath         = errors.New("empty path")
	ErrInvalidArrayIndex = errors.New("invalid array index in path")
)

// IsNestedPath reports whether a path uses dot notation or array indexing.
func IsNestedPath(path string) bool {
	return strings.ContainsAny(path, ".[")
}

// ParsePathPart parses a path segment and extracts the key and optional
// array index. For "items[0]" returns ("items", 0, true, nil); for "name"
// returns ("name", -1, false, nil).
func ParsePathPart(part string) (key string, index int, hasIndex bool, err error) {
	open := strings.Index(part, "[")
	if open == -1 {
		return part, -1, false, nil
	}
	if !strings.HasSuffix(part, "]") || len(part) < open+3 {
		return "", -1, false, fmt.Errorf("%w: %q", ErrInvalidArrayIndex, part)
	}
	idx, parseErr := strconv.Atoi(part[open+1 : len(part)-1])
	if parseErr != nil || idx < 0 {
		return "", -1, false, fmt.Errorf("%w: %q", ErrInvalidArrayIndex, part)
	}
	return part[:open], idx, true, nil
}

// GetNestedValue extracts a value from a record using dot notation.
// Returns the value and whether the full path was found.
func GetNestedValue(record batch.Raw, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = map[string]interface{}(record)
	for _, part := range strings.Split(path, ".") {
		next, ok := stepInto(current, part)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// stepInto advances one path segment from current, resolving an optional
// array index.
func stepInto(current interface{}, part string) (interface{}, bool) {
	key, idx, hasIndex, err := ParsePathPart(part)
	if err != nil {
		return nil, false
	}

	m, ok := current.(map[string]interface{})
	if !ok {
		return nil, false
	}
	next, ok := m[key]
	if !ok {
		return nil, false
	}

	if hasIndex {
		arr, isArr := next.([]interface{})
		if !isArr || idx >= len(arr) {
			return nil, false
		}
		next = arr[idx]
	}
	return next, true
}

// SetNestedValue sets a value in a record using dot notation, creating
// intermediate objects and growing arrays as needed.
func SetNestedValue(record batch.Raw, path string, value interface{}) error {
	if path == "" {
		return ErrEmptyPath
	}

	parts := strings.Split(path, ".")
	current := map[string]interface{}(record)

	for i, part := range parts {
		key, idx, hasIndex, err := ParsePathPart(part)
		if err != nil {
			return err
		}
		last := i == len(parts)-1

		if !hasIndex {
			if last {
				current[key] = value
				return nil
			}
			current = childMap(current, key)
			continue
		}

		arr := childArray(current, key, idx)
		current[key] = arr
		if last {
			arr[idx] = value
			return nil
		}
		elem, ok := arr[idx].(map[string]interface{})
		if !ok {
			elem = make(map[string]interface{})
			arr[idx] = elem
		}
		current = elem
	}

	return nil
}

// DeleteNestedValue removes a value from a record using dot notation.
// Missing intermediate keys are a no-op.
func DeleteNestedValue(record batch.Raw, path string) {
	if path == "" {
		return
	}

	parts := strings.Split(path, ".")
	var parent interface{} = map[string]interface{}(record)

	for _, part := range parts[:len(parts)-1] {
		next, ok := stepInto(parent, part)
		if !ok {
			return
		}
		parent = next
	}

	key, idx, hasIndex, err := ParsePathPart(parts[len(parts)-1])
	if err != nil {
		return
	}

	m, ok := parent.(map[string]interface{})
	if !ok {
		return
	}
	if !hasIndex {
		delete(m, key)
		return
	}
	arr, ok := m[key].([]interface{})
	if !ok || idx >= len(arr) {
		return
	}
	m[key] = append(arr[:idx], arr[idx+1:]...)
}

// childMap returns the map at current[key], creating it if absent or of
// another type.
func childMap(current map[string]interface{}, key string) map[string]interface{} {
	next, ok := current[key].(map[string]interface{})
	if !ok {
		next = make(map[string]interface{})
		current[key] = next
	}
	return next
}

// childArray returns the array at current[key], grown to hold index idx.
func childArray(current map[string]interface{}, key string, idx int) []interface{} {
	arr, ok := current[key].([]interface{})
	if !ok {
		arr = make([]interface{}, 0, idx+1)
	}
	for len(arr) <= idx {
		arr = append(arr, nil)
	}
	return arr
}
