// Package schema validates class schemas and object payloads.
//
// Three checks exist: a schema document must be a well-formed JSON Schema, an
// in-place schema edit must be additive (a structural superset of what it
// replaces), and an object payload must validate against its class's schema
// when the class demands it. None of the checks have side effects.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

// ValidationError is a recoverable rejected-input error: the caller can fix
// the schema or payload and retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CheckWellFormed validates that doc is a structurally valid JSON Schema.
func CheckWellFormed(doc models.JSONMap) error {
	if doc == nil {
		return &ValidationError{"schema document is empty"}
	}
	loader := gojsonschema.NewGoLoader(map[string]interface{}(doc))
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return &ValidationError{fmt.Sprintf("the proposed schema is not valid: %v", err)}
	}
	return nil
}

// CheckAdditive accepts a replacement schema only if it is well-formed and
// contains every key of the old schema, recursively for nested object-valued
// keys. Removing a key or a nested constraint is rejected; adding is always
// allowed.
func CheckAdditive(old, new models.JSONMap) error {
	if err := CheckWellFormed(new); err != nil {
		return err
	}
	if missing := subsetViolation(old, new, ""); missing != "" {
		return &ValidationError{fmt.Sprintf("schema changes must be additive: %q was removed", missing)}
	}
	return nil
}

// subsetViolation walks old and reports the path of the first key missing
// from new, or "" when old is a structural subset of new.
func subsetViolation(old, new map[string]interface{}, path string) string {
	for key, oldVal := range old {
		keyPath := key
		if path != "" {
			keyPath = path + "." + key
		}
		newVal, ok := new[key]
		if !ok {
			return keyPath
		}
		oldMap, oldIsMap := oldVal.(map[string]interface{})
		newMap, newIsMap := newVal.(map[string]interface{})
		if oldIsMap && newIsMap {
			if missing := subsetViolation(oldMap, newMap, keyPath); missing != "" {
				return missing
			}
		}
	}
	return ""
}

// ValidateInstance validates data against the given schema document.
// Callers only invoke this when the owning class has validation enabled and
// a non-empty schema.
func ValidateInstance(doc models.JSONMap, data models.JSONMap) error {
	schemaLoader := gojsonschema.NewGoLoader(map[string]interface{}(doc))
	dataLoader := gojsonschema.NewGoLoader(map[string]interface{}(data))
	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return &ValidationError{fmt.Sprintf("the schema could not be applied: %v", err)}
	}
	if !result.Valid() {
		descs := make([]string, len(result.Errors()))
		for i, resultErr := range result.Errors() {
			descs[i] = resultErr.String()
		}
		return &ValidationError{
			fmt.Sprintf("data is not valid according to schema: %s", strings.Join(descs, "; ")),
		}
	}
	return nil
}
