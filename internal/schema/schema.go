// Package schema implements the minimal JSON-Schema subset used to describe
// and validate tool parameters: object schemas with typed properties and a
// required list. It is the boundary that converts loosely typed, string
// encoded call arguments into values a tool can trust.
package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidationError describes a single argument that failed validation.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// FromStruct derives an object schema from a struct type using reflection.
// Field names follow json tags; a `description` tag becomes the property
// description. Pointer and omitempty fields are optional, everything else is
// required.
func FromStruct(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	properties := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		if jsonTag != "" {
			if tagName := strings.Split(jsonTag, ",")[0]; tagName != "" {
				name = tagName
			}
		}

		prop := map[string]any{"type": jsonType(field.Type)}
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		properties[name] = prop

		if field.Type.Kind() != reflect.Ptr && !hasOmitEmpty(jsonTag) {
			required = append(required, name)
		}
	}

	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Validate checks args against an object schema: every required field must be
// present and every known property must hold a value coercible to its declared
// type. Unknown extra fields pass through untouched. The first violation is
// returned as a *ValidationError.
func Validate(args map[string]any, s map[string]any) error {
	for _, name := range requiredFields(s) {
		if _, ok := args[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := s["properties"].(map[string]any)
	for name, value := range args {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		want, _ := prop["type"].(string)
		if !coercible(value, want) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", want, value),
			}
		}
	}
	return nil
}

// requiredFields tolerates both []string (hand-written schemas) and []any
// (schemas round-tripped through JSON).
func requiredFields(s map[string]any) []string {
	switch req := s["required"].(type) {
	case []string:
		return req
	case []any:
		names := make([]string, 0, len(req))
		for _, r := range req {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		return names
	}
	return nil
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonType(t.Elem())
	default:
		return "string"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// coercible reports whether value satisfies the declared JSON schema type.
// JSON decoding produces float64 for every number, so integers accept whole
// float64 values.
func coercible(value any, want string) bool {
	if value == nil {
		return true
	}
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
