// Package schema provides utilities for generating MCP tool input schemas from
// Go structs and for decoding tool arguments back into them.
package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/util/validator"
)

// goTypeToMCPType maps Go kinds to MCP schema types.
func goTypeToMCPType(kind reflect.Kind) string {
	switch kind {
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
	default:
		return "string"
	}
}

// FromStruct generates a protocol.ToolInputSchema from struct tags.
//
// Recognised tags: json (property name), description, enum (comma separated),
// minLength, maxLength, required ("true"). Non-pointer fields are required
// unless tagged required:"false".
func FromStruct(v interface{}) protocol.ToolInputSchema {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	props := map[string]protocol.PropertyDetail{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" || field.Tag.Get("json") == "-" {
			continue
		}
		name := validator.FieldName(field)

		fieldType := field.Type
		isPtr := fieldType.Kind() == reflect.Ptr
		if isPtr {
			fieldType = fieldType.Elem()
		}

		detail := protocol.PropertyDetail{
			Type:        goTypeToMCPType(fieldType.Kind()),
			Description: field.Tag.Get("description"),
			MinLength:   intPtrTag(field, "minLength"),
			MaxLength:   intPtrTag(field, "maxLength"),
		}
		if enumTag := field.Tag.Get("enum"); enumTag != "" {
			for _, e := range strings.Split(enumTag, ",") {
				detail.Enum = append(detail.Enum, strings.TrimSpace(e))
			}
		}
		props[name] = detail

		switch field.Tag.Get("required") {
		case "true":
			required = append(required, name)
		case "false":
		default:
			if !isPtr {
				required = append(required, name)
			}
		}
	}

	return protocol.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func intPtrTag(field reflect.StructField, key string) *int {
	raw := field.Tag.Get(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// DecodeArgs decodes tool arguments (normally map[string]interface{}) into a
// T using the json tags, then validates the result with validator.Arguments.
// Types are matched strictly: a number is not accepted where a string is
// declared.
func DecodeArgs[T any](arguments any) (*T, error) {
	var args T

	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	if _, ok := arguments.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("invalid arguments format: expected an object, got %T", arguments)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &args,
		TagName: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("internal error creating argument decoder: %w", err)
	}
	if err := decoder.Decode(arguments); err != nil {
		return nil, fmt.Errorf("error parsing arguments: %w", err)
	}

	if err := validator.Arguments(&args); err != nil {
		return nil, err
	}
	return &args, nil
}
