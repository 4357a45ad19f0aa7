// Package validator provides validation utilities for MCP tool arguments.
package validator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValidationError lists every rule an argument struct broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// FieldName returns the wire name of a struct field: the json tag name when
// present, the lower-cased Go name otherwise.
func FieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
		if name := strings.Split(tag, ",")[0]; name != "" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

// Arguments enforces the `required`, `minLength`, `maxLength` and `enum`
// struct tags on s (a struct or pointer to struct). Lengths count runes.
// Usage: if err := validator.Arguments(args); err != nil { ... }
func Arguments(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return &ValidationError{Problems: []string{"arguments are required"}}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("validator: expected struct, got %s", v.Kind())
	}
	t := v.Type()

	var problems []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		value := v.Field(i)
		name := FieldName(field)

		if isEmpty(value) {
			if field.Tag.Get("required") == "true" {
				problems = append(problems, fmt.Sprintf("%s is required", name))
			}
			continue
		}

		if value.Kind() != reflect.String {
			continue
		}
		length := utf8.RuneCountInString(value.String())

		if min, ok := intTag(field, "minLength"); ok && length < min {
			problems = append(problems, fmt.Sprintf("%s must be at least %d characters", name, min))
		}
		if max, ok := intTag(field, "maxLength"); ok && length > max {
			problems = append(problems, fmt.Sprintf("%s must be at most %d characters", name, max))
		}
		if enumTag := field.Tag.Get("enum"); enumTag != "" && !inEnum(value.String(), enumTag) {
			problems = append(problems, fmt.Sprintf("%s must be one of [%s]", name, enumTag))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isEmpty(value reflect.Value) bool {
	switch value.Kind() {
	case reflect.String:
		return value.String() == ""
	case reflect.Slice, reflect.Array, reflect.Map:
		return value.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return value.IsNil()
	}
	return false
}

func intTag(field reflect.StructField, key string) (int, bool) {
	raw := field.Tag.Get(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func inEnum(value, enumTag string) bool {
	for _, allowed := range strings.Split(enumTag, ",") {
		if value == strings.TrimSpace(allowed) {
			return true
		}
	}
	return false
}
