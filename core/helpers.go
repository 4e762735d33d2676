// Package core provides the fundamental building blocks of the golem ODM.
// This file contains helper functions for reflection, value normalization,
// key stringification, and pattern compilation.
package core

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// likePattern converts a SQL-like pattern into an un-anchored regex pattern.
//
// It replaces % with .* (wildcard for multiple characters) and
// _ with . (wildcard for a single character); everything else is quoted.
//
// Example:
//
//	likePattern("Jo%n_")
//	// "Jo.*n."
func likePattern(input string) string {
	var b strings.Builder
	b.Grow(len(input) + 4)
	for _, r := range input {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// toSlice turns any slice or array value into []any. Scalars become a
// one-element slice.
func toSlice(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case primitive.A:
		return []any(s)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte, ObjectID and UUID are values, not lists
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// flatten expands a single slice argument so that WhereIn("f", ids) and
// WhereIn("f", a, b, c) behave the same.
func flatten(values []any) []any {
	if len(values) == 1 {
		return toSlice(values[0])
	}
	return values
}

// toDocuments converts the array forms a filter may carry ([]bson.M,
// bson.A, []any of maps) into []bson.M.
func toDocuments(v any) []bson.M {
	switch s := v.(type) {
	case []bson.M:
		return s
	case []map[string]any:
		out := make([]bson.M, len(s))
		for i, m := range s {
			out[i] = bson.M(m)
		}
		return out
	}
	items := toSlice(v)
	out := make([]bson.M, 0, len(items))
	for _, item := range items {
		if doc, ok := asDocument(item); ok {
			out = append(out, doc)
		}
	}
	return out
}

// asDocument views ordered and unordered document representations as bson.M.
func asDocument(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return bson.M(d), true
	case bson.D:
		return d.Map(), true
	}
	return nil, false
}

// normalizeValue converts driver specific containers (bson.D, primitive.A,
// primitive.DateTime) into the plain shapes entities work with.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		return normalizeDocument(x.Map())
	case bson.M:
		return normalizeDocument(x)
	case map[string]any:
		return normalizeDocument(bson.M(x))
	case primitive.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeValue(item)
		}
		return out
	case []bson.M:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeDocument(item)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	}
	return v
}

func normalizeDocument(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

// keyString stringifies a key value so that lookups built from foreign keys
// and local keys agree regardless of the concrete key type.
func keyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case primitive.ObjectID:
		return k.Hex()
	case *primitive.ObjectID:
		if k == nil {
			return ""
		}
		return k.Hex()
	case time.Time:
		return k.UTC().Format(time.RFC3339Nano)
	}
	if f, ok := toFloat(v); ok {
		return fmt.Sprint(f)
	}
	return fmt.Sprint(v)
}

// isNil reports whether v is nil or a nil pointer/map/slice.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// lookupPath reads a dotted path from a document.
func lookupPath(doc bson.M, path string) (any, bool) {
	current := any(doc)
	for _, segment := range strings.Split(path, ".") {
		m, ok := asDocument(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// decodeInto maps a document into a struct instance.
//
// It uses reflection to assign values to fields, with support for:
//  1. Exact type matching
//  2. Value → pointer conversions (e.g. time.Time → *time.Time)
//  3. Pointer → value conversions (e.g. *time.Time → time.Time)
//  4. Convertible types (e.g. int64 → int)
//
// Fields are matched by their `odm` tag first, then case-insensitively by name.
func decodeInto(row bson.M, out any) error {
	value := reflect.ValueOf(out)
	if value.Kind() != reflect.Pointer || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("core: decode target must be a non-nil struct pointer, got %T", out)
	}
	value = value.Elem()
	structType := value.Type()

	for rowKey, rowValue := range row {
		field := fieldForKey(value, structType, rowKey)
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		if rowValue == nil {
			if field.Kind() == reflect.Pointer {
				field.Set(reflect.Zero(field.Type()))
			}
			continue
		}

		rv := reflect.ValueOf(rowValue)

		// 1) exact type match
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			continue
		}

		// 2) value → pointer
		if field.Kind() == reflect.Pointer && rv.Type().AssignableTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv)
			field.Set(ptr)
			continue
		}

		// 3) pointer → value
		if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(field.Type()) {
			field.Set(rv.Elem())
			continue
		}

		// 4) convertible types
		numericToString := field.Kind() == reflect.String && rv.Kind() != reflect.String
		if rv.Type().ConvertibleTo(field.Type()) && !numericToString {
			field.Set(rv.Convert(field.Type()))
			continue
		}
		if field.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv.Convert(field.Type().Elem()))
			field.Set(ptr)
			continue
		}
	}
	return nil
}

func fieldForKey(value reflect.Value, structType reflect.Type, key string) reflect.Value {
	for i := 0; i < structType.NumField(); i++ {
		tag := strings.Split(structType.Field(i).Tag.Get("odm"), ",")[0]
		if tag == key {
			return value.Field(i)
		}
	}
	return value.FieldByNameFunc(func(name string) bool { return strings.EqualFold(name, key) })
}
