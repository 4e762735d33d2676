// Package core provides the fundamental building blocks of the golem ODM.
// This file defines naming strategies, which map logical field names to
// stored and serialized field names.
package core

import (
	"strings"
	"unicode"
)

// NamingStrategy maps an entity's logical field names to the names used in
// stored documents and in serialized output.
//
// SerializedName returns false when the field must be hidden from
// serialized output.
type NamingStrategy interface {
	ColumnName(schema *Schema, field string) string
	SerializedName(schema *Schema, field string) (string, bool)
}

// LogicalNamer is implemented by strategies that can map an undeclared
// storage name back to its logical name. Declared fields never need it.
type LogicalNamer interface {
	LogicalName(schema *Schema, column string) string
}

// FieldNaming uses declared Column and Serialize overrides and keeps every
// other name as is. It is the default strategy.
type FieldNaming struct{}

func (FieldNaming) ColumnName(schema *Schema, field string) string {
	if f, ok := schema.FieldByName(field); ok && f.Column != "" {
		return f.Column
	}
	return field
}

func (FieldNaming) SerializedName(schema *Schema, field string) (string, bool) {
	return declaredSerializedName(schema, field)
}

// SnakeCaseNaming stores fields in snake_case unless a Column override is
// declared. Serialized names keep the logical camelCase form.
type SnakeCaseNaming struct{}

func (SnakeCaseNaming) ColumnName(schema *Schema, field string) string {
	if f, ok := schema.FieldByName(field); ok && f.Column != "" {
		return f.Column
	}
	return snakeCase(field)
}

func (SnakeCaseNaming) SerializedName(schema *Schema, field string) (string, bool) {
	return declaredSerializedName(schema, field)
}

func (SnakeCaseNaming) LogicalName(_ *Schema, column string) string {
	return camelCase(column)
}

func declaredSerializedName(schema *Schema, field string) (string, bool) {
	f, ok := schema.FieldByName(field)
	if !ok {
		return field, true
	}
	if f.Hidden {
		return "", false
	}
	if f.Serialize != "" {
		return f.Serialize, true
	}
	return field, true
}

// snakeCase converts camelCase and PascalCase names to snake_case.
// Acronyms stay together: "HTTPServer" becomes "http_server".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camelCase converts snake_case names to camelCase. A leading underscore is
// kept so "_id" round-trips.
func camelCase(s string) string {
	if !strings.Contains(strings.TrimPrefix(s, "_"), "_") {
		return s
	}
	prefix := ""
	if strings.HasPrefix(s, "_") {
		prefix, s = "_", s[1:]
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(prefix)
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
