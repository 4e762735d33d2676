// Package core provides the fundamental building blocks of the golem ODM.
// This file implements field-name translation between logical names and
// stored document names for filters, sort lists and write payloads.
package core

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ColumnName returns the stored name of a logical field.
//
// The primary key, operator keys and names that already are a declared
// stored name are returned unchanged, which makes translation idempotent.
func (s *Schema) ColumnName(field string) string {
	if field == "" || field == DefaultPrimaryKey || field == s.PrimaryKey || strings.HasPrefix(field, "$") {
		return field
	}
	if head, tail, dotted := strings.Cut(field, "."); dotted {
		return s.ColumnName(head) + "." + tail
	}
	if _, declared := s.fieldsByName[field]; !declared {
		if _, ok := s.fieldForColumn(field); ok {
			return field
		}
	}
	return s.naming().ColumnName(s, field)
}

// LogicalName returns the logical name for a stored field name.
func (s *Schema) LogicalName(column string) string {
	if column == DefaultPrimaryKey || column == s.PrimaryKey {
		return column
	}
	if f, ok := s.fieldForColumn(column); ok {
		return f.Name
	}
	if namer, ok := s.naming().(LogicalNamer); ok {
		return namer.LogicalName(s, column)
	}
	return column
}

// SerializedName returns the external name of a logical field, or false if
// the field is hidden.
func (s *Schema) SerializedName(field string) (string, bool) {
	return s.naming().SerializedName(s, field)
}

func (s *Schema) fieldForColumn(column string) (*Field, bool) {
	for _, f := range s.Fields {
		if s.naming().ColumnName(s, f.Name) == column {
			return f, true
		}
	}
	return nil, false
}

func (s *Schema) naming() NamingStrategy {
	if s.Naming == nil {
		return FieldNaming{}
	}
	return s.Naming
}

// TranslateFilter rewrites the field names of a filter document to their
// stored names. Logical operators ($and, $or, $nor) are walked recursively;
// operator keys and values are left untouched.
//
// Example:
//
//	core.TranslateFilter(users, bson.M{"$or": []bson.M{{"firstName": "Ana"}}})
//	// {"$or": [{"first_name": "Ana"}]}
func TranslateFilter(schema *Schema, filter bson.M) bson.M {
	if filter == nil {
		return nil
	}
	out := make(bson.M, len(filter))
	for key, value := range filter {
		switch key {
		case "$and", "$or", "$nor":
			children := toDocuments(value)
			translated := make([]bson.M, len(children))
			for i, child := range children {
				translated[i] = TranslateFilter(schema, child)
			}
			out[key] = translated
		default:
			out[schema.ColumnName(key)] = value
		}
	}
	return out
}

// TranslateFields rewrites a list of logical field names (sort keys,
// projections, group keys) to their stored names.
func TranslateFields(schema *Schema, fields []string) []string {
	out := make([]string, len(fields))
	for i, field := range fields {
		out[i] = schema.ColumnName(field)
	}
	return out
}

// TranslateDocument rewrites the top-level keys of a write payload to their
// stored names. Update operator documents ($set, $unset, $inc, ...) have
// their inner keys translated instead.
func TranslateDocument(schema *Schema, doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for key, value := range doc {
		if strings.HasPrefix(key, "$") {
			if inner, ok := asDocument(value); ok {
				out[key] = TranslateDocument(schema, inner)
				continue
			}
			out[key] = value
			continue
		}
		out[schema.ColumnName(key)] = value
	}
	return out
}

// ReverseDocument rewrites the top-level keys of a stored document back to
// their logical names.
func ReverseDocument(schema *Schema, doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for key, value := range doc {
		out[schema.LogicalName(key)] = value
	}
	return out
}
