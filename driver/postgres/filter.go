// Package postgres provides a PostgreSQL driver for the golem ODM that
// stores every document as a single JSONB value.
// This file translates filter documents into SQL expressions over the
// document column.
package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const docColumn = "doc"

// whereExpression converts a filter document into a boolean SQL expression.
//
// Example:
//
//	whereExpression(bson.M{"age": bson.M{"$gte": 18}})
//	// (jsonb_typeof(doc #> $1::text::text[]) = 'number' AND (doc #>> $2::text::text[])::numeric >= $3)
func whereExpression(filter bson.M) (exp.Expression, error) {
	if len(filter) == 0 {
		return goqu.L("TRUE"), nil
	}
	parts := make([]exp.Expression, 0, len(filter))
	for _, key := range sortedKeys(filter) {
		cond := filter[key]
		var part exp.Expression
		var err error
		switch key {
		case "$and":
			part, err = logicalExpression(cond, goqu.And, "TRUE")
		case "$or":
			part, err = logicalExpression(cond, goqu.Or, "FALSE")
		case "$nor":
			part, err = logicalExpression(cond, goqu.Or, "FALSE")
			if err == nil {
				part = goqu.L("NOT (?)", part)
			}
		default:
			if strings.HasPrefix(key, "$") {
				return nil, fmt.Errorf("postgres driver: unsupported top-level operator %s", key)
			}
			part, err = fieldExpression(key, cond)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return goqu.And(parts...), nil
}

func logicalExpression(cond any, join func(...exp.Expression) exp.ExpressionList, empty string) (exp.Expression, error) {
	subs := documentList(cond)
	if len(subs) == 0 {
		return goqu.L(empty), nil
	}
	parts := make([]exp.Expression, 0, len(subs))
	for _, sub := range subs {
		part, err := whereExpression(sub)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return join(parts...), nil
}

func fieldExpression(path string, cond any) (exp.Expression, error) {
	if re, ok := cond.(primitive.Regex); ok {
		return regexExpression(path, re.Pattern, re.Options), nil
	}
	ops, ok := operatorDocument(cond)
	if !ok {
		return equalExpression(path, cond)
	}
	parts := make([]exp.Expression, 0, len(ops))
	for _, op := range sortedKeys(ops) {
		if op == "$options" {
			continue
		}
		part, err := operatorExpression(path, op, ops[op], ops)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return goqu.And(parts...), nil
}

func operatorExpression(path, op string, operand any, ops bson.M) (exp.Expression, error) {
	switch op {
	case "$eq":
		return equalExpression(path, operand)
	case "$ne":
		eq, err := equalExpression(path, operand)
		if err != nil {
			return nil, err
		}
		return goqu.L("NOT (?)", eq), nil
	case "$gt":
		return compareExpression(path, ">", operand)
	case "$gte":
		return compareExpression(path, ">=", operand)
	case "$lt":
		return compareExpression(path, "<", operand)
	case "$lte":
		return compareExpression(path, "<=", operand)
	case "$in", "$nin":
		list := valueList(operand)
		if len(list) == 0 {
			if op == "$in" {
				return goqu.L("FALSE"), nil
			}
			return goqu.L("TRUE"), nil
		}
		parts := make([]exp.Expression, 0, len(list))
		for _, candidate := range list {
			eq, err := equalExpression(path, candidate)
			if err != nil {
				return nil, err
			}
			parts = append(parts, eq)
		}
		if op == "$in" {
			return goqu.Or(parts...), nil
		}
		return goqu.L("NOT (?)", goqu.Or(parts...)), nil
	case "$exists":
		if want, _ := operand.(bool); want {
			return goqu.L("doc #> ?::text::text[] IS NOT NULL", textArray(path)), nil
		}
		return goqu.L("doc #> ?::text::text[] IS NULL", textArray(path)), nil
	case "$regex":
		options, _ := ops["$options"].(string)
		pattern := fmt.Sprint(operand)
		if re, ok := operand.(primitive.Regex); ok {
			pattern, options = re.Pattern, re.Options+options
		}
		return regexExpression(path, pattern, options), nil
	case "$not":
		inner, err := fieldExpression(path, operand)
		if err != nil {
			return nil, err
		}
		return goqu.L("NOT (?)", inner), nil
	}
	return nil, fmt.Errorf("postgres driver: unsupported operator %s on %s", op, path)
}

// equalExpression matches path against value using JSONB containment, so
// that a scalar also matches arrays holding it.
func equalExpression(path string, value any) (exp.Expression, error) {
	if value == nil {
		return nullExpression(path), nil
	}
	encoded := encodeValue(value)
	direct, err := marshal(nest(path, encoded))
	if err != nil {
		return nil, err
	}
	switch encoded.(type) {
	case map[string]any, []any:
		return goqu.L("doc @> ?::jsonb", direct), nil
	}
	member, err := marshal(nest(path, []any{encoded}))
	if err != nil {
		return nil, err
	}
	return goqu.Or(
		goqu.L("doc @> ?::jsonb", direct),
		goqu.L("doc @> ?::jsonb", member),
	), nil
}

func nullExpression(path string) exp.Expression {
	p := textArray(path)
	return goqu.L("(doc #> ?::text::text[] IS NULL OR jsonb_typeof(doc #> ?::text::text[]) = 'null')", p, p)
}

func compareExpression(path, op string, operand any) (exp.Expression, error) {
	p := textArray(path)
	if n, ok := numeric(operand); ok {
		return goqu.L(
			"(jsonb_typeof(doc #> ?::text::text[]) = 'number' AND (doc #>> ?::text::text[])::numeric "+op+" ?)",
			p, p, n,
		), nil
	}
	switch v := encodeValue(operand).(type) {
	case string:
		return goqu.L("(jsonb_typeof(doc #> ?::text::text[]) = 'string' AND doc #>> ?::text::text[] "+op+" ?)", p, p, v), nil
	case bool:
		return goqu.L("(jsonb_typeof(doc #> ?::text::text[]) = 'boolean' AND (doc #>> ?::text::text[])::boolean "+op+" ?)", p, p, v), nil
	}
	return nil, fmt.Errorf("postgres driver: cannot compare %s with %T", path, operand)
}

func regexExpression(path, pattern, options string) exp.Expression {
	op := "~"
	if strings.Contains(options, "i") {
		op = "~*"
	}
	p := textArray(path)
	return goqu.L("(jsonb_typeof(doc #> ?::text::text[]) = 'string' AND doc #>> ?::text::text[] "+op+" ?)", p, p, pattern)
}

// textArray renders a dotted path as a PostgreSQL text[] literal.
func textArray(path string) string {
	segments := strings.Split(path, ".")
	quoted := make([]string, len(segments))
	for i, segment := range segments {
		segment = strings.ReplaceAll(segment, `\`, `\\`)
		segment = strings.ReplaceAll(segment, `"`, `\"`)
		quoted[i] = `"` + segment + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// nest wraps value in objects following the dotted path.
func nest(path string, value any) map[string]any {
	segments := strings.Split(path, ".")
	out := map[string]any{segments[len(segments)-1]: value}
	for i := len(segments) - 2; i >= 0; i-- {
		out = map[string]any{segments[i]: out}
	}
	return out
}

func operatorDocument(v any) (bson.M, bool) {
	doc, ok := asDocument(v)
	if !ok || len(doc) == 0 {
		return nil, false
	}
	for key := range doc {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return doc, true
}

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

func documentList(v any) []bson.M {
	var out []bson.M
	switch s := v.(type) {
	case []bson.M:
		return s
	case []map[string]any:
		for _, m := range s {
			out = append(out, bson.M(m))
		}
		return out
	}
	for _, item := range valueList(v) {
		if doc, ok := asDocument(item); ok {
			out = append(out, doc)
		}
	}
	return out
}

func valueList(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case bson.A:
		return []any(s)
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	}
	if encoded, ok := encodeValue(v).([]any); ok {
		return encoded
	}
	return []any{v}
}

func sortedKeys(doc bson.M) []string {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
