// Package core provides the fundamental building blocks of the golem ODM.
// This file evaluates sorts, projections and aggregation pipelines over
// documents held in memory, for drivers without a native pipeline.
package core

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// SortDocuments orders documents in place by the given rules. Missing and
// nil values sort first. The sort is stable.
func SortDocuments(docs []bson.M, rules []Sort) {
	if len(rules) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, rule := range rules {
			a, _ := lookupPath(docs[i], rule.Field)
			b, _ := lookupPath(docs[j], rule.Field)
			c := compareForSort(a, b)
			if c == 0 {
				continue
			}
			if rule.Order < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// ProjectDocument keeps only the listed fields of doc, plus _id.
// Dotted fields keep the nested value under the same path.
func ProjectDocument(doc bson.M, fields []string) bson.M {
	if len(fields) == 0 {
		return doc
	}
	out := bson.M{}
	if id, ok := doc[DefaultPrimaryKey]; ok {
		out[DefaultPrimaryKey] = id
	}
	for _, field := range fields {
		value, ok := lookupPath(doc, field)
		if !ok {
			continue
		}
		setPath(out, field, value)
	}
	return out
}

// LookupPath reads a dotted path from a document.
func LookupPath(doc bson.M, path string) (any, bool) {
	return lookupPath(doc, path)
}

// KeyString returns the canonical string form used to compare keys of
// different concrete types.
func KeyString(v any) string {
	return keyString(v)
}

func setPath(doc bson.M, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asDocument(current[segment])
		if !ok {
			next = bson.M{}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// EvaluatePipeline runs an aggregation pipeline over docs.
//
// Supported stages: $match, $group (with $first and $sum accumulators),
// $replaceRoot (field reference or $mergeObjects), $sort, $skip, $limit
// and $project (inclusion only).
func EvaluatePipeline(docs []bson.M, pipeline []bson.M) ([]bson.M, error) {
	current := docs
	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("golem: pipeline stage must have exactly one key, got %d", len(stage))
		}
		for name, spec := range stage {
			var err error
			current, err = evaluateStage(current, name, spec)
			if err != nil {
				return nil, err
			}
		}
	}
	return current, nil
}

func evaluateStage(docs []bson.M, name string, spec any) ([]bson.M, error) {
	switch name {
	case "$match":
		filter, _ := asDocument(spec)
		out := make([]bson.M, 0, len(docs))
		for _, doc := range docs {
			if Match(doc, filter) {
				out = append(out, doc)
			}
		}
		return out, nil
	case "$group":
		group, ok := asDocument(spec)
		if !ok {
			return nil, fmt.Errorf("golem: $group expects a document, got %T", spec)
		}
		return evaluateGroup(docs, group)
	case "$replaceRoot":
		options, _ := asDocument(spec)
		out := make([]bson.M, 0, len(docs))
		for _, doc := range docs {
			root, err := evaluateExpression(doc, options["newRoot"])
			if err != nil {
				return nil, err
			}
			newRoot, ok := asDocument(root)
			if !ok {
				return nil, fmt.Errorf("golem: $replaceRoot newRoot must resolve to a document, got %T", root)
			}
			out = append(out, newRoot)
		}
		return out, nil
	case "$sort":
		out := append([]bson.M(nil), docs...)
		SortDocuments(out, sortRules(spec))
		return out, nil
	case "$skip":
		n, _ := toFloat(spec)
		if int(n) >= len(docs) {
			return []bson.M{}, nil
		}
		return docs[int(n):], nil
	case "$limit":
		n, _ := toFloat(spec)
		if int(n) < len(docs) {
			return docs[:int(n)], nil
		}
		return docs, nil
	case "$project":
		projection, _ := asDocument(spec)
		fields := make([]string, 0, len(projection))
		for field := range projection {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		out := make([]bson.M, 0, len(docs))
		for _, doc := range docs {
			out = append(out, ProjectDocument(doc, fields))
		}
		return out, nil
	}
	return nil, fmt.Errorf("golem: unsupported pipeline stage %s", name)
}

func sortRules(spec any) []Sort {
	var rules []Sort
	switch s := spec.(type) {
	case bson.D:
		for _, e := range s {
			n, _ := toFloat(e.Value)
			rules = append(rules, Sort{Field: e.Key, Order: int(n)})
		}
	default:
		doc, _ := asDocument(spec)
		keys := make([]string, 0, len(doc))
		for key := range doc {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			n, _ := toFloat(doc[key])
			rules = append(rules, Sort{Field: key, Order: int(n)})
		}
	}
	return rules
}

func evaluateGroup(docs []bson.M, group bson.M) ([]bson.M, error) {
	var order []string
	groups := map[string]bson.M{}
	for _, doc := range docs {
		id, err := evaluateExpression(doc, group["_id"])
		if err != nil {
			return nil, err
		}
		key := groupKey(id)
		out, seen := groups[key]
		if !seen {
			out = bson.M{"_id": id}
			groups[key] = out
			order = append(order, key)
		}
		for field, accumulator := range group {
			if field == "_id" {
				continue
			}
			if err := accumulate(out, field, accumulator, doc, seen); err != nil {
				return nil, err
			}
		}
	}
	out := make([]bson.M, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out, nil
}

func groupKey(id any) string {
	if doc, ok := asDocument(id); ok {
		keys := make([]string, 0, len(doc))
		for key := range doc {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, key := range keys {
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(keyString(doc[key]))
			b.WriteByte(';')
		}
		return b.String()
	}
	return keyString(id)
}

func accumulate(out bson.M, field string, accumulator any, doc bson.M, seen bool) error {
	spec, ok := asDocument(accumulator)
	if !ok || len(spec) != 1 {
		return fmt.Errorf("golem: invalid accumulator for %s", field)
	}
	for op, operand := range spec {
		switch op {
		case "$first":
			if seen {
				return nil
			}
			value, err := evaluateExpression(doc, operand)
			if err != nil {
				return err
			}
			out[field] = value
		case "$sum":
			value, err := evaluateExpression(doc, operand)
			if err != nil {
				return err
			}
			n, _ := toFloat(value)
			total, _ := toFloat(out[field])
			if float64(int64(total+n)) == total+n {
				out[field] = int64(total + n)
			} else {
				out[field] = total + n
			}
		default:
			return fmt.Errorf("golem: unsupported accumulator %s", op)
		}
	}
	return nil
}

// evaluateExpression resolves "$field" references, "$$ROOT", documents of
// expressions and $mergeObjects against doc. Other values are literals.
func evaluateExpression(doc bson.M, expr any) (any, error) {
	switch e := expr.(type) {
	case string:
		switch {
		case e == "$$ROOT":
			return doc, nil
		case strings.HasPrefix(e, "$"):
			value, _ := lookupPath(doc, e[1:])
			return value, nil
		}
		return e, nil
	}
	spec, ok := asDocument(expr)
	if !ok {
		return expr, nil
	}
	if operands, ok := spec["$mergeObjects"]; ok {
		merged := bson.M{}
		for _, operand := range toSlice(operands) {
			value, err := evaluateExpression(doc, operand)
			if err != nil {
				return nil, err
			}
			part, _ := asDocument(value)
			for k, v := range part {
				merged[k] = v
			}
		}
		return merged, nil
	}
	out := bson.M{}
	for k, v := range spec {
		value, err := evaluateExpression(doc, v)
		if err != nil {
			return nil, err
		}
		out[k] = value
	}
	return out, nil
}
