// Package core provides the fundamental building blocks of the golem ODM.
// This file implements in-process evaluation of filter documents, shared by
// the embedded document query surface and the in-memory driver.
package core

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/cases"
)

// Match reports whether doc satisfies filter.
//
// Supported: $and, $or, $nor, field equality (with array membership),
// $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists, $regex/$options,
// regex values and $not. Unknown operators never match.
func Match(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			for _, sub := range toDocuments(cond) {
				if !Match(doc, sub) {
					return false
				}
			}
		case "$or":
			subs := toDocuments(cond)
			matched := len(subs) == 0
			for _, sub := range subs {
				if Match(doc, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "$nor":
			for _, sub := range toDocuments(cond) {
				if Match(doc, sub) {
					return false
				}
			}
		default:
			value, present := lookupPath(doc, key)
			if !matchField(value, present, cond) {
				return false
			}
		}
	}
	return true
}

func matchField(value any, present bool, cond any) bool {
	if re, ok := cond.(primitive.Regex); ok {
		return matchRegex(value, re.Pattern, re.Options)
	}
	ops, ok := asDocument(cond)
	if !ok || !isOperatorDocument(ops) {
		return matchEqual(value, present, cond)
	}
	for op, operand := range ops {
		if !matchOperator(value, present, op, operand, ops) {
			return false
		}
	}
	return true
}

func matchOperator(value any, present bool, op string, operand any, ops bson.M) bool {
	switch op {
	case "$eq":
		return matchEqual(value, present, operand)
	case "$ne":
		return !matchEqual(value, present, operand)
	case "$gt":
		return matchCompare(value, operand, func(c int) bool { return c > 0 })
	case "$gte":
		return matchCompare(value, operand, func(c int) bool { return c >= 0 })
	case "$lt":
		return matchCompare(value, operand, func(c int) bool { return c < 0 })
	case "$lte":
		return matchCompare(value, operand, func(c int) bool { return c <= 0 })
	case "$in":
		for _, candidate := range toSlice(operand) {
			if matchEqual(value, present, candidate) {
				return true
			}
		}
		return false
	case "$nin":
		for _, candidate := range toSlice(operand) {
			if matchEqual(value, present, candidate) {
				return false
			}
		}
		return true
	case "$exists":
		want, _ := operand.(bool)
		return present == want
	case "$regex":
		options, _ := ops["$options"].(string)
		pattern := fmt.Sprint(operand)
		if re, ok := operand.(primitive.Regex); ok {
			pattern, options = re.Pattern, re.Options+options
		}
		return matchRegex(value, pattern, options)
	case "$options":
		return true
	case "$not":
		return !matchField(value, present, operand)
	}
	return false
}

func matchEqual(value any, present bool, operand any) bool {
	if operand == nil {
		return !present || isNil(value)
	}
	if !present {
		return false
	}
	if items, ok := value.([]any); ok {
		if _, operandIsList := operand.([]any); !operandIsList {
			for _, item := range items {
				if valuesEqual(item, operand) {
					return true
				}
			}
			return false
		}
	}
	return valuesEqual(value, operand)
}

func matchCompare(value, operand any, accept func(int) bool) bool {
	if items, ok := value.([]any); ok {
		for _, item := range items {
			if c, ok := compareValues(item, operand); ok && accept(c) {
				return true
			}
		}
		return false
	}
	c, ok := compareValues(value, operand)
	return ok && accept(c)
}

func matchRegex(value any, pattern, options string) bool {
	if strings.Contains(options, "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	if items, ok := value.([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok && re.MatchString(s) {
				return true
			}
		}
		return false
	}
	s, ok := value.(string)
	return ok && re.MatchString(s)
}

// valuesEqual compares two values after numeric, time and id normalization.
func valuesEqual(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

// compareValues orders two scalars of compatible kinds. The second result
// is false when the values cannot be ordered against each other.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
		if y, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(x, y.Hex()), true
		}
	case primitive.ObjectID:
		switch y := b.(type) {
		case primitive.ObjectID:
			return strings.Compare(x.Hex(), y.Hex()), true
		case string:
			return strings.Compare(x.Hex(), y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

// compareForSort orders any two values, placing nil and missing values first
// and falling back to their string forms for mixed types.
func compareForSort(a, b any) int {
	switch {
	case isNil(a) && isNil(b):
		return 0
	case isNil(a):
		return -1
	case isNil(b):
		return 1
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// foldString case-folds s for case-insensitive comparisons.
func foldString(s string) string {
	return cases.Fold().String(s)
}
