// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Condition, the predicate tree rendered into store filter documents.
package core

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Condition represents a single clause in a query filter.
//
// A condition can target a specific field (Field) with a given operator
// (Eq, Gt, Like, In, etc.) and a comparison value. Conditions can also
// be nested using Children, enabling composition of complex logical
// expressions with AND, OR, and NOT.
//
// Example:
//
//	cond := core.Cond("age").Gt(18).
//		And(core.Cond("status").Eq("active"))
//
// The above renders to:
//
//	{"$and": [{"age": {"$gt": 18}}, {"status": "active"}]}
type Condition struct {
	Field    string       // Logical (or storage) field name this condition applies to
	Operator *Operator    // The comparison operator (Eq, Gt, Like, etc.)
	Value    any          // The comparison value
	Children []*Condition // Nested conditions (for AND, OR, NOT expressions)
}

// Cond starts a leaf condition on the named field.
func Cond(name string) *Condition {
	return &Condition{Field: name}
}

// And combines this condition with additional conditions using the logical AND operator.
func (c *Condition) And(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpAnd,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Or combines this condition with additional conditions using the logical OR operator.
func (c *Condition) Or(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpOr,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Not negates this condition using the logical NOT operator.
func (c *Condition) Not() *Condition {
	return &Condition{
		Operator: &OpNot,
		Children: []*Condition{c},
	}
}

func (c *Condition) set(op Operator, v any) *Condition {
	c.Operator = &op
	c.Value = v
	return c
}

// Nil matches documents where the field is null or missing.
func (c *Condition) Nil() *Condition { return c.set(opNil, nil) }

// NotNil matches documents where the field holds a value.
func (c *Condition) NotNil() *Condition { return c.set(opNotNil, nil) }

// Eq sets this condition to check for equality.
func (c *Condition) Eq(v any) *Condition { return c.set(opEq, v) }

// Ne sets this condition to check for inequality.
func (c *Condition) Ne(v any) *Condition { return c.set(opNe, v) }

// Gt sets this condition to check for "greater than".
func (c *Condition) Gt(v any) *Condition { return c.set(opGt, v) }

// Gte sets this condition to check for "greater than or equal".
func (c *Condition) Gte(v any) *Condition { return c.set(opGte, v) }

// Lt sets this condition to check for "less than".
func (c *Condition) Lt(v any) *Condition { return c.set(opLt, v) }

// Lte sets this condition to check for "less than or equal".
func (c *Condition) Lte(v any) *Condition { return c.set(opLte, v) }

// Like performs a case-sensitive pattern match where % matches any
// sequence and _ any single character. The pattern is not anchored.
func (c *Condition) Like(pattern string) *Condition { return c.set(opLike, pattern) }

// ILike is the case-insensitive variant of Like.
func (c *Condition) ILike(pattern string) *Condition { return c.set(opILike, pattern) }

// Regex matches the field against a raw regular expression.
func (c *Condition) Regex(v any) *Condition { return c.set(opRegex, v) }

// In checks whether the field value is contained in the provided list.
func (c *Condition) In(values ...any) *Condition { return c.set(opIn, values) }

// NotIn checks whether the field value is absent from the provided list.
func (c *Condition) NotIn(values ...any) *Condition { return c.set(opNotIn, values) }

// Between matches lower <= field <= upper.
func (c *Condition) Between(lower, upper any) *Condition {
	return c.set(opBetween, []any{lower, upper})
}

// Exists matches documents where the field is present.
func (c *Condition) Exists() *Condition { return c.set(opExists, true) }

// NotExists matches documents where the field is absent.
func (c *Condition) NotExists() *Condition { return c.set(opNotExists, false) }

// Document renders the condition tree into a store filter document.
func (c *Condition) Document() bson.M {
	if c == nil || c.Operator == nil {
		return bson.M{}
	}
	if c.Operator.IsLogical() {
		children := make([]bson.M, 0, len(c.Children))
		for _, child := range c.Children {
			children = append(children, child.Document())
		}
		switch *c.Operator {
		case opAnd:
			return bson.M{"$and": children}
		case opOr:
			return bson.M{"$or": children}
		default:
			if len(c.Children) == 1 && !c.Children[0].isLogical() {
				return c.Children[0].negated()
			}
			return bson.M{"$nor": children}
		}
	}
	return bson.M{c.Field: c.fieldValue()}
}

func (c *Condition) isLogical() bool {
	return c.Operator != nil && c.Operator.IsLogical()
}

// fieldValue renders the value side of a leaf: either a plain value for
// equality or an operator document.
func (c *Condition) fieldValue() any {
	switch *c.Operator {
	case opEq:
		return c.Value
	case opNil:
		return nil
	case opNotNil:
		return bson.M{"$ne": nil}
	case opNe:
		return bson.M{"$ne": c.Value}
	case opGt:
		return bson.M{"$gt": c.Value}
	case opGte:
		return bson.M{"$gte": c.Value}
	case opLt:
		return bson.M{"$lt": c.Value}
	case opLte:
		return bson.M{"$lte": c.Value}
	case opIn:
		return bson.M{"$in": toSlice(c.Value)}
	case opNotIn:
		return bson.M{"$nin": toSlice(c.Value)}
	case opBetween:
		bounds := toSlice(c.Value)
		if len(bounds) != 2 {
			panic(fmt.Sprintf("core: Between on %q needs exactly two bounds", c.Field))
		}
		return bson.M{"$gte": bounds[0], "$lte": bounds[1]}
	case opExists:
		return bson.M{"$exists": true}
	case opNotExists:
		return bson.M{"$exists": false}
	case opLike:
		return primitive.Regex{Pattern: likePattern(fmt.Sprint(c.Value))}
	case opILike:
		return primitive.Regex{Pattern: likePattern(fmt.Sprint(c.Value)), Options: "i"}
	case opRegex:
		if re, ok := c.Value.(primitive.Regex); ok {
			return re
		}
		return primitive.Regex{Pattern: fmt.Sprint(c.Value)}
	}
	return c.Value
}

// negated renders NOT(leaf) as a single field document.
func (c *Condition) negated() bson.M {
	var value any
	switch *c.Operator {
	case opEq:
		value = bson.M{"$ne": c.Value}
	case opNe:
		value = c.Value
	case opNil:
		value = bson.M{"$ne": nil}
	case opNotNil:
		value = nil
	case opIn:
		value = bson.M{"$nin": toSlice(c.Value)}
	case opNotIn:
		value = bson.M{"$in": toSlice(c.Value)}
	case opExists:
		value = bson.M{"$exists": false}
	case opNotExists:
		value = bson.M{"$exists": true}
	default:
		value = bson.M{"$not": c.fieldValue()}
	}
	return bson.M{c.Field: value}
}

// operatorDocument converts a rendered field value into operator form so
// that several clauses on the same field can be merged into one document.
func operatorDocument(value any) bson.M {
	switch v := value.(type) {
	case bson.M:
		if isOperatorDocument(v) {
			out := make(bson.M, len(v))
			for k, x := range v {
				out[k] = x
			}
			return out
		}
	case primitive.Regex:
		doc := bson.M{"$regex": v.Pattern}
		if v.Options != "" {
			doc["$options"] = v.Options
		}
		return doc
	}
	return bson.M{"$eq": value}
}

// isOperatorDocument reports whether every key of doc is a $-operator.
func isOperatorDocument(doc bson.M) bool {
	if len(doc) == 0 {
		return false
	}
	for k := range doc {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}
