// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Conditions, the fluent AND/OR predicate accumulator
// shared by Query and relationship constraints.
package core

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Conditions accumulates predicates into a filter document.
//
// AND clauses are kept in insertion order. Repeated clauses on the same
// field merge their operators; a clause whose operator is already set on
// that field is kept as its own entry and rendered under $and. OR
// alternatives are kept in a separate list. See Filter for how both are
// combined.
type Conditions struct {
	and []fieldClause
	or  []*Condition
}

type fieldClause struct {
	field string
	value any
}

// Where adds an AND clause.
//
// The two-argument form is equality, the three-argument form takes an
// operator symbol first:
//
//	q.Where("status", "active")
//	q.Where("age", ">=", 18)
func (c *Conditions) Where(field string, opOrValue any, value ...any) *Conditions {
	c.addAnd(buildCondition(field, opOrValue, value))
	return c
}

// OrWhere adds an OR alternative.
func (c *Conditions) OrWhere(field string, opOrValue any, value ...any) *Conditions {
	c.or = append(c.or, buildCondition(field, opOrValue, value))
	return c
}

// WhereNot adds the negation of the given clause.
func (c *Conditions) WhereNot(field string, opOrValue any, value ...any) *Conditions {
	c.addAnd(buildCondition(field, opOrValue, value).Not())
	return c
}

// WhereIn matches values contained in list.
func (c *Conditions) WhereIn(field string, list ...any) *Conditions {
	c.addAnd(Cond(field).In(flatten(list)...))
	return c
}

// WhereNotIn matches values absent from list.
func (c *Conditions) WhereNotIn(field string, list ...any) *Conditions {
	c.addAnd(Cond(field).NotIn(flatten(list)...))
	return c
}

// WhereNull matches null or missing values.
func (c *Conditions) WhereNull(field string) *Conditions {
	c.addAnd(Cond(field).Nil())
	return c
}

// WhereNotNull matches present, non-null values.
func (c *Conditions) WhereNotNull(field string) *Conditions {
	c.addAnd(Cond(field).NotNil())
	return c
}

// WhereBetween matches lower <= field <= upper.
func (c *Conditions) WhereBetween(field string, lower, upper any) *Conditions {
	c.addAnd(Cond(field).Between(lower, upper))
	return c
}

// WhereExists matches documents where field is present.
func (c *Conditions) WhereExists(field string) *Conditions {
	c.addAnd(Cond(field).Exists())
	return c
}

// WhereNotExists matches documents where field is absent.
func (c *Conditions) WhereNotExists(field string) *Conditions {
	c.addAnd(Cond(field).NotExists())
	return c
}

// WhereLike adds a case-sensitive pattern clause.
func (c *Conditions) WhereLike(field, pattern string) *Conditions {
	c.addAnd(Cond(field).Like(pattern))
	return c
}

// WhereILike adds a case-insensitive pattern clause.
func (c *Conditions) WhereILike(field, pattern string) *Conditions {
	c.addAnd(Cond(field).ILike(pattern))
	return c
}

// WhereCondition adds an arbitrary condition tree as an AND clause.
func (c *Conditions) WhereCondition(cond *Condition) *Conditions {
	c.addAnd(cond)
	return c
}

// Empty reports whether no clause has been added.
func (c *Conditions) Empty() bool {
	return len(c.and) == 0 && len(c.or) == 0
}

// Filter finalizes the accumulated clauses.
//
// Without OR alternatives the result is the flat AND document. With OR
// alternatives only the most recently added AND field joins the
// disjunction; all earlier AND fields stay a top-level conjunction with it:
//
//	Where(a).Where(b).OrWhere(c)  =>  {$and: [{a}, {$or: [{b}, {c}]}]}
func (c *Conditions) Filter() bson.M {
	if len(c.or) == 0 {
		return c.andDocument(c.and)
	}

	rest := c.and
	alternatives := make([]bson.M, 0, len(c.or)+1)
	if len(rest) > 0 {
		last := rest[len(rest)-1]
		rest = rest[:len(rest)-1]
		alternatives = append(alternatives, c.andDocument([]fieldClause{last}))
	}
	for _, cond := range c.or {
		alternatives = append(alternatives, cond.Document())
	}
	disjunction := bson.M{"$or": alternatives}

	if len(rest) == 0 {
		return disjunction
	}
	return bson.M{"$and": []bson.M{c.andDocument(rest), disjunction}}
}

// Clone returns an independent copy of the accumulated clauses.
func (c *Conditions) Clone() Conditions {
	return Conditions{
		and: append([]fieldClause(nil), c.and...),
		or:  append([]*Condition(nil), c.or...),
	}
}

func (c *Conditions) addAnd(cond *Condition) {
	for key, value := range cond.Document() {
		c.mergeAnd(key, value)
	}
}

func (c *Conditions) mergeAnd(field string, value any) {
	incoming := operatorDocument(value)
	for i := range c.and {
		if c.and[i].field != field {
			continue
		}
		if strings.HasPrefix(field, "$") {
			// logical keys ($and, $or, $nor) accumulate their children
			children := append([]bson.M(nil), toDocuments(c.and[i].value)...)
			c.and[i].value = append(children, toDocuments(value)...)
			return
		}
		existing := operatorDocument(c.and[i].value)
		if overlaps(existing, incoming) {
			continue
		}
		for k, v := range incoming {
			existing[k] = v
		}
		c.and[i].value = existing
		return
	}
	c.and = append(c.and, fieldClause{field: field, value: value})
}

func overlaps(a, b bson.M) bool {
	for k := range b {
		if _, ok := a[k]; ok {
			return true
		}
	}
	return false
}

// andDocument renders clauses as one document. A field repeated because its
// operators collided is moved under $and.
func (c *Conditions) andDocument(clauses []fieldClause) bson.M {
	doc := make(bson.M, len(clauses))
	var repeated []bson.M
	for _, clause := range clauses {
		if _, taken := doc[clause.field]; taken {
			repeated = append(repeated, bson.M{clause.field: clause.value})
			continue
		}
		doc[clause.field] = clause.value
	}
	if len(repeated) > 0 {
		children := append([]bson.M(nil), toDocuments(doc["$and"])...)
		doc["$and"] = append(children, repeated...)
	}
	return doc
}

// buildCondition interprets the variadic Where arguments.
func buildCondition(field string, opOrValue any, value []any) *Condition {
	if len(value) == 0 {
		return Cond(field).Eq(opOrValue)
	}
	symbol, ok := opOrValue.(string)
	if !ok {
		panic(fmt.Sprintf("core: Where(%q): operator must be a string, got %T", field, opOrValue))
	}
	op, ok := ParseOperator(symbol)
	if !ok {
		panic(fmt.Sprintf("core: Where(%q): unknown operator %q", field, symbol))
	}
	cond := Cond(field)
	switch op {
	case opIn:
		return cond.In(flatten(value)...)
	case opNotIn:
		return cond.NotIn(flatten(value)...)
	case opBetween:
		bounds := flatten(value)
		if len(bounds) != 2 {
			panic(fmt.Sprintf("core: Where(%q, between) needs two bounds", field))
		}
		return cond.Between(bounds[0], bounds[1])
	case opLike:
		return cond.Like(fmt.Sprint(value[0]))
	case opILike:
		return cond.ILike(fmt.Sprint(value[0]))
	case opExists:
		if b, ok := value[0].(bool); ok && !b {
			return cond.NotExists()
		}
		return cond.Exists()
	case opNotExists:
		return cond.NotExists()
	case opEq:
		if value[0] == nil {
			return cond.Nil()
		}
	case opNe:
		if value[0] == nil {
			return cond.NotNil()
		}
	}
	return cond.set(op, value[0])
}
