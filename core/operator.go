// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the set of supported operators used in query conditions.
package core

import "strings"

// Operator represents a comparison or logical operator used in a query condition.
//
// Operators can be logical (AND, OR, NOT) or value-based (EQ, GT, IN, etc.).
type Operator string

const (
	// Logical operators
	opAnd Operator = "AND"
	opOr  Operator = "OR"
	opNot Operator = "NOT"

	// Value-based operators
	opNil       Operator = "NIL"        // field is null or missing
	opNotNil    Operator = "NOT_NIL"    // field holds a non-null value
	opEq        Operator = "EQ"         // field = value
	opNe        Operator = "NE"         // field != value
	opGt        Operator = "GT"         // field > value
	opGte       Operator = "GTE"        // field >= value
	opLt        Operator = "LT"         // field < value
	opLte       Operator = "LTE"        // field <= value
	opLike      Operator = "LIKE"       // case-sensitive pattern, % and _ wildcards
	opILike     Operator = "ILIKE"      // case-insensitive pattern, % and _ wildcards
	opRegex     Operator = "REGEX"      // raw regular expression
	opIn        Operator = "IN"         // field IN (value list)
	opNotIn     Operator = "NOT_IN"     // field NOT IN (value list)
	opBetween   Operator = "BETWEEN"    // lower <= field <= upper
	opExists    Operator = "EXISTS"     // field is present
	opNotExists Operator = "NOT_EXISTS" // field is absent
)

// Public operator aliases exposed to users of the ODM.
//
// Example:
//
//	cond := &core.Condition{Field: "age", Operator: &core.OpGt, Value: 18}
var (
	OpAnd       = opAnd
	OpOr        = opOr
	OpNot       = opNot
	OpNil       = opNil
	OpNotNil    = opNotNil
	OpEq        = opEq
	OpNe        = opNe
	OpGt        = opGt
	OpGte       = opGte
	OpLt        = opLt
	OpLte       = opLte
	OpLike      = opLike
	OpILike     = opILike
	OpRegex     = opRegex
	OpIn        = opIn
	OpNotIn     = opNotIn
	OpBetween   = opBetween
	OpExists    = opExists
	OpNotExists = opNotExists
)

// operatorSymbols maps the textual operators accepted by Where to Operators.
var operatorSymbols = map[string]Operator{
	"=":          opEq,
	"==":         opEq,
	"eq":         opEq,
	"!=":         opNe,
	"<>":         opNe,
	"ne":         opNe,
	">":          opGt,
	"gt":         opGt,
	">=":         opGte,
	"gte":        opGte,
	"<":          opLt,
	"lt":         opLt,
	"<=":         opLte,
	"lte":        opLte,
	"in":         opIn,
	"not in":     opNotIn,
	"nin":        opNotIn,
	"like":       opLike,
	"ilike":      opILike,
	"regex":      opRegex,
	"exists":     opExists,
	"not exists": opNotExists,
	"between":    opBetween,
}

// ParseOperator resolves a textual operator such as ">=" or "not in".
func ParseOperator(symbol string) (Operator, bool) {
	op, ok := operatorSymbols[strings.ToLower(strings.TrimSpace(symbol))]
	return op, ok
}

// IsLogical reports whether the operator combines child conditions.
func (o Operator) IsLogical() bool {
	return o == opAnd || o == opOr || o == opNot
}
