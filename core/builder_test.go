package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/leandroluk/golem-odm/core"
)

func TestConditionsFilter(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *core.Conditions)
		want  bson.M
	}{
		{
			name:  "empty",
			build: func(c *core.Conditions) {},
			want:  bson.M{},
		},
		{
			name: "equality and operator",
			build: func(c *core.Conditions) {
				c.Where("status", "active").Where("age", ">=", 18)
			},
			want: bson.M{"status": "active", "age": bson.M{"$gte": 18}},
		},
		{
			name: "or joins the last and clause",
			build: func(c *core.Conditions) {
				c.Where("status", "active").Where("age", ">=", 18).OrWhere("age", "<=", 10)
			},
			want: bson.M{"$and": []bson.M{
				{"status": "active"},
				{"$or": []bson.M{
					{"age": bson.M{"$gte": 18}},
					{"age": bson.M{"$lte": 10}},
				}},
			}},
		},
		{
			name: "or without and clauses",
			build: func(c *core.Conditions) {
				c.OrWhere("role", "admin").OrWhere("role", "owner")
			},
			want: bson.M{"$or": []bson.M{{"role": "admin"}, {"role": "owner"}}},
		},
		{
			name: "single and clause with or",
			build: func(c *core.Conditions) {
				c.Where("role", "admin").OrWhere("role", "owner")
			},
			want: bson.M{"$or": []bson.M{{"role": "admin"}, {"role": "owner"}}},
		},
		{
			name: "same field merges operators",
			build: func(c *core.Conditions) {
				c.Where("age", ">=", 18).Where("age", "<", 65)
			},
			want: bson.M{"age": bson.M{"$gte": 18, "$lt": 65}},
		},
		{
			name: "equality merges as $eq",
			build: func(c *core.Conditions) {
				c.Where("age", 30).Where("age", ">", 10)
			},
			want: bson.M{"age": bson.M{"$eq": 30, "$gt": 10}},
		},
		{
			name: "repeated negation keeps both clauses",
			build: func(c *core.Conditions) {
				c.WhereNot("status", "banned").WhereNot("status", "deleted")
			},
			want: bson.M{
				"status": bson.M{"$ne": "banned"},
				"$and":   []bson.M{{"status": bson.M{"$ne": "deleted"}}},
			},
		},
		{
			name: "repeated in and not equal on one field",
			build: func(c *core.Conditions) {
				c.WhereIn("role", "admin", "owner").
					Where("role", "!=", "owner").
					WhereIn("role", "owner", "guest").
					Where("role", "!=", "guest")
			},
			want: bson.M{
				"role": bson.M{"$in": []any{"admin", "owner"}, "$ne": "owner"},
				"$and": []bson.M{
					{"role": bson.M{"$in": []any{"owner", "guest"}, "$ne": "guest"}},
				},
			},
		},
		{
			name: "repeated equality stays a conjunction",
			build: func(c *core.Conditions) {
				c.Where("age", 30).Where("age", 31).Where("age", ">", 10)
			},
			want: bson.M{
				"age":  bson.M{"$eq": 30, "$gt": 10},
				"$and": []bson.M{{"age": 31}},
			},
		},
		{
			name: "repeated clause joins an explicit and group",
			build: func(c *core.Conditions) {
				c.WhereCondition(core.Cond("a").Eq(1).And(core.Cond("b").Eq(2))).
					WhereNot("status", "banned").
					WhereNot("status", "deleted")
			},
			want: bson.M{
				"$and": []bson.M{
					{"a": 1}, {"b": 2},
					{"status": bson.M{"$ne": "deleted"}},
				},
				"status": bson.M{"$ne": "banned"},
			},
		},
		{
			name: "or joins the repeated clause",
			build: func(c *core.Conditions) {
				c.WhereNot("status", "banned").WhereNot("status", "deleted").OrWhere("role", "admin")
			},
			want: bson.M{"$and": []bson.M{
				{"status": bson.M{"$ne": "banned"}},
				{"$or": []bson.M{
					{"status": bson.M{"$ne": "deleted"}},
					{"role": "admin"},
				}},
			}},
		},
		{
			name: "in flattens a slice argument",
			build: func(c *core.Conditions) {
				c.WhereIn("role", []string{"admin", "owner"})
			},
			want: bson.M{"role": bson.M{"$in": []any{"admin", "owner"}}},
		},
		{
			name: "not in with variadic values",
			build: func(c *core.Conditions) {
				c.WhereNotIn("role", "guest", "banned")
			},
			want: bson.M{"role": bson.M{"$nin": []any{"guest", "banned"}}},
		},
		{
			name:  "null",
			build: func(c *core.Conditions) { c.WhereNull("deletedAt") },
			want:  bson.M{"deletedAt": nil},
		},
		{
			name:  "not null",
			build: func(c *core.Conditions) { c.WhereNotNull("deletedAt") },
			want:  bson.M{"deletedAt": bson.M{"$ne": nil}},
		},
		{
			name:  "equality with nil operand",
			build: func(c *core.Conditions) { c.Where("deletedAt", "=", nil) },
			want:  bson.M{"deletedAt": nil},
		},
		{
			name:  "negated equality",
			build: func(c *core.Conditions) { c.WhereNot("status", "banned") },
			want:  bson.M{"status": bson.M{"$ne": "banned"}},
		},
		{
			name:  "between",
			build: func(c *core.Conditions) { c.Where("age", "between", 18, 65) },
			want:  bson.M{"age": bson.M{"$gte": 18, "$lte": 65}},
		},
		{
			name:  "like",
			build: func(c *core.Conditions) { c.Where("name", "like", "Jo%n_") },
			want:  bson.M{"name": primitive.Regex{Pattern: "Jo.*n."}},
		},
		{
			name:  "ilike escapes regex metacharacters",
			build: func(c *core.Conditions) { c.WhereILike("email", "%@example.com") },
			want:  bson.M{"email": primitive.Regex{Pattern: `.*@example\.com`, Options: "i"}},
		},
		{
			name:  "exists false",
			build: func(c *core.Conditions) { c.Where("nickname", "exists", false) },
			want:  bson.M{"nickname": bson.M{"$exists": false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c core.Conditions
			tt.build(&c)
			assert.Equal(t, tt.want, c.Filter())
		})
	}
}

func TestConditionsClone(t *testing.T) {
	var c core.Conditions
	c.Where("status", "active")
	clone := c.Clone()
	clone.Where("age", ">", 18)

	assert.Equal(t, bson.M{"status": "active"}, c.Filter())
	assert.Equal(t, bson.M{"status": "active", "age": bson.M{"$gt": 18}}, clone.Filter())
	assert.False(t, c.Empty())
	assert.True(t, (&core.Conditions{}).Empty())
}

func TestConditionsPanicsOnBadOperator(t *testing.T) {
	var c core.Conditions
	assert.Panics(t, func() { c.Where("age", "~~", 18) })
	assert.Panics(t, func() { c.Where("age", 42, 18) })
	assert.Panics(t, func() { c.Where("age", "between", 18) })
}

func TestConditionDocument(t *testing.T) {
	tests := []struct {
		name string
		cond *core.Condition
		want bson.M
	}{
		{
			name: "and",
			cond: core.Cond("age").Gt(18).And(core.Cond("status").Eq("active")),
			want: bson.M{"$and": []bson.M{{"age": bson.M{"$gt": 18}}, {"status": "active"}}},
		},
		{
			name: "or",
			cond: core.Cond("role").Eq("admin").Or(core.Cond("age").Lte(10)),
			want: bson.M{"$or": []bson.M{{"role": "admin"}, {"age": bson.M{"$lte": 10}}}},
		},
		{
			name: "not of a leaf",
			cond: core.Cond("role").In("guest").Not(),
			want: bson.M{"role": bson.M{"$nin": []any{"guest"}}},
		},
		{
			name: "not of a comparison",
			cond: core.Cond("age").Gt(18).Not(),
			want: bson.M{"age": bson.M{"$not": bson.M{"$gt": 18}}},
		},
		{
			name: "not of a group",
			cond: core.Cond("a").Eq(1).Or(core.Cond("b").Eq(2)).Not(),
			want: bson.M{"$nor": []bson.M{{"$or": []bson.M{{"a": 1}, {"b": 2}}}}},
		},
		{
			name: "nil condition",
			cond: nil,
			want: bson.M{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Document())
		})
	}
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		symbol string
		want   core.Operator
		ok     bool
	}{
		{"=", core.OpEq, true},
		{">=", core.OpGte, true},
		{"<>", core.OpNe, true},
		{" NOT IN ", core.OpNotIn, true},
		{"ILike", core.OpILike, true},
		{"between", core.OpBetween, true},
		{"~", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			op, ok := core.ParseOperator(tt.symbol)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, op)
		})
	}
	assert.True(t, core.OpAnd.IsLogical())
	assert.False(t, core.OpEq.IsLogical())
}
