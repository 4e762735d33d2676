package postgres_test

import (
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9/exp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/leandroluk/golem-odm/core"
	"github.com/leandroluk/golem-odm/driver/postgres"
)

func people(t *testing.T) exp.IdentifierExpression {
	t.Helper()
	table, err := postgres.Table("", core.Collection{Name: "people"})
	require.NoError(t, err)
	return table
}

func TestTable(t *testing.T) {
	table, err := postgres.Table("app", core.Collection{Name: "books"})
	require.NoError(t, err)
	sql, _, err := postgres.CountSQL(table, nil)
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "app"."books"`)

	table, err = postgres.Table("app", core.Collection{Database: "library", Name: "books"})
	require.NoError(t, err)
	sql, _, err = postgres.CountSQL(table, nil)
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "library"."books"`)

	_, err = postgres.Table("app", core.Collection{})
	assert.ErrorContains(t, err, "collection name is empty")
}

func TestTextArray(t *testing.T) {
	assert.Equal(t, `{"age"}`, postgres.TextArray("age"))
	assert.Equal(t, `{"meta","channel"}`, postgres.TextArray("meta.channel"))
	assert.Equal(t, `{"a\"b","c\\d"}`, postgres.TextArray(`a"b.c\d`))
}

func TestWhereTranslation(t *testing.T) {
	tests := []struct {
		name      string
		filter    bson.M
		fragments []string
		args      []any
	}{
		{name: "empty", filter: bson.M{}, fragments: []string{"WHERE TRUE"}},
		{
			name:      "scalar equality matches arrays too",
			filter:    bson.M{"name": "Ana"},
			fragments: []string{"doc @> $1::jsonb", "doc @> $2::jsonb", " OR "},
			args:      []any{`{"name":"Ana"}`, `{"name":["Ana"]}`},
		},
		{
			name:      "nested path",
			filter:    bson.M{"meta.channel": "web"},
			fragments: []string{"doc @> $1::jsonb"},
			args:      []any{`{"meta":{"channel":"web"}}`},
		},
		{
			name:      "numeric comparison",
			filter:    bson.M{"age": bson.M{"$gte": 18}},
			fragments: []string{"= 'number'", "::numeric >= $3"},
			args:      []any{`{"age"}`, `{"age"}`, float64(18)},
		},
		{
			name:      "string comparison",
			filter:    bson.M{"name": bson.M{"$lt": "M"}},
			fragments: []string{"= 'string'", "< $3"},
			args:      []any{`{"name"}`, `{"name"}`, "M"},
		},
		{name: "null", filter: bson.M{"deletedAt": nil}, fragments: []string{"IS NULL OR jsonb_typeof"}},
		{name: "empty in", filter: bson.M{"age": bson.M{"$in": []any{}}}, fragments: []string{"FALSE"}},
		{name: "empty nin", filter: bson.M{"age": bson.M{"$nin": []any{}}}, fragments: []string{"TRUE"}},
		{name: "exists", filter: bson.M{"email": bson.M{"$exists": true}}, fragments: []string{"IS NOT NULL"}},
		{
			name:      "case insensitive regex",
			filter:    bson.M{"name": primitive.Regex{Pattern: "^an", Options: "i"}},
			fragments: []string{"~* $3"},
			args:      []any{`{"name"}`, `{"name"}`, "^an"},
		},
		{
			name:      "regex operator",
			filter:    bson.M{"name": bson.M{"$regex": "^An"}},
			fragments: []string{"~ $3"},
		},
		{name: "not equal", filter: bson.M{"status": bson.M{"$ne": "done"}}, fragments: []string{"NOT ("}},
		{
			name:      "logical",
			filter:    bson.M{"$or": []bson.M{{"a": 1}, {"b": 2}}, "$nor": []bson.M{}},
			fragments: []string{"NOT (FALSE)", " OR "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := postgres.CountSQL(people(t), tt.filter)
			require.NoError(t, err)
			assert.Contains(t, sql, `SELECT COUNT(*) FROM "people"`)
			for _, fragment := range tt.fragments {
				assert.Contains(t, sql, fragment)
			}
			if tt.args != nil {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestWhereTranslationErrors(t *testing.T) {
	tests := []struct {
		name    string
		filter  bson.M
		message string
	}{
		{name: "top-level operator", filter: bson.M{"$where": "1"}, message: "unsupported top-level operator $where"},
		{name: "field operator", filter: bson.M{"tags": bson.M{"$size": 2}}, message: "unsupported operator $size on tags"},
		{name: "uncomparable", filter: bson.M{"at": bson.M{"$gt": []int{1}}}, message: "cannot compare at"},
		{name: "nested", filter: bson.M{"$and": []bson.M{{"x": bson.M{"$size": 1}}}}, message: "unsupported operator $size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := postgres.WhereExpression(tt.filter)
			assert.ErrorContains(t, err, tt.message)
		})
	}
}

func TestSelectSQL(t *testing.T) {
	sql, args, err := postgres.SelectSQL(people(t), &core.FindOptions{
		Filter: bson.M{"active": true},
		Sort:   []core.Sort{{Field: "age", Order: -1}, {Field: "name", Order: 1}},
		Limit:  10,
		Skip:   20,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `SELECT "doc" FROM "people"`)
	assert.Contains(t, sql, "DESC NULLS LAST")
	assert.Contains(t, sql, "ASC NULLS FIRST")
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET")
	assert.Contains(t, args, `{"active":true}`)
	assert.Contains(t, args, `{"age"}`)
	assert.Contains(t, args, `{"name"}`)

	sql, _, err = postgres.SelectSQL(people(t), nil)
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.NotContains(t, sql, "ORDER BY")
}

func TestDistinctSQL(t *testing.T) {
	sql, args, err := postgres.DistinctSQL(people(t), "meta.channel", nil)
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT DISTINCT doc #> $1::text::text[]")
	assert.Contains(t, sql, "IS NOT NULL")
	assert.Contains(t, args, `{"meta","channel"}`)
}

func TestInsertSQL(t *testing.T) {
	docs := []string{`{"_id":"a"}`, `{"_id":"b"}`}
	sql, args, err := postgres.InsertSQL(people(t), docs)
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "people" ("doc") VALUES`)
	assert.Contains(t, sql, "$1::jsonb")
	assert.Contains(t, sql, "$2::jsonb")
	assert.Equal(t, []any{`{"_id":"a"}`, `{"_id":"b"}`}, args)
}

func TestUpdateSQL(t *testing.T) {
	sql, args, err := postgres.UpdateSQL(people(t), bson.M{"status": "new"}, bson.M{
		"$set":   bson.M{"status": "done", "meta.count": 2},
		"$unset": bson.M{"draft": ""},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `UPDATE "people" SET "doc"=`)
	assert.Contains(t, sql, "jsonb_set(")
	assert.Contains(t, sql, "#-")
	assert.Contains(t, sql, "WHERE")
	assert.Contains(t, args, `{"status":"done"}`)
	assert.Contains(t, args, `{"meta","count"}`)
	assert.Contains(t, args, "2")
	assert.Contains(t, args, `{"draft"}`)

	_, _, err = postgres.UpdateSQL(people(t), nil, bson.M{"$inc": bson.M{"n": 1}})
	assert.ErrorContains(t, err, "unsupported update operator $inc")
	_, _, err = postgres.UpdateSQL(people(t), nil, bson.M{})
	assert.ErrorContains(t, err, "update document is empty")
	_, _, err = postgres.UpdateSQL(people(t), nil, bson.M{"$set": 1})
	assert.ErrorContains(t, err, "$set expects a document")
}

func TestDeleteSQL(t *testing.T) {
	sql, _, err := postgres.DeleteSQL(people(t), bson.M{"_id": "a"})
	require.NoError(t, err)
	assert.Contains(t, sql, `DELETE FROM "people" WHERE`)

	_, _, err = postgres.DeleteSQL(people(t), bson.M{"$where": "1"})
	assert.Error(t, err)
}

func TestEncodeValue(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 5, time.FixedZone("BRT", -3*3600))
	id := primitive.NewObjectID()

	assert.Equal(t, "2024-05-01T12:30:00.000000005Z", postgres.EncodeValue(at))
	assert.Equal(t, id.Hex(), postgres.EncodeValue(id))
	assert.Nil(t, postgres.EncodeValue((*time.Time)(nil)))
	assert.Equal(t, []any{1, "x"}, postgres.EncodeValue([]any{1, "x"}))
	assert.Equal(t, map[string]any{"at": "2024-05-01T12:30:00.000000005Z", "tags": []any{"a"}},
		postgres.EncodeValue(bson.M{"at": at, "tags": []string{"a"}}))
}

func TestDecodeDocument(t *testing.T) {
	doc, err := postgres.DecodeDocument([]byte(`{"n":3,"f":1.5,"at":"2024-05-01T12:00:00.000000000Z","nested":{"list":[1,"x"]},"s":"plain"}`))
	require.NoError(t, err)
	assert.Equal(t, bson.M{
		"n":      int64(3),
		"f":      1.5,
		"at":     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		"nested": bson.M{"list": []any{int64(1), "x"}},
		"s":      "plain",
	}, doc)

	empty, err := postgres.DecodeDocument([]byte("null"))
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, empty)

	_, err = postgres.DecodeDocument([]byte("{"))
	assert.Error(t, err)
}
