package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/leandroluk/golem-odm/core"
	"github.com/leandroluk/golem-odm/driver/memory"
)

var books = core.Collection{Database: "library", Name: "books"}

func seedBooks(t *testing.T) *memory.MemoryDriver {
	t.Helper()
	driver := memory.New()
	_, err := driver.Insert(context.Background(), books,
		bson.M{"_id": 1, "title": "Dune", "year": 1965, "tags": []any{"scifi"}, "shelf": bson.M{"row": 2}},
		bson.M{"_id": 2, "title": "Emma", "year": 1815, "tags": []any{"classic"}},
		bson.M{"_id": 3, "title": "Ubik", "year": 1969, "tags": []any{"scifi", "classic"}},
	)
	require.NoError(t, err)
	driver.ResetCalls()
	return driver
}

func fetch(t *testing.T, driver *memory.MemoryDriver, options *core.FindOptions) []bson.M {
	t.Helper()
	cursor, err := driver.Find(context.Background(), books, options)
	require.NoError(t, err)
	docs, err := core.All(context.Background(), cursor)
	require.NoError(t, err)
	return docs
}

func titles(docs []bson.M) []any {
	out := make([]any, len(docs))
	for i, doc := range docs {
		out[i] = doc["title"]
	}
	return out
}

func TestInsertAssignsObjectID(t *testing.T) {
	driver := memory.New()
	ids, err := driver.Insert(context.Background(), books, bson.M{"title": "Dune"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.IsType(t, primitive.ObjectID{}, ids[0])

	docs := driver.Documents(books)
	require.Len(t, docs, 1)
	assert.Equal(t, ids[0], docs[0]["_id"])
	assert.Equal(t, 1, driver.CollectionCalls(books, core.OperationInsert))
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	driver := seedBooks(t)
	_, err := driver.Insert(context.Background(), books, bson.M{"_id": 2, "title": "again"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
	assert.Len(t, driver.Documents(books), 3)
}

func TestFind(t *testing.T) {
	driver := seedBooks(t)
	tests := []struct {
		name    string
		options *core.FindOptions
		want    []any
	}{
		{name: "nil options", want: []any{"Dune", "Emma", "Ubik"}},
		{name: "array membership", options: &core.FindOptions{Filter: bson.M{"tags": "classic"}}, want: []any{"Emma", "Ubik"}},
		{
			name:    "sorted window",
			options: &core.FindOptions{Sort: []core.Sort{{Field: "year", Order: -1}}, Skip: 1, Limit: 1},
			want:    []any{"Dune"},
		},
		{name: "skip past end", options: &core.FindOptions{Skip: 5}, want: []any{}},
		{name: "nested path", options: &core.FindOptions{Filter: bson.M{"shelf.row": 2}}, want: []any{"Dune"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(fetch(t, driver, tt.options)))
		})
	}
	assert.Equal(t, len(tests), driver.Calls(core.OperationFetch))
}

func TestFindReturnsCopies(t *testing.T) {
	driver := seedBooks(t)
	docs := fetch(t, driver, &core.FindOptions{Filter: bson.M{"_id": 1}})
	require.Len(t, docs, 1)
	docs[0]["title"] = "changed"
	docs[0]["shelf"].(bson.M)["row"] = 9

	stored := driver.Documents(books)[0]
	assert.Equal(t, "Dune", stored["title"])
	assert.Equal(t, bson.M{"row": 2}, stored["shelf"])
}

func TestFindProjection(t *testing.T) {
	driver := seedBooks(t)
	doc, err := driver.FindOne(context.Background(), books, &core.FindOptions{
		Filter:     bson.M{"title": "Ubik"},
		Projection: []string{"year"},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": 3, "year": 1969}, doc)

	missing, err := driver.FindOne(context.Background(), books, &core.FindOptions{Filter: bson.M{"title": "Nope"}})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCountAndDistinct(t *testing.T) {
	driver := seedBooks(t)
	ctx := context.Background()

	n, err := driver.Count(ctx, books, bson.M{"year": bson.M{"$gt": 1900}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	values, err := driver.Distinct(ctx, books, "shelf.row", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{2}, values)

	years, err := driver.Distinct(ctx, books, "year", bson.M{"tags": "scifi"})
	require.NoError(t, err)
	assert.Equal(t, []any{1965, 1969}, years)
}

func TestUpdateMany(t *testing.T) {
	driver := seedBooks(t)
	ctx := context.Background()

	matched, err := driver.UpdateMany(ctx, books, bson.M{"tags": "scifi"}, bson.M{
		"$set":   bson.M{"genre": "sf", "shelf.row": 5},
		"$unset": bson.M{"tags": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), matched)

	docs := driver.Documents(books)
	assert.Equal(t, bson.M{"_id": 1, "title": "Dune", "year": 1965, "genre": "sf", "shelf": bson.M{"row": 5}}, docs[0])
	assert.Equal(t, bson.M{"row": 5}, docs[2]["shelf"])
	assert.NotContains(t, docs[2], "tags")
	assert.Contains(t, docs[1], "tags")

	_, err = driver.UpdateMany(ctx, books, nil, bson.M{"$inc": bson.M{"year": 1}})
	assert.ErrorContains(t, err, "unsupported update operator $inc")
}

func TestDeleteMany(t *testing.T) {
	driver := seedBooks(t)
	deleted, err := driver.DeleteMany(context.Background(), books, bson.M{"year": bson.M{"$lt": 1900}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, []any{"Dune", "Ubik"}, titles(driver.Documents(books)))
}

func TestAggregate(t *testing.T) {
	driver := seedBooks(t)
	cursor, err := driver.Aggregate(context.Background(), books, []bson.M{
		{"$match": bson.M{"tags": "classic"}},
		{"$sort": bson.D{{Key: "year", Value: -1}}},
		{"$project": bson.M{"title": 1}},
	})
	require.NoError(t, err)
	docs, err := core.All(context.Background(), cursor)
	require.NoError(t, err)
	assert.Equal(t, []bson.M{{"_id": 3, "title": "Ubik"}, {"_id": 2, "title": "Emma"}}, docs)

	_, err = driver.Aggregate(context.Background(), books, []bson.M{{"$lookup": bson.M{}}})
	assert.Error(t, err)
}

func TestCallCounters(t *testing.T) {
	driver := seedBooks(t)
	ctx := context.Background()
	other := core.Collection{Name: "authors"}

	_, _ = driver.Count(ctx, books, nil)
	_, _ = driver.Count(ctx, other, nil)
	_, _ = driver.FindOne(ctx, books, nil)

	assert.Equal(t, 2, driver.Calls(core.OperationCount))
	assert.Equal(t, 1, driver.CollectionCalls(books, core.OperationCount))
	assert.Equal(t, 1, driver.CollectionCalls(other, core.OperationCount))
	assert.Equal(t, 3, driver.TotalCalls())

	driver.ResetCalls()
	assert.Zero(t, driver.TotalCalls())
}

func TestFailNext(t *testing.T) {
	driver := seedBooks(t)
	ctx := context.Background()
	boom := errors.New("boom")
	driver.FailNext(core.OperationDelete, boom)

	_, err := driver.DeleteMany(ctx, books, nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, driver.Documents(books), 3)
	assert.Equal(t, 1, driver.Calls(core.OperationDelete))

	deleted, err := driver.DeleteMany(ctx, books, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestClosedAndCanceled(t *testing.T) {
	driver := seedBooks(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := driver.Count(ctx, books, nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = driver.Transaction(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = driver.Count(context.Background(), core.Collection{}, nil)
	assert.ErrorContains(t, err, "collection name is empty")

	require.NoError(t, driver.Ping(context.Background()))
	require.NoError(t, driver.Close(context.Background()))
	assert.ErrorIs(t, driver.Ping(context.Background()), memory.ErrClosed)
	_, err = driver.Insert(context.Background(), books, bson.M{"title": "late"})
	assert.ErrorIs(t, err, memory.ErrClosed)
}

func TestTransaction(t *testing.T) {
	driver := memory.New()
	tx, err := driver.Transaction(context.Background())
	require.NoError(t, err)
	assert.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, tx.Rollback(context.Background()))
}
