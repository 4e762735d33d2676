// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the fluent query builder and its executors.
package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Query represents a fluent query against one model.
//
// It allows chaining of filtering, ordering, pagination, eager loading and
// soft-delete options. Field names are logical; they are translated with the
// schema's naming strategy when the query runs.
//
// Example:
//
//	users, err := userModel.Query().
//		Where("status", "active").
//		Where("age", ">=", 18).
//		OrderBy("createdAt", "desc").
//		With("posts").
//		Limit(10).
//		Fetch(ctx)
type Query struct {
	model       *Model
	conditions  Conditions
	sort        []Sort
	limit       int64
	skip        int64
	projection  []string
	eager       []eagerSpec
	distinct    string
	groupBy     []string
	having      Conditions
	withDeleted bool
	onlyDeleted bool
	tx          Transaction
	pageURL     string
}

func newQuery(m *Model) *Query {
	return &Query{model: m}
}

// Model returns the model the query runs against.
func (q *Query) Model() *Model {
	return q.model
}

// Where adds an AND clause. See Conditions.Where.
func (q *Query) Where(field string, opOrValue any, value ...any) *Query {
	q.conditions.Where(field, opOrValue, value...)
	return q
}

// OrWhere adds an OR alternative. See Conditions.Filter for how it combines
// with earlier clauses.
func (q *Query) OrWhere(field string, opOrValue any, value ...any) *Query {
	q.conditions.OrWhere(field, opOrValue, value...)
	return q
}

// WhereNot adds the negation of a clause.
func (q *Query) WhereNot(field string, opOrValue any, value ...any) *Query {
	q.conditions.WhereNot(field, opOrValue, value...)
	return q
}

// WhereIn matches values contained in list.
func (q *Query) WhereIn(field string, list ...any) *Query {
	q.conditions.WhereIn(field, list...)
	return q
}

// WhereNotIn matches values absent from list.
func (q *Query) WhereNotIn(field string, list ...any) *Query {
	q.conditions.WhereNotIn(field, list...)
	return q
}

// WhereNull matches null or missing values.
func (q *Query) WhereNull(field string) *Query {
	q.conditions.WhereNull(field)
	return q
}

// WhereNotNull matches present, non-null values.
func (q *Query) WhereNotNull(field string) *Query {
	q.conditions.WhereNotNull(field)
	return q
}

// WhereBetween matches lower <= field <= upper.
func (q *Query) WhereBetween(field string, lower, upper any) *Query {
	q.conditions.WhereBetween(field, lower, upper)
	return q
}

// WhereExists matches documents where field is present.
func (q *Query) WhereExists(field string) *Query {
	q.conditions.WhereExists(field)
	return q
}

// WhereNotExists matches documents where field is absent.
func (q *Query) WhereNotExists(field string) *Query {
	q.conditions.WhereNotExists(field)
	return q
}

// WhereLike adds a case-sensitive pattern clause.
func (q *Query) WhereLike(field, pattern string) *Query {
	q.conditions.WhereLike(field, pattern)
	return q
}

// WhereILike adds a case-insensitive pattern clause.
func (q *Query) WhereILike(field, pattern string) *Query {
	q.conditions.WhereILike(field, pattern)
	return q
}

// WhereCondition adds a condition tree as an AND clause.
func (q *Query) WhereCondition(cond *Condition) *Query {
	q.conditions.WhereCondition(cond)
	return q
}

// OrderBy adds an ordering rule. Direction is "asc" (default) or "desc".
func (q *Query) OrderBy(field string, direction ...string) *Query {
	q.sort = append(q.sort, Sort{Field: field, Order: sortOrder(direction)})
	return q
}

// Limit sets the maximum number of results to return.
func (q *Query) Limit(limit int64) *Query {
	q.limit = limit
	return q
}

// Skip sets the number of documents to skip before returning results.
func (q *Query) Skip(skip int64) *Query {
	q.skip = skip
	return q
}

// Offset is an alias of Skip.
func (q *Query) Offset(offset int64) *Query {
	return q.Skip(offset)
}

// ForPage sets Skip and Limit for a 1-based page. A perPage below 1 uses the
// model's default page size.
func (q *Query) ForPage(page, perPage int64) *Query {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = int64(q.model.options.perPage)
	}
	return q.Skip((page - 1) * perPage).Limit(perPage)
}

// Select restricts the fields returned by the store. The primary key is
// always returned.
func (q *Query) Select(fields ...string) *Query {
	q.projection = append(q.projection, fields...)
	return q
}

// Distinct returns one document per distinct value of field.
func (q *Query) Distinct(field string) *Query {
	q.distinct = field
	return q
}

// GroupBy returns one document per distinct combination of fields. Each
// result carries the group size in the GroupCountField attribute.
func (q *Query) GroupBy(fields ...string) *Query {
	q.groupBy = append(q.groupBy, fields...)
	return q
}

// Having filters the groups produced by GroupBy or Distinct.
func (q *Query) Having(field string, opOrValue any, value ...any) *Query {
	q.having.Where(field, opOrValue, value...)
	return q
}

// With eager loads a relation, or a dotted path of nested relations, for
// every result using one query per relation. Constraints customize the
// query loading the last relation of the path.
//
// Example:
//
//	users.Query().With("posts", func(q *core.Query) {
//		q.Where("published", true).OrderBy("createdAt", "desc")
//	}).With("posts.comments")
func (q *Query) With(path string, constraint ...func(*Query)) *Query {
	q.eager = append(q.eager, eagerSpec{path: path, constraints: constraint})
	return q
}

// WithEmbedded eager loads an embedded relation and publishes the
// constraint's result as the collection's visible view.
func (q *Query) WithEmbedded(path string, constraint func(*EmbeddedQuery) *EmbeddedQuery) *Query {
	q.eager = append(q.eager, eagerSpec{path: path, embedded: constraint})
	return q
}

// WithDeleted includes soft-deleted documents in the results.
func (q *Query) WithDeleted() *Query {
	q.withDeleted = true
	return q
}

// OnlyDeleted restricts the results to soft-deleted documents.
func (q *Query) OnlyDeleted() *Query {
	q.onlyDeleted = true
	return q
}

// WithTransaction runs every store call of the query, including eager
// loads, inside tx.
func (q *Query) WithTransaction(tx Transaction) *Query {
	q.tx = tx
	return q
}

// PageURL overrides the base URL used for pagination links.
func (q *Query) PageURL(url string) *Query {
	q.pageURL = url
	return q
}

// Clone returns an independent copy of the query.
func (q *Query) Clone() *Query {
	clone := *q
	clone.conditions = q.conditions.Clone()
	clone.having = q.having.Clone()
	clone.sort = append([]Sort(nil), q.sort...)
	clone.projection = append([]string(nil), q.projection...)
	clone.eager = append([]eagerSpec(nil), q.eager...)
	clone.groupBy = append([]string(nil), q.groupBy...)
	return &clone
}

// Filter returns the finalized filter in logical field names.
func (q *Query) Filter() bson.M {
	return q.conditions.Filter()
}

// StorageFilter returns the filter sent to the store: translated to stored
// names and restricted by the soft-delete rules.
func (q *Query) StorageFilter() bson.M {
	return q.withSoftDelete(TranslateFilter(q.model.schema, q.conditions.Filter()))
}

// withSoftDelete applies soft-delete filtering rules to a filter.
// It excludes deleted documents unless WithDeleted or OnlyDeleted is set.
func (q *Query) withSoftDelete(filter bson.M) bson.M {
	f := q.model.schema.deletedAtField
	if f == nil || (q.withDeleted && !q.onlyDeleted) {
		return filter
	}
	if filter == nil {
		filter = bson.M{}
	}
	column := q.model.schema.ColumnName(f.Name)
	var clause any
	if q.onlyDeleted {
		clause = bson.M{"$ne": nil}
	}
	if _, taken := filter[column]; !taken {
		filter[column] = clause
		return filter
	}
	return bson.M{"$and": []bson.M{filter, {column: clause}}}
}

func (q *Query) context(ctx context.Context) context.Context {
	if q.tx != nil {
		return WithTransaction(ctx, q.tx)
	}
	return ctx
}

func (q *Query) findOptions() *FindOptions {
	schema := q.model.schema
	options := &FindOptions{
		Filter: q.StorageFilter(),
		Limit:  q.limit,
		Skip:   q.skip,
	}
	for _, s := range q.sort {
		options.Sort = append(options.Sort, Sort{Field: schema.ColumnName(s.Field), Order: s.Order})
	}
	if len(q.projection) > 0 {
		options.Projection = TranslateFields(schema, q.projection)
	}
	return options
}

// First returns the first matching entity, or nil when nothing matched or a
// BeforeFind hook aborted.
func (q *Query) First(ctx context.Context) (*Entity, error) {
	ctx = q.context(ctx)
	m := q.model
	qc := newQueryContext(q, OperationFind)
	aborted, err := m.dispatch(ctx, &HookEvent{Kind: BeforeFind, Query: qc})
	if err != nil || aborted {
		return nil, err
	}

	options := q.findOptions()
	options.Limit = 1
	var doc bson.M
	err = m.exec(ctx, OperationFind, options.Filter, func(ctx context.Context) error {
		var err error
		doc, err = m.driver.FindOne(ctx, m.collection(), options)
		return err
	})
	if err != nil || doc == nil {
		return nil, err
	}

	e := hydrate(m.schema, m, doc)
	if err := q.resolveEager(ctx, []*Entity{e}); err != nil {
		return nil, err
	}
	if _, err := m.dispatch(ctx, &HookEvent{Kind: AfterFind, Query: qc, Entity: e, Results: []*Entity{e}}); err != nil {
		return nil, err
	}
	Emit(EventPayload{Event: EventFind, Schema: m.schema, Entity: e, Results: []*Entity{e}})
	return e, nil
}

// FirstOrFail is like First but returns a NotFoundError when nothing
// matched.
func (q *Query) FirstOrFail(ctx context.Context) (*Entity, error) {
	e, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotFoundError{Entity: q.model.schema.Name}
	}
	return e, nil
}

// Fetch returns every matching entity. It returns an empty slice without
// touching the store when a BeforeFetch hook aborted.
func (q *Query) Fetch(ctx context.Context) ([]*Entity, error) {
	ctx = q.context(ctx)
	qc := newQueryContext(q, OperationFetch)
	aborted, err := q.model.dispatch(ctx, &HookEvent{Kind: BeforeFetch, Query: qc})
	if err != nil {
		return nil, err
	}
	if aborted {
		return []*Entity{}, nil
	}
	return q.fetch(ctx, qc)
}

// fetch runs the read after the BeforeFetch phase.
func (q *Query) fetch(ctx context.Context, qc *QueryContext) ([]*Entity, error) {
	m := q.model
	var docs []bson.M
	var err error
	if q.usesPipeline() {
		docs, err = q.aggregate(ctx)
	} else {
		options := q.findOptions()
		err = m.exec(ctx, OperationFetch, options.Filter, func(ctx context.Context) error {
			cursor, err := m.driver.Find(ctx, m.collection(), options)
			if err != nil {
				return err
			}
			docs, err = All(ctx, cursor)
			return err
		})
	}
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, len(docs))
	for i, doc := range docs {
		entities[i] = hydrate(m.schema, m, doc)
	}
	if err := q.resolveEager(ctx, entities); err != nil {
		return nil, err
	}
	if _, err := m.dispatch(ctx, &HookEvent{Kind: AfterFetch, Query: qc, Results: entities}); err != nil {
		return nil, err
	}
	Emit(EventPayload{Event: EventFind, Schema: m.schema, Results: entities})
	return entities, nil
}

// Count returns the number of matching documents.
func (q *Query) Count(ctx context.Context) (int64, error) {
	ctx = q.context(ctx)
	m := q.model
	filter := q.StorageFilter()
	var count int64
	err := m.exec(ctx, OperationCount, filter, func(ctx context.Context) error {
		var err error
		count, err = m.driver.Count(ctx, m.collection(), filter)
		return err
	})
	return count, err
}

// IDs returns the primary keys of the matching documents.
func (q *Query) IDs(ctx context.Context) ([]any, error) {
	ctx = q.context(ctx)
	m := q.model
	options := q.findOptions()
	column := m.schema.ColumnName(m.schema.PrimaryKey)
	options.Projection = []string{column}
	ids := []any{}
	err := m.exec(ctx, OperationFetch, options.Filter, func(ctx context.Context) error {
		cursor, err := m.driver.Find(ctx, m.collection(), options)
		if err != nil {
			return err
		}
		docs, err := All(ctx, cursor)
		for _, doc := range docs {
			ids = append(ids, doc[column])
		}
		return err
	})
	return ids, err
}

// Update applies changes to every matching document and returns the
// matched count. The updatedAt timestamp is set when the schema declares
// one.
func (q *Query) Update(ctx context.Context, changes map[string]any) (int64, error) {
	ctx = q.context(ctx)
	m := q.model
	set := make(bson.M, len(changes)+1)
	for k, v := range changes {
		set[k] = v
	}
	if f := m.schema.updatedAtField; f != nil {
		if _, ok := set[f.Name]; !ok {
			set[f.Name] = m.options.now()
		}
	}
	filter := q.StorageFilter()
	update := bson.M{"$set": TranslateDocument(m.schema, set)}
	var matched int64
	err := m.exec(ctx, OperationUpdate, filter, func(ctx context.Context) error {
		var err error
		matched, err = m.driver.UpdateMany(ctx, m.collection(), filter, update)
		return err
	})
	if err != nil {
		return 0, err
	}
	Emit(EventPayload{Event: EventUpdate, Schema: m.schema, Filter: filter, Count: matched})
	return matched, nil
}

// Delete removes every matching document and returns the deleted count.
// Soft-deleting schemas stamp deletedAt instead.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	m := q.model
	if f := m.schema.deletedAtField; f != nil {
		return q.Update(ctx, map[string]any{f.Name: m.options.now()})
	}
	ctx = q.context(ctx)
	filter := q.StorageFilter()
	var deleted int64
	err := m.exec(ctx, OperationDelete, filter, func(ctx context.Context) error {
		var err error
		deleted, err = m.driver.DeleteMany(ctx, m.collection(), filter)
		return err
	})
	if err != nil {
		return 0, err
	}
	Emit(EventPayload{Event: EventDelete, Schema: m.schema, Filter: filter, Count: deleted})
	return deleted, nil
}

// DistinctValues returns the distinct values of field among the matching
// documents.
func (q *Query) DistinctValues(ctx context.Context, field string) ([]any, error) {
	ctx = q.context(ctx)
	m := q.model
	filter := q.StorageFilter()
	var values []any
	err := m.exec(ctx, OperationDistinct, filter, func(ctx context.Context) error {
		var err error
		values, err = m.driver.Distinct(ctx, m.collection(), m.schema.ColumnName(field), filter)
		return err
	})
	return values, err
}
