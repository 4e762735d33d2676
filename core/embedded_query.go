// Package core provides the fundamental building blocks of the golem ODM.
// This file defines EmbeddedQuery, an in-memory query engine over embedded
// sub-entities.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// EmbeddedQuery queries a snapshot of sub-entities without touching the
// store. Filters, ordering, pagination and projection are evaluated when a
// terminal method (Get, First, Count, Paginate, ...) is called, in that
// order: filters, then ordering, then skip/limit, then projection.
//
// Example:
//
//	young := coll.Query().
//		Where("age", "<", 30).
//		OrderBy("firstName", "asc").
//		ForPage(2, 3).
//		Get()
type EmbeddedQuery struct {
	items   []*Entity
	filters []func(*Entity) bool
	sorts   []Sort
	skip    int
	limit   int // negative means no limit
	fields  []string
}

// NewEmbeddedQuery starts a query over a snapshot of items.
func NewEmbeddedQuery(items []*Entity) *EmbeddedQuery {
	return &EmbeddedQuery{items: append([]*Entity(nil), items...), limit: -1}
}

// Where keeps items satisfying the clause. It accepts the same arguments as
// Query.Where.
func (q *EmbeddedQuery) Where(field string, opOrValue any, value ...any) *EmbeddedQuery {
	return q.whereDocument(buildCondition(field, opOrValue, value).Document())
}

// WhereIn keeps items whose field is one of values.
func (q *EmbeddedQuery) WhereIn(field string, values ...any) *EmbeddedQuery {
	return q.whereDocument(Cond(field).In(flatten(values)...).Document())
}

// WhereNotIn keeps items whose field is none of values.
func (q *EmbeddedQuery) WhereNotIn(field string, values ...any) *EmbeddedQuery {
	return q.whereDocument(Cond(field).NotIn(flatten(values)...).Document())
}

// WhereAll keeps items satisfying every condition.
func (q *EmbeddedQuery) WhereAll(conditions ...*Condition) *EmbeddedQuery {
	for _, cond := range conditions {
		q.whereDocument(cond.Document())
	}
	return q
}

// WhereAny keeps items satisfying at least one condition.
func (q *EmbeddedQuery) WhereAny(conditions ...*Condition) *EmbeddedQuery {
	if len(conditions) == 0 {
		return q
	}
	alternatives := make([]bson.M, len(conditions))
	for i, cond := range conditions {
		alternatives[i] = cond.Document()
	}
	return q.whereDocument(bson.M{"$or": alternatives})
}

// WhereNull keeps items whose field is null or missing.
func (q *EmbeddedQuery) WhereNull(field string) *EmbeddedQuery {
	return q.whereDocument(Cond(field).Nil().Document())
}

// WhereNotNull keeps items whose field holds a value.
func (q *EmbeddedQuery) WhereNotNull(field string) *EmbeddedQuery {
	return q.whereDocument(Cond(field).NotNil().Document())
}

// WhereLike keeps items whose field matches a case-sensitive pattern.
func (q *EmbeddedQuery) WhereLike(field, pattern string) *EmbeddedQuery {
	return q.whereDocument(Cond(field).Like(pattern).Document())
}

// WhereILike keeps items whose field matches a case-insensitive pattern.
func (q *EmbeddedQuery) WhereILike(field, pattern string) *EmbeddedQuery {
	return q.whereDocument(Cond(field).ILike(pattern).Document())
}

// WhereDateBetween keeps items whose date field lies within [from, to].
// RFC 3339 strings are accepted as dates.
func (q *EmbeddedQuery) WhereDateBetween(field string, from, to time.Time) *EmbeddedQuery {
	q.filters = append(q.filters, func(e *Entity) bool {
		t, ok := dateValue(e.Get(field))
		return ok && !t.Before(from) && !t.After(to)
	})
	return q
}

// Search keeps items where any of fields contains term, ignoring case.
// An empty term keeps everything.
func (q *EmbeddedQuery) Search(term string, fields ...string) *EmbeddedQuery {
	if term == "" {
		return q
	}
	needle := foldString(term)
	q.filters = append(q.filters, func(e *Entity) bool {
		for _, field := range fields {
			v := e.Get(field)
			if isNil(v) {
				continue
			}
			if strings.Contains(foldString(fmt.Sprint(v)), needle) {
				return true
			}
		}
		return false
	})
	return q
}

// Filter keeps items for which fn returns true.
func (q *EmbeddedQuery) Filter(fn func(*Entity) bool) *EmbeddedQuery {
	q.filters = append(q.filters, fn)
	return q
}

// OrderBy adds a sort key. Repeated calls compose: earlier keys take
// precedence and ties keep their original order.
func (q *EmbeddedQuery) OrderBy(field string, direction ...string) *EmbeddedQuery {
	q.sorts = append(q.sorts, Sort{Field: field, Order: sortOrder(direction)})
	return q
}

// Limit caps the number of returned items.
func (q *EmbeddedQuery) Limit(n int) *EmbeddedQuery {
	q.limit = n
	return q
}

// Skip drops the first n matching items.
func (q *EmbeddedQuery) Skip(n int) *EmbeddedQuery {
	if n < 0 {
		n = 0
	}
	q.skip = n
	return q
}

// Offset is an alias of Skip.
func (q *EmbeddedQuery) Offset(n int) *EmbeddedQuery {
	return q.Skip(n)
}

// ForPage selects page (1-based) of the given size.
func (q *EmbeddedQuery) ForPage(page, perPage int) *EmbeddedQuery {
	if page < 1 {
		page = 1
	}
	return q.Skip((page - 1) * perPage).Limit(perPage)
}

// Select keeps only the named fields on returned items. The returned
// entities are detached copies.
func (q *EmbeddedQuery) Select(fields ...string) *EmbeddedQuery {
	q.fields = append(q.fields, fields...)
	return q
}

// Tap calls fn with the current results and returns the query unchanged.
func (q *EmbeddedQuery) Tap(fn func([]*Entity)) *EmbeddedQuery {
	fn(q.Get())
	return q
}

// Clone returns an independent copy of the query.
func (q *EmbeddedQuery) Clone() *EmbeddedQuery {
	return &EmbeddedQuery{
		items:   q.items,
		filters: append([]func(*Entity) bool(nil), q.filters...),
		sorts:   append([]Sort(nil), q.sorts...),
		skip:    q.skip,
		limit:   q.limit,
		fields:  append([]string(nil), q.fields...),
	}
}

// Get evaluates the query.
func (q *EmbeddedQuery) Get() []*Entity {
	return q.project(q.window(q.matched()))
}

// First returns the first result, or nil.
func (q *EmbeddedQuery) First() *Entity {
	results := q.Clone().Limit(1).Get()
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

// Count returns the number of items matching the filters, ignoring
// skip and limit.
func (q *EmbeddedQuery) Count() int {
	return len(q.filtered())
}

// Exists reports whether any item matches the filters.
func (q *EmbeddedQuery) Exists() bool {
	return q.Count() > 0
}

// EmbeddedPage is one page of embedded query results.
type EmbeddedPage struct {
	Items       []*Entity
	CurrentPage int
	PerPage     int
	Total       int
	TotalPages  int
	HasNextPage bool
	HasPrevPage bool
}

// Paginate returns one page of the filtered and ordered items. Skip and
// limit set on the query are replaced by the page window.
func (q *EmbeddedQuery) Paginate(page, perPage int) EmbeddedPage {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	matched := q.matched()
	total := len(matched)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))

	paged := q.Clone().ForPage(page, perPage)
	return EmbeddedPage{
		Items:       paged.project(paged.window(matched)),
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// AggregateResult summarizes the numeric values of a field.
//
// Count is the number of matching items; Sum, Avg, Min and Max consider
// only numeric values and are zero when there are none.
type AggregateResult struct {
	Count int
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// Aggregate summarizes field over the matching items.
func (q *EmbeddedQuery) Aggregate(field string) AggregateResult {
	items := q.window(q.matched())
	result := AggregateResult{Count: len(items)}
	numeric := 0
	for _, e := range items {
		f, ok := toFloat(e.Get(field))
		if !ok {
			continue
		}
		if numeric == 0 || f < result.Min {
			result.Min = f
		}
		if numeric == 0 || f > result.Max {
			result.Max = f
		}
		result.Sum += f
		numeric++
	}
	if numeric > 0 {
		result.Avg = result.Sum / float64(numeric)
	}
	return result
}

// Distinct returns the distinct values of field in first-seen order.
func (q *EmbeddedQuery) Distinct(field string) []any {
	seen := make(map[string]struct{})
	var values []any
	for _, e := range q.window(q.matched()) {
		v := e.Get(field)
		key := fmt.Sprintf("%T:%s", v, keyString(v))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
	}
	return values
}

// GroupBy groups the matching items by the string form of field.
func (q *EmbeddedQuery) GroupBy(field string) map[string][]*Entity {
	groups := make(map[string][]*Entity)
	for _, e := range q.Get() {
		key := keyString(e.Get(field))
		groups[key] = append(groups[key], e)
	}
	return groups
}

func (q *EmbeddedQuery) whereDocument(filter bson.M) *EmbeddedQuery {
	q.filters = append(q.filters, func(e *Entity) bool {
		return Match(bson.M(e.Attributes()), filter)
	})
	return q
}

func (q *EmbeddedQuery) filtered() []*Entity {
	out := make([]*Entity, 0, len(q.items))
	for _, e := range q.items {
		keep := true
		for _, f := range q.filters {
			if !f(e) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

// matched returns the filtered items in sort order.
func (q *EmbeddedQuery) matched() []*Entity {
	out := q.filtered()
	if len(q.sorts) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, s := range q.sorts {
			c := compareForSort(out[i].Get(s.Field), out[j].Get(s.Field))
			if c == 0 {
				continue
			}
			if s.Order < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func (q *EmbeddedQuery) window(items []*Entity) []*Entity {
	if q.skip >= len(items) {
		return []*Entity{}
	}
	items = items[q.skip:]
	if q.limit >= 0 && q.limit < len(items) {
		items = items[:q.limit]
	}
	return items
}

func (q *EmbeddedQuery) project(items []*Entity) []*Entity {
	if len(q.fields) == 0 {
		return items
	}
	out := make([]*Entity, len(items))
	for i, e := range items {
		attributes := e.Attributes()
		copied := newEntity(e.schema, nil)
		for _, field := range q.fields {
			if v, ok := attributes[field]; ok {
				copied.attributes[field] = v
				copied.original[field] = v
			}
		}
		copied.persisted = e.Persisted()
		out[i] = copied
	}
	return out
}

func dateValue(v any) (time.Time, bool) {
	if t, ok := toTime(v); ok {
		return t, true
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortOrder interprets an optional "asc"/"desc" direction.
func sortOrder(direction []string) int {
	if len(direction) > 0 && strings.EqualFold(direction[0], "desc") {
		return -1
	}
	return 1
}
