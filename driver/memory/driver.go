// Package memory provides an in-process driver for the golem ODM.
//
// Documents live in per-collection slices guarded by a mutex. Filters are
// evaluated with core.Match, so the driver accepts the same filter
// documents as the MongoDB driver. It counts calls per operation, which
// makes it the store double used by the package tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/leandroluk/golem-odm/core"
)

// MemoryDriver implements core.Driver in memory.
type MemoryDriver struct {
	mutex       sync.Mutex
	collections map[string][]bson.M
	calls       map[string]map[core.Operation]int
	failures    map[core.Operation]error
	closed      bool
}

var _ core.Driver = (*MemoryDriver)(nil)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("memory driver: closed")

// New creates an empty driver.
func New() *MemoryDriver {
	return &MemoryDriver{
		collections: map[string][]bson.M{},
		calls:       map[string]map[core.Operation]int{},
		failures:    map[core.Operation]error{},
	}
}

// Calls returns how many times op reached the driver, over all collections.
func (driver *MemoryDriver) Calls(op core.Operation) int {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	total := 0
	for _, counts := range driver.calls {
		total += counts[op]
	}
	return total
}

// CollectionCalls returns how many times op reached coll.
func (driver *MemoryDriver) CollectionCalls(coll core.Collection, op core.Operation) int {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return driver.calls[coll.String()][op]
}

// TotalCalls returns the number of store calls of any kind.
func (driver *MemoryDriver) TotalCalls() int {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	total := 0
	for _, counts := range driver.calls {
		for _, n := range counts {
			total += n
		}
	}
	return total
}

// ResetCalls clears the call counters.
func (driver *MemoryDriver) ResetCalls() {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	driver.calls = map[string]map[core.Operation]int{}
}

// FailNext makes the next call of op fail with err.
func (driver *MemoryDriver) FailNext(op core.Operation, err error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	driver.failures[op] = err
}

// Documents returns a copy of the documents stored in coll.
func (driver *MemoryDriver) Documents(coll core.Collection) []bson.M {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	stored := driver.collections[coll.String()]
	out := make([]bson.M, 0, len(stored))
	for _, doc := range stored {
		out = append(out, copyDocument(doc))
	}
	return out
}

// begin records a call and returns the injected failure, if any.
// The caller must hold the mutex.
func (driver *MemoryDriver) begin(ctx context.Context, coll core.Collection, op core.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if driver.closed {
		return ErrClosed
	}
	if coll.Name == "" {
		return errors.New("memory driver: collection name is empty")
	}
	counts, ok := driver.calls[coll.String()]
	if !ok {
		counts = map[core.Operation]int{}
		driver.calls[coll.String()] = counts
	}
	counts[op]++
	if err, ok := driver.failures[op]; ok {
		delete(driver.failures, op)
		return err
	}
	return nil
}

func (driver *MemoryDriver) Ping(ctx context.Context) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (driver *MemoryDriver) Close(context.Context) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	driver.closed = true
	return nil
}

// Transaction returns a transaction whose commit and rollback do nothing.
// Writes made inside it are applied immediately.
func (driver *MemoryDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTransaction{}, nil
}

func (driver *MemoryDriver) Insert(ctx context.Context, coll core.Collection, documents ...bson.M) ([]any, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationInsert); err != nil {
		return nil, err
	}
	key := coll.String()
	idList := make([]any, 0, len(documents))
	for _, doc := range documents {
		stored := copyDocument(doc)
		if stored[core.DefaultPrimaryKey] == nil {
			stored[core.DefaultPrimaryKey] = primitive.NewObjectID()
		}
		id := stored[core.DefaultPrimaryKey]
		for _, existing := range driver.collections[key] {
			if core.KeyString(existing[core.DefaultPrimaryKey]) == core.KeyString(id) {
				return nil, fmt.Errorf("memory driver: duplicate key %v in %s", id, key)
			}
		}
		driver.collections[key] = append(driver.collections[key], stored)
		idList = append(idList, id)
	}
	return idList, nil
}

func (driver *MemoryDriver) FindOne(ctx context.Context, coll core.Collection, options *core.FindOptions) (bson.M, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationFind); err != nil {
		return nil, err
	}
	single := core.FindOptions{}
	if options != nil {
		single = *options
	}
	single.Limit = 1
	docs := driver.find(coll, &single)
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (driver *MemoryDriver) Find(ctx context.Context, coll core.Collection, options *core.FindOptions) (core.Cursor, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationFetch); err != nil {
		return nil, err
	}
	return core.NewSliceCursor(driver.find(coll, options)), nil
}

// find returns copies of the matching documents. The caller must hold the
// mutex.
func (driver *MemoryDriver) find(coll core.Collection, options *core.FindOptions) []bson.M {
	if options == nil {
		options = &core.FindOptions{}
	}
	docs := driver.matching(coll, options.Filter)
	core.SortDocuments(docs, options.Sort)
	if options.Skip > 0 {
		if int(options.Skip) >= len(docs) {
			return []bson.M{}
		}
		docs = docs[options.Skip:]
	}
	if options.Limit > 0 && int(options.Limit) < len(docs) {
		docs = docs[:options.Limit]
	}
	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		out = append(out, core.ProjectDocument(copyDocument(doc), options.Projection))
	}
	return out
}

func (driver *MemoryDriver) matching(coll core.Collection, filter bson.M) []bson.M {
	var docs []bson.M
	for _, doc := range driver.collections[coll.String()] {
		if core.Match(doc, filter) {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (driver *MemoryDriver) Count(ctx context.Context, coll core.Collection, filter bson.M) (int64, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationCount); err != nil {
		return 0, err
	}
	return int64(len(driver.matching(coll, filter))), nil
}

func (driver *MemoryDriver) Distinct(ctx context.Context, coll core.Collection, field string, filter bson.M) ([]any, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationDistinct); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	values := []any{}
	for _, doc := range driver.matching(coll, filter) {
		value, ok := core.LookupPath(doc, field)
		if !ok {
			continue
		}
		key := core.KeyString(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, value)
	}
	return values, nil
}

func (driver *MemoryDriver) Aggregate(ctx context.Context, coll core.Collection, pipeline []bson.M) (core.Cursor, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationAggregate); err != nil {
		return nil, err
	}
	stored := driver.collections[coll.String()]
	docs := make([]bson.M, 0, len(stored))
	for _, doc := range stored {
		docs = append(docs, copyDocument(doc))
	}
	result, err := core.EvaluatePipeline(docs, pipeline)
	if err != nil {
		return nil, err
	}
	return core.NewSliceCursor(result), nil
}

// UpdateMany supports $set and $unset.
func (driver *MemoryDriver) UpdateMany(ctx context.Context, coll core.Collection, filter bson.M, update bson.M) (int64, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationUpdate); err != nil {
		return 0, err
	}
	for op := range update {
		if op != "$set" && op != "$unset" {
			return 0, fmt.Errorf("memory driver: unsupported update operator %s", op)
		}
	}
	set := documentOf(update["$set"])
	unset := documentOf(update["$unset"])
	var matched int64
	for _, doc := range driver.collections[coll.String()] {
		if !core.Match(doc, filter) {
			continue
		}
		matched++
		for path, value := range set {
			setPath(doc, path, value)
		}
		for path := range unset {
			unsetPath(doc, path)
		}
	}
	return matched, nil
}

func (driver *MemoryDriver) DeleteMany(ctx context.Context, coll core.Collection, filter bson.M) (int64, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.begin(ctx, coll, core.OperationDelete); err != nil {
		return 0, err
	}
	key := coll.String()
	kept := driver.collections[key][:0]
	var deleted int64
	for _, doc := range driver.collections[key] {
		if core.Match(doc, filter) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	driver.collections[key] = kept
	return deleted, nil
}

type memoryTransaction struct{}

func (*memoryTransaction) Commit(context.Context) error { return nil }

func (*memoryTransaction) Rollback(context.Context) error { return nil }
