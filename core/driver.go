// Package core provides the fundamental building blocks of the golem ODM.
// It defines abstractions for queries, models, schema handling, and drivers.
package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Sort represents an ordering rule used in queries.
//
// Field specifies which stored field to sort by.
// Order determines the direction: 1 for ascending (ASC), -1 for descending (DESC).
type Sort struct {
	Field string
	Order int // 1 = ASC, -1 = DESC
}

// Collection addresses a collection inside a database. An empty Database
// selects the driver's default database.
type Collection struct {
	Database string
	Name     string
}

func (c Collection) String() string {
	if c.Database == "" {
		return c.Name
	}
	return c.Database + "." + c.Name
}

// FindOptions encapsulates filtering, ordering and pagination for reads.
//
// All field names are stored names; translation has already happened.
type FindOptions struct {
	Filter     bson.M
	Sort       []Sort
	Limit      int64
	Skip       int64
	Projection []string
}

// Cursor iterates over the documents returned by a read.
// A *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// Transaction defines the contract for database transaction management.
//
// Implementations must provide atomic commit and rollback semantics.
type Transaction interface {
	// Commit finalizes the transaction and makes all changes permanent.
	Commit(ctx context.Context) error
	// Rollback reverts the transaction, discarding all changes.
	Rollback(ctx context.Context) error
}

// Driver defines the contract for document stores supported by the ODM.
//
// Each driver (e.g., the MongoDB, PostgreSQL JSONB or in-memory driver) must
// implement this interface. Drivers read the active transaction, if any,
// from the context with TransactionFrom.
type Driver interface {
	// Ping checks if the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close terminates the connection and releases resources.
	Close(ctx context.Context) error

	// Transaction starts a new database transaction.
	Transaction(ctx context.Context) (Transaction, error)

	// Insert persists documents and returns their primary keys in order.
	// Documents without an _id are assigned one by the driver.
	Insert(ctx context.Context, coll Collection, documents ...bson.M) ([]any, error)
	// FindOne retrieves a single document, or nil when nothing matched.
	FindOne(ctx context.Context, coll Collection, options *FindOptions) (bson.M, error)
	// Find retrieves every document matching the options.
	Find(ctx context.Context, coll Collection, options *FindOptions) (Cursor, error)
	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, coll Collection, filter bson.M) (int64, error)
	// Distinct returns the distinct values of field among matching documents.
	Distinct(ctx context.Context, coll Collection, field string, filter bson.M) ([]any, error)
	// Aggregate runs an aggregation pipeline.
	Aggregate(ctx context.Context, coll Collection, pipeline []bson.M) (Cursor, error)
	// UpdateMany applies an update document and returns the matched count.
	UpdateMany(ctx context.Context, coll Collection, filter bson.M, update bson.M) (int64, error)
	// DeleteMany removes matching documents and returns the deleted count.
	DeleteMany(ctx context.Context, coll Collection, filter bson.M) (int64, error)
}
