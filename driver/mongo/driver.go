// Package driver provides the MongoDB driver for the golem ODM.
package driver

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leandroluk/golem-odm/config"
	"github.com/leandroluk/golem-odm/core"
)

// MongoDriver implements core.Driver on top of the official MongoDB driver.
type MongoDriver struct {
	client          *mongo.Client
	defaultDatabase string
}

var _ core.Driver = (*MongoDriver)(nil)

// NewMongoDriver connects to uri and verifies the connection.
// defaultDB is used for schemas that do not name a database.
func NewMongoDriver(ctx context.Context, uri string, defaultDB string, opts ...*mopt.ClientOptions) (*MongoDriver, error) {
	clientOpts := append([]*mopt.ClientOptions{mopt.Client().ApplyURI(uri)}, opts...)
	client, err := mongo.Connect(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("mongo driver: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo driver: ping: %w", err)
	}
	return &MongoDriver{client: client, defaultDatabase: defaultDB}, nil
}

// NewFromConfig connects using the URI, database and timeout of cfg.
func NewFromConfig(ctx context.Context, cfg config.Config) (*MongoDriver, error) {
	opts := mopt.Client().
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	return NewMongoDriver(ctx, cfg.MongoURI, cfg.Database, opts)
}

// Wrap uses an already connected client.
func Wrap(client *mongo.Client, defaultDB string) *MongoDriver {
	return &MongoDriver{client: client, defaultDatabase: defaultDB}
}

// Client returns the underlying MongoDB client.
func (driver *MongoDriver) Client() *mongo.Client {
	return driver.client
}

func (driver *MongoDriver) databaseName(coll core.Collection) (string, error) {
	if coll.Database != "" {
		return coll.Database, nil
	}
	if driver.defaultDatabase != "" {
		return driver.defaultDatabase, nil
	}
	return "", errors.New("mongo driver: database name is empty (set Schema.Database or the driver default)")
}

func (driver *MongoDriver) coll(coll core.Collection) (*mongo.Collection, error) {
	if coll.Name == "" {
		return nil, errors.New("mongo driver: collection name is empty")
	}
	database, err := driver.databaseName(coll)
	if err != nil {
		return nil, err
	}
	return driver.client.Database(database).Collection(coll.Name), nil
}

// prepare resolves the collection and binds the transaction session.
func (driver *MongoDriver) prepare(ctx context.Context, coll core.Collection) (context.Context, *mongo.Collection, error) {
	collection, err := driver.coll(coll)
	if err != nil {
		return nil, nil, err
	}
	ctx, err = driver.withSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ctx, collection, nil
}

func (driver *MongoDriver) Ping(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *MongoDriver) Close(ctx context.Context) error {
	return driver.client.Disconnect(ctx)
}

func (driver *MongoDriver) Insert(ctx context.Context, coll core.Collection, documents ...bson.M) ([]any, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return nil, err
	}
	documentList := make([]any, 0, len(documents))
	for _, doc := range documents {
		documentList = append(documentList, doc)
	}
	result, err := collection.InsertMany(ctx, documentList)
	if err != nil {
		return nil, err
	}
	return result.InsertedIDs, nil
}

func (driver *MongoDriver) FindOne(ctx context.Context, coll core.Collection, options *core.FindOptions) (bson.M, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return nil, err
	}
	var filter bson.M
	if options != nil {
		filter = options.Filter
	}
	var doc bson.M
	err = collection.FindOne(ctx, filterOrEmpty(filter), findOneOptions(options)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (driver *MongoDriver) Find(ctx context.Context, coll core.Collection, options *core.FindOptions) (core.Cursor, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return nil, err
	}
	var filter bson.M
	if options != nil {
		filter = options.Filter
	}
	cursor, err := collection.Find(ctx, filterOrEmpty(filter), findOptions(options))
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (driver *MongoDriver) Count(ctx context.Context, coll core.Collection, filter bson.M) (int64, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return 0, err
	}
	return collection.CountDocuments(ctx, filterOrEmpty(filter))
}

func (driver *MongoDriver) Distinct(ctx context.Context, coll core.Collection, field string, filter bson.M) ([]any, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return nil, err
	}
	return collection.Distinct(ctx, field, filterOrEmpty(filter))
}

func (driver *MongoDriver) Aggregate(ctx context.Context, coll core.Collection, pipeline []bson.M) (core.Cursor, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return nil, err
	}
	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (driver *MongoDriver) UpdateMany(ctx context.Context, coll core.Collection, filter bson.M, update bson.M) (int64, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return 0, err
	}
	result, err := collection.UpdateMany(ctx, filterOrEmpty(filter), update)
	if err != nil {
		return 0, err
	}
	return result.MatchedCount, nil
}

func (driver *MongoDriver) DeleteMany(ctx context.Context, coll core.Collection, filter bson.M) (int64, error) {
	ctx, collection, err := driver.prepare(ctx, coll)
	if err != nil {
		return 0, err
	}
	result, err := collection.DeleteMany(ctx, filterOrEmpty(filter))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
