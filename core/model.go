// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the Model, which represents the entry point for working
// with a specific schema (entity). A Model handles persistence, queries,
// hooks, timestamps and soft deletes.
package core

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Model binds a Schema to a Driver and exposes high-level operations such as
// Create, Save, Delete, Find and Query.
type Model struct {
	schema  *Schema
	driver  Driver
	options modelOptions
}

type modelOptions struct {
	logger      Logger
	middlewares []Middleware
	perPage     int
	pageURL     string
	now         func() time.Time
}

// ModelOption customizes a Model.
type ModelOption func(*modelOptions)

// WithLogger logs every store operation of the model through
// LoggingMiddleware.
func WithLogger(logger Logger) ModelOption {
	return func(o *modelOptions) {
		if logger == nil {
			return
		}
		o.logger = logger
		o.middlewares = append(o.middlewares, LoggingMiddleware(logger))
	}
}

// WithMiddleware adds middlewares applied only to this model's operations.
func WithMiddleware(mws ...Middleware) ModelOption {
	return func(o *modelOptions) { o.middlewares = append(o.middlewares, mws...) }
}

// WithPerPage sets the default page size of Paginate and ForPage.
func WithPerPage(n int) ModelOption {
	return func(o *modelOptions) {
		if n > 0 {
			o.perPage = n
		}
	}
}

// WithPageURL sets the base URL used to build pagination links.
func WithPageURL(url string) ModelOption {
	return func(o *modelOptions) { o.pageURL = url }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) ModelOption {
	return func(o *modelOptions) { o.now = now }
}

// NewModel creates a new Model instance bound to a schema and driver.
//
// Example:
//
//	users := core.NewModel(userSchema, mongoDriver, core.WithLogger(slog.Default()))
func NewModel(schema *Schema, driver Driver, options ...ModelOption) *Model {
	o := modelOptions{
		logger:  nopLogger,
		perPage: 20,
		pageURL: "/",
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&o)
	}
	return &Model{schema: schema, driver: driver, options: o}
}

// Schema returns the model's schema.
func (m *Model) Schema() *Schema {
	return m.schema
}

// Driver returns the model's driver.
func (m *Model) Driver() Driver {
	return m.driver
}

// WithTenant creates a new Model bound to a different database.
//
// It clones the schema and replaces only the Database name. This is useful
// for multi-tenant or sharded architectures.
func (m *Model) WithTenant(database string) *Model {
	clone := *m.schema
	clone.Database = database
	return &Model{schema: &clone, driver: m.driver, options: m.options}
}

// related returns a model for another schema sharing this model's driver
// and options.
func (m *Model) related(schema *Schema) *Model {
	return &Model{schema: schema, driver: m.driver, options: m.options}
}

// Query starts a new query on the model.
func (m *Model) Query() *Query {
	return newQuery(m)
}

// New builds an unsaved entity. Declared defaults fill absent attributes.
func (m *Model) New(attributes map[string]any) *Entity {
	e := newEntity(m.schema, m)
	for _, f := range m.schema.Fields {
		if f.DefaultValue != nil {
			e.setLocked(f.Name, f.DefaultValue)
		}
	}
	e.Fill(attributes)
	return e
}

// Create builds an entity and saves it. If a before-hook vetoes the save,
// the unsaved entity is returned without error.
func (m *Model) Create(ctx context.Context, attributes map[string]any) (*Entity, error) {
	e := m.New(attributes)
	if _, err := m.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateMany creates one entity per attribute map, in order.
func (m *Model) CreateMany(ctx context.Context, list []map[string]any) ([]*Entity, error) {
	out := make([]*Entity, 0, len(list))
	for _, attributes := range list {
		e, err := m.Create(ctx, attributes)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Save inserts a new entity or updates the dirty attributes of a persisted
// one.
//
// Hooks run in this order: BeforeSave, BeforeCreate or BeforeUpdate, the
// store call, AfterCreate or AfterUpdate, AfterSave. A before-hook
// returning Abort vetoes the save: no store call is made, the entity is left
// unchanged and Save returns false with a nil error.
func (m *Model) Save(ctx context.Context, e *Entity) (bool, error) {
	creating := !e.Persisted()
	before, after := BeforeUpdate, AfterUpdate
	if creating {
		before, after = BeforeCreate, AfterCreate
	}

	for _, kind := range []HookKind{BeforeSave, before} {
		aborted, err := m.dispatch(ctx, &HookEvent{Kind: kind, Entity: e})
		if err != nil || aborted {
			return false, err
		}
	}

	if creating {
		if err := m.insert(ctx, e); err != nil {
			return false, err
		}
	} else if err := m.update(ctx, e); err != nil {
		return false, err
	}
	e.syncOriginal()
	event := EventUpdate
	if creating {
		event = EventInsert
	}
	Emit(EventPayload{Event: event, Schema: m.schema, Entity: e})

	for _, kind := range []HookKind{after, AfterSave} {
		if _, err := m.dispatch(ctx, &HookEvent{Kind: kind, Entity: e}); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (m *Model) insert(ctx context.Context, e *Entity) error {
	now := m.options.now()
	e.mutex.Lock()
	if f := m.schema.createdAtField; f != nil {
		if _, ok := e.attributes[f.Name]; !ok {
			e.setLocked(f.Name, now)
		}
	}
	if f := m.schema.updatedAtField; f != nil {
		e.setLocked(f.Name, now)
	}
	if id, ok := e.attributes[m.schema.PrimaryKey]; ok && isNil(id) {
		delete(e.attributes, m.schema.PrimaryKey)
	}
	e.mutex.Unlock()

	doc := e.storageDocument(nil)
	var ids []any
	err := m.exec(ctx, OperationInsert, nil, func(ctx context.Context) error {
		var err error
		ids, err = m.driver.Insert(ctx, m.collection(), doc)
		return err
	})
	if err != nil {
		return err
	}
	if len(ids) > 0 && !isNil(ids[0]) {
		e.mutex.Lock()
		if _, ok := e.attributes[m.schema.PrimaryKey]; !ok {
			e.attributes[m.schema.PrimaryKey] = ids[0]
		}
		e.mutex.Unlock()
	}
	return nil
}

func (m *Model) update(ctx context.Context, e *Entity) error {
	dirty := e.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	if f := m.schema.updatedAtField; f != nil {
		now := m.options.now()
		e.Set(f.Name, now)
		dirty[f.Name] = now
	}
	filter := bson.M{m.schema.PrimaryKey: e.ID()}
	update := bson.M{"$set": e.storageDocument(dirty)}
	return m.exec(ctx, OperationUpdate, filter, func(ctx context.Context) error {
		_, err := m.driver.UpdateMany(ctx, m.collection(), filter, update)
		return err
	})
}

// Delete removes a persisted entity, or stamps its deletedAt attribute when
// the schema uses soft deletes. A before-hook returning Abort vetoes the
// delete and Delete returns false with a nil error.
func (m *Model) Delete(ctx context.Context, e *Entity) (bool, error) {
	aborted, err := m.dispatch(ctx, &HookEvent{Kind: BeforeDelete, Entity: e})
	if err != nil || aborted {
		return false, err
	}

	filter := bson.M{m.schema.PrimaryKey: e.ID()}
	if f := m.schema.deletedAtField; f != nil {
		e.Set(f.Name, m.options.now())
		if err := m.update(ctx, e); err != nil {
			return false, err
		}
		e.syncOriginal()
	} else {
		err := m.exec(ctx, OperationDelete, filter, func(ctx context.Context) error {
			_, err := m.driver.DeleteMany(ctx, m.collection(), filter)
			return err
		})
		if err != nil {
			return false, err
		}
		e.mutex.Lock()
		e.persisted = false
		e.mutex.Unlock()
	}
	e.mutex.Lock()
	e.deleted = true
	e.mutex.Unlock()
	Emit(EventPayload{Event: EventDelete, Schema: m.schema, Entity: e})

	if _, err := m.dispatch(ctx, &HookEvent{Kind: AfterDelete, Entity: e}); err != nil {
		return true, err
	}
	return true, nil
}

// Restore clears the deletedAt attribute of a soft-deleted entity.
func (m *Model) Restore(ctx context.Context, e *Entity) error {
	f := m.schema.deletedAtField
	if f == nil {
		return &ConfigurationError{Entity: m.schema.Name, Reason: "schema does not use soft deletes"}
	}
	e.Set(f.Name, nil)
	if _, err := m.Save(ctx, e); err != nil {
		return err
	}
	e.mutex.Lock()
	e.deleted = false
	e.mutex.Unlock()
	return nil
}

// Find returns the entity with the given primary key, or nil.
func (m *Model) Find(ctx context.Context, id any) (*Entity, error) {
	return m.Query().Where(m.schema.PrimaryKey, id).First(ctx)
}

// FindOrFail is like Find but returns a NotFoundError when nothing matched.
func (m *Model) FindOrFail(ctx context.Context, id any) (*Entity, error) {
	e, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotFoundError{Entity: m.schema.Name, ID: id}
	}
	return e, nil
}

// FindBy returns the first entity whose field equals value, or nil.
func (m *Model) FindBy(ctx context.Context, field string, value any) (*Entity, error) {
	return m.Query().Where(field, value).First(ctx)
}

// All returns every entity of the model.
func (m *Model) All(ctx context.Context) ([]*Entity, error) {
	return m.Query().Fetch(ctx)
}

func (m *Model) collection() Collection {
	return Collection{Database: m.schema.Database, Name: m.schema.Collection}
}

// dispatch runs the schema's hooks for the event.
func (m *Model) dispatch(ctx context.Context, event *HookEvent) (bool, error) {
	event.Schema = m.schema
	return m.schema.hooks.Dispatch(ctx, event)
}

// exec runs a store call through the middleware chain and wraps failures in
// a DatabaseError.
func (m *Model) exec(ctx context.Context, op Operation, filter any, call func(ctx context.Context) error) error {
	info := &OperationInfo{Schema: m.schema, Collection: m.collection(), Filter: filter}
	err := dispatchOperation(ctx, m.options.middlewares, op, info, call)
	if err == nil {
		return nil
	}
	if IsDatabaseError(err) {
		return err
	}
	return &DatabaseError{Op: op, Collection: info.Collection.String(), Err: err}
}
