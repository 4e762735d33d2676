// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Entity, the hydrated in-memory form of a document.
package core

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Entity is a document materialized for application code.
//
// Attributes are keyed by logical field names. An entity tracks which
// attributes diverged from their last persisted value, whether it was
// persisted, and a private cache of relationship and embedded proxies
// created on first access. Re-reading a document produces a new Entity
// with an empty proxy cache.
type Entity struct {
	schema *Schema
	model  *Model
	owner  *EmbeddedCollection // set for embedded sub-entities

	mutex      sync.Mutex
	attributes map[string]any
	original   map[string]any
	dirty      map[string]struct{}
	persisted  bool
	deleted    bool
	proxies    map[string]any // *RelationProxy or *EmbeddedCollection
}

func newEntity(schema *Schema, model *Model) *Entity {
	return &Entity{
		schema:     schema,
		model:      model,
		attributes: make(map[string]any),
		original:   make(map[string]any),
		dirty:      make(map[string]struct{}),
		proxies:    make(map[string]any),
	}
}

// hydrate builds a persisted entity from a stored document.
func hydrate(schema *Schema, model *Model, doc bson.M) *Entity {
	e := newEntity(schema, model)
	for key, value := range ReverseDocument(schema, normalizeDocument(doc)) {
		e.attributes[key] = value
		e.original[key] = value
	}
	e.persisted = true
	return e
}

// Schema returns the entity's schema.
func (e *Entity) Schema() *Schema {
	return e.schema
}

// Get returns an attribute value by logical name.
func (e *Entity) Get(name string) any {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if v, ok := e.attributes[name]; ok {
		return v
	}
	if value, ok := lookupPath(bson.M(e.attributes), name); ok {
		return value
	}
	return nil
}

// Has reports whether the attribute is present, even if nil.
func (e *Entity) Has(name string) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	_, ok := e.attributes[name]
	return ok
}

// Set assigns an attribute and updates the dirty set. Assigning an embedded
// field replaces its contents and drops the cached proxy.
func (e *Entity) Set(name string, value any) *Entity {
	e.mutex.Lock()
	e.setLocked(name, value)
	if relation, ok := e.schema.Relation(name); ok && relation.Kind.IsEmbedded() {
		delete(e.proxies, name)
	}
	owner := e.owner
	e.mutex.Unlock()

	if owner != nil {
		owner.writeBack()
	}
	return e
}

// Fill assigns several attributes at once.
func (e *Entity) Fill(values map[string]any) *Entity {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Set(k, values[k])
	}
	return e
}

func (e *Entity) setLocked(name string, value any) {
	e.attributes[name] = value
	if original, ok := e.original[name]; ok && sameValue(original, value) {
		delete(e.dirty, name)
		return
	}
	e.dirty[name] = struct{}{}
}

// MarkDirty flags an attribute as changed regardless of its value.
func (e *Entity) MarkDirty(name string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.dirty[name] = struct{}{}
}

// Dirty returns the changed attributes and their current values.
func (e *Entity) Dirty() map[string]any {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	out := make(map[string]any, len(e.dirty))
	for name := range e.dirty {
		out[name] = e.attributes[name]
	}
	return out
}

// IsDirty reports whether any of the named attributes changed, or any
// attribute at all when no name is given.
func (e *Entity) IsDirty(names ...string) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if len(names) == 0 {
		return len(e.dirty) > 0
	}
	for _, name := range names {
		if _, ok := e.dirty[name]; ok {
			return true
		}
	}
	return false
}

// Original returns the last persisted value of an attribute.
func (e *Entity) Original(name string) any {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.original[name]
}

// Persisted reports whether the entity exists in the store.
func (e *Entity) Persisted() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.persisted
}

// Deleted reports whether the entity was deleted through its model.
func (e *Entity) Deleted() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.deleted
}

// ID returns the primary-key value.
func (e *Entity) ID() any {
	return e.Get(e.schema.PrimaryKey)
}

// Attributes returns a copy of every attribute.
func (e *Entity) Attributes() map[string]any {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	out := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// Decode copies the attributes into a struct. Fields are matched by their
// `odm` tag first, then case-insensitively by name.
//
// Example:
//
//	var u struct {
//		ID    primitive.ObjectID `odm:"_id"`
//		Email string
//	}
//	err := entity.Decode(&u)
func (e *Entity) Decode(out any) error {
	return decodeInto(bson.M(e.Attributes()), out)
}

// ToMap serializes the entity using the schema's serialized names. Hidden
// fields are omitted. Loaded relations and embedded collections are
// serialized under their relation name.
func (e *Entity) ToMap() map[string]any {
	e.mutex.Lock()
	attributes := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		attributes[k] = v
	}
	proxies := make(map[string]any, len(e.proxies))
	for k, v := range e.proxies {
		proxies[k] = v
	}
	e.mutex.Unlock()

	out := make(map[string]any, len(attributes)+len(proxies))
	for name, value := range attributes {
		if _, proxied := proxies[name]; proxied {
			continue
		}
		if key, ok := e.schema.SerializedName(name); ok {
			out[key] = value
		}
	}
	for name, proxy := range proxies {
		key, ok := e.schema.SerializedName(name)
		if !ok {
			continue
		}
		switch p := proxy.(type) {
		case *RelationProxy:
			if p.Loaded() {
				out[key] = p.serialize()
			}
		case *EmbeddedCollection:
			out[key] = p.serialize()
		}
	}
	return out
}

// Relation returns the proxy of a declared, non-embedded relation,
// creating it on first access.
func (e *Entity) Relation(name string) (*RelationProxy, error) {
	relation, ok := e.schema.Relation(name)
	if !ok || relation.Kind.IsEmbedded() {
		return nil, &ConfigurationError{Entity: e.schema.Name, Relation: name, Reason: "no such relation"}
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if proxy, ok := e.proxies[name].(*RelationProxy); ok {
		return proxy, nil
	}
	proxy := &RelationProxy{relation: relation, parent: e}
	e.proxies[name] = proxy
	return proxy, nil
}

// Related returns the loaded value of a relation: an *Entity for HasOne and
// BelongsTo, a []*Entity for HasMany. It returns nil if not loaded.
func (e *Entity) Related(name string) any {
	proxy, err := e.Relation(name)
	if err != nil || !proxy.Loaded() {
		return nil
	}
	return proxy.Value()
}

// Embedded returns the collection proxy of a declared embedded relation,
// creating it on first access from the stored sub-documents.
func (e *Entity) Embedded(name string) (*EmbeddedCollection, error) {
	relation, ok := e.schema.Relation(name)
	if !ok || !relation.Kind.IsEmbedded() {
		return nil, &ConfigurationError{Entity: e.schema.Name, Relation: name, Reason: "no such embedded relation"}
	}
	schema, err := relation.Target()
	if err != nil {
		return nil, err
	}
	if schema == nil {
		schema = anonymousSchema(name)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if coll, ok := e.proxies[name].(*EmbeddedCollection); ok {
		return coll, nil
	}
	coll := &EmbeddedCollection{parent: e, relation: relation, schema: schema}
	var raw []any
	if relation.Kind == EmbedsOne {
		if v := e.attributes[name]; !isNil(v) {
			raw = []any{v}
		}
	} else {
		raw = toSlice(e.attributes[name])
	}
	for _, item := range raw {
		doc, ok := asDocument(item)
		if !ok {
			continue
		}
		sub := hydrate(schema, nil, doc)
		sub.persisted = e.persisted
		sub.owner = coll
		coll.items = append(coll.items, sub)
	}
	e.proxies[name] = coll
	return coll, nil
}

// storageDocument returns the attributes keyed by stored names.
func (e *Entity) storageDocument(only map[string]any) bson.M {
	if only != nil {
		return TranslateDocument(e.schema, bson.M(only))
	}
	return TranslateDocument(e.schema, bson.M(e.Attributes()))
}

// syncOriginal marks the current attributes as persisted.
func (e *Entity) syncOriginal() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.original = make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		e.original[k] = v
	}
	e.dirty = make(map[string]struct{})
	e.persisted = true
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%v)", e.schema.Name, e.ID())
}

func sameValue(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

func anonymousSchema(name string) *Schema {
	return &Schema{
		Name:         name,
		PrimaryKey:   DefaultPrimaryKey,
		Naming:       FieldNaming{},
		hooks:        NewHookRegistry(),
		fieldsByName: make(map[string]*Field),
	}
}
