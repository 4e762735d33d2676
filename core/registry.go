// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the process-wide schema registry.
package core

import (
	"sort"
	"sync"
)

// SchemaRegistry maps entity names to their schemas.
//
// It is populated incrementally as schemas are defined or first reached
// through a relation, and read thereafter. Reset clears it between tests.
type SchemaRegistry struct {
	mutex   sync.RWMutex
	schemas map[string]*Schema
}

// Registry is the process-wide schema registry.
var Registry = &SchemaRegistry{schemas: make(map[string]*Schema)}

// Register adds or replaces a schema under its name.
func (r *SchemaRegistry) Register(schema *Schema) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.schemas[schema.Name] = schema
}

// Lookup finds a schema by entity name.
func (r *SchemaRegistry) Lookup(name string) (*Schema, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	schema, ok := r.schemas[name]
	return schema, ok
}

// MustLookup finds a schema by entity name and panics if absent.
func (r *SchemaRegistry) MustLookup(name string) *Schema {
	schema, ok := r.Lookup(name)
	if !ok {
		panic("golem: schema " + name + " is not registered")
	}
	return schema
}

// Names lists the registered entity names in lexical order.
func (r *SchemaRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every registered schema.
func (r *SchemaRegistry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.schemas = make(map[string]*Schema)
}

// Lazy returns a deferred accessor resolving name through the registry.
// It allows relations to reference schemas that are defined later:
//
//	core.HasManyOf("posts", core.Lazy("Post"))
func Lazy(name string) func() *Schema {
	return func() *Schema {
		schema, _ := Registry.Lookup(name)
		return schema
	}
}
