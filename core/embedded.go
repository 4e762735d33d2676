// Package core provides the fundamental building blocks of the golem ODM.
// This file defines EmbeddedCollection, the proxy over a parent's inline
// sub-documents.
package core

import (
	"sync"
)

// EmbeddedCollection is the ordered in-memory sequence of an entity's
// embedded sub-documents.
//
// Structural mutations write the sequence back into the parent's attribute
// and mark it dirty, so the next save persists it. An eager-load constraint
// publishes a filtered view: Items returns the view while All and every
// mutation keep working on the complete sequence.
type EmbeddedCollection struct {
	parent   *Entity
	relation *Relation
	schema   *Schema

	mutex   sync.Mutex
	items   []*Entity
	view    []*Entity
	viewing bool
}

// Schema returns the schema of the sub-documents.
func (c *EmbeddedCollection) Schema() *Schema {
	return c.schema
}

// Items returns the visible sub-entities: the filtered view if a constraint
// was applied, otherwise the complete sequence.
func (c *EmbeddedCollection) Items() []*Entity {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.viewing {
		return append([]*Entity(nil), c.view...)
	}
	return append([]*Entity(nil), c.items...)
}

// All returns the complete sequence, ignoring any filtered view.
func (c *EmbeddedCollection) All() []*Entity {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]*Entity(nil), c.items...)
}

// Len returns the number of visible sub-entities.
func (c *EmbeddedCollection) Len() int {
	return len(c.Items())
}

// One returns the first visible sub-entity, which is the only one for an
// EmbedsOne relation.
func (c *EmbeddedCollection) One() *Entity {
	items := c.Items()
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// Filtered reports whether a filtered view is active.
func (c *EmbeddedCollection) Filtered() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.viewing
}

// ClearView drops the filtered view.
func (c *EmbeddedCollection) ClearView() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.view, c.viewing = nil, false
}

// Query starts an in-memory query over a snapshot of the visible items.
func (c *EmbeddedCollection) Query() *EmbeddedQuery {
	return NewEmbeddedQuery(c.Items())
}

// Create appends a new sub-entity built from attributes.
func (c *EmbeddedCollection) Create(attributes map[string]any) *Entity {
	return c.CreateMany([]map[string]any{attributes})[0]
}

// CreateMany appends one sub-entity per attribute map.
func (c *EmbeddedCollection) CreateMany(list []map[string]any) []*Entity {
	created := make([]*Entity, 0, len(list))
	for _, attributes := range list {
		sub := newEntity(c.schema, nil)
		for k, v := range attributes {
			sub.setLocked(k, v)
		}
		created = append(created, sub)
	}
	c.Append(created...)
	return created
}

// Append adds existing sub-entities to the end of the sequence. For an
// EmbedsOne relation the last appended entity replaces the current one.
func (c *EmbeddedCollection) Append(entities ...*Entity) {
	c.mutex.Lock()
	for _, sub := range entities {
		sub.mutex.Lock()
		sub.owner = c
		sub.mutex.Unlock()
	}
	c.items = append(c.items, entities...)
	if c.relation.Kind == EmbedsOne && len(c.items) > 1 {
		c.items = c.items[len(c.items)-1:]
	}
	c.view, c.viewing = nil, false
	c.mutex.Unlock()
	c.writeBack()
}

// Remove deletes the given sub-entities and returns how many were removed.
func (c *EmbeddedCollection) Remove(entities ...*Entity) int {
	targets := make(map[*Entity]struct{}, len(entities))
	for _, e := range entities {
		targets[e] = struct{}{}
	}
	return c.RemoveWhere(func(e *Entity) bool {
		_, ok := targets[e]
		return ok
	})
}

// RemoveWhere deletes every sub-entity for which match returns true and
// returns how many were removed.
func (c *EmbeddedCollection) RemoveWhere(match func(*Entity) bool) int {
	c.mutex.Lock()
	kept := c.items[:0:0]
	removed := 0
	for _, sub := range c.items {
		if match(sub) {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	c.items = kept
	c.view, c.viewing = nil, false
	c.mutex.Unlock()
	if removed > 0 {
		c.writeBack()
	}
	return removed
}

// Pop removes and returns the last sub-entity, or nil when empty.
func (c *EmbeddedCollection) Pop() *Entity {
	c.mutex.Lock()
	if len(c.items) == 0 {
		c.mutex.Unlock()
		return nil
	}
	last := c.items[len(c.items)-1]
	c.items = c.items[:len(c.items)-1]
	c.view, c.viewing = nil, false
	c.mutex.Unlock()
	c.writeBack()
	return last
}

// applyView publishes the result of an embedded query as the visible view.
func (c *EmbeddedCollection) applyView(constraints ...func(*EmbeddedQuery) *EmbeddedQuery) {
	q := NewEmbeddedQuery(c.All())
	for _, constrain := range constraints {
		if constrain != nil {
			q = constrain(q)
		}
	}
	result := q.Get()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.view, c.viewing = result, true
}

// writeBack stores the sequence into the parent attribute and marks it dirty.
func (c *EmbeddedCollection) writeBack() {
	c.mutex.Lock()
	documents := make([]any, 0, len(c.items))
	for _, sub := range c.items {
		documents = append(documents, map[string]any(sub.storageDocument(nil)))
	}
	c.mutex.Unlock()

	var value any = documents
	if c.relation.Kind == EmbedsOne {
		value = nil
		if len(documents) > 0 {
			value = documents[0]
		}
	}

	p := c.parent
	p.mutex.Lock()
	p.attributes[c.relation.Name] = value
	p.dirty[c.relation.Name] = struct{}{}
	owner := p.owner
	p.mutex.Unlock()

	if owner != nil {
		owner.writeBack()
	}
}

func (c *EmbeddedCollection) serialize() any {
	items := c.Items()
	if c.relation.Kind == EmbedsOne {
		if len(items) == 0 {
			return nil
		}
		return items[0].ToMap()
	}
	out := make([]map[string]any, len(items))
	for i, sub := range items {
		out[i] = sub.ToMap()
	}
	return out
}
