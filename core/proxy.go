// Package core provides the fundamental building blocks of the golem ODM.
// This file defines RelationProxy, the per-entity cell holding a resolved
// relationship.
package core

import (
	"context"
	"sync"
)

// RelationProxy holds the resolution state of one relation of one entity.
//
// It is filled by eager loading (Query.With) or on demand by Load.
type RelationProxy struct {
	relation *Relation
	parent   *Entity

	mutex  sync.RWMutex
	loaded bool
	one    *Entity
	many   []*Entity
}

// Relation returns the descriptor of the proxied relation.
func (p *RelationProxy) Relation() *Relation {
	return p.relation
}

// Loaded reports whether the relation has been resolved.
func (p *RelationProxy) Loaded() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.loaded
}

// One returns the related entity of a HasOne or BelongsTo relation. It is
// nil when nothing matched or the relation is not loaded.
func (p *RelationProxy) One() *Entity {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.one
}

// Many returns the related entities of a HasMany relation.
func (p *RelationProxy) Many() []*Entity {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	out := make([]*Entity, len(p.many))
	copy(out, p.many)
	return out
}

// Value returns One() for single-valued relations and Many() otherwise.
func (p *RelationProxy) Value() any {
	if p.relation.Kind == HasMany {
		return p.Many()
	}
	return p.One()
}

// Load resolves the relation for the proxy's entity with one query.
// It is a no-op when the relation is already loaded.
func (p *RelationProxy) Load(ctx context.Context, constraint ...func(*Query)) error {
	if p.Loaded() {
		return nil
	}
	if p.parent.model == nil {
		return &RelationError{
			Relation: p.relation.Name,
			Entity:   p.parent.schema.Name,
			Err:      &ConfigurationError{Entity: p.parent.schema.Name, Reason: "entity is not bound to a model"},
		}
	}
	group := eagerGroup{name: p.relation.Name, constraints: constraint}
	return p.parent.model.Query().loadRelation(ctx, []*Entity{p.parent}, p.relation, group)
}

func (p *RelationProxy) setOne(e *Entity) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.one, p.many, p.loaded = e, nil, true
}

func (p *RelationProxy) setMany(list []*Entity) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if list == nil {
		list = []*Entity{}
	}
	p.one, p.many, p.loaded = nil, list, true
}

func (p *RelationProxy) serialize() any {
	if p.relation.Kind == HasMany {
		many := p.Many()
		out := make([]map[string]any, len(many))
		for i, e := range many {
			out[i] = e.ToMap()
		}
		return out
	}
	if one := p.One(); one != nil {
		return one.ToMap()
	}
	return nil
}
