// Package core provides the fundamental building blocks of the golem ODM.
// This file implements eager loading: relationships are resolved for a
// whole batch of entities with one query per relationship.
package core

import (
	"context"
	"strings"
)

type eagerSpec struct {
	path        string
	constraints []func(*Query)
	embedded    func(*EmbeddedQuery) *EmbeddedQuery
}

// eagerGroup gathers the specs targeting one relation of the current level:
// its own constraints and the nested paths to load below it.
type eagerGroup struct {
	name        string
	constraints []func(*Query)
	embedded    []func(*EmbeddedQuery) *EmbeddedQuery
	nested      []eagerSpec
}

// groupEager splits dotted paths by their first segment, keeping the order
// in which relations were first requested.
func groupEager(specs []eagerSpec) []*eagerGroup {
	var groups []*eagerGroup
	index := make(map[string]*eagerGroup)
	for _, spec := range specs {
		head, tail, nested := strings.Cut(spec.path, ".")
		group, ok := index[head]
		if !ok {
			group = &eagerGroup{name: head}
			index[head] = group
			groups = append(groups, group)
		}
		if nested {
			group.nested = append(group.nested, eagerSpec{path: tail, constraints: spec.constraints, embedded: spec.embedded})
			continue
		}
		group.constraints = append(group.constraints, spec.constraints...)
		if spec.embedded != nil {
			group.embedded = append(group.embedded, spec.embedded)
		}
	}
	return groups
}

// resolveEager loads every requested relation for parents, one relation at
// a time.
func (q *Query) resolveEager(ctx context.Context, parents []*Entity) error {
	if len(q.eager) == 0 || len(parents) == 0 {
		return nil
	}
	schema := q.model.schema
	for _, group := range groupEager(q.eager) {
		relation, ok := schema.Relation(group.name)
		if !ok {
			return &RelationError{
				Relation: group.name,
				Entity:   schema.Name,
				Err:      &ConfigurationError{Entity: schema.Name, Relation: group.name, Reason: "no such relation"},
			}
		}
		if err := q.loadRelation(ctx, parents, relation, *group); err != nil {
			return err
		}
		q.model.options.logger.Debug("golem: relation loaded",
			"entity", schema.Name, "relation", relation.Name, "parents", len(parents))
	}
	return nil
}

// loadRelation resolves one relation for every parent and fills their
// proxies. Failures are wrapped in a RelationError.
func (q *Query) loadRelation(ctx context.Context, parents []*Entity, relation *Relation, group eagerGroup) error {
	err := q.resolveRelation(ctx, parents, relation, group)
	if err == nil {
		return nil
	}
	return &RelationError{Relation: relation.Name, Entity: q.model.schema.Name, Err: err}
}

func (q *Query) resolveRelation(ctx context.Context, parents []*Entity, relation *Relation, group eagerGroup) error {
	if relation.Kind.IsEmbedded() {
		return resolveEmbedded(parents, relation, group)
	}

	target, err := relation.Target()
	if err != nil {
		return err
	}

	// Owned relations look the related documents up by their foreign key;
	// BelongsTo looks the owner up by its own key.
	parentKey, relatedKey := relation.LocalKey, relation.ForeignKey
	if relation.Kind == BelongsTo {
		parentKey, relatedKey = relation.ForeignKey, relation.LocalKey
	}

	keys := distinctKeys(parents, parentKey)
	if len(keys) == 0 {
		assignRelated(parents, relation, parentKey, nil)
		return nil
	}

	related := q.model.related(target).Query().WithTransaction(q.tx).WhereIn(relatedKey, keys...)
	if relation.Constraint != nil {
		relation.Constraint(related)
	}
	for _, constrain := range group.constraints {
		if constrain != nil {
			constrain(related)
		}
	}
	related.eager = append(related.eager, group.nested...)

	rows, err := related.Fetch(ctx)
	if err != nil {
		return err
	}

	lookup := make(map[string][]*Entity, len(keys))
	for _, row := range rows {
		for _, key := range toSlice(row.Get(relatedKey)) {
			k := keyString(key)
			lookup[k] = append(lookup[k], row)
		}
	}
	assignRelated(parents, relation, parentKey, lookup)
	return nil
}

// distinctKeys collects the distinct non-null values of field across
// entities, in first-seen order. Array values contribute each element.
func distinctKeys(entities []*Entity, field string) []any {
	seen := make(map[string]struct{}, len(entities))
	keys := make([]any, 0, len(entities))
	for _, e := range entities {
		for _, key := range toSlice(e.Get(field)) {
			if isNil(key) {
				continue
			}
			k := keyString(key)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func assignRelated(parents []*Entity, relation *Relation, parentKey string, lookup map[string][]*Entity) {
	for _, parent := range parents {
		proxy, err := parent.Relation(relation.Name)
		if err != nil {
			continue
		}
		var matches []*Entity
		for _, key := range toSlice(parent.Get(parentKey)) {
			if isNil(key) {
				continue
			}
			matches = append(matches, lookup[keyString(key)]...)
		}
		if relation.Kind == HasMany {
			proxy.setMany(matches)
			continue
		}
		var one *Entity
		if len(matches) > 0 {
			one = matches[0]
		}
		proxy.setOne(one)
	}
}

// resolveEmbedded materializes embedded collections. Constraints publish a
// filtered view; the stored sequence is left intact.
//
// Embedded relations are constrained through WithEmbedded only. Query
// constraints and nested paths on them are configuration errors.
func resolveEmbedded(parents []*Entity, relation *Relation, group eagerGroup) error {
	if len(group.nested) > 0 {
		return &ConfigurationError{
			Entity:   relation.owner.Name,
			Relation: relation.Name,
			Reason:   "embedded relation cannot load nested path " + group.nested[0].path,
		}
	}
	for _, constrain := range group.constraints {
		if constrain != nil {
			return &ConfigurationError{
				Entity:   relation.owner.Name,
				Relation: relation.Name,
				Reason:   "embedded relation takes its constraint through WithEmbedded",
			}
		}
	}

	constraints := make([]func(*EmbeddedQuery) *EmbeddedQuery, 0, len(group.embedded)+1)
	if relation.EmbeddedConstraint != nil {
		constraints = append(constraints, relation.EmbeddedConstraint)
	}
	constraints = append(constraints, group.embedded...)

	for _, parent := range parents {
		coll, err := parent.Embedded(relation.Name)
		if err != nil {
			return err
		}
		if len(constraints) > 0 {
			coll.applyView(constraints...)
		}
	}
	return nil
}
