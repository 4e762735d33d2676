// Package core provides the fundamental building blocks of the golem ODM.
// This file defines lifecycle and query hooks that allow custom logic to be
// executed before or after persistence operations and reads.
package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HookKind identifies the phase a hook runs in.
//
// Hooks are identified by string tokens (e.g., "before:save") and are
// registered per schema. Before-hooks may veto the operation by returning
// Abort; after-hooks cannot.
type HookKind string

const (
	// BeforeCreate is executed before a new entity is inserted.
	BeforeCreate HookKind = "before:create"
	// BeforeUpdate is executed before a persisted entity is updated.
	BeforeUpdate HookKind = "before:update"
	// BeforeSave is executed before any insert or update of an entity.
	BeforeSave HookKind = "before:save"
	// BeforeDelete is executed before an entity is deleted.
	BeforeDelete HookKind = "before:delete"
	// BeforeFind is executed before a single-entity read.
	BeforeFind HookKind = "before:find"
	// BeforeFetch is executed before a multi-entity read or a paginated read.
	BeforeFetch HookKind = "before:fetch"

	// AfterCreate is executed after an entity is inserted.
	AfterCreate HookKind = "after:create"
	// AfterUpdate is executed after an entity is updated.
	AfterUpdate HookKind = "after:update"
	// AfterSave is executed after any insert or update of an entity.
	AfterSave HookKind = "after:save"
	// AfterDelete is executed after an entity is deleted.
	AfterDelete HookKind = "after:delete"
	// AfterFind is executed after a single-entity read found a result.
	AfterFind HookKind = "after:find"
	// AfterFetch is executed after a multi-entity read.
	AfterFetch HookKind = "after:fetch"
)

// IsBefore reports whether hooks of this kind may abort their phase.
func (k HookKind) IsBefore() bool {
	return strings.HasPrefix(string(k), "before:")
}

// HookEvent is passed to every hook.
//
// Lifecycle hooks receive the Entity. Query hooks receive the in-flight
// QueryContext, whose Query may be modified to change what is read. After
// fetch and after find hooks also receive the Results.
type HookEvent struct {
	Kind    HookKind
	Schema  *Schema
	Entity  *Entity
	Query   *QueryContext
	Results []*Entity
}

// HookFunc is the signature of a hook callback.
type HookFunc func(ctx context.Context, event *HookEvent) error

// QueryContext describes a read that is about to run or has just run.
type QueryContext struct {
	*Query

	// ID correlates the hook phases and log lines of one read.
	ID uuid.UUID
	// Op is the operation being executed (find, fetch, paginate).
	Op Operation
}

func newQueryContext(q *Query, op Operation) *QueryContext {
	return &QueryContext{Query: q, ID: uuid.New(), Op: op}
}
