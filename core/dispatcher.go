// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the hook registry and the sequential hook dispatcher.
package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

type namedHook struct {
	name string
	fn   HookFunc
}

// HookRegistry holds, per hook kind, the callbacks registered on a schema in
// declaration order.
type HookRegistry struct {
	mutex    sync.RWMutex
	hookList map[HookKind][]namedHook
}

// NewHookRegistry creates an empty HookRegistry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hookList: make(map[HookKind][]namedHook)}
}

// On registers a hook. Its name, used in HookError, is derived from the
// function symbol.
//
// Example:
//
//	users.Hooks().On(core.BeforeSave, func(ctx context.Context, e *core.HookEvent) error {
//		if e.Entity.Get("email") == nil {
//			return core.Abort
//		}
//		return nil
//	})
func (r *HookRegistry) On(kind HookKind, fn HookFunc) {
	r.OnNamed(kind, funcName(fn), fn)
}

// OnNamed registers a hook under an explicit name.
func (r *HookRegistry) OnNamed(kind HookKind, name string, fn HookFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.hookList[kind] = append(r.hookList[kind], namedHook{name: name, fn: fn})
}

// Names lists the hooks registered for kind in execution order.
func (r *HookRegistry) Names(kind HookKind) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, len(r.hookList[kind]))
	for i, h := range r.hookList[kind] {
		names[i] = h.name
	}
	return names
}

// Has reports whether any hook is registered for kind.
func (r *HookRegistry) Has(kind HookKind) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.hookList[kind]) > 0
}

// Dispatch runs every hook registered for the event's kind, one at a time
// and in registration order.
//
// A before-hook returning Abort stops the phase and Dispatch reports
// aborted=true with a nil error. Abort from an after-hook is ignored. Any
// other error stops the phase and is returned wrapped in a HookError.
func (r *HookRegistry) Dispatch(ctx context.Context, event *HookEvent) (aborted bool, err error) {
	r.mutex.RLock()
	hooks := append([]namedHook(nil), r.hookList[event.Kind]...)
	r.mutex.RUnlock()

	entity := ""
	if event.Schema != nil {
		entity = event.Schema.Name
	}
	for _, h := range hooks {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := h.fn(ctx, event)
		if err == nil {
			continue
		}
		if errors.Is(err, Abort) {
			if event.Kind.IsBefore() {
				return true, nil
			}
			continue
		}
		return false, &HookError{Kind: event.Kind, Hook: h.name, Entity: entity, Err: err}
	}
	return false, nil
}

func funcName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return fmt.Sprintf("hook@%#x", pc)
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
