// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the process-wide event bus, which notifies observers
// after store operations completed. Unlike hooks, observers cannot veto or
// fail an operation.
package core

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Event names a completed store operation.
type Event string

const (
	// EventInsert is emitted after an entity was inserted.
	EventInsert Event = "insert"
	// EventUpdate is emitted after an entity or a set of documents was updated.
	EventUpdate Event = "update"
	// EventDelete is emitted after an entity or a set of documents was deleted.
	EventDelete Event = "delete"
	// EventFind is emitted after First or Fetch returned.
	EventFind Event = "find"
)

// EventPayload describes the operation behind an event.
//
// Entity is set for single-entity writes, Results for reads, and Filter
// with Count for bulk writes.
type EventPayload struct {
	Event   Event
	Schema  *Schema
	Entity  *Entity
	Results []*Entity
	Filter  bson.M
	Count   int64
}

// EventHandler defines the callback signature for event listeners.
type EventHandler func(payload EventPayload)

// EventDispatcher manages a list of event handlers and dispatches them
// when the corresponding events are emitted.
type EventDispatcher struct {
	mutex       sync.RWMutex
	handlerList map[Event][]EventHandler
}

var globalDispatcher = &EventDispatcher{
	handlerList: make(map[Event][]EventHandler),
}

// Subscribe registers an EventHandler for a specific Event.
//
// Example:
//
//	core.Subscribe(core.EventInsert, func(p core.EventPayload) {
//		log.Printf("%s inserted: %v", p.Schema.Name, p.Entity.ID())
//	})
func Subscribe(event Event, handler EventHandler) {
	globalDispatcher.mutex.Lock()
	defer globalDispatcher.mutex.Unlock()
	globalDispatcher.handlerList[event] = append(globalDispatcher.handlerList[event], handler)
}

// ResetSubscribers removes every registered handler.
func ResetSubscribers() {
	globalDispatcher.mutex.Lock()
	defer globalDispatcher.mutex.Unlock()
	globalDispatcher.handlerList = make(map[Event][]EventHandler)
}

// Emit triggers all registered handlers for the payload's Event.
//
// Handlers are executed asynchronously in separate goroutines.
func Emit(payload EventPayload) {
	globalDispatcher.mutex.RLock()
	defer globalDispatcher.mutex.RUnlock()
	for _, h := range globalDispatcher.handlerList[payload.Event] {
		go h(payload)
	}
}
