// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the middleware system, which allows cross-cutting concerns
// (logging, auditing, metrics, etc.) to be applied to store operations.
package core

import (
	"context"
	"sync"
	"time"
)

// Operation represents the type of store operation being executed.
//
// It is used within middlewares and errors to distinguish between inserts,
// updates, deletes and the various reads.
type Operation string

const (
	// OperationInsert corresponds to an insert (create) operation.
	OperationInsert Operation = "insert"
	// OperationUpdate corresponds to an update operation.
	OperationUpdate Operation = "update"
	// OperationDelete corresponds to a delete operation.
	OperationDelete Operation = "delete"
	// OperationFind corresponds to a single-document read.
	OperationFind Operation = "find"
	// OperationFetch corresponds to a multi-document read.
	OperationFetch Operation = "fetch"
	// OperationCount corresponds to a count.
	OperationCount Operation = "count"
	// OperationDistinct corresponds to a distinct-values read.
	OperationDistinct Operation = "distinct"
	// OperationAggregate corresponds to an aggregation pipeline.
	OperationAggregate Operation = "aggregate"
)

// OperationInfo is the payload handed to middlewares.
type OperationInfo struct {
	Schema     *Schema
	Collection Collection
	Filter     any
}

// Handler is the function signature executed by the operation pipeline.
//
// It receives a context, the operation type, and the operation payload.
// Handlers are composed by middlewares to add cross-cutting logic.
type Handler func(ctx context.Context, op Operation, info *OperationInfo) error

// Middleware is a function that wraps a Handler with additional logic.
// Middlewares follow the decorator pattern.
type Middleware func(next Handler) Handler

var (
	globalMiddlewareMutex sync.RWMutex
	globalMiddlewareList  []Middleware
)

// Use registers a new global middleware, applied to the operations of every
// model.
//
// Middlewares wrap each other in registration order: the first registered
// middleware is the outermost one.
func Use(mw Middleware) {
	globalMiddlewareMutex.Lock()
	defer globalMiddlewareMutex.Unlock()
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// ResetMiddlewares removes every global middleware.
func ResetMiddlewares() {
	globalMiddlewareMutex.Lock()
	defer globalMiddlewareMutex.Unlock()
	globalMiddlewareList = nil
}

// chain applies the global middlewares, then the model's own, to the final
// handler. Model middlewares run innermost.
func chain(local []Middleware, final Handler) Handler {
	globalMiddlewareMutex.RLock()
	all := append(append([]Middleware(nil), globalMiddlewareList...), local...)
	globalMiddlewareMutex.RUnlock()

	h := final
	// wrap from the inside out so all[0] ends up outermost
	for i := len(all) - 1; i >= 0; i-- {
		h = all[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the middleware chain.
//
// The exec function contains the store call and is wrapped by the
// registered middlewares.
func dispatchOperation(ctx context.Context, local []Middleware, op Operation, info *OperationInfo, exec func(ctx context.Context) error) error {
	handler := chain(local, func(ctx context.Context, _ Operation, _ *OperationInfo) error {
		return exec(ctx)
	})
	return handler(ctx, op, info)
}

// LoggingMiddleware logs every store operation with its duration.
//
// Successful operations are logged at debug level, failures at error level.
//
// Example:
//
//	core.Use(core.LoggingMiddleware(slog.Default()))
func LoggingMiddleware(logger Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, info *OperationInfo) error {
			start := time.Now()
			err := next(ctx, op, info)
			args := []any{
				"op", string(op),
				"collection", info.Collection.String(),
				"took", time.Since(start),
			}
			if err != nil {
				logger.Error("golem: operation failed", append(args, "error", err)...)
				return err
			}
			logger.Debug("golem: operation", args...)
			return nil
		}
	}
}
