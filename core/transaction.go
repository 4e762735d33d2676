// Package core provides the fundamental building blocks of the golem ODM.
// This file binds driver transactions to the context that carries every
// store call of a model, a query or an eager load.
package core

import (
	"context"
	"errors"
)

type transactionKey struct{}

// WithTransaction returns a context bound to tx.
//
// Every model and query operation passes its context down to the driver,
// which looks the transaction up with TransactionFrom and runs the call in
// it: the mongo driver switches to the transaction's session context, the
// postgres driver executes on the pgx.Tx instead of the pool. A Query bound
// with Query.WithTransaction derives its context the same way, and eager
// loads started by that query inherit the binding.
//
//	tx, _ := driver.Transaction(ctx)
//	_, err := users.Create(core.WithTransaction(ctx, tx), map[string]any{"email": "ana@example.com"})
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom returns the transaction bound to ctx, or nil. Drivers
// reject a transaction opened by a different driver.
func TransactionFrom(ctx context.Context) Transaction {
	if v, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return v
	}
	return nil
}

// TransactionFunc runs the operations of one unit of work. txCtx is bound to
// the open transaction and must be passed to every model call that belongs
// to it.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction opens a transaction on driver, runs fn with a bound context
// and commits when fn returns nil.
//
// When fn fails the transaction is rolled back and fn's error is returned.
// A failed rollback does not hide it: both errors are combined with
// errors.Join, so errors.Is matches either.
//
//	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
//		user, err := users.Create(txCtx, map[string]any{"email": "ana@example.com"})
//		if err != nil {
//			return err
//		}
//		_, err = posts.Query().WithTransaction(core.TransactionFrom(txCtx)).
//			Where("userId", user.ID()).
//			Update(txCtx, map[string]any{"published": true})
//		return err
//	})
func RunTransaction(ctx context.Context, driver Driver, fn TransactionFunc) error {
	tx, err := driver.Transaction(ctx)
	if err != nil {
		return err
	}
	if err := fn(WithTransaction(ctx, tx)); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
