// Package postgres provides a PostgreSQL driver for the golem ODM that
// stores every document as a single JSONB value.
// This file defines the postgresTransaction type, which adapts pgx.Tx
// to the core.Transaction interface, and routes calls through it.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leandroluk/golem-odm/core"
)

// postgresTransaction wraps a pgx.Tx and implements the core.Transaction interface.
type postgresTransaction struct {
	transaction pgx.Tx
}

// Commit finalizes the transaction, making all changes permanent.
func (transaction *postgresTransaction) Commit(ctx context.Context) error {
	return transaction.transaction.Commit(ctx)
}

// Rollback aborts the transaction, discarding all changes made during it.
//
// If Rollback fails, the error is returned, but the transaction is still considered closed.
func (transaction *postgresTransaction) Rollback(ctx context.Context) error {
	return transaction.transaction.Rollback(ctx)
}

// Transaction begins a transaction. Attach it to calls with
// core.WithTransaction or Query.WithTransaction.
func (driver *PostgresDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &postgresTransaction{transaction: tx}, nil
}

// querier is the subset of pgxpool.Pool and pgx.Tx the driver uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var errForeignTransaction = errors.New("postgres driver: transaction was not started by this driver")

// conn returns the context's transaction when present, else the pool.
func (driver *PostgresDriver) conn(ctx context.Context) (querier, error) {
	tx := core.TransactionFrom(ctx)
	if tx == nil {
		return driver.pool, nil
	}
	pgTx, ok := tx.(*postgresTransaction)
	if !ok {
		return nil, errForeignTransaction
	}
	return pgTx.transaction, nil
}
