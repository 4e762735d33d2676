// Package driver provides the MongoDB driver for the golem ODM.
// This file adapts MongoDB sessions to the core.Transaction interface and
// attaches them to outgoing calls.
package driver

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/leandroluk/golem-odm/core"
)

// mongoTransaction wraps a MongoDB session and implements the core.Transaction interface.
//
// Commit and Rollback end the session after the operation completes.
type mongoTransaction struct {
	session mongo.Session
}

// Commit finalizes the transaction and ends the session.
func (transaction *mongoTransaction) Commit(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.CommitTransaction(ctx)
}

// Rollback aborts the transaction and ends the session.
func (transaction *mongoTransaction) Rollback(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.AbortTransaction(ctx)
}

// Transaction starts a session with an open transaction. Attach it to calls
// with core.WithTransaction or Query.WithTransaction.
func (driver *MongoDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := driver.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &mongoTransaction{session: session}, nil
}

var errForeignTransaction = errors.New("mongo driver: transaction was not started by this driver")

// withSession binds the context's transaction, if any, to the call.
func (driver *MongoDriver) withSession(ctx context.Context) (context.Context, error) {
	tx := core.TransactionFrom(ctx)
	if tx == nil {
		return ctx, nil
	}
	mt, ok := tx.(*mongoTransaction)
	if !ok {
		return nil, errForeignTransaction
	}
	return mongo.NewSessionContext(ctx, mt.session), nil
}
