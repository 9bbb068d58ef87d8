package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}

	// Transactor runs fn inside a single unit of work: fn's error rolls everything back.
	// tx is handed to the repositories through context, see TxFromContext.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

type txKey struct{}

// ContextWithTx returns a copy of ctx carrying tx.
func ContextWithTx(ctx context.Context, tx DBTransactor) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (DBTransactor, bool) {
	tx, ok := ctx.Value(txKey{}).(DBTransactor)
	return tx, ok
}
