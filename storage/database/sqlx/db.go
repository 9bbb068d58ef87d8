package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
)

// pg error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// executor returns the transaction carried by ctx, or db.
func executor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := core.TxFromContext(ctx); ok {
		if stx, ok := tx.(*sqlx.Tx); ok {
			return stx
		}
	}
	return db
}

type transactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) core.Transactor {
	return &transactor{db: db}
}

// WithinTx runs fn in a transaction, or in the transaction already carried by ctx.
func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := core.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		if connectionLost(err) {
			return core.NewShutdownError(fmt.Sprintf("beginning transaction: %v", err))
		}
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(core.ContextWithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		if connectionLost(err) {
			return core.NewShutdownError(fmt.Sprintf("committing transaction: %v", err))
		}
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func connectionLost(err error) bool {
	cause := errors.Cause(err)
	return cause == sql.ErrConnDone || cause == driver.ErrBadConn
}

// constraintError returns the violated constraint name if err is a pg error with one of codes.
func constraintError(err error, codes ...string) (string, bool) {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok {
		return "", false
	}
	for _, code := range codes {
		if string(pqErr.Code) == code {
			return pqErr.Constraint, true
		}
	}
	return "", false
}

// notFound maps sql.ErrNoRows to errNotFound.
func notFound(err, errNotFound error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return errNotFound
	}
	return err
}

// affected returns errNotFound if res did not touch any row.
func affected(res sql.Result, err, errNotFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}
