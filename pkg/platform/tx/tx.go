// Package tx carries a *sql.Tx on the context so stores can join the
// caller's transaction without it appearing in their signatures.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type txKey struct{}

// Executor is the query surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func WithTx(ctx context.Context, sqlTx *sql.Tx) context.Context {
	if sqlTx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, sqlTx)
}

func From(ctx context.Context) (*sql.Tx, bool) {
	sqlTx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return sqlTx, ok
}

// On returns the transaction on ctx, or db when there is none.
func On(ctx context.Context, db *sql.DB) Executor {
	if sqlTx, ok := From(ctx); ok {
		return sqlTx
	}
	return db
}

// Run calls fn with a transaction on its context and commits when fn
// succeeds. A transaction already on ctx is reused and left for its owner to
// commit.
func Run(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
