package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

type txKey int

const keyActiveTx txKey = iota

// executor is the query surface shared by *sqlx.DB and *sqlx.Tx.
type executor interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Chk returns the transaction bound to ctx if one is active, the pool
// connection otherwise.
func (r *Repository) Chk(ctx context.Context) executor {
	if tx, ok := ctx.Value(keyActiveTx).(executor); ok {
		return tx
	}
	return r.connection
}

// WithTx runs cb inside a transaction; repository calls made with the
// callback's context join it. Rolls back on error, commits otherwise.
func (r *Repository) WithTx(ctx context.Context, cb func(ctx context.Context) error) error {
	tx, err := r.connection.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	txCtx := context.WithValue(ctx, keyActiveTx, executor(tx))

	if err := cb(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}
