// Package dbtx propagates a *sql.Tx through context so storage adapters can
// transparently participate in whatever transaction the Runner opened,
// grounded 1:1 on the teacher's pkg/dbtx package surface.
package dbtx

import (
	"context"
	"database/sql"
)

type txContextKey string

const key txContextKey = "summa_tx"

// ContextWithTx installs tx into ctx. A nil tx is a no-op wrapper: the
// resulting context still reports no transaction via TxFromContext.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, key, tx)
}

// TxFromContext returns the transaction installed by ContextWithTx, or nil.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(key).(*sql.Tx)
	return tx
}

// Executor is the subset of *sql.DB / *sql.Tx every storage adapter needs.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetExecutor returns the transaction in ctx if present, else db.
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// RunInTransaction begins a transaction on db, installs it into ctx, runs
// fn, and commits on success or rolls back on error or panic (re-panicking
// after rollback).
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txCtx := ContextWithTx(ctx, tx)
	if err = fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return nil
}

// RunInTransactionOpts is RunInTransaction with explicit *sql.TxOptions,
// used by the Runner to set isolation level.
func RunInTransactionOpts(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txCtx := ContextWithTx(ctx, tx)
	if err = fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return nil
}
