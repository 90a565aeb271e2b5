// Package runner implements the Transaction Runner (spec §4.1): a scoped
// transactional context with REPEATABLE READ isolation, statement/lock
// timeouts, transient-error retry with backoff, and after-commit callbacks.
// Grounded on internal/dbtx (teacher's pkg/dbtx) generalized with the
// isolation/timeout/retry machinery spec.md describes.
package runner

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/mlog"
	"github.com/summa-ledger/summa/internal/retry"
)

// Options configure a single Run invocation.
type Options struct {
	StatementTimeoutMs int
	LockTimeoutMs       int
	RetryConfig         retry.Config
}

// DefaultOptions matches spec §4.1's defaults (5000ms / 3000ms) and the
// optimistic-mode retry config.
func DefaultOptions() Options {
	return Options{
		StatementTimeoutMs: 5000,
		LockTimeoutMs:      3000,
		RetryConfig:        retry.DefaultRunnerConfig(),
	}
}

// AfterCommitFunc runs once the enclosing transaction has committed. A
// failure is logged, never surfaced — it must not retroactively invalidate
// an already-committed transaction.
type AfterCommitFunc func(ctx context.Context) error

// Runner opens REPEATABLE READ transactions, retries transient failures,
// and fires after-commit callbacks registered during the body.
type Runner struct {
	db      *sql.DB
	opts    Options
	clock   func() time.Time
}

// New builds a Runner against db with the given default Options.
func New(db *sql.DB, opts Options) *Runner {
	return &Runner{db: db, opts: opts, clock: time.Now}
}

// afterCommitKey is the context key under which Run stores the slice of
// registered after-commit callbacks, so RegisterAfterCommit can reach it
// from deep inside the body without threading a return value through every
// call site.
type afterCommitKey struct{}

type afterCommitBox struct {
	fns []AfterCommitFunc
}

// RegisterAfterCommit appends fn to the callbacks fired, in insertion
// order, after the enclosing Run's transaction commits. Calling it outside
// a Run is a no-op.
func RegisterAfterCommit(ctx context.Context, fn AfterCommitFunc) {
	box, _ := ctx.Value(afterCommitKey{}).(*afterCommitBox)
	if box == nil {
		return
	}
	box.fns = append(box.fns, fn)
}

// Run executes body inside a REPEATABLE READ transaction with the Runner's
// configured timeouts, retrying transient failures per opts.RetryConfig,
// then fires any after-commit callbacks body registered.
func (r *Runner) Run(ctx context.Context, body func(ctx context.Context) error) error {
	return r.RunWithOptions(ctx, r.opts, body)
}

// RunWithOptions is Run with a per-call Options override.
func (r *Runner) RunWithOptions(ctx context.Context, opts Options, body func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= opts.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			d := opts.RetryConfig.Backoff(attempt - 1)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		box := &afterCommitBox{}
		txCtx := context.WithValue(ctx, afterCommitKey{}, box)

		err := dbtx.RunInTransactionOpts(txCtx, r.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, func(innerCtx context.Context) error {
			if err := r.setTimeouts(innerCtx, opts); err != nil {
				return err
			}
			return body(innerCtx)
		})

		if err == nil {
			r.fireAfterCommit(ctx, box.fns)
			return nil
		}

		lastErr = err
		if !retry.IsTransient(err) {
			return err
		}
	}

	return lastErr
}

func (r *Runner) setTimeouts(ctx context.Context, opts Options) error {
	tx := dbtx.TxFromContext(ctx)
	if tx == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.StatementTimeoutMs)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", opts.LockTimeoutMs)); err != nil {
		return err
	}
	return nil
}

func (r *Runner) fireAfterCommit(ctx context.Context, fns []AfterCommitFunc) {
	logger := mlog.FromContext(ctx)
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			logger.Errorf("after-commit callback failed: %v", err)
		}
	}
}
