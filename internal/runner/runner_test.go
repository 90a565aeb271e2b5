package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/retry"
)

func fastOpts() Options {
	return Options{
		StatementTimeoutMs: 5000,
		LockTimeoutMs:      3000,
		RetryConfig: retry.Config{
			MaxRetries:     3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			JitterFactor:   0,
		},
	}
}

func expectTimeoutSetters(mock sqlmock.Sqlmock) {
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestRun_CommitsAndFiresAfterCommitInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectTimeoutSetters(mock)
	mock.ExpectCommit()

	r := New(db, fastOpts())

	var order []int
	err = r.Run(context.Background(), func(ctx context.Context) error {
		RegisterAfterCommit(ctx, func(ctx context.Context) error { order = append(order, 1); return nil })
		RegisterAfterCommit(ctx, func(ctx context.Context) error { order = append(order, 2); return nil })
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, order)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RetriesTransientThenSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// First attempt: fails with a transient classified error.
	mock.ExpectBegin()
	expectTimeoutSetters(mock)
	mock.ExpectRollback()

	// Second attempt: succeeds.
	mock.ExpectBegin()
	expectTimeoutSetters(mock)
	mock.ExpectCommit()

	r := New(db, fastOpts())

	attempts := 0
	err = r.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errkind.Wrap(errkind.KindOptimisticLockConflict, "SUMMA-X", "conflict", errkind.ErrVersionConflict)
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_DoesNotRetryNonTransient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectTimeoutSetters(mock)
	mock.ExpectRollback()

	r := New(db, fastOpts())

	attempts := 0
	wantErr := errkind.Wrap(errkind.KindInvalidArgument, "SUMMA-X", "bad input", errors.New("bad"))
	err = r.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ExhaustsRetriesAndSurfacesLastError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	opts := fastOpts()
	opts.RetryConfig.MaxRetries = 2

	for i := 0; i <= opts.RetryConfig.MaxRetries; i++ {
		mock.ExpectBegin()
		expectTimeoutSetters(mock)
		mock.ExpectRollback()
	}

	r := New(db, opts)

	attempts := 0
	err = r.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return errkind.Wrap(errkind.KindOptimisticLockConflict, "SUMMA-X", "conflict", errkind.ErrVersionConflict)
	})

	require.Error(t, err)
	require.Equal(t, opts.RetryConfig.MaxRetries+1, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}
