package errkind

import (
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the classifiers below distinguish. Query
// cancellation (statement timeout) is the one that is never transient.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateQueryCanceled        = "57014"
	sqlStateUniqueViolation      = "23505"
)

// ClassifyPGError maps a Postgres driver error to a business Error, the way
// the teacher's ValidatePGError maps constraint names to typed errors.
func ClassifyPGError(pgErr *pgconn.PgError, entityType string) error {
	switch pgErr.ConstraintName {
	case "uq_transaction_record_ledger_reference":
		return Classify(ErrDuplicateReference, map[string]any{"entity": entityType})
	case "uq_entry_account_version":
		return Classify(ErrVersionConflict, map[string]any{"entity": entityType})
	case "uq_ledger_event_aggregate_version":
		return Wrap(KindOptimisticLockConflict, "SUMMA-1013", "aggregate version race", pgErr)
	}

	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return Classify(ErrVersionConflict, map[string]any{"entity": entityType, "constraint": pgErr.ConstraintName})
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return Wrap(KindOptimisticLockConflict, "SUMMA-1014", "transient database contention", pgErr)
	case sqlStateQueryCanceled:
		return Wrap(KindInternal, "SUMMA-1000", "statement timeout or cancellation", pgErr)
	default:
		return Wrap(KindInternal, "SUMMA-1000", "database error", pgErr)
	}
}

// IsRetryablePGCode reports whether a raw SQLSTATE code is one the
// Transaction Runner should retry, independent of whether it has already
// been classified into a business Error.
func IsRetryablePGCode(code string) bool {
	switch code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable, sqlStateUniqueViolation:
		return true
	default:
		return false
	}
}
