package retry

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/errkind"
)

// IsTransient reports whether err should cause the Transaction Runner to
// retry the body: a classified transient *errkind.Error, or a raw Postgres
// error whose SQLSTATE is one of the transient codes (spec §4.1).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errkind.IsTransient(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errkind.IsRetryablePGCode(pgErr.Code)
	}
	return false
}
