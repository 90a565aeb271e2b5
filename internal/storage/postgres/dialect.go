package postgres

import (
	"fmt"

	"github.com/google/uuid"
)

// Dialect implements storage.Dialect for Postgres.
type Dialect struct{}

func (Dialect) GenerateUUID() string { return uuid.NewString() }

func (Dialect) Now() string { return "now()" }

func (Dialect) IntervalLiteral(seconds int) string {
	return fmt.Sprintf("interval '%d seconds'", seconds)
}

func (Dialect) StatementTimeoutSQL(ms int) string {
	return fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)
}

func (Dialect) LockTimeoutSQL(ms int) string {
	return fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)
}
