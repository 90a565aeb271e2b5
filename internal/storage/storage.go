// Package storage defines an abstract storage adapter interface (spec
// §4.2). No type in this module implements Adapter: the core works
// directly against the per-table repositories in internal/storage/postgres,
// which issue their own SQL. postgres.Dialect satisfies Dialect.
package storage

import "context"

// Filter is an opaque where-clause the adapter translates to its backend's
// native query form.
type Filter map[string]any

// SortBy is a column/direction pair.
type SortBy struct {
	Column string
	Desc   bool
}

// Dialect supplies backend-specific SQL fragments so the core never embeds
// vendor syntax directly.
type Dialect interface {
	GenerateUUID() string
	Now() string
	IntervalLiteral(seconds int) string
	StatementTimeoutSQL(ms int) string
	LockTimeoutSQL(ms int) string
}

// Adapter is the storage primitive set the core consumes (spec §4.2). Every
// method accepts a context that may already carry a transaction (see
// internal/dbtx); implementations must honor it rather than opening a new
// connection.
type Adapter interface {
	Create(ctx context.Context, table string, values map[string]any) error
	FindOne(ctx context.Context, table string, where Filter, forUpdate bool) (map[string]any, error)
	FindMany(ctx context.Context, table string, where Filter, sortBy []SortBy, limit, offset int) ([]map[string]any, error)
	Update(ctx context.Context, table string, where Filter, values map[string]any) (int64, error)
	Delete(ctx context.Context, table string, where Filter) (int64, error)
	Count(ctx context.Context, table string, where Filter) (int64, error)
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	AdvisoryLock(ctx context.Context, key int64) (bool, error)
	AdvisoryUnlock(ctx context.Context, key int64) error
	Raw(ctx context.Context, sql string, params ...any) ([]map[string]any, error)
	RawMutate(ctx context.Context, sql string, params ...any) (int64, error)
}
