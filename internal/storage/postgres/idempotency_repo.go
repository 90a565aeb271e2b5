package postgres

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

// IdempotencyRepository persists mmodel.IdempotencyKey: a repeat call with
// the same (ledgerId, key) returns the stored response with no other side
// effects (spec §3, §4.6 step 2).
type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Find(ctx context.Context, ledgerID, key string) (*mmodel.IdempotencyKey, error) {
	ctx, span := startSpan(ctx, "find_idempotency_key")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select("ledger_id", "key", "reference", "response", "expires_at", "created_at").
		From("idempotency_key").
		Where(sq.Eq{"ledger_id": ledgerID, "key": key}).
		Where(sq.Gt{"expires_at": sq.Expr("now()")}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	var k mmodel.IdempotencyKey
	if err := row.Scan(&k.LedgerID, &k.Key, &k.Reference, &k.Response, &k.ExpiresAt, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &k, nil
}

func (r *IdempotencyRepository) Upsert(ctx context.Context, k *mmodel.IdempotencyKey) error {
	ctx, span := startSpan(ctx, "upsert_idempotency_key")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `
INSERT INTO idempotency_key (ledger_id, key, reference, response, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (ledger_id, key) DO NOTHING`

	if _, err := exec.ExecContext(ctx, query, k.LedgerID, k.Key, k.Reference, k.Response, k.ExpiresAt, k.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "IdempotencyKey")
		}
		return err
	}
	return nil
}
