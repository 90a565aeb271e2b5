package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/mmodel"
)

// VelocityRepository persists mmodel.VelocityLogEntry, one row per
// affected account per posted transaction (spec §4.6 step 7), consumed by
// the (out-of-scope) velocity-limit plugin.
type VelocityRepository struct {
	db *sql.DB
}

func NewVelocityRepository(db *sql.DB) *VelocityRepository {
	return &VelocityRepository{db: db}
}

func (r *VelocityRepository) Insert(ctx context.Context, v *mmodel.VelocityLogEntry) error {
	ctx, span := startSpan(ctx, "insert_velocity_log")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Insert("account_transaction_log").
		Columns("account_id", "transaction_id", "amount", "direction", "created_at").
		Values(v.AccountID, v.TransactionID, v.Amount, v.Direction, v.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)
	return err
}

// SumSince returns the total amount moved by an account since `since`,
// used by the velocity-limit plugin's before-hook.
func (r *VelocityRepository) SumSince(ctx context.Context, accountID string, sinceSeconds int) (int64, error) {
	ctx, span := startSpan(ctx, "sum_velocity_since")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `SELECT COALESCE(sum(amount), 0) FROM account_transaction_log
		WHERE account_id = $1 AND created_at > now() - ($2 || ' seconds')::interval`

	var total int64
	if err := exec.QueryRowContext(ctx, query, accountID, sinceSeconds).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
