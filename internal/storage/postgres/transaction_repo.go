package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

// TransactionRepository persists mmodel.Transaction, including hold rows
// (a hold is a transaction with IsHold=true, spec §3 "Hold"), grounded on
// the same repository shape as AccountRepository.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *mmodel.Transaction) error {
	ctx, span := startSpan(ctx, "create_transaction")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	var destinations []byte
	if len(t.HoldDestinations) > 0 {
		destinations, err = json.Marshal(t.HoldDestinations)
		if err != nil {
			return err
		}
	}

	query, args, err := sq.Insert("transaction_record").
		Columns("id", "ledger_id", "type", "reference", "amount", "currency", "description",
			"source_account_id", "destination_account_id", "correlation_id", "metadata",
			"status", "is_hold", "hold_expires_at", "hold_destinations", "hold_fx_rate",
			"refunded_amount", "original_txn_id", "created_at", "updated_at").
		Values(t.ID, t.LedgerID, t.Type, t.Reference, t.Amount, t.Currency, t.Description,
			t.SourceAccountID, t.DestinationAccountID, t.CorrelationID, metadata,
			t.Status, t.IsHold, t.HoldExpiresAt, destinations, t.HoldFXRate,
			t.RefundedAmount, t.OriginalTxnID, t.CreatedAt, t.UpdatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "Transaction")
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) FindByReference(ctx context.Context, ledgerID, reference string) (*mmodel.Transaction, error) {
	ctx, span := startSpan(ctx, "find_transaction_by_reference")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select(transactionColumns...).
		From("transaction_record").
		Where(sq.Eq{"ledger_id": ledgerID, "reference": reference}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Classify(errkind.ErrTransactionNotFound, map[string]any{"reference": reference})
	}
	return txn, err
}

func (r *TransactionRepository) FindByID(ctx context.Context, ledgerID, id string, forUpdate bool) (*mmodel.Transaction, error) {
	ctx, span := startSpan(ctx, "find_transaction_by_id")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	builder := sq.Select(transactionColumns...).
		From("transaction_record").
		Where(sq.Eq{"ledger_id": ledgerID, "id": id}).
		PlaceholderFormat(sq.Dollar)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Classify(errkind.ErrTransactionNotFound, map[string]any{"id": id})
	}
	return txn, err
}

// FindExpiredInflightHolds returns inflight holds past expiry, locked with
// FOR UPDATE SKIP LOCKED so concurrent expireAll sweeps never block each
// other (spec §4.5 expireAll).
func (r *TransactionRepository) FindExpiredInflightHolds(ctx context.Context, ledgerID string, limit int) ([]*mmodel.Transaction, error) {
	ctx, span := startSpan(ctx, "find_expired_inflight_holds")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select(transactionColumns...).
		From("transaction_record").
		Where(sq.Eq{"ledger_id": ledgerID, "is_hold": true, "status": mmodel.TxnInflight}).
		Where(sq.Lt{"hold_expires_at": sq.Expr("now()")}).
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*mmodel.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a transaction's status (inflight -> posted /
// voided / expired), optionally bumping refunded_amount.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status mmodel.TransactionStatus, refundedAmount *int64) error {
	ctx, span := startSpan(ctx, "update_transaction_status")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	builder := sq.Update("transaction_record").Set("status", status).Where(sq.Eq{"id": id})
	if refundedAmount != nil {
		builder = builder.Set("refunded_amount", *refundedAmount)
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "Transaction")
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errkind.Classify(errkind.ErrTransactionNotFound, map[string]any{"id": id})
	}
	return nil
}

var transactionColumns = []string{
	"id", "ledger_id", "type", "reference", "amount", "currency", "description",
	"source_account_id", "destination_account_id", "correlation_id", "metadata",
	"status", "is_hold", "hold_expires_at", "hold_destinations", "hold_fx_rate",
	"refunded_amount", "original_txn_id", "created_at", "updated_at",
}

func scanTransaction(row rowScanner) (*mmodel.Transaction, error) {
	var t mmodel.Transaction
	var metadata []byte
	var destinations []byte

	if err := row.Scan(
		&t.ID, &t.LedgerID, &t.Type, &t.Reference, &t.Amount, &t.Currency, &t.Description,
		&t.SourceAccountID, &t.DestinationAccountID, &t.CorrelationID, &metadata,
		&t.Status, &t.IsHold, &t.HoldExpiresAt, &destinations, &t.HoldFXRate,
		&t.RefundedAmount, &t.OriginalTxnID, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, err
		}
	}
	if len(destinations) > 0 {
		if err := json.Unmarshal(destinations, &t.HoldDestinations); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
