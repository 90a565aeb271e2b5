package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

// AccountRepository persists mmodel.Account, grounded on
// components/ledger/internal/adapters/postgres/account/account.postgresql.go:
// a span per method, squirrel for dynamic queries, manual Scan lists, and
// PG-error-to-business-error mapping on every write.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository builds a repository bound to the transaction-aware
// executor pattern: every method resolves its executor via dbtx.GetExecutor
// so it participates transparently in whatever transaction the Runner or
// Mutator already opened.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, a *mmodel.Account) error {
	ctx, span := startSpan(ctx, "create_account")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Insert("account").
		Columns("id", "ledger_id", "holder_id", "holder_type", "currency", "status",
			"balance", "credit_balance", "debit_balance", "pending_debit", "pending_credit",
			"version", "checksum", "overdraft_allowed", "normal_balance", "account_type",
			"account_code", "parent_account_id", "is_system", "is_hot", "created_at", "updated_at").
		Values(a.ID, a.LedgerID, a.HolderID, a.HolderType, a.Currency, a.Status,
			a.Balance, a.CreditBalance, a.DebitBalance, a.PendingDebit, a.PendingCredit,
			a.Version, a.Checksum, a.OverdraftAllowed, a.NormalBalance, a.AccountType,
			a.AccountCode, a.ParentAccountID, a.IsSystem, a.IsHot, a.CreatedAt, a.UpdatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "Account")
		}
		return err
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, ledgerID, id string, forUpdate bool) (*mmodel.Account, error) {
	ctx, span := startSpan(ctx, "find_account_by_id")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	builder := sq.Select(accountColumns...).
		From("account").
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
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Classify(errkind.ErrAccountNotFound, map[string]any{"accountId": id})
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// FindByIDNoWait is FindByID's FOR UPDATE NOWAIT variant for
// pessimistic-nowait lock mode.
func (r *AccountRepository) FindByIDNoWait(ctx context.Context, ledgerID, id string) (*mmodel.Account, error) {
	ctx, span := startSpan(ctx, "find_account_by_id_nowait")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select(accountColumns...).
		From("account").
		Where(sq.Eq{"ledger_id": ledgerID, "id": id}).
		Suffix("FOR UPDATE NOWAIT").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Classify(errkind.ErrAccountNotFound, map[string]any{"accountId": id})
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
			return nil, errkind.Wrap(errkind.KindOptimisticLockConflict, "SUMMA-1015", "row locked (nowait)", pgErr)
		}
		return nil, err
	}
	return acc, nil
}

func (r *AccountRepository) FindByHolderID(ctx context.Context, ledgerID, holderID string) (*mmodel.Account, error) {
	ctx, span := startSpan(ctx, "find_account_by_holder_id")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select(accountColumns...).
		From("account").
		Where(sq.Eq{"ledger_id": ledgerID, "holder_id": holderID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Classify(errkind.ErrAccountNotFound, map[string]any{"holderId": holderID})
	}
	return acc, err
}

// UpdateBalanceVersioned applies the optimistic-lock UPDATE predicate from
// spec §4.4 step 6: WHERE version matches the pre-read version. Zero rows
// affected means a concurrent writer won the race; callers must classify
// that as a retryable version conflict.
func (r *AccountRepository) UpdateBalanceVersioned(ctx context.Context, a *mmodel.Account, expectedVersion int64) (bool, error) {
	ctx, span := startSpan(ctx, "update_account_balance_versioned")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Update("account").
		Set("balance", a.Balance).
		Set("credit_balance", a.CreditBalance).
		Set("debit_balance", a.DebitBalance).
		Set("pending_debit", a.PendingDebit).
		Set("pending_credit", a.PendingCredit).
		Set("version", a.Version).
		Set("checksum", a.Checksum).
		Set("updated_at", a.UpdatedAt).
		Where(sq.Eq{"id": a.ID, "version": expectedVersion}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return false, errkind.ClassifyPGError(pgErr, "Account")
		}
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateStatus transitions an account's status (freeze/unfreeze/close),
// using the same dynamic-field-list builder pattern as the teacher's
// UpdateAccountByID.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status mmodel.AccountStatus, reason *string, at time.Time) error {
	ctx, span := startSpan(ctx, "update_account_status")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	updates := []string{"status = $" + strconv.Itoa(1)}
	args := []any{status}

	switch status {
	case mmodel.AccountFrozen:
		updates = append(updates, "freeze_reason = $"+strconv.Itoa(len(args)+1), "frozen_at = $"+strconv.Itoa(len(args)+2))
		args = append(args, reason, at)
	case mmodel.AccountClosed:
		updates = append(updates, "closed_at = $"+strconv.Itoa(len(args)+1))
		args = append(args, at)
	}

	args = append(args, id)
	query := "UPDATE account SET " + joinWithComma(updates) + " WHERE id = $" + strconv.Itoa(len(args))

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "Account")
		}
		return err
	}
	return nil
}

var accountColumns = []string{
	"id", "ledger_id", "holder_id", "holder_type", "currency", "status",
	"balance", "credit_balance", "debit_balance", "pending_debit", "pending_credit",
	"version", "checksum", "overdraft_allowed", "normal_balance", "account_type",
	"account_code", "parent_account_id", "is_system", "is_hot",
	"freeze_reason", "frozen_at", "closed_at", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*mmodel.Account, error) {
	var a mmodel.Account
	if err := row.Scan(
		&a.ID, &a.LedgerID, &a.HolderID, &a.HolderType, &a.Currency, &a.Status,
		&a.Balance, &a.CreditBalance, &a.DebitBalance, &a.PendingDebit, &a.PendingCredit,
		&a.Version, &a.Checksum, &a.OverdraftAllowed, &a.NormalBalance, &a.AccountType,
		&a.AccountCode, &a.ParentAccountID, &a.IsSystem, &a.IsHot,
		&a.FreezeReason, &a.FrozenAt, &a.ClosedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func joinWithComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
