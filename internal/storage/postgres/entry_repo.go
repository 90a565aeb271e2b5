package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

// EntryRepository persists mmodel.Entry and implements the Mutator's
// single-statement CTE from spec §4.4 step 6: insert the entry and update
// the account's balance/version in one round trip, the UPDATE's version
// predicate doubling as the optimistic lock.
type EntryRepository struct {
	db *sql.DB
}

func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// InsertAndUpdateAccount executes the mega-CTE: WITH updated_account AS
// (UPDATE ... WHERE id = $9 AND version = $10 RETURNING id), new_entry AS
// (INSERT ... SELECT ... FROM updated_account) SELECT id FROM new_entry. If
// updated_account yields zero rows (version predicate failed), new_entry
// never runs and the SELECT returns no rows — the caller (Mutator) treats
// that as a retryable version conflict, matching spec §4.4 step 6.
func (r *EntryRepository) InsertAndUpdateAccount(ctx context.Context, e *mmodel.Entry, a *mmodel.Account, expectedVersion int64) (bool, error) {
	ctx, span := startSpan(ctx, "insert_entry_and_update_account")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `
WITH updated_account AS (
	UPDATE account
	SET balance = $1, credit_balance = $2, debit_balance = $3,
	    pending_debit = $4, pending_credit = $5, version = $6,
	    checksum = $7, updated_at = $8
	WHERE id = $9 AND version = $10
	RETURNING id
),
new_entry AS (
	INSERT INTO entry (id, transaction_id, account_id, entry_type, amount, currency,
	                    balance_before, balance_after, account_version, hash, prev_hash,
	                    sequence_number, fx_rate, fx_currency, created_at)
	SELECT $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
	       nextval('entry_sequence_number_seq'), $22, $23, $24
	FROM updated_account
	RETURNING id
)
SELECT id FROM new_entry`

	row := exec.QueryRowContext(ctx, query,
		a.Balance, a.CreditBalance, a.DebitBalance, a.PendingDebit, a.PendingCredit,
		a.Version, a.Checksum, a.UpdatedAt, a.ID, expectedVersion,
		e.ID, e.TransactionID, e.AccountID, e.EntryType, e.Amount, e.Currency,
		e.BalanceBefore, e.BalanceAfter, e.AccountVersion, e.Hash, e.PrevHash,
		e.FXRate, e.FXCurrency, e.CreatedAt,
	)

	var returnedID string
	if err := row.Scan(&returnedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return false, errkind.ClassifyPGError(pgErr, "Entry")
		}
		return false, err
	}
	return true, nil
}

// InsertHotEntry inserts an entry for a hot/system account with no balance
// update — a periodic flush job aggregates these later (spec §4.4, "system
// or hot account" branch).
func (r *EntryRepository) InsertHotEntry(ctx context.Context, e *mmodel.Entry) error {
	ctx, span := startSpan(ctx, "insert_hot_entry")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `
INSERT INTO hot_account_entry (id, transaction_id, account_id, entry_type, amount, currency,
                                hash, prev_hash, sequence_number, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, nextval('entry_sequence_number_seq'), $9)`

	_, err := exec.ExecContext(ctx, query,
		e.ID, e.TransactionID, e.AccountID, e.EntryType, e.Amount, e.Currency,
		e.Hash, e.PrevHash, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "HotAccountEntry")
		}
		return err
	}
	return nil
}

// LatestHashForAccount returns the tail hash of an account's entry chain,
// or "" if the account has no entries yet (spec §4.4 step 5).
func (r *EntryRepository) LatestHashForAccount(ctx context.Context, accountID string) (string, error) {
	ctx, span := startSpan(ctx, "latest_hash_for_account")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `SELECT hash FROM entry WHERE account_id = $1 ORDER BY account_version DESC LIMIT 1`
	row := exec.QueryRowContext(ctx, query, accountID)

	var hash string
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return hash, nil
}

// FlushHotEntries aggregates pending hot_account_entry rows into the
// owning account's balance outside the hot path, then deletes the flushed
// rows, all in one transaction.
func (r *EntryRepository) FlushHotEntries(ctx context.Context, accountID string, threshold int) error {
	ctx, span := startSpan(ctx, "flush_hot_entries")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const countQuery = `SELECT count(*) FROM hot_account_entry WHERE account_id = $1`
	var n int
	if err := exec.QueryRowContext(ctx, countQuery, accountID).Scan(&n); err != nil {
		return err
	}
	if n < threshold {
		return nil
	}

	const flushQuery = `
WITH pending AS (
	SELECT entry_type, sum(amount) AS total
	FROM hot_account_entry
	WHERE account_id = $1
	GROUP BY entry_type
),
applied AS (
	UPDATE account
	SET credit_balance = credit_balance + COALESCE((SELECT total FROM pending WHERE entry_type = 'CREDIT'), 0),
	    debit_balance = debit_balance + COALESCE((SELECT total FROM pending WHERE entry_type = 'DEBIT'), 0),
	    balance = balance + COALESCE((SELECT total FROM pending WHERE entry_type = 'CREDIT'), 0)
	            - COALESCE((SELECT total FROM pending WHERE entry_type = 'DEBIT'), 0),
	    version = version + 1
	WHERE id = $1
	RETURNING id
)
DELETE FROM hot_account_entry WHERE account_id = $1 AND (SELECT id FROM applied) IS NOT NULL`

	_, err := exec.ExecContext(ctx, flushQuery, accountID)
	return err
}
