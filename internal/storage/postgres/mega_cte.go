package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

// MegaCTERepository implements the Orchestrator's single-CTE optimization
// (spec §4.6, "Single-CTE optimization"): for the common 2-leg credit/debit
// path with no cross-currency, it chains new_txn -> updated accounts ->
// new_entry_debit -> new_entry_credit -> new_event -> new_outbox ->
// new_idem into one round trip. Every value is a bound parameter, numbered
// by a single monotonic placeholder counter (params) rather than hand-
// counted — spec §9 calls this out explicitly to avoid re-numbering bugs.
type MegaCTERepository struct {
	db *sql.DB
}

func NewMegaCTERepository(db *sql.DB) *MegaCTERepository {
	return &MegaCTERepository{db: db}
}

// params is the monotonic placeholder builder spec §9 recommends: every
// bound value is appended once and referenced by the "$N" token bind
// returns, so inserting or reordering a value can never desynchronize the
// SQL text from the argument slice.
type params struct {
	args []any
}

func (p *params) bind(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

// TwoLegPost is the parameter bundle for the hot 2-leg path.
type TwoLegPost struct {
	Txn             *mmodel.Transaction
	DebitAccount    *mmodel.Account
	DebitEntry      *mmodel.Entry
	DebitExpectedV  int64
	CreditAccount   *mmodel.Account
	CreditEntry     *mmodel.Entry
	CreditExpectedV int64
	Event           *mmodel.LedgerEvent
	Outbox          *mmodel.OutboxEntry
	Velocity        []*mmodel.VelocityLogEntry
	Idempotency     *mmodel.IdempotencyKey
}

// Execute runs the mega-CTE. Returns ok=false if either account's version
// predicate failed to match (a concurrent writer won the race) — the
// caller (Orchestrator, via the Runner) treats that as a retryable
// optimistic-lock conflict rather than inspecting partial results.
func (r *MegaCTERepository) Execute(ctx context.Context, p *TwoLegPost) (ok bool, err error) {
	ctx, span := startSpan(ctx, "mega_cte_post_transaction")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	txnMetadata, err := json.Marshal(p.Txn.Metadata)
	if err != nil {
		return false, err
	}
	eventData, err := json.Marshal(p.Event.EventData)
	if err != nil {
		return false, err
	}

	pb := &params{}
	now := pb.bind(p.Txn.CreatedAt)

	var b strings.Builder
	fmt.Fprintf(&b, `
WITH new_txn AS (
	INSERT INTO transaction_record (id, ledger_id, type, reference, amount, currency, description,
	                                 source_account_id, destination_account_id, correlation_id,
	                                 metadata, status, is_hold, created_at, updated_at)
	VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, false, %s, %s)
	RETURNING id
),`,
		pb.bind(p.Txn.ID), pb.bind(p.Txn.LedgerID), pb.bind(p.Txn.Type), pb.bind(p.Txn.Reference),
		pb.bind(p.Txn.Amount), pb.bind(p.Txn.Currency), pb.bind(p.Txn.Description),
		pb.bind(p.Txn.SourceAccountID), pb.bind(p.Txn.DestinationAccountID), pb.bind(p.Txn.CorrelationID),
		txnMetadataToken(pb, txnMetadata), pb.bind(p.Txn.Status), now, now)

	debitIDTok := pb.bind(p.DebitAccount.ID)
	fmt.Fprintf(&b, `
updated_debit_account AS (
	UPDATE account
	SET balance = %s, credit_balance = %s, debit_balance = %s,
	    pending_debit = %s, pending_credit = %s, version = %s, checksum = %s, updated_at = %s
	WHERE id = %s AND version = %s AND EXISTS (SELECT 1 FROM new_txn)
	RETURNING id
),`,
		pb.bind(p.DebitAccount.Balance), pb.bind(p.DebitAccount.CreditBalance), pb.bind(p.DebitAccount.DebitBalance),
		pb.bind(p.DebitAccount.PendingDebit), pb.bind(p.DebitAccount.PendingCredit), pb.bind(p.DebitAccount.Version),
		pb.bind(p.DebitAccount.Checksum), now, debitIDTok, pb.bind(p.DebitExpectedV))

	creditIDTok := pb.bind(p.CreditAccount.ID)
	fmt.Fprintf(&b, `
updated_credit_account AS (
	UPDATE account
	SET balance = %s, credit_balance = %s, debit_balance = %s,
	    pending_debit = %s, pending_credit = %s, version = %s, checksum = %s, updated_at = %s
	WHERE id = %s AND version = %s AND EXISTS (SELECT 1 FROM updated_debit_account)
	RETURNING id
),`,
		pb.bind(p.CreditAccount.Balance), pb.bind(p.CreditAccount.CreditBalance), pb.bind(p.CreditAccount.DebitBalance),
		pb.bind(p.CreditAccount.PendingDebit), pb.bind(p.CreditAccount.PendingCredit), pb.bind(p.CreditAccount.Version),
		pb.bind(p.CreditAccount.Checksum), now, creditIDTok, pb.bind(p.CreditExpectedV))

	currencyTok := pb.bind(p.DebitEntry.Currency)
	txnIDTok := pb.bind(p.Txn.ID)
	amountTok := pb.bind(p.DebitEntry.Amount)
	debitVersionTok := pb.bind(p.DebitAccount.Version)
	creditVersionTok := pb.bind(p.CreditAccount.Version)
	debitBalanceAfterTok := pb.bind(p.DebitAccount.Balance)
	creditBalanceAfterTok := pb.bind(p.CreditAccount.Balance)

	fmt.Fprintf(&b, `
new_entry_debit AS (
	INSERT INTO entry (id, transaction_id, account_id, entry_type, amount, currency,
	                    balance_before, balance_after, account_version, hash, prev_hash,
	                    sequence_number, created_at)
	SELECT %s, %s, %s, 'DEBIT', %s, %s, %s, %s, %s, %s, %s,
	       nextval('entry_sequence_number_seq'), %s
	FROM updated_credit_account
	RETURNING id
),`,
		pb.bind(p.DebitEntry.ID), txnIDTok, debitIDTok, amountTok, currencyTok,
		pb.bind(p.DebitEntry.BalanceBefore), debitBalanceAfterTok, debitVersionTok,
		pb.bind(p.DebitEntry.Hash), pb.bind(p.DebitEntry.PrevHash), now)

	fmt.Fprintf(&b, `
new_entry_credit AS (
	INSERT INTO entry (id, transaction_id, account_id, entry_type, amount, currency,
	                    balance_before, balance_after, account_version, hash, prev_hash,
	                    sequence_number, created_at)
	SELECT %s, %s, %s, 'CREDIT', %s, %s, %s, %s, %s, %s, %s,
	       nextval('entry_sequence_number_seq'), %s
	FROM new_entry_debit
	RETURNING id
),`,
		pb.bind(p.CreditEntry.ID), txnIDTok, creditIDTok, amountTok, currencyTok,
		pb.bind(p.CreditEntry.BalanceBefore), creditBalanceAfterTok, creditVersionTok,
		pb.bind(p.CreditEntry.Hash), pb.bind(p.CreditEntry.PrevHash), now)

	fmt.Fprintf(&b, `
new_event AS (
	INSERT INTO ledger_event (sequence_number, ledger_id, aggregate_type, aggregate_id,
	                          aggregate_version, event_type, event_data, correlation_id,
	                          hash, prev_hash, created_at)
	SELECT nextval('ledger_event_sequence_number_seq'), %s, %s, %s, 1, %s, %s, %s,
	       %s, NULL, %s
	FROM new_entry_credit
	RETURNING id
),`,
		pb.bind(p.Txn.LedgerID), pb.bind(p.Event.AggregateType), txnIDTok,
		pb.bind(p.Event.EventType), pb.bind(eventData), pb.bind(p.Event.CorrelationID), pb.bind(p.Event.Hash), now)

	fmt.Fprintf(&b, `
new_outbox AS (
	INSERT INTO outbox (topic, payload, sequence_num, created_at)
	SELECT %s, %s, nextval('ledger_event_sequence_number_seq'), %s
	FROM new_event
	RETURNING id
),`,
		pb.bind(p.Outbox.Topic), pb.bind(p.Outbox.Payload), now)

	idemKey := ""
	var idemExpires any
	var idemResponse []byte
	if p.Idempotency != nil {
		idemKey = p.Idempotency.Key
		idemExpires = p.Idempotency.ExpiresAt
		idemResponse = p.Idempotency.Response
	}
	idemKeyTok := pb.bind(idemKey)
	fmt.Fprintf(&b, `
new_idem AS (
	INSERT INTO idempotency_key (ledger_id, key, reference, response, expires_at, created_at)
	SELECT %s, %s, %s, %s, %s, %s
	FROM new_outbox
	WHERE %s != ''
	ON CONFLICT (ledger_id, key) DO NOTHING
	RETURNING ledger_id
)
SELECT
	(SELECT count(*) FROM updated_debit_account) AS debit_updated,
	(SELECT count(*) FROM updated_credit_account) AS credit_updated`,
		pb.bind(p.Txn.LedgerID), idemKeyTok, pb.bind(p.Txn.Reference), pb.bind(idemResponse), pb.bind(idemExpires), now, idemKeyTok)

	row := exec.QueryRowContext(ctx, b.String(), pb.args...)

	var debitUpdated, creditUpdated int
	if err := row.Scan(&debitUpdated, &creditUpdated); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return false, errkind.ClassifyPGError(pgErr, "Transaction")
		}
		return false, err
	}

	if debitUpdated == 0 || creditUpdated == 0 {
		return false, nil
	}

	for _, v := range p.Velocity {
		if err := r.insertVelocity(ctx, exec, v); err != nil {
			return false, err
		}
	}

	return true, nil
}

func txnMetadataToken(pb *params, metadata []byte) string {
	return pb.bind(metadata)
}

func (r *MegaCTERepository) insertVelocity(ctx context.Context, exec dbtx.Executor, v *mmodel.VelocityLogEntry) error {
	pb := &params{}
	query := fmt.Sprintf(
		`INSERT INTO account_transaction_log (account_id, transaction_id, amount, direction, created_at)
		 VALUES (%s, %s, %s, %s, %s)`,
		pb.bind(v.AccountID), pb.bind(v.TransactionID), pb.bind(v.Amount), pb.bind(v.Direction), pb.bind(v.CreatedAt))
	_, err := exec.ExecContext(ctx, query, pb.args...)
	return err
}
