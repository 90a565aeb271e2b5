package orchestrator

import (
	"context"

	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/mmodel"
)

// RefundRequest reverses all or part of an already-posted transaction.
type RefundRequest struct {
	Request
	OriginalTransactionID string
}

// Refund posts a new transaction with the debit/credit legs of the
// original reversed, capped at whatever has not already been refunded
// (spec §4.6 "refund"). A refund never mutates the original transaction
// record — it is itself a new, independently hash-chained posting, so the
// ledger never loses the fact that the original happened.
func (o *Orchestrator) Refund(ctx context.Context, req RefundRequest) (*mmodel.Transaction, error) {
	if err := o.validateRequest(req.Request); err != nil {
		return nil, err
	}

	var result mmodel.Transaction
	err := o.Runner.Run(ctx, func(ctx context.Context) error {
		if hit, err := o.idempotentResponse(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &result); err != nil {
			return err
		} else if hit {
			return nil
		}

		original, err := o.Transactions.FindByID(ctx, req.LedgerID, req.OriginalTransactionID, false)
		if err != nil {
			return err
		}
		if original == nil {
			return errkind.Classify(errkind.ErrTransactionNotFound, map[string]any{"transactionId": req.OriginalTransactionID})
		}
		if original.RefundedAmount+req.Amount > original.Amount {
			return errkind.Classify(errkind.ErrRefundExceedsOriginal, map[string]any{
				"transactionId": req.OriginalTransactionID, "alreadyRefunded": original.RefundedAmount,
				"requested": req.Amount, "original": original.Amount,
			})
		}

		if err := o.Hooks.BeforeTransaction(ctx, plugin.TransactionHookContext{
			LedgerID: req.LedgerID, Reference: req.Reference, Amount: req.Amount, Type: string(mmodel.TxnRefund),
		}); err != nil {
			return err
		}

		if existing, err := o.Transactions.FindByReference(ctx, req.LedgerID, req.Reference); err == nil && existing != nil {
			return fmtReferenceConflict(req.LedgerID, req.Reference)
		}

		forUpdate := o.Config.LockMode == retry.LockModeWait
		// A refund reverses direction: the original debit account is
		// credited back and the original credit account is debited.
		debitAccount, err := o.Accounts.FindByID(ctx, req.LedgerID, *original.DestinationAccountID, forUpdate)
		if err != nil {
			return err
		}
		creditAccount, err := o.Accounts.FindByID(ctx, req.LedgerID, *original.SourceAccountID, forUpdate)
		if err != nil {
			return err
		}

		txnID := o.NewID()
		correlationID := newCorrelationID(o.NewID)
		now := o.Now()

		if _, err := o.Mutator.Mutate(ctx, mutator.Input{
			LedgerID: req.LedgerID, TxnID: txnID, AccountID: debitAccount.ID,
			Side: mmodel.EntryDebit, Amount: req.Amount, Currency: req.Currency,
			LockMode: o.Config.LockMode, Snapshot: debitAccount,
		}); err != nil {
			return err
		}
		if _, err := o.Mutator.Mutate(ctx, mutator.Input{
			LedgerID: req.LedgerID, TxnID: txnID, AccountID: creditAccount.ID,
			Side: mmodel.EntryCredit, Amount: req.Amount, Currency: req.Currency,
			LockMode: o.Config.LockMode, Snapshot: creditAccount,
		}); err != nil {
			return err
		}

		txn := mmodel.Transaction{
			ID: txnID, LedgerID: req.LedgerID, Type: mmodel.TxnRefund, Reference: req.Reference,
			Amount: req.Amount, Currency: req.Currency, Description: req.Description,
			SourceAccountID: &creditAccount.ID, DestinationAccountID: &debitAccount.ID,
			CorrelationID: correlationID, Metadata: req.Metadata, Status: mmodel.TxnPosted,
			OriginalTxnID: &original.ID, CreatedAt: now, UpdatedAt: now,
		}
		if err := o.Transactions.Create(ctx, &txn); err != nil {
			return err
		}

		refunded := original.RefundedAmount + req.Amount
		if err := o.Transactions.UpdateStatus(ctx, original.ID, original.Status, &refunded); err != nil {
			return err
		}

		if err := o.appendEvent(ctx, req.LedgerID, mmodel.AggregateTransaction, txnID, "transaction:refunded", map[string]any{
			"transactionId": txnID, "originalTransactionId": original.ID, "amount": req.Amount,
		}, correlationID); err != nil {
			return err
		}
		if err := o.writeOutbox(ctx, "transaction.refunded", txn); err != nil {
			return err
		}
		if err := o.storeIdempotency(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &txn); err != nil {
			return err
		}

		result = txn
		registerAfterTransaction(ctx, o, mmodel.TxnRefund, req.Request)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
