package orchestrator

import (
	"context"

	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/mmodel"
)

// Correct posts an offsetting two-leg entry against the same account pair
// as an erroneous posting, without touching the original record (spec
// §4.6 "correct"). It differs from Refund only in bookkeeping intent —
// Refund is capped at the original amount and tracked against it, Correct
// is an independent adjustment with no such ceiling.
func (o *Orchestrator) Correct(ctx context.Context, req Request) (*mmodel.Transaction, error) {
	return o.postSystemAdjustment(ctx, req, mmodel.TxnCorrection, "transaction:corrected")
}

// Adjust posts a balanced debit/credit pair in which at least one leg is a
// system account, typically used for manual operator intervention (spec
// §4.6 "adjust").
func (o *Orchestrator) Adjust(ctx context.Context, req Request) (*mmodel.Transaction, error) {
	return o.postSystemAdjustment(ctx, req, mmodel.TxnAdjustment, "transaction:adjusted")
}

func (o *Orchestrator) postSystemAdjustment(ctx context.Context, req Request, txnType mmodel.TransactionType, eventType string) (*mmodel.Transaction, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}
	if err := requireDistinct(req.Source, req.Destination); err != nil {
		return nil, err
	}

	var result mmodel.Transaction
	err := o.Runner.Run(ctx, func(ctx context.Context) error {
		if hit, err := o.idempotentResponse(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &result); err != nil {
			return err
		} else if hit {
			return nil
		}

		if err := o.Hooks.BeforeTransaction(ctx, plugin.TransactionHookContext{
			LedgerID: req.LedgerID, Reference: req.Reference, Amount: req.Amount, Type: string(txnType),
		}); err != nil {
			return err
		}

		if existing, err := o.Transactions.FindByReference(ctx, req.LedgerID, req.Reference); err == nil && existing != nil {
			return fmtReferenceConflict(req.LedgerID, req.Reference)
		}

		forUpdate := o.Config.LockMode == retry.LockModeWait
		debitAccount, err := o.resolveAccount(ctx, req.LedgerID, req.Source, forUpdate)
		if err != nil {
			return err
		}
		creditAccount, err := o.resolveAccount(ctx, req.LedgerID, req.Destination, forUpdate)
		if err != nil {
			return err
		}

		if !debitAccount.IsSystem && !creditAccount.IsSystem {
			return errkind.New(errkind.KindInvalidArgument, "SUMMA-2007", "correct/adjust requires at least one system account leg", nil)
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
			ID: txnID, LedgerID: req.LedgerID, Type: txnType, Reference: req.Reference,
			Amount: req.Amount, Currency: req.Currency, Description: req.Description,
			SourceAccountID: &debitAccount.ID, DestinationAccountID: &creditAccount.ID,
			CorrelationID: correlationID, Metadata: req.Metadata, Status: mmodel.TxnPosted,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := o.Transactions.Create(ctx, &txn); err != nil {
			return err
		}

		if err := o.appendEvent(ctx, req.LedgerID, mmodel.AggregateTransaction, txnID, eventType, map[string]any{
			"transactionId": txnID, "type": string(txnType), "amount": req.Amount,
			"sourceAccountId": debitAccount.ID, "destinationAccountId": creditAccount.ID,
		}, correlationID); err != nil {
			return err
		}
		if err := o.writeOutbox(ctx, "transaction."+string(txnType), txn); err != nil {
			return err
		}
		if err := o.storeIdempotency(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &txn); err != nil {
			return err
		}

		result = txn
		registerAfterTransaction(ctx, o, txnType, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
