package orchestrator

import (
	"context"

	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/mmodel"
)

// Credit posts funds into a user account from its configured system
// counterparty (spec §4.6 step 5, "For credits: Mutator.insert(CREDIT,
// user) + Mutator.insert(DEBIT, sourceSystem)").
func (o *Orchestrator) Credit(ctx context.Context, req Request) (*mmodel.Transaction, error) {
	return o.postTwoLeg(ctx, req, mmodel.TxnCredit, req.Source /*system*/, req.Destination /*user*/)
}

// Debit posts funds out of a user account into its configured system
// counterparty (spec §4.6 step 5, "For debits: Mutator.insert(DEBIT, user)
// + Mutator.insert(CREDIT, destinationSystem)").
func (o *Orchestrator) Debit(ctx context.Context, req Request) (*mmodel.Transaction, error) {
	return o.postTwoLeg(ctx, req, mmodel.TxnDebit, req.Source /*user*/, req.Destination /*system*/)
}

// postTwoLeg is the shared pipeline for Credit and Debit: one DEBIT leg and
// one CREDIT leg, no cross-currency. Each leg goes through its own
// Mutator call, and the transaction record, event, outbox, velocity and
// idempotency rows are separate statements; this path does not use
// MegaCTERepository.
func (o *Orchestrator) postTwoLeg(ctx context.Context, req Request, txnType mmodel.TransactionType, debitHolder, creditHolder string) (*mmodel.Transaction, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}
	if err := requireDistinct(debitHolder, creditHolder); err != nil {
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

		debitAccount, err := o.resolveAccount(ctx, req.LedgerID, debitHolder, o.Config.LockMode == retry.LockModeWait)
		if err != nil {
			return err
		}
		creditAccount, err := o.resolveAccount(ctx, req.LedgerID, creditHolder, o.Config.LockMode == retry.LockModeWait)
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
			ID: txnID, LedgerID: req.LedgerID, Type: txnType, Reference: req.Reference,
			Amount: req.Amount, Currency: req.Currency, Description: req.Description,
			SourceAccountID: &debitAccount.ID, DestinationAccountID: &creditAccount.ID,
			CorrelationID: correlationID, Metadata: req.Metadata, Status: mmodel.TxnPosted,
			CreatedAt: now, UpdatedAt: now,
		}

		if err := o.Transactions.Create(ctx, &txn); err != nil {
			return err
		}

		if err := o.appendEvent(ctx, req.LedgerID, mmodel.AggregateTransaction, txnID, "transaction:posted", map[string]any{
			"transactionId": txnID, "type": string(txnType), "amount": req.Amount, "currency": req.Currency,
			"sourceAccountId": debitAccount.ID, "destinationAccountId": creditAccount.ID,
		}, correlationID); err != nil {
			return err
		}

		if err := o.writeOutbox(ctx, "transaction.posted", txn); err != nil {
			return err
		}
		if err := o.recordVelocity(ctx, debitAccount.ID, txnID, req.Amount, mmodel.EntryDebit); err != nil {
			return err
		}
		if err := o.recordVelocity(ctx, creditAccount.ID, txnID, req.Amount, mmodel.EntryCredit); err != nil {
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
