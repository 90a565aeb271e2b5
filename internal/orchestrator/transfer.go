package orchestrator

import (
	"context"

	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/mmodel"
)

// Transfer moves funds between two user accounts. When both accounts share
// a currency it behaves exactly like the two-leg credit/debit path; when
// they don't, the destination leg is scaled by the asset rate resolved
// once at the start of the attempt and stored on the transaction record
// (spec §9, cross-currency FX-rate Open Question: "lock the rate at
// hold.create time" generalizes here to "lock the rate at transfer
// time" — the rate never moves once the transaction exists).
func (o *Orchestrator) Transfer(ctx context.Context, req Request) (*mmodel.Transaction, error) {
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
			LedgerID: req.LedgerID, Reference: req.Reference, Amount: req.Amount, Type: string(mmodel.TxnTransfer),
		}); err != nil {
			return err
		}

		if existing, err := o.Transactions.FindByReference(ctx, req.LedgerID, req.Reference); err == nil && existing != nil {
			return fmtReferenceConflict(req.LedgerID, req.Reference)
		}

		forUpdate := o.Config.LockMode == retry.LockModeWait
		sourceAccount, err := o.resolveAccount(ctx, req.LedgerID, req.Source, forUpdate)
		if err != nil {
			return err
		}
		destAccount, err := o.resolveAccount(ctx, req.LedgerID, req.Destination, forUpdate)
		if err != nil {
			return err
		}

		creditAmount := req.Amount
		var fxRate *int64
		var fxCurrency *string
		if sourceAccount.Currency != destAccount.Currency {
			rate, err := o.AssetRates.ScaledRate(ctx, req.LedgerID, sourceAccount.Currency, destAccount.Currency)
			if err != nil {
				return err
			}
			fxRate = &rate
			fxCurrency = &destAccount.Currency
			creditAmount = (req.Amount * rate) / 1_000_000
		}

		txnID := o.NewID()
		correlationID := newCorrelationID(o.NewID)
		now := o.Now()

		if _, err := o.Mutator.Mutate(ctx, mutator.Input{
			LedgerID: req.LedgerID, TxnID: txnID, AccountID: sourceAccount.ID,
			Side: mmodel.EntryDebit, Amount: req.Amount, Currency: sourceAccount.Currency,
			LockMode: o.Config.LockMode, Snapshot: sourceAccount, FXRate: fxRate, FXCurrency: fxCurrency,
		}); err != nil {
			return err
		}
		if _, err := o.Mutator.Mutate(ctx, mutator.Input{
			LedgerID: req.LedgerID, TxnID: txnID, AccountID: destAccount.ID,
			Side: mmodel.EntryCredit, Amount: creditAmount, Currency: destAccount.Currency,
			LockMode: o.Config.LockMode, Snapshot: destAccount, FXRate: fxRate, FXCurrency: &sourceAccount.Currency,
		}); err != nil {
			return err
		}

		txn := mmodel.Transaction{
			ID: txnID, LedgerID: req.LedgerID, Type: mmodel.TxnTransfer, Reference: req.Reference,
			Amount: req.Amount, Currency: sourceAccount.Currency, Description: req.Description,
			SourceAccountID: &sourceAccount.ID, DestinationAccountID: &destAccount.ID,
			CorrelationID: correlationID, Metadata: req.Metadata, Status: mmodel.TxnPosted,
			HoldFXRate: fxRate, CreatedAt: now, UpdatedAt: now,
		}
		if err := o.Transactions.Create(ctx, &txn); err != nil {
			return err
		}

		if err := o.appendEvent(ctx, req.LedgerID, mmodel.AggregateTransaction, txnID, "transaction:posted", map[string]any{
			"transactionId": txnID, "type": string(mmodel.TxnTransfer), "amount": req.Amount,
			"sourceCurrency": sourceAccount.Currency, "destinationCurrency": destAccount.Currency,
			"sourceAccountId": sourceAccount.ID, "destinationAccountId": destAccount.ID, "fxRate": fxRate,
		}, correlationID); err != nil {
			return err
		}
		if err := o.writeOutbox(ctx, "transaction.posted", txn); err != nil {
			return err
		}
		if err := o.recordVelocity(ctx, sourceAccount.ID, txnID, req.Amount, mmodel.EntryDebit); err != nil {
			return err
		}
		if err := o.recordVelocity(ctx, destAccount.ID, txnID, creditAmount, mmodel.EntryCredit); err != nil {
			return err
		}
		if err := o.storeIdempotency(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &txn); err != nil {
			return err
		}

		result = txn
		registerAfterTransaction(ctx, o, mmodel.TxnTransfer, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
