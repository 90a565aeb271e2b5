package orchestrator

import (
	"context"
	"sort"

	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/mmodel"
)

// Leg is one source or destination entry of a multi-leg journal posting.
// At most one field among Amount/Percentage/Remaining is set per leg — the
// orchestrator resolves whichever is present, in that priority order,
// mirroring the source/destination share resolution in the teacher's
// FromTo model (fixed amount first, then percentage share, then whatever
// is left divided among the legs marked Remaining).
type Leg struct {
	HolderID   string
	Amount     int64 // fixed amount, minor units
	Percentage int64 // basis points of Request.Amount, out of 10000
	Remaining  bool  // shares the leftover evenly with other Remaining legs
}

// JournalRequest posts N source legs against M destination legs in one
// transaction (spec §4.6 "journal": "Send/Distribute/FromTo legs", no
// textual DSL — see SUPPLEMENT in the expanded spec).
type JournalRequest struct {
	Request
	Sources      []Leg
	Destinations []Leg
}

// Journal resolves Sources and Destinations into concrete per-account
// amounts and posts every leg inside a single Runner attempt. Legs are
// locked in ascending account-id order across the whole leg set to match
// the two-account ordering rule generalized to N accounts (spec §4.4
// "Ordering tie-breaks", §5).
func (o *Orchestrator) Journal(ctx context.Context, req JournalRequest) (*mmodel.Transaction, error) {
	if err := o.validateRequest(req.Request); err != nil {
		return nil, err
	}
	if len(req.Sources) == 0 || len(req.Destinations) == 0 {
		return nil, errkind.New(errkind.KindInvalidArgument, "SUMMA-2003", "journal requires at least one source and one destination leg", nil)
	}

	sourceAmounts, err := resolveShares(req.Amount, req.Sources)
	if err != nil {
		return nil, err
	}
	destAmounts, err := resolveShares(req.Amount, req.Destinations)
	if err != nil {
		return nil, err
	}

	var result mmodel.Transaction
	err = o.Runner.Run(ctx, func(ctx context.Context) error {
		if hit, err := o.idempotentResponse(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &result); err != nil {
			return err
		} else if hit {
			return nil
		}

		if err := o.Hooks.BeforeTransaction(ctx, plugin.TransactionHookContext{
			LedgerID: req.LedgerID, Reference: req.Reference, Amount: req.Amount, Type: string(mmodel.TxnJournal),
		}); err != nil {
			return err
		}

		if existing, err := o.Transactions.FindByReference(ctx, req.LedgerID, req.Reference); err == nil && existing != nil {
			return fmtReferenceConflict(req.LedgerID, req.Reference)
		}

		forUpdate := o.Config.LockMode == retry.LockModeWait
		type leg struct {
			account *mmodel.Account
			amount  int64
			side    mmodel.EntryType
		}
		legs := make([]leg, 0, len(req.Sources)+len(req.Destinations))
		for i, s := range req.Sources {
			a, err := o.resolveAccount(ctx, req.LedgerID, s.HolderID, forUpdate)
			if err != nil {
				return err
			}
			legs = append(legs, leg{account: a, amount: sourceAmounts[i], side: mmodel.EntryDebit})
		}
		for i, d := range req.Destinations {
			a, err := o.resolveAccount(ctx, req.LedgerID, d.HolderID, forUpdate)
			if err != nil {
				return err
			}
			legs = append(legs, leg{account: a, amount: destAmounts[i], side: mmodel.EntryCredit})
		}

		seen := map[string]bool{}
		sort.Slice(legs, func(i, j int) bool { return legs[i].account.ID < legs[j].account.ID })
		for _, l := range legs {
			if seen[l.account.ID] {
				return errkind.Classify(errkind.ErrSelfTransfer, map[string]any{"accountId": l.account.ID})
			}
			seen[l.account.ID] = true
		}

		txnID := o.NewID()
		correlationID := newCorrelationID(o.NewID)
		now := o.Now()

		for _, l := range legs {
			if l.amount <= 0 {
				continue
			}
			if _, err := o.Mutator.Mutate(ctx, mutator.Input{
				LedgerID: req.LedgerID, TxnID: txnID, AccountID: l.account.ID,
				Side: l.side, Amount: l.amount, Currency: l.account.Currency,
				LockMode: o.Config.LockMode, Snapshot: l.account,
			}); err != nil {
				return err
			}
			if err := o.recordVelocity(ctx, l.account.ID, txnID, l.amount, l.side); err != nil {
				return err
			}
		}

		txn := mmodel.Transaction{
			ID: txnID, LedgerID: req.LedgerID, Type: mmodel.TxnJournal, Reference: req.Reference,
			Amount: req.Amount, Currency: req.Currency, Description: req.Description,
			CorrelationID: correlationID, Metadata: req.Metadata, Status: mmodel.TxnPosted,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := o.Transactions.Create(ctx, &txn); err != nil {
			return err
		}

		if err := o.appendEvent(ctx, req.LedgerID, mmodel.AggregateTransaction, txnID, "transaction:posted", map[string]any{
			"transactionId": txnID, "type": string(mmodel.TxnJournal), "amount": req.Amount,
			"legCount": len(legs),
		}, correlationID); err != nil {
			return err
		}
		if err := o.writeOutbox(ctx, "transaction.posted", txn); err != nil {
			return err
		}
		if err := o.storeIdempotency(ctx, req.LedgerID, req.IdempotencyKey, req.Reference, &txn); err != nil {
			return err
		}

		result = txn
		registerAfterTransaction(ctx, o, mmodel.TxnJournal, req.Request)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MultiTransfer is Journal's common case: one source leg split across many
// destinations (spec §4.6 "multiTransfer").
func (o *Orchestrator) MultiTransfer(ctx context.Context, req Request, destinations []Leg) (*mmodel.Transaction, error) {
	return o.Journal(ctx, JournalRequest{
		Request:      req,
		Sources:      []Leg{{HolderID: req.Source, Amount: req.Amount}},
		Destinations: destinations,
	})
}

// resolveShares turns a leg list into concrete minor-unit amounts summing
// exactly to total, using fixed amounts first, then percentage shares
// (basis points of total), then dividing whatever remains evenly among
// Remaining legs with the floor going to every leg and the undistributed
// remainder (total%n) assigned to the earliest legs in input order — a
// deterministic floor+remainder allocation (spec §4.6, multi-destination
// "deterministic floor+remainder allocation across multi-destination
// splits").
func resolveShares(total int64, legs []Leg) ([]int64, error) {
	amounts := make([]int64, len(legs))
	var allocated int64
	remainingIdx := make([]int, 0, len(legs))

	for i, l := range legs {
		switch {
		case l.Amount > 0:
			amounts[i] = l.Amount
			allocated += l.Amount
		case l.Percentage > 0:
			amounts[i] = total * l.Percentage / 10_000
			allocated += amounts[i]
		case l.Remaining:
			remainingIdx = append(remainingIdx, i)
		default:
			return nil, errkind.New(errkind.KindInvalidArgument, "SUMMA-2004", "every leg must specify amount, percentage, or remaining", nil)
		}
	}

	if len(remainingIdx) > 0 {
		left := total - allocated
		if left < 0 {
			return nil, errkind.New(errkind.KindInvalidArgument, "SUMMA-2005", "fixed and percentage legs exceed the transaction total", map[string]any{"over": -left})
		}
		share := left / int64(len(remainingIdx))
		remainder := left % int64(len(remainingIdx))
		for rank, idx := range remainingIdx {
			amounts[idx] = share
			if int64(rank) < remainder {
				amounts[idx]++
			}
			allocated += amounts[idx]
		}
	}

	if allocated != total {
		return nil, errkind.New(errkind.KindInvalidArgument, "SUMMA-2006", "leg amounts do not sum to the transaction total", map[string]any{"allocated": allocated, "total": total})
	}
	return amounts, nil
}
