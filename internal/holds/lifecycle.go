package holds

import (
	"context"

	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/mmodel"
)

// Commit posts part or all of an inflight hold (spec §4.5 "commit"). A
// nil committedAmount commits the full hold amount. Destinations, if the
// hold has any, each receive committedAmount*share/hold.Amount with the
// undistributed remainder allocated deterministically (allocateRemainder)
// so the total credited equals committedAmount exactly.
func (m *Manager) Commit(ctx context.Context, ledgerID, holdID string, committedAmount *int64) (*mmodel.Transaction, error) {
	var result mmodel.Transaction
	err := m.Runner.Run(ctx, func(ctx context.Context) error {
		hold, err := m.Transactions.FindByID(ctx, ledgerID, holdID, false)
		if err != nil {
			return err
		}
		if hold == nil || !hold.IsHold {
			return errkind.Classify(errkind.ErrHoldNotFound, map[string]any{"holdId": holdID})
		}
		if hold.Status != mmodel.TxnInflight {
			return errkind.Classify(errkind.ErrHoldNotInflight, map[string]any{"holdId": holdID, "status": hold.Status})
		}
		if hold.HoldExpiresAt != nil && hold.HoldExpiresAt.Before(m.Now()) {
			return errkind.Classify(errkind.ErrHoldExpired, map[string]any{"holdId": holdID})
		}

		amount := hold.Amount
		if committedAmount != nil {
			amount = *committedAmount
		}
		if amount > hold.Amount {
			return errkind.Classify(errkind.ErrHoldAmountExceeded, map[string]any{"holdId": holdID, "committed": amount, "hold": hold.Amount})
		}

		if err := m.Hooks.BeforeHold(ctx, plugin.HoldHookContext{LedgerID: ledgerID, HoldID: holdID, Stage: "commit"}); err != nil {
			return err
		}

		source, err := m.lockAccount(ctx, ledgerID, *hold.SourceAccountID)
		if err != nil {
			return err
		}

		updated := *source
		updated.PendingDebit -= hold.Amount
		updated.Balance -= amount
		updated.Version++
		updated.Checksum = m.Hasher.BalanceChecksum(updated.Balance, updated.CreditBalance, updated.DebitBalance, updated.PendingDebit, updated.PendingCredit, updated.Version)
		ok, err := m.Accounts.UpdateBalanceVersioned(ctx, &updated, source.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errkind.Classify(errkind.ErrVersionConflict, map[string]any{"accountId": source.ID})
		}

		destinations := hold.HoldDestinations
		var amounts []int64
		if len(destinations) > 0 {
			amounts = allocateRemainder(amount, destinations, hold.Amount)
			for i, d := range destinations {
				if amounts[i] == 0 {
					continue
				}
				dest, err := m.lockAccount(ctx, ledgerID, d.AccountID)
				if err != nil {
					return err
				}
				destUpdated := *dest
				destUpdated.Balance += amounts[i]
				destUpdated.CreditBalance += amounts[i]
				destUpdated.Version++
				destUpdated.Checksum = m.Hasher.BalanceChecksum(destUpdated.Balance, destUpdated.CreditBalance, destUpdated.DebitBalance, destUpdated.PendingDebit, destUpdated.PendingCredit, destUpdated.Version)
				ok, err := m.Accounts.UpdateBalanceVersioned(ctx, &destUpdated, dest.Version)
				if err != nil {
					return err
				}
				if !ok {
					return errkind.Classify(errkind.ErrVersionConflict, map[string]any{"accountId": dest.ID})
				}
			}
		}

		if err := m.Transactions.UpdateStatus(ctx, holdID, mmodel.TxnPosted, nil); err != nil {
			return err
		}

		if err := m.appendEvent(ctx, ledgerID, holdID, "hold.committed", map[string]any{
			"holdId": holdID, "committedAmount": amount, "originalAmount": hold.Amount,
		}); err != nil {
			return err
		}

		result = *hold
		result.Status = mmodel.TxnPosted
		registerAfterHold(ctx, m, ledgerID, "commit")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Void cancels an inflight hold, releasing its pendingDebit reservation
// without moving balance (spec §4.5 "void").
func (m *Manager) Void(ctx context.Context, ledgerID, holdID string) error {
	return m.Runner.Run(ctx, func(ctx context.Context) error {
		hold, err := m.Transactions.FindByID(ctx, ledgerID, holdID, false)
		if err != nil {
			return err
		}
		if hold == nil || !hold.IsHold {
			return errkind.Classify(errkind.ErrHoldNotFound, map[string]any{"holdId": holdID})
		}
		if hold.Status != mmodel.TxnInflight {
			return errkind.Classify(errkind.ErrHoldNotInflight, map[string]any{"holdId": holdID, "status": hold.Status})
		}

		if err := m.Hooks.BeforeHold(ctx, plugin.HoldHookContext{LedgerID: ledgerID, HoldID: holdID, Stage: "void"}); err != nil {
			return err
		}

		source, err := m.lockAccount(ctx, ledgerID, *hold.SourceAccountID)
		if err != nil {
			return err
		}
		if err := m.releasePendingDebit(ctx, source, hold.Amount); err != nil {
			return err
		}

		if err := m.Transactions.UpdateStatus(ctx, holdID, mmodel.TxnVoided, nil); err != nil {
			return err
		}
		if err := m.appendEvent(ctx, ledgerID, holdID, "hold.voided", map[string]any{"holdId": holdID}); err != nil {
			return err
		}

		registerAfterHold(ctx, m, ledgerID, "void")
		return nil
	})
}

func (m *Manager) releasePendingDebit(ctx context.Context, a *mmodel.Account, amount int64) error {
	updated := *a
	updated.PendingDebit -= amount
	updated.Version++
	updated.Checksum = m.Hasher.BalanceChecksum(updated.Balance, updated.CreditBalance, updated.DebitBalance, updated.PendingDebit, updated.PendingCredit, updated.Version)
	ok, err := m.Accounts.UpdateBalanceVersioned(ctx, &updated, a.Version)
	if err != nil {
		return err
	}
	if !ok {
		return errkind.Classify(errkind.ErrVersionConflict, map[string]any{"accountId": a.ID})
	}
	return nil
}

// ExpireAll sweeps every inflight hold past its expiry and voids it (spec
// §4.5 "expireAll"). Candidates come from a FOR UPDATE SKIP LOCKED query;
// each hold is then expired in its own Runner attempt that re-reads it
// FOR UPDATE and skips it if another sweep already moved it out of
// INFLIGHT. The sweep stops at the first hold that fails to expire.
func (m *Manager) ExpireAll(ctx context.Context, ledgerID string, limit int) (int, error) {
	expired, err := m.Transactions.FindExpiredInflightHolds(ctx, ledgerID, limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, hold := range expired {
		if err := m.expireOne(ctx, ledgerID, hold); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (m *Manager) expireOne(ctx context.Context, ledgerID string, hold *mmodel.Transaction) error {
	return m.Runner.Run(ctx, func(ctx context.Context) error {
		current, err := m.Transactions.FindByID(ctx, ledgerID, hold.ID, true)
		if err != nil {
			return err
		}
		if current == nil || current.Status != mmodel.TxnInflight {
			return nil
		}
		source, err := m.lockAccount(ctx, ledgerID, *hold.SourceAccountID)
		if err != nil {
			return err
		}
		if err := m.releasePendingDebit(ctx, source, hold.Amount); err != nil {
			return err
		}
		if err := m.Transactions.UpdateStatus(ctx, hold.ID, mmodel.TxnExpired, nil); err != nil {
			return err
		}
		if err := m.appendEvent(ctx, ledgerID, hold.ID, "hold.expired", map[string]any{"holdId": hold.ID}); err != nil {
			return err
		}
		registerAfterHold(ctx, m, ledgerID, "expire")
		return nil
	})
}
