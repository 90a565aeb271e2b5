// Package mutator implements the Entry/Balance Mutator (spec §4.4): the
// single point through which every balance change flows. Grounded on the
// account repository's version-predicate UPDATE pattern
// (account.postgresql.go) and update-balance.go's
// OperateBalances-before-persist sequencing, generalized to the
// pessimistic-wait / pessimistic-nowait / optimistic lock modes spec.md
// describes.
package mutator

import (
	"context"
	"time"

	"github.com/summa-ledger/summa/internal/canon"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/internal/storage/postgres"
	"github.com/summa-ledger/summa/mmodel"
)

// Clock lets tests substitute a deterministic time source.
type Clock func() time.Time

// Mutator is the single mutation point for account balances and entries.
type Mutator struct {
	Accounts *postgres.AccountRepository
	Entries  *postgres.EntryRepository
	Hasher   *canon.Hasher
	Now      Clock
}

// New builds a Mutator.
func New(accounts *postgres.AccountRepository, entries *postgres.EntryRepository, hasher *canon.Hasher) *Mutator {
	return &Mutator{Accounts: accounts, Entries: entries, Hasher: hasher, Now: time.Now}
}

// Input is the per-call contract from spec §4.4.
type Input struct {
	LedgerID  string
	TxnID     string
	AccountID string
	Side      mmodel.EntryType
	Amount    int64
	Currency  string
	LockMode  retry.LockMode
	// Snapshot, if non-nil, is a balance the caller already locked and
	// read in this same transaction — skips the extra round-trip.
	Snapshot *mmodel.Account
	FXRate     *int64
	FXCurrency *string
}

// Result is the outcome of one mutation (spec §4.4 step 7).
type Result struct {
	BalanceBefore int64
	BalanceAfter  int64
	NewVersion    int64
	Entry         *mmodel.Entry
}

// Mutate runs the full algorithm for a user account (spec §4.4 steps 1-7).
// A caller whose storage call returns a retryable version-conflict signal
// (ok=false from the mega-CTE / entry insert) should let that propagate to
// the Transaction Runner for retry rather than recovering here.
func (m *Mutator) Mutate(ctx context.Context, in Input) (*Result, error) {
	account := in.Snapshot
	var err error
	if account == nil {
		switch in.LockMode {
		case retry.LockModeWait:
			account, err = m.Accounts.FindByID(ctx, in.LedgerID, in.AccountID, true)
		case retry.LockModeNoWait:
			account, err = m.Accounts.FindByIDNoWait(ctx, in.LedgerID, in.AccountID)
		default:
			account, err = m.Accounts.FindByID(ctx, in.LedgerID, in.AccountID, false)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := enforceStatus(account, in.Side); err != nil {
		return nil, err
	}

	balanceBefore := account.Balance
	expectedVersion := account.Version

	updated := *account
	switch in.Side {
	case mmodel.EntryCredit:
		updated.CreditBalance += in.Amount
		updated.Balance += in.Amount
	case mmodel.EntryDebit:
		updated.DebitBalance += in.Amount
		updated.Balance -= in.Amount
	}
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = m.Now()
	updated.Checksum = m.Hasher.BalanceChecksum(
		updated.Balance, updated.CreditBalance, updated.DebitBalance,
		updated.PendingDebit, updated.PendingCredit, updated.Version,
	)

	prevHash, err := m.Entries.LatestHashForAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	entry := &mmodel.Entry{
		ID:             in.TxnID + ":" + in.AccountID,
		TransactionID:  in.TxnID,
		AccountID:      account.ID,
		EntryType:      in.Side,
		Amount:         in.Amount,
		Currency:       in.Currency,
		BalanceBefore:  balanceBefore,
		BalanceAfter:   updated.Balance,
		AccountVersion: updated.Version,
		PrevHash:       prevHash,
		FXRate:         in.FXRate,
		FXCurrency:     in.FXCurrency,
		CreatedAt:      updated.UpdatedAt,
	}

	hash, err := m.Hasher.EventHash(prevHash, entryHashPayload(entry))
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	if account.IsHot || account.IsSystem {
		if err := m.Entries.InsertHotEntry(ctx, entry); err != nil {
			return nil, err
		}
		return &Result{BalanceBefore: balanceBefore, BalanceAfter: balanceBefore, NewVersion: account.Version, Entry: entry}, nil
	}

	ok, err := m.Entries.InsertAndUpdateAccount(ctx, entry, &updated, expectedVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errkind.Classify(errkind.ErrVersionConflict, map[string]any{"accountId": account.ID})
	}

	return &Result{
		BalanceBefore: balanceBefore,
		BalanceAfter:  updated.Balance,
		NewVersion:    updated.Version,
		Entry:         entry,
	}, nil
}

func enforceStatus(a *mmodel.Account, side mmodel.EntryType) error {
	switch a.Status {
	case mmodel.AccountClosed:
		return errkind.Classify(errkind.ErrAccountClosed, map[string]any{"accountId": a.ID})
	case mmodel.AccountFrozen:
		if side == mmodel.EntryDebit {
			return errkind.Classify(errkind.ErrAccountFrozen, map[string]any{"accountId": a.ID})
		}
	}
	return nil
}

func entryHashPayload(e *mmodel.Entry) map[string]any {
	return map[string]any{
		"id":             e.ID,
		"transactionId":  e.TransactionID,
		"accountId":      e.AccountID,
		"entryType":      e.EntryType,
		"amount":         e.Amount,
		"currency":       e.Currency,
		"balanceBefore":  e.BalanceBefore,
		"balanceAfter":   e.BalanceAfter,
		"accountVersion": e.AccountVersion,
	}
}

// LockTwoAccounts returns (first, second) ordered ascending by account id
// to break the only possible deadlock cycle (spec §4.4 "Ordering
// tie-breaks", §5). Rejects same-account pairs — callers must reject
// self-transfers before reaching the Mutator.
func LockTwoAccounts(a, b string) (first, second string, err error) {
	if a == b {
		return "", "", errkind.Classify(errkind.ErrSelfTransfer, map[string]any{"accountId": a})
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}
