// Package holds implements the Hold Manager (spec §4.5): the
// authorization-hold lifecycle create -> (commit | void | expire), with
// deterministic floor+remainder allocation across multi-destination
// commits. Grounded on the Orchestrator's runner-wrapped pipeline shape
// and the account repository's pendingDebit field, generalized to a
// second transaction status machine layered on top of Transaction.
package holds

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/summa-ledger/summa/internal/canon"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/internal/runner"
	"github.com/summa-ledger/summa/internal/storage/postgres"
	"github.com/summa-ledger/summa/mmodel"
)

// Manager drives the hold state machine. It shares the Runner, Mutator,
// and repositories with the Orchestrator rather than owning separate
// copies, so holds and ordinary transactions serialize against the same
// locks.
type Manager struct {
	Runner      *runner.Runner
	Mutator     *mutator.Mutator
	Accounts    *postgres.AccountRepository
	Transactions *postgres.TransactionRepository
	Events      *postgres.EventRepository
	Outbox      *postgres.OutboxRepository
	AssetRates  *postgres.AssetRateRepository
	Hasher      *canon.Hasher
	Hooks       *plugin.Dispatcher
	LockMode    retry.LockMode
	Now         func() time.Time
	NewID       func() string
}

// New builds a Manager, defaulting Now/NewID like the Orchestrator does.
func New(m Manager) *Manager {
	if m.Now == nil {
		m.Now = time.Now
	}
	if m.NewID == nil {
		m.NewID = uuid.NewString
	}
	if m.Hooks == nil {
		m.Hooks = plugin.NewDispatcher()
	}
	return &m
}

// CreateRequest describes a new authorization hold.
type CreateRequest struct {
	LedgerID        string
	Reference       string
	SourceHolderID  string
	Amount          int64
	Currency        string
	ExpiresInMinutes int
	Destinations    []mmodel.HoldDestination // optional multi-destination split
}

// Create opens an inflight hold, raising the source account's pendingDebit
// by the hold amount without touching balance (spec §4.5 "create").
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*mmodel.Transaction, error) {
	if req.Amount <= 0 {
		return nil, errkind.New(errkind.KindInvalidArgument, "SUMMA-3001", "hold amount must be positive", nil)
	}
	if len(req.Destinations) > 0 {
		var sum int64
		for _, d := range req.Destinations {
			sum += d.Amount
		}
		if sum != req.Amount {
			return nil, errkind.New(errkind.KindInvalidArgument, "SUMMA-3002", "destination amounts must sum to the hold amount", map[string]any{"sum": sum, "amount": req.Amount})
		}
	}

	var result mmodel.Transaction
	err := m.Runner.Run(ctx, func(ctx context.Context) error {
		if err := m.Hooks.BeforeHold(ctx, plugin.HoldHookContext{LedgerID: req.LedgerID, Stage: "create"}); err != nil {
			return err
		}

		if existing, err := m.Transactions.FindByReference(ctx, req.LedgerID, req.Reference); err == nil && existing != nil {
			return errkind.Classify(errkind.ErrDuplicateReference, map[string]any{"ledgerId": req.LedgerID, "reference": req.Reference})
		}

		forUpdate := m.LockMode == retry.LockModeWait
		source, err := m.Accounts.FindByHolderID(ctx, req.LedgerID, req.SourceHolderID)
		if err != nil {
			return err
		}
		if forUpdate {
			source, err = m.Accounts.FindByID(ctx, req.LedgerID, source.ID, true)
			if err != nil {
				return err
			}
		}
		if source.Status != mmodel.AccountActive {
			return errkind.Classify(errkind.ErrAccountFrozen, map[string]any{"accountId": source.ID})
		}
		if source.AvailableBalance() < req.Amount {
			return errkind.Classify(errkind.ErrInsufficientBalance, map[string]any{"accountId": source.ID, "available": source.AvailableBalance(), "requested": req.Amount})
		}

		var fxRate *int64
		if req.Currency != "" && req.Currency != source.Currency {
			rate, err := m.AssetRates.ScaledRate(ctx, req.LedgerID, req.Currency, source.Currency)
			if err != nil {
				return err
			}
			fxRate = &rate
		}

		if err := m.bumpPendingDebit(ctx, source, req.Amount); err != nil {
			return err
		}

		now := m.Now()
		txnID := m.NewID()
		expiresAt := now.Add(time.Duration(req.ExpiresInMinutes) * time.Minute)
		txn := mmodel.Transaction{
			ID: txnID, LedgerID: req.LedgerID, Type: mmodel.TxnTransfer, Reference: req.Reference,
			Amount: req.Amount, Currency: req.Currency, SourceAccountID: &source.ID,
			Status: mmodel.TxnInflight, IsHold: true, HoldExpiresAt: &expiresAt,
			HoldDestinations: req.Destinations, HoldFXRate: fxRate,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := m.Transactions.Create(ctx, &txn); err != nil {
			return err
		}

		if err := m.appendEvent(ctx, req.LedgerID, txnID, "hold.created", map[string]any{
			"transactionId": txnID, "sourceAccountId": source.ID, "amount": req.Amount,
		}); err != nil {
			return err
		}

		result = txn
		registerAfterHold(ctx, m, req.LedgerID, "create")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// lockAccount reads an account honoring Manager.LockMode: a row lock
// (FOR UPDATE / FOR UPDATE NOWAIT) for the pessimistic modes, a plain read
// for optimistic mode.
func (m *Manager) lockAccount(ctx context.Context, ledgerID, accountID string) (*mmodel.Account, error) {
	switch m.LockMode {
	case retry.LockModeWait:
		return m.Accounts.FindByID(ctx, ledgerID, accountID, true)
	case retry.LockModeNoWait:
		return m.Accounts.FindByIDNoWait(ctx, ledgerID, accountID)
	default:
		return m.Accounts.FindByID(ctx, ledgerID, accountID, false)
	}
}

func (m *Manager) bumpPendingDebit(ctx context.Context, a *mmodel.Account, delta int64) error {
	updated := *a
	updated.PendingDebit += delta
	updated.Version++
	updated.Checksum = m.Hasher.BalanceChecksum(updated.Balance, updated.CreditBalance, updated.DebitBalance, updated.PendingDebit, updated.PendingCredit, updated.Version)
	ok, err := m.Accounts.UpdateBalanceVersioned(ctx, &updated, a.Version)
	if err != nil {
		return err
	}
	if !ok {
		return errkind.Classify(errkind.ErrVersionConflict, map[string]any{"accountId": a.ID})
	}
	*a = updated
	return nil
}

func (m *Manager) appendEvent(ctx context.Context, ledgerID, holdID, eventType string, data map[string]any) error {
	version, prevHash, err := m.Events.LatestVersion(ctx, ledgerID, mmodel.AggregateHold, holdID)
	if err != nil {
		return err
	}
	hash, err := m.Hasher.EventHash(prevHash, data)
	if err != nil {
		return err
	}
	return m.Events.Append(ctx, &mmodel.LedgerEvent{
		LedgerID: ledgerID, AggregateType: mmodel.AggregateHold, AggregateID: holdID,
		AggregateVersion: version + 1, EventType: eventType, EventData: data,
		Hash: hash, PrevHash: prevHash, CreatedAt: m.Now(),
	})
}

func registerAfterHold(ctx context.Context, m *Manager, ledgerID, stage string) {
	runner.RegisterAfterCommit(ctx, func(ctx context.Context) error {
		return m.Hooks.AfterHold(ctx, plugin.HoldHookContext{LedgerID: ledgerID, Stage: stage})
	})
}

// allocateRemainder splits amount across shares proportionally, using
// floor division for every share and handing the undistributed remainder
// to shares in descending original-amount order (ties broken by input
// order) so the result is deterministic and sums exactly to amount (spec
// §4.5 "commit": "deterministic remainder allocation: distribute the
// floor-division quotients, then add the remainder to destinations in
// deterministic order until exhausted").
func allocateRemainder(amount int64, shares []mmodel.HoldDestination, holdTotal int64) []int64 {
	out := make([]int64, len(shares))
	var distributed int64
	type rank struct {
		idx   int
		share int64
	}
	ranks := make([]rank, len(shares))
	for i, s := range shares {
		out[i] = amount * s.Amount / holdTotal
		distributed += out[i]
		ranks[i] = rank{idx: i, share: s.Amount}
	}
	remainder := amount - distributed
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].share > ranks[j].share })
	for i := int64(0); i < remainder; i++ {
		out[ranks[i%int64(len(ranks))].idx]++
	}
	return out
}
