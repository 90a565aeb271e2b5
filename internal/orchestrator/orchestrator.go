// Package orchestrator implements the Transaction Orchestrator (spec
// §4.6): credit, debit, transfer, multiTransfer, refund, correct, adjust,
// and journal, each running the validate -> idempotency-short-circuit ->
// before-hooks -> resolve-accounts -> mutate -> event -> side-effects ->
// after-hooks pipeline inside one Runner invocation. Grounded on
// update-balance.go's UseCase-command shape (one exported method per
// business operation, dependencies injected as repository fields).
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/summa-ledger/summa/internal/canon"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/internal/mutator"
	"github.com/summa-ledger/summa/internal/plugin"
	"github.com/summa-ledger/summa/internal/retry"
	"github.com/summa-ledger/summa/internal/runner"
	"github.com/summa-ledger/summa/internal/storage/postgres"
	"github.com/summa-ledger/summa/internal/validate"
	"github.com/summa-ledger/summa/mmodel"
)

// Config holds the engine-wide settings the Orchestrator consults (spec
// §6.1: systemAccounts, advanced.maxTransactionAmount, lockMode).
type Config struct {
	SystemAccounts        map[string]string
	MaxTransactionAmount  int64
	LockMode              retry.LockMode
	IdempotencyTTL        time.Duration
}

// DefaultConfig matches spec §6.1's defaults.
func DefaultConfig() Config {
	return Config{
		SystemAccounts:       map[string]string{},
		MaxTransactionAmount: 100_000_000_000,
		LockMode:             retry.LockModeOptimistic,
		IdempotencyTTL:       24 * time.Hour,
	}
}

// Orchestrator wires the Runner, Mutator, and storage repositories into the
// eight operations spec §4.6 exposes.
type Orchestrator struct {
	Runner      *runner.Runner
	Mutator     *mutator.Mutator
	Accounts    *postgres.AccountRepository
	Transactions *postgres.TransactionRepository
	Events      *postgres.EventRepository
	Outbox      *postgres.OutboxRepository
	Idempotency *postgres.IdempotencyRepository
	Velocity    *postgres.VelocityRepository
	MegaCTE     *postgres.MegaCTERepository
	AssetRates  *postgres.AssetRateRepository
	Hasher      *canon.Hasher
	Hooks       *plugin.Dispatcher
	Validator   *validate.Validator
	Config      Config
	Now         func() time.Time
	NewID       func() string
}

// New builds an Orchestrator with sensible defaults for Now/NewID.
func New(deps Orchestrator) *Orchestrator {
	o := deps
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Hooks == nil {
		o.Hooks = plugin.NewDispatcher()
	}
	if o.Validator == nil {
		o.Validator = validate.New()
	}
	return &o
}

// Request is the common shape every public operation accepts.
type Request struct {
	LedgerID       string         `json:"ledgerId" validate:"required"`
	Reference      string         `json:"reference" validate:"required"`
	Amount         int64          `json:"amount" validate:"required,gt=0"`
	Currency       string         `json:"currency" validate:"required,len=3"`
	Description    string         `json:"description"`
	Source         string         `json:"source"` // holder id or system account name; empty for journal/refund
	Destination    string         `json:"destination"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Metadata       map[string]any `json:"metadata"`
}

func (o *Orchestrator) validateAmount(amount int64) error {
	if amount <= 0 {
		return errkind.New(errkind.KindInvalidArgument, "SUMMA-2001", "amount must be a positive integer", nil)
	}
	if amount > o.Config.MaxTransactionAmount {
		return errkind.New(errkind.KindInvalidArgument, "SUMMA-2002", "amount exceeds maxTransactionAmount", map[string]any{"max": o.Config.MaxTransactionAmount})
	}
	return nil
}

// validateRequest runs struct-tag validation before the Mutator/Runner see
// a Request at all, so a malformed request never opens a transaction.
func (o *Orchestrator) validateRequest(req Request) error {
	if err := o.Validator.Struct(req); err != nil {
		return err
	}
	return o.validateAmount(req.Amount)
}

// resolveAccount looks up a user account by holder id, or a system account
// by its configured identifier (e.g. "@World"), per spec §4.6 step 4.
// The row is read without a lock whatever forUpdate says; concurrent
// writers are caught later by the Mutator's version-predicated UPDATE.
func (o *Orchestrator) resolveAccount(ctx context.Context, ledgerID, ref string, forUpdate bool) (*mmodel.Account, error) {
	if sysID, ok := o.Config.SystemAccounts[ref]; ok {
		return o.Accounts.FindByHolderID(ctx, ledgerID, sysID)
	}
	return o.Accounts.FindByHolderID(ctx, ledgerID, ref)
}

// idempotentResponse checks for a stored result (spec §4.6 step 2); if
// found and its reference matches, it is decoded into out and true is
// returned.
func (o *Orchestrator) idempotentResponse(ctx context.Context, ledgerID, key, reference string, out *mmodel.Transaction) (bool, error) {
	if key == "" {
		return false, nil
	}
	stored, err := o.Idempotency.Find(ctx, ledgerID, key)
	if err != nil {
		return false, err
	}
	if stored == nil || stored.Reference != reference {
		return false, nil
	}
	if err := json.Unmarshal(stored.Response, out); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) storeIdempotency(ctx context.Context, ledgerID, key, reference string, txn *mmodel.Transaction) error {
	if key == "" {
		return nil
	}
	payload, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	return o.Idempotency.Upsert(ctx, &mmodel.IdempotencyKey{
		LedgerID:  ledgerID,
		Key:       key,
		Reference: reference,
		Response:  payload,
		ExpiresAt: o.Now().Add(o.Config.IdempotencyTTL),
		CreatedAt: o.Now(),
	})
}

func (o *Orchestrator) appendEvent(ctx context.Context, ledgerID string, aggType mmodel.AggregateType, aggID, eventType string, data map[string]any, correlationID string) error {
	version, prevHash, err := o.Events.LatestVersion(ctx, ledgerID, aggType, aggID)
	if err != nil {
		return err
	}
	hash, err := o.Hasher.EventHash(prevHash, data)
	if err != nil {
		return err
	}
	return o.Events.Append(ctx, &mmodel.LedgerEvent{
		LedgerID:        ledgerID,
		AggregateType:   aggType,
		AggregateID:     aggID,
		AggregateVersion: version + 1,
		EventType:       eventType,
		EventData:       data,
		CorrelationID:   correlationID,
		Hash:            hash,
		PrevHash:        prevHash,
		CreatedAt:       o.Now(),
	})
}

func (o *Orchestrator) writeOutbox(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return o.Outbox.Insert(ctx, &mmodel.OutboxEntry{Topic: topic, Payload: data, CreatedAt: o.Now()})
}

func (o *Orchestrator) recordVelocity(ctx context.Context, accountID, txnID string, amount int64, dir mmodel.EntryType) error {
	return o.Velocity.Insert(ctx, &mmodel.VelocityLogEntry{
		AccountID: accountID, TransactionID: txnID, Amount: amount, Direction: dir, CreatedAt: o.Now(),
	})
}

func newCorrelationID(newID func() string) string { return newID() }

func requireDistinct(sourceID, destID string) error {
	if sourceID == destID {
		return errkind.Classify(errkind.ErrSelfTransfer, map[string]any{"accountId": sourceID})
	}
	return nil
}

func fmtReferenceConflict(ledgerID, reference string) error {
	return errkind.Classify(errkind.ErrDuplicateReference, map[string]any{"ledgerId": ledgerID, "reference": reference})
}

// registerAfterTransaction defers the AfterTransaction hook family to fire
// once the enclosing Runner attempt actually commits (spec §4.7: after
// hooks observe committed state, never a rolled-back attempt).
func registerAfterTransaction(ctx context.Context, o *Orchestrator, txnType mmodel.TransactionType, req Request) {
	runner.RegisterAfterCommit(ctx, func(ctx context.Context) error {
		return o.Hooks.AfterTransaction(ctx, plugin.TransactionHookContext{
			LedgerID: req.LedgerID, Reference: req.Reference, Amount: req.Amount, Type: string(txnType),
		})
	})
}
