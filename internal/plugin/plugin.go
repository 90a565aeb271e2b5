// Package plugin implements the Plugin & Hook Dispatcher (spec §4.7) as a
// trait-per-hook-family registry rather than a single "plugin object" type,
// per spec §9's redesign note: "express this as a trait/interface per hook
// family plus a registry vector; the dispatcher iterates the vector."
// Grounded on the teacher's UseCase dependency-injection shape: each hook
// family is a narrow interface, plugins implement whichever ones they need,
// and the Dispatcher holds one registration slice per family.
package plugin

import (
	"context"
	"fmt"
	"time"
)

// TransactionHookContext is passed to before/after transaction hooks.
type TransactionHookContext struct {
	LedgerID  string
	Reference string
	Amount    int64
	Type      string
}

// AccountHookContext is passed to before/after account hooks.
type AccountHookContext struct {
	LedgerID  string
	AccountID string
	Operation string
}

// HoldHookContext is passed to before/after hold hooks.
type HoldHookContext struct {
	LedgerID string
	HoldID   string
	Stage    string // create, commit, void, expire
}

// BeforeTransactionHook may reject a transaction before it is posted.
type BeforeTransactionHook interface {
	BeforeTransaction(ctx context.Context, hc TransactionHookContext) error
}

// AfterTransactionHook observes a transaction after it committed.
type AfterTransactionHook interface {
	AfterTransaction(ctx context.Context, hc TransactionHookContext) error
}

// BeforeAccountHook may reject an account mutation before it runs.
type BeforeAccountHook interface {
	BeforeAccount(ctx context.Context, hc AccountHookContext) error
}

// AfterAccountHook observes an account mutation after it committed.
type AfterAccountHook interface {
	AfterAccount(ctx context.Context, hc AccountHookContext) error
}

// BeforeHoldHook may reject a hold lifecycle transition before it runs.
type BeforeHoldHook interface {
	BeforeHold(ctx context.Context, hc HoldHookContext) error
}

// AfterHoldHook observes a hold lifecycle transition after it committed.
type AfterHoldHook interface {
	AfterHold(ctx context.Context, hc HoldHookContext) error
}

// Worker is a background task a plugin can register. It runs at Interval,
// optionally under a distributed lease (spec §4.7, "Background workers run
// at a declared interval with an optional distributed lease").
type Worker struct {
	ID       string
	Interval time.Duration
	Run      func(ctx context.Context) error
	Lease    Leaser
}

// Leaser acquires and releases a distributed lease keyed by workerId, e.g.
// a Postgres advisory lock or a redsync mutex. Implementations must be
// re-entrant-safe: TryAcquire returning false means another worker instance
// currently holds the lease.
type Leaser interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Registration describes one plugin's identity and declared dependencies.
type Registration struct {
	ID           string
	Dependencies []string
}

// Dispatcher holds one slice per hook family, iterated in registration
// order for before* hooks and in reverse for after* hooks so that the last
// before-hook to run is the first after-hook to unwind (spec §4.7:
// "reverse order for after* where symmetric unwinding matters").
type Dispatcher struct {
	registrations []Registration
	registered    map[string]bool

	beforeTxn  []BeforeTransactionHook
	afterTxn   []AfterTransactionHook
	beforeAcct []BeforeAccountHook
	afterAcct  []AfterAccountHook
	beforeHold []BeforeHoldHook
	afterHold  []AfterHoldHook

	workers []Worker
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{registered: map[string]bool{}}
}

// Register adds a plugin's identity and validates that every declared
// dependency has already been registered (spec §4.7: "refuses to start if
// any are missing"). Call Register before the With* methods that attach
// the plugin's actual hooks.
func (d *Dispatcher) Register(reg Registration) error {
	for _, dep := range reg.Dependencies {
		if !d.registered[dep] {
			return fmt.Errorf("plugin %q depends on unregistered plugin %q", reg.ID, dep)
		}
	}
	d.registrations = append(d.registrations, reg)
	d.registered[reg.ID] = true
	return nil
}

func (d *Dispatcher) WithBeforeTransaction(h BeforeTransactionHook) { d.beforeTxn = append(d.beforeTxn, h) }
func (d *Dispatcher) WithAfterTransaction(h AfterTransactionHook)   { d.afterTxn = append(d.afterTxn, h) }
func (d *Dispatcher) WithBeforeAccount(h BeforeAccountHook)         { d.beforeAcct = append(d.beforeAcct, h) }
func (d *Dispatcher) WithAfterAccount(h AfterAccountHook)           { d.afterAcct = append(d.afterAcct, h) }
func (d *Dispatcher) WithBeforeHold(h BeforeHoldHook)               { d.beforeHold = append(d.beforeHold, h) }
func (d *Dispatcher) WithAfterHold(h AfterHoldHook)                 { d.afterHold = append(d.afterHold, h) }
func (d *Dispatcher) WithWorker(w Worker)                           { d.workers = append(d.workers, w) }

// BeforeTransaction runs every registered before-transaction hook in
// registration order, stopping at the first error.
func (d *Dispatcher) BeforeTransaction(ctx context.Context, hc TransactionHookContext) error {
	for _, h := range d.beforeTxn {
		if err := h.BeforeTransaction(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

// AfterTransaction runs every registered after-transaction hook in reverse
// registration order.
func (d *Dispatcher) AfterTransaction(ctx context.Context, hc TransactionHookContext) error {
	for i := len(d.afterTxn) - 1; i >= 0; i-- {
		if err := d.afterTxn[i].AfterTransaction(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) BeforeAccount(ctx context.Context, hc AccountHookContext) error {
	for _, h := range d.beforeAcct {
		if err := h.BeforeAccount(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) AfterAccount(ctx context.Context, hc AccountHookContext) error {
	for i := len(d.afterAcct) - 1; i >= 0; i-- {
		if err := d.afterAcct[i].AfterAccount(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) BeforeHold(ctx context.Context, hc HoldHookContext) error {
	for _, h := range d.beforeHold {
		if err := h.BeforeHold(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) AfterHold(ctx context.Context, hc HoldHookContext) error {
	for i := len(d.afterHold) - 1; i >= 0; i-- {
		if err := d.afterHold[i].AfterHold(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

// Workers returns the registered background workers for a runner to drive.
func (d *Dispatcher) Workers() []Worker {
	return d.workers
}
