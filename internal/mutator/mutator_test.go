package mutator

import (
	"testing"

	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

func TestLockTwoAccountsOrdersAscending(t *testing.T) {
	first, second, err := LockTwoAccounts("b", "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "a" || second != "b" {
		t.Fatalf("expected ascending order, got %s, %s", first, second)
	}
}

func TestLockTwoAccountsRejectsSelfTransfer(t *testing.T) {
	_, _, err := LockTwoAccounts("a", "a")
	if err == nil {
		t.Fatal("expected self-transfer to be rejected")
	}
	e, ok := errkind.As(err)
	if !ok || e.Kind != errkind.KindInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestEnforceStatusRejectsClosedForAnySide(t *testing.T) {
	a := &mmodel.Account{Status: mmodel.AccountClosed}
	if err := enforceStatus(a, mmodel.EntryCredit); err == nil {
		t.Fatal("expected closed account to reject credit")
	}
	if err := enforceStatus(a, mmodel.EntryDebit); err == nil {
		t.Fatal("expected closed account to reject debit")
	}
}

func TestEnforceStatusFrozenRejectsOnlyDebit(t *testing.T) {
	a := &mmodel.Account{Status: mmodel.AccountFrozen}
	if err := enforceStatus(a, mmodel.EntryDebit); err == nil {
		t.Fatal("expected frozen account to reject debit")
	}
	if err := enforceStatus(a, mmodel.EntryCredit); err != nil {
		t.Fatalf("expected frozen account to allow credit, got %v", err)
	}
}

func TestEnforceStatusActiveAllowsBoth(t *testing.T) {
	a := &mmodel.Account{Status: mmodel.AccountActive}
	if err := enforceStatus(a, mmodel.EntryDebit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := enforceStatus(a, mmodel.EntryCredit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
