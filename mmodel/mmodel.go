// Package mmodel holds the domain entities shared across the ledger engine.
package mmodel

import "time"

// AccountStatus is the lifecycle state of an Account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// HolderType identifies who an Account belongs to.
type HolderType string

const (
	HolderIndividual HolderType = "individual"
	HolderBusiness   HolderType = "business"
	HolderSystem     HolderType = "system"
)

// NormalBalance is the accounting side an account's balance increases on.
type NormalBalance string

const (
	NormalBalanceCredit NormalBalance = "credit"
	NormalBalanceDebit  NormalBalance = "debit"
)

// AccountType is the optional chart-of-accounts classification.
type AccountType string

const (
	AccountTypeAsset    AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity   AccountType = "equity"
	AccountTypeRevenue  AccountType = "revenue"
	AccountTypeExpense  AccountType = "expense"
)

// Account is a balance-bearing entity, user-owned or system-owned.
type Account struct {
	ID               string
	LedgerID         string
	HolderID         string
	HolderType       HolderType
	Currency         string
	Status           AccountStatus
	Balance          int64
	CreditBalance    int64
	DebitBalance     int64
	PendingDebit     int64
	PendingCredit    int64
	Version          int64
	Checksum         string
	OverdraftAllowed int64
	NormalBalance    NormalBalance
	AccountType      AccountType
	AccountCode      string
	ParentAccountID  *string
	IsSystem         bool
	IsHot            bool
	FreezeReason     *string
	FrozenAt         *time.Time
	ClosedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableBalance is the derived spendable amount; never stored.
func (a *Account) AvailableBalance() int64 {
	return a.Balance - a.PendingDebit + a.PendingCredit
}

// TransactionType enumerates the kinds of transaction records.
type TransactionType string

const (
	TxnCredit     TransactionType = "credit"
	TxnDebit      TransactionType = "debit"
	TxnTransfer   TransactionType = "transfer"
	TxnCorrection TransactionType = "correction"
	TxnAdjustment TransactionType = "adjustment"
	TxnJournal    TransactionType = "journal"
	TxnRefund     TransactionType = "refund"
)

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TxnInflight TransactionStatus = "inflight"
	TxnPosted   TransactionStatus = "posted"
	TxnVoided   TransactionStatus = "voided"
	TxnExpired  TransactionStatus = "expired"
)

// Transaction is the top-level transfer record a set of Entries belongs to.
type Transaction struct {
	ID                   string
	LedgerID             string
	Type                 TransactionType
	Reference            string
	Amount               int64
	Currency             string
	Description          string
	SourceAccountID      *string
	DestinationAccountID *string
	CorrelationID        string
	Metadata             map[string]any
	Status               TransactionStatus
	IsHold               bool
	HoldExpiresAt        *time.Time
	HoldDestinations     []HoldDestination
	HoldFXRate           *int64
	RefundedAmount       int64
	OriginalTxnID        *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HoldDestination is one leg of a multi-destination hold split.
type HoldDestination struct {
	AccountID string
	Amount    int64
}

// EntryType is DEBIT or CREDIT.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Entry is a single accounting line item, append-only.
type Entry struct {
	ID             string
	TransactionID  string
	AccountID      string
	EntryType      EntryType
	Amount         int64
	Currency       string
	BalanceBefore  int64
	BalanceAfter   int64
	AccountVersion int64
	Hash           string
	PrevHash       string
	SequenceNumber int64
	FXRate         *int64
	FXCurrency     *string
	CreatedAt      time.Time
}

// AggregateType enumerates the kinds of aggregates that own an event chain.
type AggregateType string

const (
	AggregateAccount     AggregateType = "account"
	AggregateTransaction AggregateType = "transaction"
	AggregateHold        AggregateType = "hold"
)

// LedgerEvent is one entry in a per-aggregate hash chain.
type LedgerEvent struct {
	SequenceNumber  int64
	LedgerID        string
	AggregateType   AggregateType
	AggregateID     string
	AggregateVersion int64
	EventType       string
	EventData       map[string]any
	CorrelationID   string
	Hash            string
	PrevHash        string
	CreatedAt       time.Time
}

// IdempotencyKey maps a client-supplied token to a stored response payload.
type IdempotencyKey struct {
	LedgerID  string
	Key       string
	Reference string
	Response  []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OutboxEntry is a transactionally-written row an external consumer drains.
type OutboxEntry struct {
	ID          int64
	Topic       string
	Payload     []byte
	SequenceNum int64
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// HashSnapshot is a periodic checkpoint of a per-aggregate chain.
type HashSnapshot struct {
	AggregateType   AggregateType
	AggregateID     string
	SnapshotVersion int64
	SnapshotHash    string
	EventCount      int64
	CreatedAt       time.Time
}

// VelocityLogEntry records one affected account per posted transaction.
type VelocityLogEntry struct {
	ID            int64
	AccountID     string
	TransactionID string
	Amount        int64
	Direction     EntryType
	CreatedAt     time.Time
}
