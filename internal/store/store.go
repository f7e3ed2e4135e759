// Package store defines the persistence contract shared by the remote and
// local ledger backings.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/shopspring/decimal"
)

// Mode selects which backing serves the ledger.
type Mode string

const (
	// ModeRemote persists to the hosted document database.
	ModeRemote Mode = "remote"
	// ModeLocal persists to a process-local key-value file.
	ModeLocal Mode = "local"
)

// Valid reports whether m names a known backing.
func (m Mode) Valid() bool {
	return m == ModeRemote || m == ModeLocal
}

var (
	// ErrAccountNotFound is returned when an operation references an account
	// that does not exist or belongs to another user.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidInput is returned when a caller-supplied record fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("store is closed")
)

// Unsubscribe cancels a live subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// AccountsFunc receives the full, ordered account set of one user.
type AccountsFunc func(accounts []domain.Account)

// TransactionsFunc receives the full, ordered transaction set of one user.
type TransactionsFunc func(transactions []domain.Transaction)

// Store is a ledger persistence backing.
//
// Accounts are ordered by creation time ascending. Transactions are ordered
// by date descending, newest creation first on equal dates.
type Store interface {
	// Mode reports which backing this is.
	Mode() Mode

	// SubscribeAccounts pushes the user's accounts to fn now and after every change.
	SubscribeAccounts(ctx context.Context, userID string, fn AccountsFunc) (Unsubscribe, error)

	// SubscribeTransactions pushes the user's transactions to fn now and after every change.
	SubscribeTransactions(ctx context.Context, userID string, fn TransactionsFunc) (Unsubscribe, error)

	// ListAccounts returns the user's accounts once.
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)

	// ListTransactions returns the user's transactions once.
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)

	// AddAccount stores a new account and returns it with its id and creation time set.
	AddAccount(ctx context.Context, userID string, account domain.Account) (domain.Account, error)

	// AddTransaction appends tx and applies it to the referenced account's
	// balance in one atomic write. It returns ErrAccountNotFound, and writes
	// nothing, when the account is missing.
	AddTransaction(ctx context.Context, userID string, tx domain.Transaction) (domain.Transaction, error)

	// DeleteAccount removes an account. Its transactions are kept.
	DeleteAccount(ctx context.Context, userID, accountID string) error

	// SetAccountBalance overwrites an account balance.
	SetAccountBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal) error

	// Close stops all subscriptions and releases the backing.
	Close() error
}
