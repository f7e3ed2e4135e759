package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/store"
)

// EventKind tags a view event.
type EventKind string

const (
	// EventAccounts carries a new account set.
	EventAccounts EventKind = "accounts"
	// EventTransactions carries a new transaction set.
	EventTransactions EventKind = "transactions"
	// EventReset means the view was discarded; listeners must fetch a new one.
	EventReset EventKind = "reset"
)

// Event is pushed to view listeners whenever the view's state is replaced.
type Event struct {
	Kind         EventKind            `json:"kind"`
	Mode         store.Mode           `json:"mode,omitempty"`
	Accounts     []domain.Account     `json:"accounts,omitempty"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
}

// View is one user's live copy of the ledger. Every push from the store
// replaces the corresponding list wholesale.
type View struct {
	userID string
	mode   store.Mode

	mu           sync.RWMutex
	accounts     []domain.Account
	transactions []domain.Transaction
	haveAccounts bool
	haveTxs      bool
	closed       bool

	// refs counts Watch holders; guarded by the owning Session's mu.
	refs int

	unsubAccounts store.Unsubscribe
	unsubTxs      store.Unsubscribe

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(Event)
}

func openView(ctx context.Context, s store.Store, userID string) (*View, error) {
	v := &View{
		userID:    userID,
		mode:      s.Mode(),
		listeners: make(map[int]func(Event)),
	}

	unsubAcc, err := s.SubscribeAccounts(ctx, userID, v.setAccounts)
	if err != nil {
		return nil, fmt.Errorf("openView: subscribing to accounts: %w", err)
	}
	unsubTx, err := s.SubscribeTransactions(ctx, userID, v.setTransactions)
	if err != nil {
		unsubAcc()
		return nil, fmt.Errorf("openView: subscribing to transactions: %w", err)
	}

	v.mu.Lock()
	v.unsubAccounts = unsubAcc
	v.unsubTxs = unsubTx
	v.mu.Unlock()
	return v, nil
}

// UserID returns the user the view belongs to.
func (v *View) UserID() string { return v.userID }

// Mode returns the store mode the view was opened on.
func (v *View) Mode() store.Mode { return v.mode }

// Ready reports whether both lists have received their first push.
func (v *View) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.haveAccounts && v.haveTxs
}

// Accounts returns a copy of the current account list.
func (v *View) Accounts() []domain.Account {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]domain.Account(nil), v.accounts...)
}

// Transactions returns a copy of the current transaction list.
func (v *View) Transactions() []domain.Transaction {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]domain.Transaction(nil), v.transactions...)
}

// Listen registers fn for every future event. fn must not block. On a view
// that is already closed fn receives a single reset event immediately.
func (v *View) Listen(fn func(Event)) (cancel func()) {
	v.lmu.Lock()
	if v.isClosed() {
		v.lmu.Unlock()
		fn(Event{Kind: EventReset, Mode: v.mode})
		return func() {}
	}
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	v.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.lmu.Lock()
			delete(v.listeners, id)
			v.lmu.Unlock()
		})
	}
}

func (v *View) isClosed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

func (v *View) setAccounts(accounts []domain.Account) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.accounts = accounts
	v.haveAccounts = true
	v.mu.Unlock()

	v.emit(Event{Kind: EventAccounts, Mode: v.mode, Accounts: append([]domain.Account(nil), accounts...)})
}

func (v *View) setTransactions(txs []domain.Transaction) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.transactions = txs
	v.haveTxs = true
	v.mu.Unlock()

	v.emit(Event{Kind: EventTransactions, Mode: v.mode, Transactions: append([]domain.Transaction(nil), txs...)})
}

func (v *View) emit(e Event) {
	v.lmu.Lock()
	fns := make([]func(Event), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.lmu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// close drops the subscriptions and the displayed state, then tells
// listeners to move on.
func (v *View) close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubAcc, unsubTx := v.unsubAccounts, v.unsubTxs
	v.accounts = nil
	v.transactions = nil
	v.haveAccounts = false
	v.haveTxs = false
	v.mu.Unlock()

	if unsubAcc != nil {
		unsubAcc()
	}
	if unsubTx != nil {
		unsubTx()
	}
	v.emit(Event{Kind: EventReset, Mode: v.mode})

	v.lmu.Lock()
	v.listeners = make(map[int]func(Event))
	v.lmu.Unlock()
}
