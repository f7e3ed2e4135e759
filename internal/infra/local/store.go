// Package local implements the ledger store on a bbolt file. The whole
// ledger lives under two keys of one bucket, each holding a JSON array.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"
)

// Bucket and key names of the on-disk snapshot.
const (
	BucketLedger    = "smartfinance"
	AccountsKey     = "smartfinance_accounts"
	TransactionsKey = "smartfinance_transactions"
)

// Default wallet created on first open when seeding is enabled.
const (
	DefaultWalletName    = "Default Wallet"
	DefaultWalletBank    = "Cash"
	DefaultWalletBalance = 5000
)

// Options configures a local store.
type Options struct {
	// SeedDefaultWallet creates one wallet when the file holds no accounts yet.
	SeedDefaultWallet bool

	// Now and NewID override the clock and id generator. Tests set them.
	Now   func() time.Time
	NewID func() string
}

// Store is a single-user ledger store. The user id passed to every
// operation is accepted and ignored.
type Store struct {
	db    *bolt.DB
	now   func() time.Time
	newID func() string

	// mu serializes writes with the pushes that follow them, so subscribers
	// always see snapshots in commit order.
	mu     sync.Mutex
	closed bool

	subsMu  sync.Mutex
	nextSub int
	accSubs map[int]store.AccountsFunc
	txSubs  map[int]store.TransactionsFunc
}

// Open opens (creating if needed) the bbolt file at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", path, err)
	}

	s := &Store{
		db:      db,
		now:     opts.Now,
		newID:   opts.NewID,
		accSubs: make(map[int]store.AccountsFunc),
		txSubs:  make(map[int]store.TransactionsFunc),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketLedger))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		if !opts.SeedDefaultWallet || b.Get([]byte(AccountsKey)) != nil {
			return nil
		}
		wallet := store.AccountRecord{
			ID:        s.newID(),
			Name:      DefaultWalletName,
			BankName:  DefaultWalletBank,
			Balance:   DefaultWalletBalance,
			Color:     domain.DefaultAccountColor,
			CreatedAt: domain.NowMillis(s.now()),
		}
		return putJSON(b, AccountsKey, []store.AccountRecord{wallet})
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: initializing %s: %w", path, err)
	}

	return s, nil
}

// Mode implements store.Store.
func (s *Store) Mode() store.Mode {
	return store.ModeLocal
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.db.Path()
}

// SubscribeAccounts implements store.Store. fn is called before it returns.
func (s *Store) SubscribeAccounts(ctx context.Context, _ string, fn store.AccountsFunc) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("SubscribeAccounts: %w", err)
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.accSubs[id] = fn
	s.subsMu.Unlock()

	fn(snap.DomainAccounts())

	return s.unsubscriber(func() { delete(s.accSubs, id) }), nil
}

// SubscribeTransactions implements store.Store. fn is called before it returns.
func (s *Store) SubscribeTransactions(ctx context.Context, _ string, fn store.TransactionsFunc) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("SubscribeTransactions: %w", err)
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.txSubs[id] = fn
	s.subsMu.Unlock()

	fn(snap.DomainTransactions())

	return s.unsubscriber(func() { delete(s.txSubs, id) }), nil
}

func (s *Store) unsubscriber(remove func()) store.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			remove()
			s.subsMu.Unlock()
		})
	}
}

// ListAccounts implements store.Store.
func (s *Store) ListAccounts(ctx context.Context, _ string) ([]domain.Account, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return snap.DomainAccounts(), nil
}

// ListTransactions implements store.Store.
func (s *Store) ListTransactions(ctx context.Context, _ string) ([]domain.Transaction, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return snap.DomainTransactions(), nil
}

// AddAccount implements store.Store.
func (s *Store) AddAccount(ctx context.Context, _ string, account domain.Account) (domain.Account, error) {
	if account.ID == "" {
		account.ID = s.newID()
	}
	if account.CreatedAt == 0 {
		account.CreatedAt = domain.NowMillis(s.now())
	}
	if account.Color == "" {
		account.Color = domain.DefaultAccountColor
	}

	err := s.write(ctx, true, false, func(snap *store.Snapshot) error {
		snap.Accounts = append(snap.Accounts, store.NewAccountRecord("", account))
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("AddAccount: %w", err)
	}
	return account, nil
}

// AddTransaction implements store.Store. The transaction append and the
// balance change are committed in the same bbolt transaction.
func (s *Store) AddTransaction(ctx context.Context, _ string, t domain.Transaction) (domain.Transaction, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = domain.NowMillis(s.now())
	}

	err := s.write(ctx, true, true, func(snap *store.Snapshot) error {
		idx := accountIndex(snap.Accounts, t.AccountID)
		if idx < 0 {
			return fmt.Errorf("account %q: %w", t.AccountID, store.ErrAccountNotFound)
		}
		updated := snap.Accounts[idx].Account().Apply(t)
		snap.Accounts[idx].Balance = updated.Balance.InexactFloat64()
		snap.Transactions = append(snap.Transactions, store.NewTransactionRecord("", t))
		return nil
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	return t, nil
}

// DeleteAccount implements store.Store. Transactions of the account are kept.
func (s *Store) DeleteAccount(ctx context.Context, _ string, accountID string) error {
	err := s.write(ctx, true, false, func(snap *store.Snapshot) error {
		idx := accountIndex(snap.Accounts, accountID)
		if idx < 0 {
			return fmt.Errorf("account %q: %w", accountID, store.ErrAccountNotFound)
		}
		snap.Accounts = append(snap.Accounts[:idx], snap.Accounts[idx+1:]...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}
	return nil
}

// SetAccountBalance implements store.Store.
func (s *Store) SetAccountBalance(ctx context.Context, _ string, accountID string, balance decimal.Decimal) error {
	err := s.write(ctx, true, false, func(snap *store.Snapshot) error {
		idx := accountIndex(snap.Accounts, accountID)
		if idx < 0 {
			return fmt.Errorf("account %q: %w", accountID, store.ErrAccountNotFound)
		}
		snap.Accounts[idx].Balance = balance.InexactFloat64()
		return nil
	})
	if err != nil {
		return fmt.Errorf("SetAccountBalance: %w", err)
	}
	return nil
}

// Snapshot reads the whole ledger.
func (s *Store) Snapshot(ctx context.Context) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}
	var snap store.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		snap, err = readSnapshot(tx.Bucket([]byte(BucketLedger)))
		return err
	})
	if err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

// Replace overwrites the whole ledger with snap, e.g. when restoring a backup.
func (s *Store) Replace(ctx context.Context, snap store.Snapshot) error {
	err := s.write(ctx, true, true, func(cur *store.Snapshot) error {
		cur.Accounts = append([]store.AccountRecord(nil), snap.Accounts...)
		cur.Transactions = append([]store.TransactionRecord(nil), snap.Transactions...)
		for i := range cur.Accounts {
			cur.Accounts[i].UserID = ""
		}
		for i := range cur.Transactions {
			cur.Transactions[i].UserID = ""
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.subsMu.Lock()
	s.accSubs = make(map[int]store.AccountsFunc)
	s.txSubs = make(map[int]store.TransactionsFunc)
	s.subsMu.Unlock()

	return s.db.Close()
}

func (s *Store) usable(ctx context.Context) error {
	if s.closed {
		return store.ErrClosed
	}
	return ctx.Err()
}

// write loads the snapshot, lets mutate change it and stores both keys in one
// update. Subscribers of the changed entity kinds are pushed the result.
func (s *Store) write(ctx context.Context, pushAccounts, pushTransactions bool, mutate func(*store.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}

	var snap store.Snapshot
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketLedger))
		var err error
		snap, err = readSnapshot(b)
		if err != nil {
			return err
		}
		if err := mutate(&snap); err != nil {
			return err
		}
		if err := putJSON(b, AccountsKey, snap.Accounts); err != nil {
			return err
		}
		return putJSON(b, TransactionsKey, snap.Transactions)
	})
	if err != nil {
		return err
	}

	s.push(snap, pushAccounts, pushTransactions)
	return nil
}

func (s *Store) push(snap store.Snapshot, accounts, transactions bool) {
	s.subsMu.Lock()
	var accFns []store.AccountsFunc
	var txFns []store.TransactionsFunc
	if accounts {
		for _, fn := range s.accSubs {
			accFns = append(accFns, fn)
		}
	}
	if transactions {
		for _, fn := range s.txSubs {
			txFns = append(txFns, fn)
		}
	}
	s.subsMu.Unlock()

	for _, fn := range accFns {
		fn(snap.DomainAccounts())
	}
	for _, fn := range txFns {
		fn(snap.DomainTransactions())
	}
}

func readSnapshot(b *bolt.Bucket) (store.Snapshot, error) {
	snap := store.Snapshot{
		Accounts:     []store.AccountRecord{},
		Transactions: []store.TransactionRecord{},
	}
	if b == nil {
		return snap, fmt.Errorf("bucket %s not found", BucketLedger)
	}
	if data := b.Get([]byte(AccountsKey)); data != nil {
		if err := json.Unmarshal(data, &snap.Accounts); err != nil {
			return snap, fmt.Errorf("decoding %s: %w", AccountsKey, err)
		}
	}
	if data := b.Get([]byte(TransactionsKey)); data != nil {
		if err := json.Unmarshal(data, &snap.Transactions); err != nil {
			return snap, fmt.Errorf("decoding %s: %w", TransactionsKey, err)
		}
	}
	return snap, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

func accountIndex(records []store.AccountRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

var _ store.Store = (*Store)(nil)
