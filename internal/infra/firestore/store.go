// Package firestore implements the ledger store on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names.
const (
	AccountsCollection     = "accounts"
	TransactionsCollection = "transactions"
)

// Config identifies the Firestore database to use.
type Config struct {
	ProjectID       string
	DatabaseID      string // empty means the default database
	CredentialsFile string // empty means application default credentials
}

// Store is the remote ledger store. Documents carry the owning user id and
// every query is filtered by it.
type Store struct {
	client *firestore.Client
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	closed  bool
	nextSub int
	cancels map[int]context.CancelFunc
	wg      sync.WaitGroup
}

// New connects to Firestore.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("New: project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	databaseID := cfg.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("New: creating firestore client: %w", err)
	}
	return NewWithClient(client, log), nil
}

// NewWithClient wraps an existing client. The store takes ownership of it.
func NewWithClient(client *firestore.Client, log zerolog.Logger) *Store {
	return &Store{
		client:  client,
		log:     log.With().Str("component", "firestore_store").Logger(),
		now:     time.Now,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Mode implements store.Store.
func (s *Store) Mode() store.Mode {
	return store.ModeRemote
}

func (s *Store) accountsQuery(userID string) firestore.Query {
	return s.client.Collection(AccountsCollection).Where("userId", "==", userID)
}

func (s *Store) transactionsQuery(userID string) firestore.Query {
	return s.client.Collection(TransactionsCollection).
		Where("userId", "==", userID).
		OrderBy("date", firestore.Desc)
}

// SubscribeAccounts implements store.Store. The first push arrives once the
// listener receives its initial snapshot.
func (s *Store) SubscribeAccounts(ctx context.Context, userID string, fn store.AccountsFunc) (store.Unsubscribe, error) {
	return s.listen(ctx, s.accountsQuery(userID), "accounts", func(docs []*firestore.DocumentSnapshot) error {
		accounts, err := decodeAccounts(docs)
		if err != nil {
			return err
		}
		fn(accounts)
		return nil
	})
}

// SubscribeTransactions implements store.Store.
func (s *Store) SubscribeTransactions(ctx context.Context, userID string, fn store.TransactionsFunc) (store.Unsubscribe, error) {
	return s.listen(ctx, s.transactionsQuery(userID), "transactions", func(docs []*firestore.DocumentSnapshot) error {
		txs, err := decodeTransactions(docs)
		if err != nil {
			return err
		}
		fn(txs)
		return nil
	})
}

// listen consumes the query's snapshot stream on its own goroutine until the
// subscription is cancelled, ctx ends or the store is closed.
func (s *Store) listen(ctx context.Context, q firestore.Query, kind string, deliver func([]*firestore.DocumentSnapshot) error) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	id := s.nextSub
	s.nextSub++
	s.cancels[id] = cancel

	it := q.Snapshots(subCtx)
	log := s.log.With().Str("subscription", kind).Int("sub_id", id).Logger()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if !isStopped(err) {
					log.Error().Err(err).Msg("Snapshot listener stopped")
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				log.Error().Err(err).Msg("Failed to read snapshot documents")
				continue
			}
			if err := deliver(docs); err != nil {
				log.Error().Err(err).Msg("Failed to decode snapshot")
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			cancel()
		})
	}, nil
}

// ListAccounts implements store.Store.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	docs, err := s.accountsQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: querying accounts: %w", err)
	}
	accounts, err := decodeAccounts(docs)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

// ListTransactions implements store.Store.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	docs, err := s.transactionsQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: querying transactions: %w", err)
	}
	txs, err := decodeTransactions(docs)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, nil
}

// AddAccount implements store.Store.
func (s *Store) AddAccount(ctx context.Context, userID string, account domain.Account) (domain.Account, error) {
	ref := s.client.Collection(AccountsCollection).NewDoc()
	account.ID = ref.ID
	if account.CreatedAt == 0 {
		account.CreatedAt = domain.NowMillis(s.now())
	}
	if account.Color == "" {
		account.Color = domain.DefaultAccountColor
	}

	if _, err := ref.Create(ctx, store.NewAccountRecord(userID, account)); err != nil {
		return domain.Account{}, fmt.Errorf("AddAccount: creating document: %w", err)
	}
	return account, nil
}

// AddTransaction implements store.Store. The transaction document and the
// balance update are committed in one Firestore transaction.
func (s *Store) AddTransaction(ctx context.Context, userID string, t domain.Transaction) (domain.Transaction, error) {
	accRef, err := s.accountRef(t.AccountID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	txRef := s.client.Collection(TransactionsCollection).NewDoc()
	t.ID = txRef.ID
	if t.CreatedAt == 0 {
		t.CreatedAt = domain.NowMillis(s.now())
	}

	err = s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		rec, err := getOwnedAccount(ftx, accRef, userID)
		if err != nil {
			return err
		}
		updated := rec.Account().Apply(t)

		if err := ftx.Create(txRef, store.NewTransactionRecord(userID, t)); err != nil {
			return fmt.Errorf("creating transaction: %w", err)
		}
		return ftx.Update(accRef, []firestore.Update{
			{Path: "balance", Value: updated.Balance.InexactFloat64()},
		})
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	return t, nil
}

// DeleteAccount implements store.Store.
func (s *Store) DeleteAccount(ctx context.Context, userID, accountID string) error {
	accRef, err := s.accountRef(accountID)
	if err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}
	err = s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		if _, err := getOwnedAccount(ftx, accRef, userID); err != nil {
			return err
		}
		return ftx.Delete(accRef)
	})
	if err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}
	return nil
}

// SetAccountBalance implements store.Store.
func (s *Store) SetAccountBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal) error {
	accRef, err := s.accountRef(accountID)
	if err != nil {
		return fmt.Errorf("SetAccountBalance: %w", err)
	}
	err = s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		if _, err := getOwnedAccount(ftx, accRef, userID); err != nil {
			return err
		}
		return ftx.Update(accRef, []firestore.Update{
			{Path: "balance", Value: balance.InexactFloat64()},
		})
	})
	if err != nil {
		return fmt.Errorf("SetAccountBalance: %w", err)
	}
	return nil
}

// Close implements store.Store. It cancels every subscription and waits for
// the listener goroutines before closing the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return s.client.Close()
}

// validDocID reports whether id can name a single document in a collection.
func validDocID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.Contains(id, "/")
}

func (s *Store) accountRef(accountID string) (*firestore.DocumentRef, error) {
	if !validDocID(accountID) {
		return nil, fmt.Errorf("account %q: %w", accountID, store.ErrAccountNotFound)
	}
	ref := s.client.Collection(AccountsCollection).Doc(accountID)
	if ref == nil {
		return nil, fmt.Errorf("account %q: %w", accountID, store.ErrAccountNotFound)
	}
	return ref, nil
}

func getOwnedAccount(ftx *firestore.Transaction, ref *firestore.DocumentRef, userID string) (store.AccountRecord, error) {
	snap, err := ftx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return store.AccountRecord{}, fmt.Errorf("account %q: %w", ref.ID, store.ErrAccountNotFound)
	}
	if err != nil {
		return store.AccountRecord{}, fmt.Errorf("reading account %q: %w", ref.ID, err)
	}

	var rec store.AccountRecord
	if err := snap.DataTo(&rec); err != nil {
		return store.AccountRecord{}, fmt.Errorf("decoding account %q: %w", ref.ID, err)
	}
	rec.ID = ref.ID
	if err := checkOwner(rec, userID); err != nil {
		return store.AccountRecord{}, err
	}
	return rec, nil
}

// checkOwner hides other users' accounts behind ErrAccountNotFound.
func checkOwner(rec store.AccountRecord, userID string) error {
	if rec.UserID != userID {
		return fmt.Errorf("account %q: %w", rec.ID, store.ErrAccountNotFound)
	}
	return nil
}

func decodeAccounts(docs []*firestore.DocumentSnapshot) ([]domain.Account, error) {
	records := make([]store.AccountRecord, 0, len(docs))
	for _, doc := range docs {
		var rec store.AccountRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decoding account %s: %w", doc.Ref.ID, err)
		}
		rec.ID = doc.Ref.ID
		records = append(records, rec)
	}
	return accountsFromRecords(records), nil
}

func decodeTransactions(docs []*firestore.DocumentSnapshot) ([]domain.Transaction, error) {
	records := make([]store.TransactionRecord, 0, len(docs))
	for _, doc := range docs {
		var rec store.TransactionRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decoding transaction %s: %w", doc.Ref.ID, err)
		}
		rec.ID = doc.Ref.ID
		records = append(records, rec)
	}
	return transactionsFromRecords(records), nil
}

// accountsFromRecords sorts client side; the query has no order so it does
// not need a composite index.
func accountsFromRecords(records []store.AccountRecord) []domain.Account {
	return store.Snapshot{Accounts: records}.DomainAccounts()
}

// transactionsFromRecords re-sorts to break date ties by creation time.
func transactionsFromRecords(records []store.TransactionRecord) []domain.Transaction {
	return store.Snapshot{Transactions: records}.DomainTransactions()
}

func isStopped(err error) bool {
	if errors.Is(err, iterator.Done) || errors.Is(err, context.Canceled) {
		return true
	}
	return status.Code(err) == codes.Canceled
}

var _ store.Store = (*Store)(nil)
