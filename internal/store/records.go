package store

import (
	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountRecord is the persisted shape of an account. The remote backing
// stores it as a document keyed by ID; the local backing keeps it in a JSON
// array without the user id.
type AccountRecord struct {
	ID        string  `json:"id" firestore:"-"`
	UserID    string  `json:"-" firestore:"userId"`
	Name      string  `json:"name" firestore:"name"`
	BankName  string  `json:"bankName" firestore:"bankName"`
	Balance   float64 `json:"balance" firestore:"balance"`
	Color     string  `json:"color" firestore:"color"`
	CreatedAt int64   `json:"createdAt" firestore:"createdAt"`
}

// TransactionRecord is the persisted shape of a transaction.
type TransactionRecord struct {
	ID        string  `json:"id" firestore:"-"`
	UserID    string  `json:"-" firestore:"userId"`
	AccountID string  `json:"accountId" firestore:"accountId"`
	Amount    float64 `json:"amount" firestore:"amount"`
	Type      string  `json:"type" firestore:"type"`
	Category  string  `json:"category" firestore:"category"`
	Note      string  `json:"note" firestore:"note"`
	Date      string  `json:"date" firestore:"date"`
	CreatedAt int64   `json:"createdAt" firestore:"createdAt"`
}

// Snapshot is a full ledger: every account and every transaction.
// Its JSON form is the local backing's on-disk format.
type Snapshot struct {
	Accounts     []AccountRecord     `json:"smartfinance_accounts"`
	Transactions []TransactionRecord `json:"smartfinance_transactions"`
}

// NewAccountRecord converts a domain account into its persisted form.
func NewAccountRecord(userID string, a domain.Account) AccountRecord {
	return AccountRecord{
		ID:        a.ID,
		UserID:    userID,
		Name:      a.Name,
		BankName:  a.BankName,
		Balance:   a.Balance.InexactFloat64(),
		Color:     a.Color,
		CreatedAt: a.CreatedAt,
	}
}

// Account converts the record back into a domain account.
func (r AccountRecord) Account() domain.Account {
	return domain.Account{
		ID:        r.ID,
		Name:      r.Name,
		BankName:  r.BankName,
		Balance:   decimal.NewFromFloat(r.Balance),
		Color:     r.Color,
		CreatedAt: r.CreatedAt,
	}
}

// NewTransactionRecord converts a domain transaction into its persisted form.
func NewTransactionRecord(userID string, t domain.Transaction) TransactionRecord {
	return TransactionRecord{
		ID:        t.ID,
		UserID:    userID,
		AccountID: t.AccountID,
		Amount:    t.Amount.InexactFloat64(),
		Type:      string(t.Type),
		Category:  t.Category,
		Note:      t.Note,
		Date:      t.Date,
		CreatedAt: t.CreatedAt,
	}
}

// Transaction converts the record back into a domain transaction.
func (r TransactionRecord) Transaction() domain.Transaction {
	return domain.Transaction{
		ID:        r.ID,
		AccountID: r.AccountID,
		Amount:    decimal.NewFromFloat(r.Amount),
		Type:      domain.TransactionType(r.Type),
		Category:  r.Category,
		Note:      r.Note,
		Date:      r.Date,
		CreatedAt: r.CreatedAt,
	}
}

// NewSnapshot builds a snapshot from domain values.
func NewSnapshot(userID string, accounts []domain.Account, transactions []domain.Transaction) Snapshot {
	s := Snapshot{
		Accounts:     make([]AccountRecord, 0, len(accounts)),
		Transactions: make([]TransactionRecord, 0, len(transactions)),
	}
	for _, a := range accounts {
		s.Accounts = append(s.Accounts, NewAccountRecord(userID, a))
	}
	for _, t := range transactions {
		s.Transactions = append(s.Transactions, NewTransactionRecord(userID, t))
	}
	return s
}

// DomainAccounts returns the snapshot's accounts in creation order.
func (s Snapshot) DomainAccounts() []domain.Account {
	out := make([]domain.Account, 0, len(s.Accounts))
	for _, r := range s.Accounts {
		out = append(out, r.Account())
	}
	SortAccounts(out)
	return out
}

// DomainTransactions returns the snapshot's transactions newest first.
func (s Snapshot) DomainTransactions() []domain.Transaction {
	out := make([]domain.Transaction, 0, len(s.Transactions))
	for _, r := range s.Transactions {
		out = append(out, r.Transaction())
	}
	SortTransactions(out)
	return out
}
