// Package ledger validates ledger mutations and computes the dashboard and
// report summaries on top of a store.Store.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/logger"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/shopspring/decimal"
)

// NewAccount is the user input for creating an account.
type NewAccount struct {
	Name     string          `json:"name"`
	BankName string          `json:"bank_name"`
	Balance  decimal.Decimal `json:"balance"`
	Color    string          `json:"color,omitempty"`
}

// NewTransaction is the user input for recording a transaction.
// Empty Date means today and empty Category means the type's default.
type NewTransaction struct {
	AccountID string                 `json:"account_id"`
	Amount    decimal.Decimal        `json:"amount"`
	Type      domain.TransactionType `json:"type"`
	Category  string                 `json:"category,omitempty"`
	Note      string                 `json:"note,omitempty"`
	Date      string                 `json:"date,omitempty"`
}

// Service applies ledger rules before handing writes to the store.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a ledger service over s.
func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// NewServiceWithClock creates a ledger service with a fixed clock.
func NewServiceWithClock(s store.Store, now func() time.Time) *Service {
	return &Service{store: s, now: now}
}

// Store returns the backing store.
func (s *Service) Store() store.Store {
	return s.store
}

// CreateAccount validates and stores a new account.
func (s *Service) CreateAccount(ctx context.Context, userID string, in NewAccount) (domain.Account, error) {
	acc := domain.Account{
		Name:     strings.TrimSpace(in.Name),
		BankName: strings.TrimSpace(in.BankName),
		Balance:  in.Balance,
		Color:    strings.TrimSpace(in.Color),
	}
	if err := acc.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("CreateAccount: %w: %v", store.ErrInvalidInput, err)
	}
	if acc.Color == "" {
		acc.Color = domain.DefaultAccountColor
	}

	created, err := s.store.AddAccount(ctx, userID, acc)
	if err != nil {
		return domain.Account{}, fmt.Errorf("CreateAccount: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", created.ID).
		Str("mode", string(s.store.Mode())).
		Msg("Account created")
	return created, nil
}

// DeleteAccount removes an account. Its transactions stay in the ledger.
func (s *Service) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if err := s.store.DeleteAccount(ctx, userID, accountID); err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("account_id", accountID).Msg("Account deleted")
	return nil
}

// AddTransaction records a transaction and moves the account balance by its
// amount in the same write. A missing account yields store.ErrAccountNotFound
// and leaves the ledger unchanged.
func (s *Service) AddTransaction(ctx context.Context, userID string, in NewTransaction) (domain.Transaction, error) {
	tx, err := s.prepareTransaction(in)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}

	created, err := s.store.AddTransaction(ctx, userID, tx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", created.ID).
		Str("account_id", created.AccountID).
		Str("type", string(created.Type)).
		Str("amount", created.Amount.String()).
		Msg("Transaction recorded")
	return created, nil
}

func (s *Service) prepareTransaction(in NewTransaction) (domain.Transaction, error) {
	accountID := strings.TrimSpace(in.AccountID)
	if accountID == "" {
		return domain.Transaction{}, fmt.Errorf("no account selected: %w", store.ErrAccountNotFound)
	}

	tx := domain.Transaction{
		AccountID: accountID,
		Amount:    in.Amount,
		Type:      domain.TransactionType(strings.ToLower(strings.TrimSpace(string(in.Type)))),
		Category:  strings.TrimSpace(in.Category),
		Note:      strings.TrimSpace(in.Note),
		Date:      strings.TrimSpace(in.Date),
	}
	if tx.Date == "" {
		tx.Date = domain.Today(s.now())
	}
	if tx.Category == "" {
		if c, ok := domain.DefaultCategory(tx.Type); ok {
			tx.Category = c.Name
		}
	} else if c, ok := domain.FindCategory(tx.Category); ok {
		tx.Category = c.Name
	}
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return tx, nil
}

// Accounts returns the user's accounts in creation order.
func (s *Service) Accounts(ctx context.Context, userID string) ([]domain.Account, error) {
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Accounts: %w", err)
	}
	return accounts, nil
}

// Transactions returns the user's transactions newest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Transactions: %w", err)
	}
	return txs, nil
}

// Categories returns the catalog, optionally restricted to one type.
func (s *Service) Categories(t domain.TransactionType) []domain.Category {
	if t == "" {
		return domain.Categories()
	}
	return domain.CategoriesByType(t)
}

// Dashboard loads the ledger and summarizes it for the current month.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	accounts, err := s.Accounts(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("Dashboard: %w", err)
	}
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("Dashboard: %w", err)
	}
	return BuildDashboard(accounts, txs, domain.Month(s.now())), nil
}

// Report loads the ledger and groups its expenses by category.
func (s *Service) Report(ctx context.Context, userID string) (Report, error) {
	accounts, err := s.Accounts(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("Report: %w", err)
	}
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("Report: %w", err)
	}
	return BuildReport(accounts, txs), nil
}
