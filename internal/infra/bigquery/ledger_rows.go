package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/smartfinance/internal/domain"
)

// LedgerAccountRow is one account in an export, as stored in ledger_accounts.
type LedgerAccountRow struct {
	ExportID  string `bigquery:"export_id"`  // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED
	UserID    string `bigquery:"user_id"`    // REQUIRED

	Name     string   `bigquery:"name"`      // REQUIRED
	BankName string   `bigquery:"bank_name"` // REQUIRED
	Balance  *big.Rat `bigquery:"balance"`   // REQUIRED NUMERIC

	Color bigquery.NullString `bigquery:"color"` // NULLABLE

	CreatedTS  time.Time `bigquery:"created_ts"`  // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// LedgerTransactionRow is one transaction in an export, as stored in ledger_transactions.
type LedgerTransactionRow struct {
	ExportID      string `bigquery:"export_id"`      // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED
	AccountID     string `bigquery:"account_id"`     // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Direction       string     `bigquery:"direction"`        // REQUIRED: income|expense

	CategoryName bigquery.NullString `bigquery:"category_name"` // NULLABLE
	Note         bigquery.NullString `bigquery:"note"`          // NULLABLE

	CreatedTS  time.Time `bigquery:"created_ts"`  // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// NewLedgerAccountRow converts an account into an export row.
func NewLedgerAccountRow(exportID, userID string, a domain.Account, exportedAt time.Time) *LedgerAccountRow {
	return &LedgerAccountRow{
		ExportID:   exportID,
		AccountID:  a.ID,
		UserID:     userID,
		Name:       a.Name,
		BankName:   a.BankName,
		Balance:    a.Balance.Rat(),
		Color:      nullString(a.Color),
		CreatedTS:  time.UnixMilli(a.CreatedAt).UTC(),
		ExportedTS: exportedAt.UTC(),
	}
}

// NewLedgerTransactionRow converts a transaction into an export row.
func NewLedgerTransactionRow(exportID, userID string, t domain.Transaction, exportedAt time.Time) (*LedgerTransactionRow, error) {
	date, err := domain.ParseDate(t.Date)
	if err != nil {
		return nil, fmt.Errorf("NewLedgerTransactionRow: transaction %s: %w", t.ID, err)
	}
	return &LedgerTransactionRow{
		ExportID:        exportID,
		TransactionID:   t.ID,
		UserID:          userID,
		AccountID:       t.AccountID,
		TransactionDate: date,
		Amount:          t.Amount.Rat(),
		Direction:       string(t.Type),
		CategoryName:    nullString(t.Category),
		Note:            nullString(t.Note),
		CreatedTS:       time.UnixMilli(t.CreatedAt).UTC(),
		ExportedTS:      exportedAt.UTC(),
	}, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
