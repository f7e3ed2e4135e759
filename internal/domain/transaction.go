package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Transaction is one recorded income or expense against an account.
// Amount is always positive; the direction is carried by Type.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"type"`
	Category  string          `json:"category"`
	Note      string          `json:"note"`
	Date      string          `json:"date"`       // YYYY-MM-DD
	CreatedAt int64           `json:"created_at"` // epoch ms
}

// Delta is the signed change the transaction applies to its account balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.Type == TransactionTypeIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Validate checks the fields a caller must supply before the transaction is stored.
func (t Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", t.Amount.String())
	}
	if !t.Type.Valid() {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	if _, err := ParseDate(t.Date); err != nil {
		return err
	}
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Today returns the current UTC calendar date as YYYY-MM-DD.
func Today(now time.Time) string {
	return civil.DateOf(now.UTC()).String()
}

// Month returns the YYYY-MM prefix used to bucket transactions by month.
func Month(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// NowMillis returns t as milliseconds since the Unix epoch.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
