package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultAccountColor is the display color tag given to accounts created without one.
const DefaultAccountColor = "bg-indigo-600"

// Account is a bank account or wallet owned by one user.
// Balance only changes as a side effect of recording a transaction.
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	BankName  string          `json:"bank_name"`
	Balance   decimal.Decimal `json:"balance"`
	Color     string          `json:"color"`
	CreatedAt int64           `json:"created_at"` // epoch ms
}

// Validate checks the user-supplied fields of a new account.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name is required")
	}
	if strings.TrimSpace(a.BankName) == "" {
		return fmt.Errorf("bank name is required")
	}
	return nil
}

// Apply returns the account with tx's balance adjustment applied.
// It does not check that tx references this account.
func (a Account) Apply(tx Transaction) Account {
	a.Balance = a.Balance.Add(tx.Delta())
	return a
}

// FindAccount returns the account with the given id.
func FindAccount(accounts []Account, id string) (Account, bool) {
	for _, a := range accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
