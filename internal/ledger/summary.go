package ledger

import (
	"strings"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/shopspring/decimal"
)

// RecentLimit is how many transactions the dashboard lists.
const RecentLimit = 5

// Totals is an income and expense sum over some set of transactions.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// CategoryTotal is the expense total of one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// Dashboard is the overview of a user's ledger.
type Dashboard struct {
	TotalBalance decimal.Decimal      `json:"total_balance"`
	Month        string               `json:"month"`
	Monthly      Totals               `json:"monthly"`
	Recent       []domain.Transaction `json:"recent"`
	AccountCount int                  `json:"account_count"`
}

// Report holds the per-category expense breakdown and per-account balances.
type Report struct {
	ExpenseByCategory []CategoryTotal  `json:"expense_by_category"`
	Accounts          []domain.Account `json:"accounts"`
	TotalBalance      decimal.Decimal  `json:"total_balance"`
}

// TotalBalance sums the balances of all accounts.
func TotalBalance(accounts []domain.Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}

// MonthlyTotals sums income and expense for transactions dated in month (YYYY-MM).
func MonthlyTotals(txs []domain.Transaction, month string) Totals {
	totals := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range txs {
		if !strings.HasPrefix(t.Date, month) {
			continue
		}
		switch t.Type {
		case domain.TransactionTypeIncome:
			totals.Income = totals.Income.Add(t.Amount)
		case domain.TransactionTypeExpense:
			totals.Expense = totals.Expense.Add(t.Amount)
		}
	}
	return totals
}

// Recent returns the first n transactions. txs must already be newest first.
func Recent(txs []domain.Transaction, n int) []domain.Transaction {
	if n < 0 {
		n = 0
	}
	if len(txs) < n {
		n = len(txs)
	}
	out := make([]domain.Transaction, n)
	copy(out, txs[:n])
	return out
}

// ExpenseByCategory totals expenses per category, in order of first appearance.
func ExpenseByCategory(txs []domain.Transaction) []CategoryTotal {
	index := make(map[string]int)
	var out []CategoryTotal
	for _, t := range txs {
		if t.Type != domain.TransactionTypeExpense {
			continue
		}
		i, ok := index[t.Category]
		if !ok {
			i = len(out)
			index[t.Category] = i
			out = append(out, CategoryTotal{Category: t.Category, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(t.Amount)
	}
	return out
}

// BuildDashboard computes the dashboard for month.
func BuildDashboard(accounts []domain.Account, txs []domain.Transaction, month string) Dashboard {
	return Dashboard{
		TotalBalance: TotalBalance(accounts),
		Month:        month,
		Monthly:      MonthlyTotals(txs, month),
		Recent:       Recent(txs, RecentLimit),
		AccountCount: len(accounts),
	}
}

// BuildReport computes the report view.
func BuildReport(accounts []domain.Account, txs []domain.Transaction) Report {
	return Report{
		ExpenseByCategory: ExpenseByCategory(txs),
		Accounts:          accounts,
		TotalBalance:      TotalBalance(accounts),
	}
}
