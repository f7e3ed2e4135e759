package ledger

import (
	"testing"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func tx(date string, typ domain.TransactionType, amount int64, category string) domain.Transaction {
	return domain.Transaction{Date: date, Type: typ, Amount: decimal.NewFromInt(amount), Category: category}
}

func TestMonthlyTotals(t *testing.T) {
	txs := []domain.Transaction{
		tx("2024-03-30", domain.TransactionTypeIncome, 1000, "Salary"),
		tx("2024-03-02", domain.TransactionTypeExpense, 120, "Food"),
		tx("2024-03-01", domain.TransactionTypeExpense, 80, "Transport"),
		tx("2024-02-29", domain.TransactionTypeExpense, 999, "Food"),
	}

	got := MonthlyTotals(txs, "2024-03")
	if !got.Income.Equal(decimal.NewFromInt(1000)) || !got.Expense.Equal(decimal.NewFromInt(200)) {
		t.Errorf("MonthlyTotals() = %+v", got)
	}

	empty := MonthlyTotals(txs, "2023-01")
	if !empty.Income.IsZero() || !empty.Expense.IsZero() {
		t.Errorf("MonthlyTotals(no match) = %+v", empty)
	}
}

func TestRecent(t *testing.T) {
	txs := make([]domain.Transaction, 7)
	for i := range txs {
		txs[i].ID = string(rune('a' + i))
	}

	if got := Recent(txs, 5); len(got) != 5 || got[0].ID != "a" || got[4].ID != "e" {
		t.Errorf("Recent(5) = %+v", got)
	}
	if got := Recent(txs[:2], 5); len(got) != 2 {
		t.Errorf("Recent(short) len = %d", len(got))
	}
	if got := Recent(nil, 5); len(got) != 0 {
		t.Errorf("Recent(nil) len = %d", len(got))
	}
}

func TestExpenseByCategory_FirstAppearanceOrder(t *testing.T) {
	txs := []domain.Transaction{
		tx("2024-03-05", domain.TransactionTypeExpense, 30, "Transport"),
		tx("2024-03-04", domain.TransactionTypeIncome, 500, "Salary"),
		tx("2024-03-03", domain.TransactionTypeExpense, 20, "Food"),
		tx("2024-03-02", domain.TransactionTypeExpense, 15, "Transport"),
	}

	got := ExpenseByCategory(txs)
	want := []CategoryTotal{
		{Category: "Transport", Total: decimal.NewFromInt(45)},
		{Category: "Food", Total: decimal.NewFromInt(20)},
	}
	decimalEqual := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
		t.Errorf("ExpenseByCategory() mismatch (-want +got):\n%s", diff)
	}
}

func TestTotalBalance(t *testing.T) {
	accounts := []domain.Account{
		{Balance: decimal.RequireFromString("10.10")},
		{Balance: decimal.RequireFromString("-0.10")},
		{Balance: decimal.RequireFromString("0.20")},
	}
	if got := TotalBalance(accounts); !got.Equal(decimal.RequireFromString("10.20")) {
		t.Errorf("TotalBalance() = %s", got)
	}
}
