package store

import (
	"encoding/json"
	"testing"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestAccountRecord_RoundTrip(t *testing.T) {
	acc := domain.Account{
		ID:        "a1",
		Name:      "Main",
		BankName:  "CTBC",
		Balance:   decimal.RequireFromString("1234.56"),
		Color:     domain.DefaultAccountColor,
		CreatedAt: 1700000000000,
	}

	rec := NewAccountRecord("user-1", acc)
	if rec.UserID != "user-1" {
		t.Errorf("UserID = %q", rec.UserID)
	}
	if diff := cmp.Diff(acc, rec.Account(), decimalEqual); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_JSONShape(t *testing.T) {
	s := NewSnapshot("user-1",
		[]domain.Account{{ID: "a1", Name: "Main", BankName: "Cash", Balance: decimal.NewFromInt(5000)}},
		[]domain.Transaction{{ID: "t1", AccountID: "a1", Amount: decimal.NewFromInt(20), Type: domain.TransactionTypeExpense, Date: "2024-03-01"}},
	)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string][]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	acc := raw["smartfinance_accounts"][0]
	if _, ok := acc["userId"]; ok {
		t.Error("local snapshot must not carry userId")
	}
	if acc["bankName"] != "Cash" || acc["balance"] != float64(5000) {
		t.Errorf("unexpected account record: %v", acc)
	}

	tx := raw["smartfinance_transactions"][0]
	if tx["accountId"] != "a1" || tx["amount"] != float64(20) || tx["type"] != "expense" {
		t.Errorf("unexpected transaction record: %v", tx)
	}
}

func TestSortTransactions(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "old", Date: "2024-01-01", CreatedAt: 5},
		{ID: "same-day-first", Date: "2024-03-01", CreatedAt: 1},
		{ID: "newest", Date: "2024-03-02", CreatedAt: 0},
		{ID: "same-day-second", Date: "2024-03-01", CreatedAt: 2},
	}

	SortTransactions(txs)

	var got []string
	for _, tx := range txs {
		got = append(got, tx.ID)
	}
	want := []string{"newest", "same-day-second", "same-day-first", "old"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortAccounts(t *testing.T) {
	accs := []domain.Account{{ID: "b", CreatedAt: 20}, {ID: "a", CreatedAt: 10}, {ID: "c", CreatedAt: 30}}
	SortAccounts(accs)
	if accs[0].ID != "a" || accs[1].ID != "b" || accs[2].ID != "c" {
		t.Errorf("unexpected order: %+v", accs)
	}
}
