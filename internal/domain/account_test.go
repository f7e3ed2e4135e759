package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccount_Apply_BalanceFollowsSubmissionOrder(t *testing.T) {
	acc := Account{ID: "A", Name: "Wallet", BankName: "Cash", Balance: dec("1000")}

	txs := []Transaction{
		{AccountID: "A", Amount: dec("200"), Type: TransactionTypeExpense},
		{AccountID: "A", Amount: dec("500"), Type: TransactionTypeIncome},
		{AccountID: "A", Amount: dec("0.35"), Type: TransactionTypeExpense},
	}

	got := acc
	for _, tx := range txs {
		got = got.Apply(tx)
	}

	want := dec("1299.65")
	if !got.Balance.Equal(want) {
		t.Errorf("Apply() balance = %s, want %s", got.Balance, want)
	}
	if !acc.Balance.Equal(dec("1000")) {
		t.Errorf("Apply() mutated the receiver: balance = %s", acc.Balance)
	}
}

func TestAccount_Apply_AllowsNegativeBalance(t *testing.T) {
	acc := Account{ID: "A", Balance: dec("50")}
	got := acc.Apply(Transaction{AccountID: "A", Amount: dec("80"), Type: TransactionTypeExpense})
	if !got.Balance.Equal(dec("-30")) {
		t.Errorf("Apply() balance = %s, want -30", got.Balance)
	}
}

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{"valid", Account{Name: "Main", BankName: "CTBC"}, false},
		{"missing name", Account{BankName: "CTBC"}, true},
		{"blank bank", Account{Name: "Main", BankName: "   "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindAccount(t *testing.T) {
	accounts := []Account{{ID: "a1", Name: "One"}, {ID: "a2", Name: "Two"}}

	if got, ok := FindAccount(accounts, "a2"); !ok || got.Name != "Two" {
		t.Errorf("FindAccount(a2) = %+v, %v", got, ok)
	}
	if _, ok := FindAccount(accounts, "missing"); ok {
		t.Error("FindAccount(missing) should not find anything")
	}
}
