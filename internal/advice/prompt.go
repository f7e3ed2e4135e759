package advice

import (
	"encoding/json"
	"fmt"

	"github.com/dvloznov/smartfinance/internal/domain"
)

type accountSummary struct {
	Name    string      `json:"name"`
	Balance json.Number `json:"balance"`
}

type transactionSummary struct {
	Amount   json.Number `json:"amount"`
	Type     string      `json:"type"`
	Category string      `json:"category"`
	Note     string      `json:"note"`
	Date     string      `json:"date"`
}

type ledgerSummary struct {
	Accounts           []accountSummary     `json:"accounts"`
	RecentTransactions []transactionSummary `json:"recentTransactions"`
}

const promptHeader = "You are the SmartFinance AI financial advisor. Based on the user's financial data below, give 3-5 concrete personal-finance recommendations.\n" +
	"Analyse the current income-to-expense ratio and spending habits, and add some encouragement.\n" +
	"Write clearly structured Markdown.\n\n" +
	"User data summary:\n"

// BuildPrompt renders the advisor prompt: every account's name and balance
// and the first maxTx transactions as indented JSON.
func BuildPrompt(transactions []domain.Transaction, accounts []domain.Account, maxTx int) (string, error) {
	summary := ledgerSummary{
		Accounts:           make([]accountSummary, 0, len(accounts)),
		RecentTransactions: make([]transactionSummary, 0, maxTx),
	}
	for _, a := range accounts {
		summary.Accounts = append(summary.Accounts, accountSummary{
			Name:    a.Name,
			Balance: json.Number(a.Balance.String()),
		})
	}
	for i, t := range transactions {
		if i >= maxTx {
			break
		}
		summary.RecentTransactions = append(summary.RecentTransactions, transactionSummary{
			Amount:   json.Number(t.Amount.String()),
			Type:     string(t.Type),
			Category: t.Category,
			Note:     t.Note,
			Date:     t.Date,
		})
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("BuildPrompt: encoding summary: %w", err)
	}
	return promptHeader + string(data), nil
}
