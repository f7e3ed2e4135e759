package store

import (
	"sort"

	"github.com/dvloznov/smartfinance/internal/domain"
)

// SortAccounts orders accounts by creation time, oldest first.
func SortAccounts(accounts []domain.Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt < accounts[j].CreatedAt
	})
}

// SortTransactions orders transactions by date descending, then by creation
// time descending.
func SortTransactions(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date > txs[j].Date
		}
		return txs[i].CreatedAt > txs[j].CreatedAt
	})
}
