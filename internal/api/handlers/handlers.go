// Package handlers implements the HTTP API over the ledger session.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/ledger"
	"github.com/dvloznov/smartfinance/internal/logger"
	"github.com/dvloznov/smartfinance/internal/session"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/go-chi/chi/v5"
)

// LedgerHandler handles account, transaction and summary endpoints.
type LedgerHandler struct {
	session *session.Session
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(s *session.Session) *LedgerHandler {
	return &LedgerHandler{session: s}
}

// ListAccounts handles GET /api/accounts
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, _, err := h.session.Snapshot(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts":      accounts,
		"count":         len(accounts),
		"total_balance": ledger.TotalBalance(accounts),
	})
}

// CreateAccount handles POST /api/accounts
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req ledger.NewAccount
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.session.Ledger().CreateAccount(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create account")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, account)
}

// DeleteAccount handles DELETE /api/accounts/{id}
func (h *LedgerHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if err := h.session.Ledger().DeleteAccount(r.Context(), middleware.UserID(r.Context()), accountID); err != nil {
		writeServiceError(w, r, err, "Failed to delete account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTransactions handles GET /api/transactions
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	_, txs, err := h.session.Snapshot(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "Failed to list transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	// Return array directly for frontend compatibility
	middleware.WriteJSON(w, http.StatusOK, txs)
}

// CreateTransaction handles POST /api/transactions
func (h *LedgerHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req ledger.NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.session.Ledger().AddTransaction(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to record transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// ListCategories handles GET /api/categories?type=income|expense
func (h *LedgerHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	t := domain.TransactionType(r.URL.Query().Get("type"))
	if t != "" && !t.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "type must be income or expense")
		return
	}

	categories := h.session.Ledger().Categories(t)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// Dashboard handles GET /api/dashboard
func (h *LedgerHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.session.Ledger().Dashboard(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "Failed to build dashboard")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dashboard)
}

// Report handles GET /api/reports
func (h *LedgerHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.session.Ledger().Report(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "Failed to build report")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// writeServiceError maps sentinel errors to status codes. Anything
// unrecognized is logged and reported as fallback.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccountNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, jobs.ErrJobNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Export not found")
	case errors.Is(err, session.ErrClosed), errors.Is(err, store.ErrClosed):
		middleware.WriteError(w, http.StatusServiceUnavailable, "Ledger is unavailable")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
