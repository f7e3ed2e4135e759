package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/session"
)

// Advisor produces advice text. *advice.Client satisfies it.
type Advisor interface {
	Enabled() bool
	Advise(ctx context.Context, transactions []domain.Transaction, accounts []domain.Account) string
}

// AdviceHandler serves AI advice for the displayed ledger.
type AdviceHandler struct {
	session *session.Session
	advisor Advisor
}

// NewAdviceHandler creates a new advice handler.
func NewAdviceHandler(s *session.Session, advisor Advisor) *AdviceHandler {
	return &AdviceHandler{session: s, advisor: advisor}
}

// Advise handles POST /api/advice. Generation problems come back as a
// fallback text with status 200.
func (h *AdviceHandler) Advise(w http.ResponseWriter, r *http.Request) {
	accounts, txs, err := h.session.Snapshot(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "Failed to load ledger")
		return
	}

	text := h.advisor.Advise(r.Context(), txs, accounts)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"advice":  text,
		"enabled": h.advisor.Enabled(),
	})
}
