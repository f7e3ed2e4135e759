package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/logger"
	"github.com/dvloznov/smartfinance/internal/session"
	"github.com/dvloznov/smartfinance/internal/store"
)

// StatusHandler reports the active mode and handles mode switches.
type StatusHandler struct {
	session *session.Session
	banners []string
}

// NewStatusHandler creates a status handler. banners are the configuration
// notices resolved at start.
func NewStatusHandler(s *session.Session, banners []string) *StatusHandler {
	return &StatusHandler{session: s, banners: banners}
}

type statusResponse struct {
	Mode    store.Mode `json:"mode"`
	Banners []string   `json:"banners"`
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Status handles GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.status())
}

// EnterSandbox handles POST /api/sandbox. It moves every user to the local
// store; views held by stream clients are reset.
func (h *StatusHandler) EnterSandbox(w http.ResponseWriter, r *http.Request) {
	if err := h.session.EnterSandbox(r.Context()); err != nil {
		writeServiceError(w, r, err, "Failed to enter sandbox mode")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Msg("Entered sandbox mode")
	middleware.WriteJSON(w, http.StatusOK, h.status())
}

func (h *StatusHandler) status() statusResponse {
	banners := h.banners
	if banners == nil {
		banners = []string{}
	}
	return statusResponse{Mode: h.session.Mode(), Banners: banners}
}
