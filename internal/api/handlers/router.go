package handlers

import (
	"net/http"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/session"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig holds everything the API routes need. Exports are disabled
// when Publisher is nil.
type RouterConfig struct {
	Session       *session.Session
	Banners       []string
	Advisor       Advisor
	Publisher     jobs.Publisher
	Jobs          jobs.JobStore
	ExportEnabled func(jobs.ExportTarget) bool
	DefaultUserID string
	Log           zerolog.Logger
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	status := NewStatusHandler(cfg.Session, cfg.Banners)
	ledgerHandler := NewLedgerHandler(cfg.Session)
	adviceHandler := NewAdviceHandler(cfg.Session, cfg.Advisor)
	streamHandler := NewStreamHandler(cfg.Session)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Log))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Log))
	r.Use(middleware.CORS)

	r.Get("/health", status.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.User(cfg.DefaultUserID))

		r.Get("/status", status.Status)
		r.Post("/sandbox", status.EnterSandbox)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", ledgerHandler.ListAccounts)
			r.Post("/", ledgerHandler.CreateAccount)
			r.Delete("/{id}", ledgerHandler.DeleteAccount)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", ledgerHandler.ListTransactions)
			r.Post("/", ledgerHandler.CreateTransaction)
		})

		r.Get("/categories", ledgerHandler.ListCategories)
		r.Get("/dashboard", ledgerHandler.Dashboard)
		r.Get("/reports", ledgerHandler.Report)
		r.Post("/advice", adviceHandler.Advise)
		r.Get("/stream", streamHandler.Stream)

		if cfg.Publisher != nil && cfg.Jobs != nil {
			enabled := cfg.ExportEnabled
			if enabled == nil {
				enabled = func(jobs.ExportTarget) bool { return true }
			}
			exports := NewExportsHandler(cfg.Publisher, cfg.Jobs, enabled)
			r.Route("/exports", func(r chi.Router) {
				r.Get("/", exports.ListExports)
				r.Post("/", exports.CreateExport)
				r.Get("/{id}", exports.GetExport)
			})
		}
	})

	return r
}
