package httpApi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type LedgerService interface {
	Create(ctx context.Context, userID int64, in model.TransactionInput) (model.TransactionResult, error)
	Update(ctx context.Context, userID, transactionID int64, in model.TransactionInput) (model.TransactionResult, error)
	Delete(ctx context.Context, userID, transactionID int64) error
	Get(ctx context.Context, userID, transactionID int64) (model.Transaction, error)
	List(ctx context.Context, userID int64, query model.TransactionQuery) ([]model.Transaction, error)
	ImportCSV(ctx context.Context, userID int64, r io.Reader) (model.ImportResult, error)
	ExportCSV(ctx context.Context, userID int64, w io.Writer) error
}

type PortfolioService interface {
	Holdings(ctx context.Context, userID int64) (model.PortfolioSummary, error)
	OpeningBalance(ctx context.Context, userID int64, symbol string, in model.OpeningBalanceInput) (model.Holding, error)
	UpdateNotes(ctx context.Context, userID int64, symbol, notes string) error
	RealizedGainsBySymbol(ctx context.Context, userID int64, symbol string, year *int) (model.RealizedGains, error)
	PortfolioReport(ctx context.Context, userID int64) ([]byte, string, error)
	SharePortfolioReport(ctx context.Context, userID int64) (string, error)
	Snapshots(ctx context.Context, userID int64, from, to time.Time) ([]model.PortfolioSnapshot, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, jobType model.JobType) (model.Job, error)
	Get(ctx context.Context, jobID string) (model.Job, error)
	List(ctx context.Context, jobType *model.JobType, limit int) ([]model.Job, error)
}

type UserService interface {
	IssueLinkCode(ctx context.Context, userID int64) (string, time.Time, error)
}

type Handler struct {
	ledger         LedgerService
	portfolio      PortfolioService
	jobs           JobQueue
	users          UserService
	tokens         TokenParser
	maxImportBytes int64
	now            func() time.Time
}

func NewHandler(cfg *config.Config, ledger LedgerService, portfolio PortfolioService, jobs JobQueue, users UserService, tokens TokenParser) *Handler {
	return &Handler{
		ledger:         ledger,
		portfolio:      portfolio,
		jobs:           jobs,
		users:          users,
		tokens:         tokens,
		maxImportBytes: cfg.HTTP.MaxImportBytes,
		now:            time.Now,
	}
}

type Server struct {
	Router  *chi.Mux
	Handler *Handler
}

func NewServer(cfg *config.Config, handler *Handler) *Server {
	server := &Server{
		Router:  chi.NewRouter(),
		Handler: handler,
	}
	server.InitRoutes(cfg.HTTP.RequestTimeout)
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes(requestTimeout time.Duration) {
	s.Router.Use(RequestID, Logger, middleware.Recoverer)

	s.Router.Get("/health", Healthcheck)

	s.Router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout), s.Handler.Authenticator)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.Handler.ListTransactions)
			r.Post("/", s.Handler.CreateTransaction)
			r.Post("/import", s.Handler.ImportTransactions)
			r.Get("/export", s.Handler.ExportTransactions)
			r.Get("/{id}", s.Handler.GetTransaction)
			r.Put("/{id}", s.Handler.UpdateTransaction)
			r.Delete("/{id}", s.Handler.DeleteTransaction)
		})

		r.Route("/holdings", func(r chi.Router) {
			r.Get("/", s.Handler.GetHoldings)
			r.Put("/{symbol}", s.Handler.PutOpeningBalance)
			r.Patch("/{symbol}", s.Handler.PatchHoldingNotes)
		})

		r.Get("/gains/realized", s.Handler.GetRealizedGains)

		r.Get("/reports/portfolio.xlsx", s.Handler.DownloadPortfolioReport)
		r.Post("/reports/portfolio/share", s.Handler.SharePortfolioReport)

		r.Get("/snapshots", s.Handler.GetSnapshots)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.Handler.ListJobs)
			// {job} is a job type on POST and a job id on GET
			r.Post("/{job}", s.Handler.EnqueueJob)
			r.Get("/{job}", s.Handler.GetJob)
		})

		r.Post("/telegram/link", s.Handler.CreateTelegramLink)
	})
}

func NewHTTPServer(cfg *config.Config, server *Server) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      server,
	}
}

func Healthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
