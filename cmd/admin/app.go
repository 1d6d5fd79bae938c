package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/data/repository/postgres"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/dividend_tracker/internal/service/ledgerService"
	"github.com/KotFed0t/dividend_tracker/internal/service/portfolioService"
	"github.com/jmoiron/sqlx"
)

// app holds the services every command works with. Commands only talk to
// Postgres, prices are read from the stored snapshots.
type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	repo      *postgres.Postgres
	portfolio *portfolioService.PortfolioService
	ledger    *ledgerService.LedgerService
}

func newApp() (*app, error) {
	cfg := config.MustLoad()

	// commands print their own output, keep logs for real problems
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	db, err := data.ConnectPostgres(data.PostgresDSN(cfg), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	repo := postgres.NewPostgres(cfg, db)
	prices := storedPrices{repo: repo, maxAge: cfg.Portfolio.PriceMaxAge, now: time.Now}
	portfolio := portfolioService.New(repo, prices, xslsxGenerator.New(), nil, cfg.Portfolio.DefaultCurrency)

	return &app{
		cfg:       cfg,
		db:        db,
		repo:      repo,
		portfolio: portfolio,
		ledger:    ledgerService.New(repo, portfolio, cfg.Portfolio.DefaultCurrency),
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
}

// filter resolves -user and -stock flags. ok is false when a name does not
// exist, in which case nothing can match.
func (a *app) filter(ctx context.Context, username, symbol string) (filter model.RecalcFilter, ok bool, err error) {
	if username != "" {
		user, err := a.repo.GetUserByUsername(ctx, username)
		if errors.Is(err, repository.ErrNotFound) {
			return filter, false, nil
		}
		if err != nil {
			return filter, false, err
		}
		filter.UserID = &user.ID
	}

	if symbol != "" {
		stock, err := a.repo.GetStockBySymbol(ctx, symbol)
		if errors.Is(err, repository.ErrNotFound) {
			return filter, false, nil
		}
		if err != nil {
			return filter, false, err
		}
		filter.StockID = &stock.ID
	}

	return filter, true, nil
}

type storedPrices struct {
	repo   *postgres.Postgres
	maxAge time.Duration
	now    func() time.Time
}

func (p storedPrices) LatestPrices(ctx context.Context, stockIDs []int64) (map[int64]model.PriceSnapshot, error) {
	return p.repo.LatestPrices(ctx, stockIDs, p.now().Add(-p.maxAge))
}
