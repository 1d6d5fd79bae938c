package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data"
	"github.com/KotFed0t/dividend_tracker/data/cache"
	"github.com/KotFed0t/dividend_tracker/data/repository/postgres"
	"github.com/KotFed0t/dividend_tracker/data/session"
	"github.com/KotFed0t/dividend_tracker/internal/auth"
	"github.com/KotFed0t/dividend_tracker/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/dividend_tracker/internal/externalApi/quoteApi/alphaVantageApi"
	"github.com/KotFed0t/dividend_tracker/internal/jobQueue"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/dividend_tracker/internal/scheduler"
	"github.com/KotFed0t/dividend_tracker/internal/service/ledgerService"
	"github.com/KotFed0t/dividend_tracker/internal/service/marketDataService"
	"github.com/KotFed0t/dividend_tracker/internal/service/notificationService"
	"github.com/KotFed0t/dividend_tracker/internal/service/portfolioService"
	"github.com/KotFed0t/dividend_tracker/internal/service/userService"
	"github.com/KotFed0t/dividend_tracker/internal/tgbot"
	"github.com/KotFed0t/dividend_tracker/internal/transport/httpApi"
	"github.com/KotFed0t/dividend_tracker/internal/transport/telegram"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient)

	quoteApi := alphaVantageApi.New(cfg, alphaVantageApi.NewLimiter(cfg.API.AlphaVantage.RequestsPerMinute))

	// report sharing stays off without drive credentials
	var cloudStorage portfolioService.CloudStorage
	var drive *googleDriveApi.GoogleDriveApi
	if cfg.GoogleDrive.CredentialsFile != "" {
		d, err := googleDriveApi.New(ctx, cfg)
		if err != nil {
			slog.Error("google drive is not available, report sharing disabled", slog.String("err", err.Error()))
		} else {
			drive = d
			cloudStorage = d
		}
	}

	marketDataSrv := marketDataService.New(pgRepo, redisCache, quoteApi, cfg.Portfolio.PriceMaxAge)
	portfolioSrv := portfolioService.New(pgRepo, marketDataSrv, xslsxGenerator.New(), cloudStorage, cfg.Portfolio.DefaultCurrency)
	ledgerSrv := ledgerService.New(pgRepo, portfolioSrv, cfg.Portfolio.DefaultCurrency)
	userSrv := userService.New(pgRepo, redisSession, cfg.LinkCodeExpiration)
	tokens := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var notifier notificationService.Notifier = notificationService.LogNotifier{}
	var tgBot *tgbot.TGBot
	if cfg.Telegram.Token != "" {
		tgController := telegram.NewController(cfg, portfolioSrv, userSrv, redisSession)
		b, err := tgbot.New(cfg, tgController)
		if err != nil {
			panic(err)
		}
		tgBot = b
		notifier = b
	} else {
		slog.Warn("telegram token is empty, bot disabled")
	}

	notificationSrv := notificationService.New(pgRepo, notifier, cfg.Portfolio.DividendAlertDaysAhead)

	queue := jobQueue.New(pgRepo, cfg.Jobs.Workers, cfg.Jobs.QueueSize, cfg.Jobs.MaxAttempts)
	queue.Register(model.JobRefreshPrices, marketDataSrv.RefreshPrices)
	queue.Register(model.JobRefreshDividends, marketDataSrv.RefreshDividends)
	queue.Register(model.JobPortfolioSnapshot, portfolioSrv.TakeSnapshots)
	queue.Register(model.JobDividendAlerts, notificationSrv.DividendAlerts)
	if drive != nil {
		queue.Register(model.JobCleanupReports, drive.CleanupReports)
	}
	if err := queue.Start(ctx); err != nil {
		panic(err)
	}

	sched := scheduler.New(queue)
	sched.NewCrontabJob(model.JobRefreshPrices, cfg.Jobs.RefreshPricesCron)
	sched.NewCrontabJob(model.JobRefreshDividends, cfg.Jobs.RefreshDividendsCron)
	sched.NewCrontabJob(model.JobPortfolioSnapshot, cfg.Jobs.PortfolioSnapshotCron)
	sched.NewCrontabJob(model.JobDividendAlerts, cfg.Jobs.DividendAlertsCron)
	if drive != nil {
		sched.NewCrontabJob(model.JobCleanupReports, cfg.Jobs.CleanupReportsCron)
	}
	sched.Start()

	if tgBot != nil {
		tgBot.Start()
	}

	handler := httpApi.NewHandler(cfg, ledgerSrv, portfolioSrv, queue, userSrv, tokens)
	httpServer := httpApi.NewHTTPServer(cfg, httpApi.NewServer(cfg, handler))
	go func() {
		slog.Info("http server started", slog.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", slog.String("err", err.Error()))
			cancel()
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-interrupt:
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.String("err", err.Error()))
	}

	if tgBot != nil {
		tgBot.Stop()
	}
	sched.Stop()
	queue.Stop()
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
