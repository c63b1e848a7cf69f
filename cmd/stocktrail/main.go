package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocktrail/stocktrail/internal/app"
	"github.com/stocktrail/stocktrail/internal/ledger"
	"github.com/stocktrail/stocktrail/internal/masterdata/categories"
	"github.com/stocktrail/stocktrail/internal/masterdata/locations"
	"github.com/stocktrail/stocktrail/internal/masterdata/products"
	"github.com/stocktrail/stocktrail/internal/masterdata/warehouses"
	"github.com/stocktrail/stocktrail/internal/movement"
	"github.com/stocktrail/stocktrail/internal/observability"
	"github.com/stocktrail/stocktrail/internal/platform/cache"
	"github.com/stocktrail/stocktrail/internal/platform/db"
	"github.com/stocktrail/stocktrail/internal/shared"
	"github.com/stocktrail/stocktrail/internal/stock"
	"github.com/stocktrail/stocktrail/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	categoriesHandler := categories.NewHandler(logger, categories.NewService(categories.NewRepository(pool)))
	productsHandler := products.NewHandler(logger, products.NewService(products.NewRepository(pool)))
	warehousesHandler := warehouses.NewHandler(logger, warehouses.NewService(warehouses.NewRepository(pool)))
	locationsHandler := locations.NewHandler(logger, locations.NewService(locations.NewRepository(pool)))

	stockStore := stock.NewStore(pool)
	stockCache := stock.NewCache(redisClient, cfg.CacheTTL)
	stockService := stock.NewService(stockStore, stockCache)
	stockHandler := stock.NewHandler(logger, stockService)

	journal := ledger.NewJournal(pool)
	ledgerHandler := ledger.NewHandler(logger, journal)

	movementRepo := movement.NewRepository(pool, stockStore, journal)
	movementHooks := &app.MovementHooks{Logger: logger, Stock: stockService, Metrics: metrics}
	engine := movement.NewEngine(movementRepo, auditLogger, movementHooks)
	movementHandler := movement.NewHandler(logger, engine)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CategoriesHandler: categoriesHandler,
		ProductsHandler:   productsHandler,
		WarehousesHandler: warehousesHandler,
		LocationsHandler:  locationsHandler,
		StockHandler:      stockHandler,
		LedgerHandler:     ledgerHandler,
		MovementHandler:   movementHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
