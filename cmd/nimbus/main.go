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

	"github.com/nimbus-erp/nimbus-erp/internal/app"
	"github.com/nimbus-erp/nimbus-erp/internal/bom"
	"github.com/nimbus-erp/nimbus-erp/internal/ledger"
	"github.com/nimbus-erp/nimbus-erp/internal/orders"
	"github.com/nimbus-erp/nimbus-erp/internal/platform/cache"
	"github.com/nimbus-erp/nimbus-erp/internal/platform/db"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
	"github.com/nimbus-erp/nimbus-erp/jobs"
)

// statusEventQueue bridges service events onto the Asynq queue.
type statusEventQueue struct {
	client *jobs.Client
}

func (q statusEventQueue) PublishStatusChanged(ctx context.Context, evt orders.StatusChangedEvent) error {
	_, err := q.client.EnqueueOrderStatusChanged(ctx, jobs.OrderStatusChangedPayload{
		OrderID:       evt.OrderID.String(),
		Group:         evt.Group,
		SupplierID:    evt.SupplierID,
		OldStatus:     evt.OldStatus,
		NewStatus:     evt.NewStatus,
		RecipientRole: evt.RecipientRole,
	})
	return err
}

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	bomEntries, err := bom.NewRepository(dbpool).LoadAll(ctx)
	if err != nil {
		logger.Error("load bom entries", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := bom.NewResolver(bomEntries)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	locker := shared.NewOrderLocker(redisClient, cfg.OrderLockTTL)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, resolver, locker, auditLogger, statusEventQueue{client: jobsClient}, logger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		OrdersHandler: ordersHandler,
		LedgerHandler: ledgerHandler,
		JobHandler:    jobHandler,
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
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
