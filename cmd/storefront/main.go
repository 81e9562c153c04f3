package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranik/storefront/config"
	"github.com/kiranik/storefront/internal/auth"
	"github.com/kiranik/storefront/internal/cache"
	"github.com/kiranik/storefront/internal/gateway"
	handler "github.com/kiranik/storefront/internal/handler/http"
	"github.com/kiranik/storefront/internal/middleware"
	"github.com/kiranik/storefront/internal/notify"
	"github.com/kiranik/storefront/internal/repository"
	"github.com/kiranik/storefront/internal/repository/postgres"
	"github.com/kiranik/storefront/internal/service"
	"github.com/kiranik/storefront/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// newLogger creates logger with log level
func newLogger(level string) (*zap.Logger, error) {

	loggerLvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	loggerCfg := zap.NewProductionConfig()
	loggerCfg.Level = loggerLvl

	return loggerCfg.Build()
}

func main() {

	// create new config
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// initialize database
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("Error initializing database", zap.Error(err))
	}
	defer db.Close()

	// migrate database
	if err := db.Migrate(); err != nil {
		logger.Fatal("Error migrating database", zap.Error(err))
	}

	tokenKey, err := hex.DecodeString(cfg.Auth.TokenKey)
	if err != nil {
		logger.Fatal("Error extracting token key", zap.Error(err))
	}
	token := auth.NewAuthToken(tokenKey)

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.Timeout)

	// notification channel is optional, transitions never depend on it
	var notifier notify.Notifier = notify.NewNop()
	if cfg.Lmstfy.Host != "" {
		notifier = notify.NewLmstfyDispatcher(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token, cfg.Lmstfy.Queue)
	}
	notifier = notify.NewAsync(notifier, logger)

	// status cache is a side optimization, the ledger stays authoritative
	var statusCache service.StatusCache
	if cfg.Redis.Addr != "" {
		c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logger.Warn("Redis unavailable, running without status cache", zap.Error(err))
		} else {
			statusCache = c
			defer c.Close()
		}
	}

	// dependency injection
	paymentRepo := repository.NewPaymentRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)

	paymentService := service.NewPaymentService(paymentRepo, gatewayClient, notifier, cfg.Gateway.KeySecret, logger)
	reconcileService := service.NewReconcileService(paymentRepo, gatewayClient, notifier, statusCache, logger)
	deliveryService := service.NewDeliveryService(deliveryRepo, paymentRepo, notifier, logger)

	paymentHandler := handler.NewPaymentHandler(paymentService, reconcileService, logger)
	deliveryHandler := handler.NewDeliveryHandler(deliveryService, logger)

	router := chi.NewRouter()

	router.Use(middleware.Logging(logger))

	router.Post("/api/orders", paymentHandler.CreateOrder())
	router.Post("/api/orders/verify", paymentHandler.VerifyPayment())
	router.Get("/api/orders/{gatewayOrderID}", paymentHandler.GetOrderStatus())
	router.Post("/api/orders/{gatewayOrderID}/qr", paymentHandler.CreatePaymentQR())

	// routes that require operator authentication
	router.Group(func(group chi.Router) {
		group.Use(middleware.Auth(token))
		group.Post("/api/orders/{gatewayOrderID}/fail", paymentHandler.FailOrder())
		group.Post("/api/deliveries", deliveryHandler.CreateDelivery())
		group.Get("/api/deliveries/{deliveryID}", deliveryHandler.GetDelivery())
		group.Post("/api/deliveries/{deliveryID}/advance", deliveryHandler.AdvanceDelivery())
	})

	poller := worker.NewReconcilePoller(reconcileService, paymentRepo, cfg.Worker.Interval, cfg.Worker.StaleAfter, logger)

	srv := &http.Server{Addr: cfg.ServerAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Running server", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
