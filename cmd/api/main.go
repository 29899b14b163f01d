package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerava/nova/config"
	httpHandler "github.com/nerava/nova/internal/adapter/http/handler"
	pgStorage "github.com/nerava/nova/internal/adapter/storage/postgres"
	redisStorage "github.com/nerava/nova/internal/adapter/storage/redis"
	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/internal/service"
	"github.com/nerava/nova/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Nova ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	redemptionRepo := pgStorage.NewRedemptionRepo(pool)
	feePeriodRepo := pgStorage.NewFeePeriodRepo(pool)
	registrationRepo := pgStorage.NewRegistrationRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	pushQueue := redisStorage.NewPushQueue(rdb, 5*time.Second)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Keys)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Optional upstream clients
	var orderLookup ports.OrderLookup
	if cfg.Processor.BaseURL != "" {
		orderLookup = service.NewProcessorOrderClient(
			encSvc,
			&http.Client{Timeout: cfg.Processor.Timeout},
			cfg.Processor.BaseURL,
			cfg.Processor.Timeout,
			log,
		)
	}
	var secondary ports.SecondarySink
	if cfg.Secondary.Enabled && cfg.Secondary.BaseURL != "" {
		secondary = service.NewSecondaryPlatformClient(
			&http.Client{Timeout: cfg.Secondary.Timeout},
			cfg.Secondary.BaseURL,
			cfg.Secondary.Timeout,
			log,
		)
	}

	// Initialize business services
	authSvc := service.NewAuthService(merchantRepo, hashSvc, tokenSvc)
	feeSvc := service.NewFeeAccrualService(feePeriodRepo, cfg.Nova.FeeRateBps, log)
	registrySvc := service.NewRegistryService(registrationRepo, log)
	passSvc := service.NewPassService(walletRepo, txRepo, encSvc, sigSvc, service.PassConfig{
		TypeID:       cfg.Pass.TypeID,
		TeamID:       cfg.Pass.TeamID,
		Organization: cfg.Pass.Organization,
		SerialPrefix: cfg.Pass.SerialPrefix,
	}, log)
	ledgerSvc := service.NewLedgerService(
		walletRepo,
		merchantRepo,
		txRepo,
		redemptionRepo,
		feeSvc,
		orderLookup,
		pushQueue,
		secondary,
		encSvc,
		transactor,
		log,
	)

	// Push dispatcher workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if cfg.Push.GatewayURL != "" {
		pushSvc := service.NewPushService(
			pushQueue,
			registrySvc,
			&http.Client{Timeout: cfg.Push.Timeout},
			cfg.Push.GatewayURL,
			cfg.Push.Timeout,
			log,
		)
		workers := cfg.Push.Workers
		if workers < 1 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			go pushSvc.Run(workerCtx)
		}
		log.Info().Int("workers", workers).Msg("Push dispatcher started")
	} else {
		log.Warn().Msg("Push gateway not configured, devices rely on polling only")
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		LedgerSvc:      ledgerSvc,
		RegistrySvc:    registrySvc,
		PassSvc:        passSvc,
		WalletRepo:     walletRepo,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
