package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/api"
	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/events"
	"github.com/akylbek/payment-system/wallet/internal/ledger"
	"github.com/akylbek/payment-system/wallet/internal/middleware"
	"github.com/akylbek/payment-system/wallet/internal/notify"
	"github.com/akylbek/payment-system/wallet/internal/payment"
	"github.com/akylbek/payment-system/wallet/internal/quote"
	"github.com/akylbek/payment-system/wallet/internal/receiver"
	"github.com/akylbek/payment-system/wallet/internal/reconcile"
	"github.com/akylbek/payment-system/wallet/internal/repository"
	"github.com/akylbek/payment-system/wallet/internal/resolver"
	"github.com/akylbek/payment-system/wallet/internal/spsp"
	"github.com/akylbek/payment-system/wallet/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry("wallet", cfg.OTLPEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	logger := telemetry.Logger
	logger.Info("Starting wallet service")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	paymentRepo := repository.NewPaymentRepository(db)
	if err := paymentRepo.InitDB(ctx); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	userRepo := repository.NewUserRepository(db)

	// Connect to Redis
	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to configure Redis", zap.Error(err))
	}
	defer redisClient.Close()

	hub := notify.NewHub(logger)
	var sinks []events.Sink

	// Connect to Kafka
	if cfg.KafkaBrokers != "" {
		kafkaWriter := events.NewKafkaWriter(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		defer kafkaWriter.Close()
		sinks = append(sinks, events.NewKafkaSink(kafkaWriter))
	}

	// Connect to NATS
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("wallet"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		sinks = append(sinks, events.NewNATSSink(nc))
		if _, err := hub.Subscribe(nc); err != nil {
			logger.Fatal("Failed to subscribe to notifications", zap.Error(err))
		}
	}

	bus := events.NewBus(1024, logger, sinks...)
	go bus.Run(ctx)

	ledgerClient := ledger.NewClient(cfg, nil, logger)
	spspClient := spsp.NewClient(cfg, nil, logger)

	if info, err := ledgerClient.GetInfo(ctx, ""); err != nil {
		logger.Warn("Ledger is not reachable", zap.String("ledger", ledgerClient.URI()), zap.Error(err))
	} else if info.CurrencyCode != cfg.Ledger.CurrencyCode || int32(info.Scale) != cfg.Ledger.Scale {
		logger.Warn("Ledger currency differs from configuration",
			zap.String("ledger_currency", info.CurrencyCode),
			zap.Int("ledger_scale", info.Scale),
		)
	}

	destinations := resolver.NewCachingResolver(
		resolver.NewResolver(userRepo, cfg, nil, logger),
		redisClient,
		cfg.Cache.DestinationTTL,
		logger,
	)
	quotes := quote.NewEngine(destinations, spspClient, logger)
	executor := payment.NewExecutor(cfg, destinations, spspClient, paymentRepo, payment.NewRedisLocker(redisClient), bus, logger)
	conditions := spsp.NewConditionGenerator(cfg.Receiver.ConditionSecret, cfg.Ledger.Prefix, cfg.Receiver.TTL)
	receivers := receiver.NewSetup(cfg, userRepo, paymentRepo, conditions, bus, logger)
	auditor := reconcile.NewAuditor(ledgerClient, paymentRepo, logger)

	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Users:       userRepo,
		Payments:    paymentRepo,
		Quotes:      quotes,
		Payer:       executor,
		Receivers:   receivers,
		Auditor:     auditor,
		Notifier:    hub,
		Accounts:    ledgerClient,
		Idempotency: middleware.NewRedisResponseCache(redisClient),
	})

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Wallet service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stop()
	select {
	case <-bus.Done():
	case <-shutdownCtx.Done():
		logger.Warn("Event bus did not drain before shutdown")
	}

	logger.Info("Server exited")
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	if strings.Contains(redisURL, "://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}
