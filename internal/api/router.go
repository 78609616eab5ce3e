package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/handlers"
	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/middleware"
	"github.com/akylbek/payment-system/wallet/internal/telemetry"
)

type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Users       interfaces.UserRepository
	Payments    interfaces.PaymentRepository
	Quotes      handlers.Quoter
	Payer       handlers.Payer
	Receivers   handlers.ReceiverService
	Auditor     handlers.Auditor
	Notifier    handlers.Notifier
	Accounts    handlers.LedgerAccounts
	Idempotency middleware.ResponseCache
}

func NewRouter(d Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())
	r.Use(telemetry.MetricsMiddleware())
	r.Use(middleware.LoggerMiddleware(d.Logger))

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "wallet"})
	})

	auth := middleware.AuthMiddleware([]byte(d.Config.JWTSecret), d.Users, d.Logger)

	paymentHandler := handlers.NewPaymentHandler(d.Quotes, d.Payer, d.Payments, d.Logger)
	payments := r.Group("/payments", auth)
	{
		payments.POST("/quote", paymentHandler.Quote)
		payments.GET("", paymentHandler.History)
		payments.GET("/stats", paymentHandler.Stats)
		payments.GET("/:id", paymentHandler.GetPayment)
		payments.PUT("/:id", middleware.IdempotencyMiddleware(d.Idempotency, d.Config.Cache.IdempotencyTTL, d.Logger), paymentHandler.Pay)
	}

	receiverHandler := handlers.NewReceiverHandler(d.Receivers, d.Logger)
	receivers := r.Group("/api/receivers")
	{
		receivers.POST("/:username", receiverHandler.CreateRequest)
		receivers.GET("/:username", receiverHandler.Payee)
	}

	notifyHandler := handlers.NewNotifyHandler(d.Notifier, d.Logger)
	r.GET("/ws", auth, notifyHandler.Connect)

	accountHandler := handlers.NewAccountHandler(d.Config, d.Accounts, d.Logger)
	r.GET("/accounts/balance", auth, accountHandler.Balance)
	r.POST("/accounts/reload", auth, accountHandler.Reload)

	adminHandler := handlers.NewAdminHandler(d.Auditor, d.Logger)
	admin := r.Group("/admin", auth, middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.GET("/reconcile", adminHandler.Reconcile)
		admin.PUT("/accounts/:username", accountHandler.Create)
	}

	return r
}
