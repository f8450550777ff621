package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/config"
	"github.com/vietcart/payment-backend/internal/database"
	"github.com/vietcart/payment-backend/internal/handlers"
	"github.com/vietcart/payment-backend/internal/middleware"
	"github.com/vietcart/payment-backend/internal/services"
	"github.com/vietcart/payment-backend/pkg/bankfeed"
	"github.com/vietcart/payment-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting VietCart Payment Reconciliation Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	clock := services.SystemClock()

	// Poll gate: Redis when configured so every instance shares the bank
	// feed backoff, in-process fallback otherwise
	var gate services.PollGate
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		gate = services.NewRedisGate(rdb)
		logger.Info("Redis poll gate enabled")
	} else {
		gate = services.NewMemoryGate(clock)
		logger.Warn("Redis not configured, using in-process poll gate")
	}

	// Initialize repositories
	intentRepo := database.NewPaymentIntentRepository(db)
	orderRepo := database.NewOrderRepository(db)
	productRepo := database.NewProductRepository(db, logger)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.TokenExpiry)
	feedClient := bankfeed.NewClient(bankfeed.Config{
		BaseURL: cfg.Feed.BaseURL,
		APIKey:  cfg.Feed.APIKey,
		Timeout: cfg.Feed.Timeout,
	}, logger)

	intentService := services.NewPaymentIntentService(
		intentRepo, orderRepo, productRepo, auditRepo,
		cfg.Bank, cfg.Recon.IntentTTL, clock, logger,
	)
	reconService := services.NewReconciliationService(
		intentRepo, orderRepo, productRepo, auditRepo,
		feedClient, gate, cfg.Recon, clock, logger,
	)

	// Initialize and start cron sweeps
	cronService := services.NewCronService(intentService, reconService, cfg.Recon, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(intentService, reconService, logger)
	adminHandler := handlers.NewAdminHandler(auditRepo, intentService, reconService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db.Ping))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Customer-facing payment routes (public, owner-scoped)
		payments := v1.Group("/payments")
		if rdb != nil {
			// Fixed-window throttle keeps aggressive status polling from
			// amplifying into bank feed traffic
			payments.Use(middleware.RateLimit(rdb, 30, time.Minute, logger))
		}
		{
			payments.POST("/:ownerType/:ownerID/intent", paymentHandler.CreateIntent)
			payments.GET("/:ownerType/:ownerID/check", paymentHandler.CheckPayment)
			payments.DELETE("/:ownerType/:ownerID/intent", paymentHandler.CancelIntent)
		}

		// Operator routes (JWT protected)
		admin := v1.Group("/admin/payments")
		admin.Use(middleware.AuthMiddleware(jwtService))
		admin.Use(middleware.RequireRole("payments_admin"))
		{
			admin.GET("/conflicts", adminHandler.GetConflicts)
			admin.GET("/mismatches", adminHandler.GetAmountMismatches)
			admin.GET("/intents/:intentID/audits", adminHandler.GetIntentAudits)
			admin.GET("/feed-health", adminHandler.GetFeedHealth)
			admin.POST("/sweep/expire", adminHandler.RunExpirySweep)
			admin.POST("/sweep/reconcile", adminHandler.RunReconcileSweep)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron sweeps before closing the database they write to
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(ping func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
