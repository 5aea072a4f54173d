package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/handlers"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/middleware"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/services"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/utils"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/jwt"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/mq"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
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

	logger.Info("Starting CleanSwift marketplace backend")
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

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register request validators: %v", err)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	sqlxDB, ok := db.(*database.PostgresDB)
	if !ok {
		logger.Fatal("Failed to cast database connection to PostgresDB")
	}

	// Repositories
	bookingRepo := database.NewBookingRepository(sqlxDB.SQLX(), logger)
	assignmentRepo := database.NewAssignmentRepository(sqlxDB.SQLX(), logger)
	paymentRepo := database.NewPaymentRepository(sqlxDB.SQLX())
	transferRepo := database.NewTransferRepository(sqlxDB.SQLX(), logger)
	batchRepo := database.NewPayoutBatchRepository(sqlxDB.SQLX())
	detailerRepo := database.NewDetailerRepository(sqlxDB.SQLX())
	webhookEventRepo := database.NewWebhookEventRepository(sqlxDB.SQLX(), logger)

	// Event publisher (optional). Without a broker, notifications are sent in-process
	// and status change events are dropped.
	var publisher services.EventPublisher
	var notifier services.Notifier
	if cfg.Queue.URL != "" {
		mqPublisher, err := mq.NewPublisher(cfg.Queue.URL, cfg.Queue.Exchange)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mqPublisher.Close()
		publisher = mqPublisher
		notifier = services.NewQueueNotifier(mqPublisher, logger)
		logger.WithField("exchange", cfg.Queue.Exchange).Info("Notifications will be delivered through the queue")
	} else {
		notifier = services.NewNotificationServiceFromConfig(cfg, detailerRepo, logger)
		logger.Warn("RABBITMQ_URL not set - notifications are sent in-process")
	}

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	stripeService := services.NewStripeService(cfg, logger)
	if !stripeService.IsConfigured() {
		logger.Warn("STRIPE_SECRET_KEY not set - webhooks will be rejected and payouts disabled")
	}

	feeCalculator := services.NewFeeCalculator(detailerRepo, cfg.Fees)
	payoutService := services.NewPayoutService(
		transferRepo,
		batchRepo,
		bookingRepo,
		feeCalculator,
		stripeService,
		notifier,
		cfg.Payout,
		logger,
	)
	stateMachine := services.NewBookingStateMachine(bookingRepo, payoutService, notifier, publisher, logger)
	assigner := services.NewAutoAssignmentService(assignmentRepo, bookingRepo, stateMachine, cfg.Scheduler.AssignmentBatchMax, logger)
	reconciler := services.NewWebhookReconciler(
		bookingRepo,
		paymentRepo,
		detailerRepo,
		stateMachine,
		assigner,
		payoutService,
		logger,
	)
	reminderService := services.NewReminderService(bookingRepo, notifier, 0, logger)

	// Background jobs
	cronService := services.NewCronService(cfg.Scheduler, payoutService, assigner, reminderService, logger)
	if cfg.Scheduler.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	} else {
		logger.Info("Scheduler disabled")
	}

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(
		stripeService,
		reconciler,
		webhookEventRepo,
		cfg.Webhook.ProcessingTimeout,
		cfg.Webhook.StoreRawBody,
		logger,
	)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, detailerRepo, stateMachine, assigner, logger)
	payoutHandler := handlers.NewPayoutHandler(payoutService, detailerRepo, logger)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))

	v1 := router.Group("/api/v1")
	{
		// Signature-verified, no bearer auth
		v1.Any("/webhooks/stripe", webhookHandler.HandleStripe)

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			bookings := authed.Group("/bookings")
			bookings.Use(middleware.RequireRole(jwt.RoleAdmin, jwt.RoleDetailer))
			{
				bookings.GET("/:id", bookingHandler.GetBooking)
				bookings.PATCH("/:id/status", bookingHandler.UpdateStatus)
			}

			detailer := authed.Group("/detailer")
			detailer.Use(middleware.RequireRole(jwt.RoleDetailer))
			{
				detailer.GET("/transfers", payoutHandler.GetMyTransfers)
			}

			admin := authed.Group("/admin")
			admin.Use(middleware.RequireRole(jwt.RoleAdmin))
			{
				admin.POST("/bookings/:id/assign", bookingHandler.AssignBooking)
				admin.GET("/transfers/failed", payoutHandler.GetFailedTransfers)
				admin.POST("/transfers/:id/retry", payoutHandler.RetryTransfer)
				admin.POST("/payouts/run-batch", payoutHandler.RunWeeklyBatch)
				admin.GET("/webhooks/failures", webhookHandler.ListFailures)
				admin.GET("/scheduler/jobs", func(c *gin.Context) {
					c.JSON(http.StatusOK, cronService.GetJobStatus())
				})
			}
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Webhook.ProcessingTimeout + 15*time.Second,
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
	cronService.Stop()

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

		client := utils.ParseUserAgent(c.Request.UserAgent())
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         utils.GetRealIP(c),
			"latency_ms": time.Since(start).Milliseconds(),
			"browser":    client.Browser,
			"os":         client.OS,
			"platform":   client.Platform,
			"is_bot":     client.IsBot,
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if user, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = user.UserID
			fields["roles"] = user.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
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
