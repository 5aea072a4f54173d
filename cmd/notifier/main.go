package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/services"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/mq"
	"github.com/sirupsen/logrus"
)

// notifier consumes queued detailer notifications and sends them over SMS and email
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.Queue.URL == "" {
		logger.Fatal("RABBITMQ_URL is required for the notifier")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	sqlxDB, ok := db.(*database.PostgresDB)
	if !ok {
		logger.Fatal("Failed to cast database connection to PostgresDB")
	}

	detailerRepo := database.NewDetailerRepository(sqlxDB.SQLX())
	notificationService := services.NewNotificationServiceFromConfig(cfg, detailerRepo, logger)

	consumer, err := mq.NewConsumer(
		cfg.Queue.URL,
		cfg.Queue.Exchange,
		cfg.Queue.NotificationQueue,
		[]string{services.RoutingDetailerNotification},
		10,
	)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deliveries, err := consumer.Deliveries(ctx)
	if err != nil {
		logger.Fatalf("Failed to start consuming: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"exchange": cfg.Queue.Exchange,
		"queue":    cfg.Queue.NotificationQueue,
	}).Info("Notifier started")

	services.NewNotificationConsumer(notificationService, logger).Run(ctx, deliveries)

	logger.Info("Notifier stopped")
}
