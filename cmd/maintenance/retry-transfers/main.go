package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/services"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// retry-transfers resubmits retry_pending transfers to Stripe.
//
//	go run ./cmd/maintenance/retry-transfers                 # every retry_pending transfer
//	go run ./cmd/maintenance/retry-transfers -id <uuid>      # one transfer
//	go run ./cmd/maintenance/retry-transfers -list-failed    # show exhausted transfers only
func main() {
	var (
		idFlag         string
		listFailed     bool
		backfill       bool
		refreshBatches bool
		timeout        time.Duration
	)
	flag.StringVar(&idFlag, "id", "", "retry a single transfer by id")
	flag.BoolVar(&listFailed, "list-failed", false, "list transfers that exhausted their retries and exit")
	flag.BoolVar(&backfill, "backfill", false, "create missing transfers for completed bookings first")
	flag.BoolVar(&refreshBatches, "refresh-batches", true, "recompute weekly batch statuses afterwards")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	sqlxDB, ok := db.(*database.PostgresDB)
	if !ok {
		log.Fatal("unexpected database handle")
	}

	bookingRepo := database.NewBookingRepository(sqlxDB.SQLX(), logger)
	detailerRepo := database.NewDetailerRepository(sqlxDB.SQLX())
	payouts := services.NewPayoutService(
		database.NewTransferRepository(sqlxDB.SQLX(), logger),
		database.NewPayoutBatchRepository(sqlxDB.SQLX()),
		bookingRepo,
		services.NewFeeCalculator(detailerRepo, cfg.Fees),
		services.NewStripeService(cfg, logger),
		services.NewNotificationServiceFromConfig(cfg, detailerRepo, logger),
		cfg.Payout,
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if listFailed {
		failed, err := payouts.ListFailedTransfers(ctx, 500)
		if err != nil {
			log.Fatalf("failed to list transfers: %v", err)
		}
		printTransfers(failed)
		return
	}

	if backfill {
		created, err := payouts.BackfillCompletedBookings(ctx)
		if err != nil {
			logger.WithError(err).Warn("Backfill finished with errors")
		}
		fmt.Printf("Backfilled %d transfer(s)\n", created)
	}

	if idFlag != "" {
		id, err := uuid.Parse(idFlag)
		if err != nil {
			log.Fatalf("invalid -id: %v", err)
		}
		t, err := payouts.RetryTransfer(ctx, id)
		if t != nil {
			printTransfers([]models.Transfer{*t})
		}
		if err != nil {
			log.Fatalf("retry failed: %v", err)
		}
	} else {
		submitted, failed, err := payouts.RetryAllPending(ctx)
		if err != nil {
			log.Fatalf("retry failed: %v", err)
		}
		fmt.Printf("Resubmitted %d transfer(s), %d failed again\n", submitted, failed)
	}

	if refreshBatches {
		closed, err := payouts.RefreshBatchStatuses(ctx)
		if err != nil {
			logger.WithError(err).Warn("Batch refresh finished with errors")
		}
		fmt.Printf("Closed %d payout batch(es)\n", closed)
	}
}

func printTransfers(list []models.Transfer) {
	if len(list) == 0 {
		fmt.Println("No transfers.")
		return
	}
	for _, t := range list {
		msg := ""
		if t.ErrorMessage != nil {
			msg = *t.ErrorMessage
		}
		fmt.Printf("%s  booking=%s  %d %s  status=%s  retries=%d/%d  %s\n",
			t.ID, t.BookingID, t.AmountCents, t.Currency, t.Status, t.RetryCount, models.MaxTransferRetries, msg)
	}
}
