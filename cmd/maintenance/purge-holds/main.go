package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/config"
	"github.com/nonvi/booking-core/internal/database"
	"github.com/nonvi/booking-core/internal/keystore"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/sirupsen/logrus"
)

// Deletes stale booking holds once, outside the server's cron schedule.
func main() {
	var (
		dbURLFlag = flag.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
		grace     = flag.Duration("grace", time.Hour, "extra age beyond the hold TTL before a hold is deleted")
		ttl       = flag.Duration("ttl", models.DefaultHoldTTL, "hold TTL")
		verbose   = flag.Bool("v", false, "log progress")
	)
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := *dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if *verbose {
		logger.SetOutput(os.Stderr)
	}

	clk := clock.NewSystem()
	cleanup := services.NewHoldCleanupService(
		database.NewBookingHoldRepository(db),
		keystore.NewPostgresStore(db, clk),
		nil,
		services.NewAuditService(database.NewAuditRepository(db), logger),
		clk,
		services.HoldCleanupConfig{HoldTTL: *ttl, Grace: *grace},
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("Deleting holds created before %s...\n", cleanup.Cutoff().Format(time.RFC3339))
	deleted, err := cleanup.RunOnce(ctx)
	if err != nil {
		log.Fatalf("cleanup failed after %d holds: %v", deleted, err)
	}
	fmt.Printf("Deleted %d stale holds.\n", deleted)
}
