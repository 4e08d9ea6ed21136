package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"

	"bountypay/internal/pkg/logger"
	"bountypay/internal/platform/config"
	"bountypay/internal/platform/database"
	"bountypay/internal/platform/repositories"
	"bountypay/internal/workers"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	pendingRepo := repositories.NewPendingPaymentRepository(db)
	sweeper := workers.NewSweeper(pendingRepo)

	log.Printf("Sweeper starting, interval %v", cfg.Claims.SweepInterval)

	// Run once at startup, then on the ticker.
	sweeper.SweepExpiredPayments()

	ticker := time.NewTicker(cfg.Claims.SweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		sweeper.SweepExpiredPayments()
	}
}
