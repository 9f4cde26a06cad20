// Command sweep runs both reservation sweeps once, for cron-style deployments.
package main

import (
	"context"
	"time"

	"chargeslot/internal/config"
	"chargeslot/internal/database"
	"chargeslot/internal/modules/reservation"
	"chargeslot/internal/pkg/logger"
	"chargeslot/internal/repository"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.IsProd())

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	sweeper := reservation.NewSweeper(repository.NewReservationRepository(db), reservation.SweeperConfig{
		StaleInterval:     cfg.Sweep.StaleInterval,
		PastStartInterval: cfg.Sweep.PastStartInterval,
		PendingTTL:        cfg.Sweep.PendingTTL,
	}, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stale := sweeper.SweepStalePending(ctx)
	pastStart := sweeper.SweepPastStart(ctx)

	log.WithFields(logrus.Fields{
		"stale_pending": stale,
		"past_start":    pastStart,
	}).Info("reservation sweep completed")
}
