package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chargeslot/internal/config"
	"chargeslot/internal/database"
	"chargeslot/internal/events"
	"chargeslot/internal/middleware"
	"chargeslot/internal/modules/notification"
	"chargeslot/internal/modules/receipt"
	"chargeslot/internal/modules/reservation"
	jwtsvc "chargeslot/internal/pkg/jwt"
	"chargeslot/internal/pkg/logger"
	"chargeslot/internal/pkg/redislock"
	"chargeslot/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.IsProd())
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	reservationRepo := repository.NewReservationRepository(db)
	stationRepo := repository.NewStationRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	receipts := receipt.NewGenerator(receiptRepo, cfg.ReceiptDir, cfg.Currency)
	reservationService := reservation.NewService(reservationRepo, receipts, log)

	hub := notification.NewHub()
	defer hub.Close()

	publishers := events.Fanout{hub}
	if cfg.RabbitMQURL != "" {
		rabbit := events.NewRabbitPublisher(cfg.RabbitMQURL, events.DefaultQueue, log)
		defer func() { _ = rabbit.Close() }()
		publishers = append(publishers, rabbit)
		log.Info("RabbitMQ publisher enabled")
	} else {
		log.Warn("RABBITMQ_URL not set, events go to websocket clients only")
	}

	var sweepLock reservation.Exclusive
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, sweeps run without a shared lock")
		} else {
			sweepLock = redislock.New(rdb, "chargeslot:")
			log.Info("redis sweep lock enabled")
		}
		cancelPing()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := reservation.NewSweeper(reservationRepo, reservation.SweeperConfig{
		StaleInterval:     cfg.Sweep.StaleInterval,
		PastStartInterval: cfg.Sweep.PastStartInterval,
		PendingTTL:        cfg.Sweep.PendingTTL,
	}, sweepLock, log)
	go sweeper.Start(ctx)

	reservationHandler := reservation.NewHandler(
		reservationService,
		publishers,
		middleware.NewOwnershipChecker(stationRepo),
		cfg.Currency,
		log,
	)
	wsHandler := notification.NewWSHandler(hub, j, log)

	r := newRouter(log, j, cfg.CORSAllowedOrigins, reservationHandler, wsHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
}
