package reservation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/repository"

	"github.com/sirupsen/logrus"
)

type SweeperConfig struct {
	StaleInterval     time.Duration // default 1h
	PastStartInterval time.Duration // default 30m
	PendingTTL        time.Duration // default 24h
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		StaleInterval:     time.Hour,
		PastStartInterval: 30 * time.Minute,
		PendingTTL:        24 * time.Hour,
	}
}

// Exclusive runs fn only if no other process holds key. It reports whether fn ran.
type Exclusive interface {
	Do(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context)) (bool, error)
}

// Sweeper cancels pending reservations that aged out or whose start passed.
// Sweeps never return errors; failures are logged and the next tick retries.
type Sweeper struct {
	store repository.ReservationStore
	cfg   SweeperConfig
	lock  Exclusive
	log   *logrus.Entry
	now   func() time.Time
}

func NewSweeper(store repository.ReservationStore, cfg SweeperConfig, lock Exclusive, log *logrus.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.StaleInterval <= 0 {
		cfg.StaleInterval = def.StaleInterval
	}
	if cfg.PastStartInterval <= 0 {
		cfg.PastStartInterval = def.PastStartInterval
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{
		store: store,
		cfg:   cfg,
		lock:  lock,
		log:   log.WithField("component", "reservation_sweeper"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SweepStalePending cancels pending reservations created more than PendingTTL ago.
func (s *Sweeper) SweepStalePending(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.cfg.PendingTTL)
	return s.sweep(ctx, "stale_pending", func() ([]domain.Reservation, error) {
		return s.store.FindStalePending(ctx, cutoff)
	})
}

// SweepPastStart cancels pending reservations whose start time has passed.
func (s *Sweeper) SweepPastStart(ctx context.Context) int64 {
	now := s.now()
	return s.sweep(ctx, "past_start", func() ([]domain.Reservation, error) {
		return s.store.FindPastStartPending(ctx, now)
	})
}

func (s *Sweeper) sweep(ctx context.Context, name string, find func() ([]domain.Reservation, error)) (cancelled int64) {
	entry := s.log.WithField("sweep", name)
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			entry.WithFields(logrus.Fields{
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			}).Error("sweep panicked")
			cancelled = 0
		}
	}()

	expired, err := find()
	if err != nil {
		entry.WithError(err).Error("sweep lookup failed")
		return 0
	}
	if len(expired) == 0 {
		entry.Debug("nothing to sweep")
		return 0
	}

	ids := make([]int64, 0, len(expired))
	for _, r := range expired {
		ids = append(ids, r.ID)
	}

	cancelled, err = s.store.CancelPending(ctx, ids)
	if err != nil {
		entry.WithError(err).WithField("candidates", len(ids)).Error("sweep cancel failed")
		return 0
	}

	entry.WithFields(logrus.Fields{
		"candidates": len(ids),
		"cancelled":  cancelled,
		"took":       time.Since(started),
	}).Info("sweep completed")
	return cancelled
}

// Start runs both sweeps on their own tickers until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	stale := time.NewTicker(s.cfg.StaleInterval)
	defer stale.Stop()
	pastStart := time.NewTicker(s.cfg.PastStartInterval)
	defer pastStart.Stop()

	s.log.WithFields(logrus.Fields{
		"stale_interval":      s.cfg.StaleInterval,
		"past_start_interval": s.cfg.PastStartInterval,
		"pending_ttl":         s.cfg.PendingTTL,
	}).Info("reservation sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reservation sweeper stopped")
			return
		case <-stale.C:
			s.runExclusive(ctx, "sweep:stale_pending", s.cfg.StaleInterval, func(ctx context.Context) {
				s.SweepStalePending(ctx)
			})
		case <-pastStart.C:
			s.runExclusive(ctx, "sweep:past_start", s.cfg.PastStartInterval, func(ctx context.Context) {
				s.SweepPastStart(ctx)
			})
		}
	}
}

func (s *Sweeper) runExclusive(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context)) {
	if s.lock == nil {
		fn(ctx)
		return
	}
	ran, err := s.lock.Do(ctx, key, ttl, fn)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("sweep lock unavailable, running locally")
		fn(ctx)
		return
	}
	if !ran {
		s.log.WithField("key", key).Debug("sweep held by another instance")
	}
}
