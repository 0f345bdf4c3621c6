// Package jobs содержит периодические задачи сервиса стриков.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	midnightSpec   = "0 0 * * *"
	evictSpec      = "@every 10m"
	refreshTimeout = 5 * time.Minute
)

// Sessions описывает реестр трекеров, которым управляет планировщик.
type Sessions interface {
	RefreshAll(ctx context.Context) error
	EvictIdle(ttl time.Duration) int
}

// Sweeper очищает устаревшие записи, например ограничители частоты.
type Sweeper interface {
	Cleanup(ttl time.Duration) int
}

// Scheduler пересчитывает статусы после полуночи и закрывает простаивающие сессии.
type Scheduler struct {
	sessions   Sessions
	sweepers   []Sweeper
	sessionTTL time.Duration
	logger     *zap.Logger
	cron       *cron.Cron
}

// NewScheduler создаёт планировщик. Полночь определяется в часовом поясе loc.
func NewScheduler(sessions Sessions, sessionTTL time.Duration, loc *time.Location, logger *zap.Logger, sweepers ...Sweeper) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sessions:   sessions,
		sweepers:   sweepers,
		sessionTTL: sessionTTL,
		logger:     logger,
		cron:       cron.New(cron.WithLocation(loc)),
	}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(midnightSpec, s.refresh); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	if _, err := s.cron.AddFunc(evictSpec, s.evict); err != nil {
		return fmt.Errorf("add evict job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("sessionTTL", s.sessionTTL))
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := s.sessions.RefreshAll(ctx); err != nil {
		s.logger.Error("refresh streak statuses", zap.Error(err))
	}
}

func (s *Scheduler) evict() {
	if n := s.sessions.EvictIdle(s.sessionTTL); n > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", n))
	}

	for _, sw := range s.sweepers {
		sw.Cleanup(s.sessionTTL)
	}
}
