// Package service управляет трекерами стриков активных пользовательских сессий.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/streak-tracker/internal/metrics"
	"github.com/mmeshcher/streak-tracker/internal/profile"
	"github.com/mmeshcher/streak-tracker/internal/streak"
)

const refreshConcurrency = 8

// Backend описывает контракт бэкенда, используемый сервисом.
type Backend interface {
	streak.Backend
	profile.Loader
}

type session struct {
	tracker  *streak.Tracker
	profiles *profile.Store
	lastSeen time.Time

	ready chan struct{}
	err   error
}

// Service хранит по одному трекеру на пользователя.
type Service struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewService создаёт сервис с указанным бэкендом. Календарные даты считаются в loc.
func NewService(backend Backend, logger *zap.Logger, m *metrics.Metrics, loc *time.Location) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		backend:  backend,
		logger:   logger,
		metrics:  m,
		loc:      loc,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Close завершает все сессии и закрывает бэкенд, если он этого требует.
func (s *Service) Close() error {
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.profiles.SignOut()
		delete(s.sessions, id)
	}
	s.metrics.SetActiveSessions(0)
	s.mu.Unlock()

	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Tracker возвращает трекер пользователя. При первом обращении трекер активируется:
// загружается профиль и запрашивается статус стрика.
func (s *Service) Tracker(ctx context.Context, userID uuid.UUID) (*streak.Tracker, error) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		sess.lastSeen = s.now()
		s.mu.Unlock()

		select {
		case <-sess.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if sess.err != nil {
			return nil, sess.err
		}
		return sess.tracker, nil
	}

	store := profile.NewStore(s.backend, userID)
	sess = &session{
		profiles: store,
		tracker: streak.NewTracker(s.backend, store,
			streak.WithLogger(s.logger),
			streak.WithMetrics(s.metrics),
			streak.WithLocation(s.loc),
			streak.WithClock(s.now),
		),
		lastSeen: s.now(),
		ready:    make(chan struct{}),
	}
	s.sessions[userID] = sess
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	sess.err = s.activate(ctx, sess)
	close(sess.ready)

	if sess.err != nil {
		s.mu.Lock()
		if s.sessions[userID] == sess {
			delete(s.sessions, userID)
			s.metrics.SetActiveSessions(len(s.sessions))
		}
		s.mu.Unlock()
		return nil, sess.err
	}

	s.logger.Debug("streak session started", zap.String("userID", userID.String()))
	return sess.tracker, nil
}

func (s *Service) activate(ctx context.Context, sess *session) error {
	if err := sess.profiles.Refresh(ctx); err != nil {
		return err
	}
	sess.tracker.Refetch(ctx)
	return nil
}

// Release завершает сессию пользователя.
func (s *Service) Release(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	sess.profiles.SignOut()
	delete(s.sessions, userID)
	s.metrics.SetActiveSessions(len(s.sessions))
}

// RefreshAll заново запрашивает статус у всех активных трекеров.
func (s *Service) RefreshAll(ctx context.Context) error {
	trackers := s.activeTrackers()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, tr := range trackers {
		tr := tr
		g.Go(func() error {
			tr.Refetch(ctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("streak statuses refreshed", zap.Int("sessions", len(trackers)))
	return nil
}

// EvictIdle завершает сессии, не использовавшиеся дольше ttl, и возвращает их число.
func (s *Service) EvictIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	evicted := 0
	for id, sess := range s.sessions {
		select {
		case <-sess.ready:
		default:
			continue
		}
		if sess.lastSeen.Before(cutoff) {
			sess.profiles.SignOut()
			delete(s.sessions, id)
			evicted++
		}
	}
	s.metrics.SetActiveSessions(len(s.sessions))
	return evicted
}

func (s *Service) activeTrackers() []*streak.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*streak.Tracker, 0, len(s.sessions))
	for _, sess := range s.sessions {
		select {
		case <-sess.ready:
			if sess.err == nil {
				res = append(res, sess.tracker)
			}
		default:
		}
	}
	return res
}
