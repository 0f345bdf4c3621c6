// Package streak реализует трекер стриков: получение статуса, расчёт окна до сгорания,
// вехи и операции с заморозками.
package streak

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/streak-tracker/internal/metrics"
	"github.com/mmeshcher/streak-tracker/internal/model"
)

// Backend описывает удалённые вызовы, от которых зависит трекер.
type Backend interface {
	GetStreakStatus(ctx context.Context, userID uuid.UUID, today model.Date) ([]model.StreakStatus, error)
	PurchaseStreakFreeze(ctx context.Context, userID uuid.UUID) error
	UseStreakFreeze(ctx context.Context, userID uuid.UUID, today model.Date) error
	UpdateUserStreak(ctx context.Context, userID uuid.UUID, upd model.StreakUpdate) error
}

// ProfileProvider даёт доступ к профилю пользователя, которым владеет внешний код.
// Profile возвращает nil, если пользователь не вошёл.
type ProfileProvider interface {
	Profile() *model.Profile
	Refresh(ctx context.Context) error
}

// State — снимок наблюдаемого состояния трекера.
type State struct {
	Status  *model.StreakStatus
	Loading bool
	Err     error
}

// Tracker хранит статус стрика одного пользователя и выполняет операции над ним.
type Tracker struct {
	backend  Backend
	profiles ProfileProvider
	sources  []StatusSource

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	loc     *time.Location

	seq atomic.Uint64

	mu      sync.RWMutex
	status  *model.StreakStatus
	loading bool
	err     error
}

// Option настраивает Tracker.
type Option func(*Tracker)

// WithLogger задаёт логгер трекера.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation задаёт часовой пояс пользователя для календарных дат.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithMetrics подключает счётчики Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker создаёт трекер. Статус сначала запрашивается у бэкенда,
// при ошибке восстанавливается из профиля.
func NewTracker(backend Backend, profiles ProfileProvider, opts ...Option) *Tracker {
	t := &Tracker{
		backend:  backend,
		profiles: profiles,
		logger:   zap.NewNop(),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.sources = []StatusSource{
		remoteSource{backend: backend, today: t.today},
		localSource{profiles: profiles},
	}
	return t
}

// Refetch заново получает статус стрика. Без пользователя ничего не делает.
// Если за время запроса был начат более новый, результат этого запроса отбрасывается.
func (t *Tracker) Refetch(ctx context.Context) {
	p := t.profiles.Profile()
	if p == nil {
		return
	}

	token := t.seq.Add(1)

	t.mu.Lock()
	t.loading = true
	t.err = nil
	t.mu.Unlock()

	status, err := t.resolve(ctx, p.ID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if token != t.seq.Load() {
		t.logger.Debug("dropping superseded streak status response",
			zap.String("userID", p.ID.String()), zap.Uint64("token", token))
		return
	}

	t.loading = false
	t.err = err
	if status != nil {
		t.status = status
	}
}

// resolve опрашивает источники по порядку; первый успешный ответ побеждает.
// Возвращается ошибка первого источника, если пришлось перейти к следующему.
func (t *Tracker) resolve(ctx context.Context, userID uuid.UUID) (*model.StreakStatus, error) {
	var errs []error
	for i, src := range t.sources {
		status, err := src.Status(ctx, userID)
		if err == nil {
			t.metrics.StatusFetched(sourceName(i))
			if len(errs) > 0 {
				return status, errs[0]
			}
			return status, nil
		}

		if i == 0 {
			t.logger.Warn("remote streak status unavailable, using profile fallback",
				zap.String("userID", userID.String()), zap.Error(err))
		}
		errs = append(errs, err)
	}
	t.metrics.StatusFetched("failed")
	return nil, errors.Join(errs...)
}

func sourceName(i int) string {
	if i == 0 {
		return "remote"
	}
	return "fallback"
}

// State возвращает снимок состояния трекера.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return State{Status: t.status, Loading: t.loading, Err: t.err}
}

// Status возвращает текущий статус или nil, если он ещё не получен.
func (t *Tracker) Status() *model.StreakStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// TimeRemaining возвращает время до сгорания стрика на текущий момент.
func (t *Tracker) TimeRemaining() (time.Duration, bool) {
	return TimeRemaining(t.Status(), t.now(), t.loc)
}

// FormatTimeRemaining возвращает остаток времени в виде строки для показа.
func (t *Tracker) FormatTimeRemaining() (string, bool) {
	d, ok := t.TimeRemaining()
	if !ok {
		return "", false
	}
	return FormatRemaining(d), true
}

// NextMilestone возвращает следующую веху для текущего статуса.
func (t *Tracker) NextMilestone() (int, bool) {
	return NextMilestone(t.Status())
}

// MilestoneProgress возвращает прогресс к следующей вехе в процентах.
func (t *Tracker) MilestoneProgress() float64 {
	return MilestoneProgress(t.Status())
}

// CanAffordFreeze сообщает, хватает ли токенов на покупку заморозки.
func (t *Tracker) CanAffordFreeze() bool {
	return t.profiles.Profile().TokenBalance() >= model.FreezeCost
}

func (t *Tracker) today() model.Date {
	return model.DateOf(t.now().In(t.loc))
}
