package streak

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmeshcher/streak-tracker/internal/model"
)

// StatusSource — способ получить статус стрика пользователя.
// Ответ (nil, nil) означает, что источник не вернул ни одной записи.
type StatusSource interface {
	Status(ctx context.Context, userID uuid.UUID) (*model.StreakStatus, error)
}

// remoteSource получает статус агрегирующим запросом к бэкенду.
// Сегодняшняя дата передаётся бэкенду, чтобы сгорание считалось в часовом поясе пользователя.
type remoteSource struct {
	backend Backend
	today   func() model.Date
}

func (s remoteSource) Status(ctx context.Context, userID uuid.UUID) (*model.StreakStatus, error) {
	rows, err := s.backend.GetStreakStatus(ctx, userID, s.today())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	st := rows[0]
	return &st, nil
}

// localSource восстанавливает приближённый статус по закэшированному профилю.
// Флаг риска неизвестен и считается false, вехи не восстанавливаются.
type localSource struct {
	profiles ProfileProvider
}

func (s localSource) Status(_ context.Context, _ uuid.UUID) (*model.StreakStatus, error) {
	p := s.profiles.Profile()
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	st := &model.StreakStatus{
		CurrentStreak:      derefInt(p.StreakCurrent),
		BestStreak:         derefInt(p.StreakBest),
		FreezesAvailable:   derefInt(p.StreakFreezes),
		MilestonesAchieved: []int{},
	}
	if p.StreakLastDate != nil {
		d := *p.StreakLastDate
		st.LastActivityDate = &d
	}
	if st.BestStreak < st.CurrentStreak {
		st.BestStreak = st.CurrentStreak
	}
	return st, nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
