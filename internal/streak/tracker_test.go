package streak

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/streak-tracker/internal/model"
)

type stubBackend struct {
	mu sync.Mutex

	statusFn   func(ctx context.Context) ([]model.StreakStatus, error)
	purchaseFn func() error
	useFn      func(today model.Date) error
	updateErr  error

	statusCalls   int
	statusDays    []model.Date
	purchaseCalls int
	useCalls      int
	updates       []model.StreakUpdate
}

func (s *stubBackend) GetStreakStatus(ctx context.Context, userID uuid.UUID, today model.Date) ([]model.StreakStatus, error) {
	s.mu.Lock()
	s.statusCalls++
	s.statusDays = append(s.statusDays, today)
	fn := s.statusFn
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (s *stubBackend) PurchaseStreakFreeze(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseCalls++
	if s.purchaseFn == nil {
		return nil
	}
	return s.purchaseFn()
}

func (s *stubBackend) UseStreakFreeze(ctx context.Context, userID uuid.UUID, today model.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useCalls++
	if s.useFn == nil {
		return nil
	}
	return s.useFn(today)
}

func (s *stubBackend) UpdateUserStreak(ctx context.Context, userID uuid.UUID, upd model.StreakUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, upd)
	return s.updateErr
}

func (s *stubBackend) remoteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchaseCalls + s.useCalls + len(s.updates)
}

type stubProfiles struct {
	profile    *model.Profile
	refreshErr error
	refreshes  int
}

func (s *stubProfiles) Profile() *model.Profile { return s.profile }

func (s *stubProfiles) Refresh(ctx context.Context) error {
	s.refreshes++
	return s.refreshErr
}

func intPtr(v int) *int { return &v }

var testNow = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

func newTestTracker(backend *stubBackend, profiles *stubProfiles) *Tracker {
	return NewTracker(backend, profiles,
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
	)
}

func TestRefetch_AdoptsFirstRemoteRow(t *testing.T) {
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{
				{CurrentStreak: 5, BestStreak: 9, FreezesAvailable: 1, IsAtRisk: true, MilestonesAchieved: []int{3}},
				{CurrentStreak: 100},
			}, nil
		},
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New()}}
	tr := newTestTracker(backend, profiles)

	tr.Refetch(context.Background())

	state := tr.State()
	require.NotNil(t, state.Status)
	assert.Equal(t, 5, state.Status.CurrentStreak)
	assert.True(t, state.Status.IsAtRisk)
	assert.Equal(t, []int{3}, state.Status.MilestonesAchieved)
	assert.NoError(t, state.Err)
	assert.False(t, state.Loading)
}

func TestRefetch_PassesLocalDate(t *testing.T) {
	backend := &stubBackend{}
	moscow := time.FixedZone("UTC+3", 3*60*60)
	tr := NewTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New()}},
		WithClock(func() time.Time { return time.Date(2026, time.October, 17, 21, 30, 0, 0, time.UTC) }),
		WithLocation(moscow),
	)

	tr.Refetch(context.Background())

	require.Len(t, backend.statusDays, 1)
	assert.Equal(t, model.Date{Year: 2026, Month: time.October, Day: 18}, backend.statusDays[0])
}

func TestRefetch_NoRowsKeepsStatus(t *testing.T) {
	rows := []model.StreakStatus{{CurrentStreak: 2, BestStreak: 2}}
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) { return rows, nil },
	}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New()}})

	tr.Refetch(context.Background())
	rows = nil
	tr.Refetch(context.Background())

	require.NotNil(t, tr.Status())
	assert.Equal(t, 2, tr.Status().CurrentStreak)
}

func TestRefetch_FallsBackToProfile(t *testing.T) {
	remoteErr := errors.New("function get_streak_status does not exist")
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) { return nil, remoteErr },
	}
	last := model.Date{Year: 2026, Month: time.October, Day: 17}
	profiles := &stubProfiles{profile: &model.Profile{
		ID:             uuid.New(),
		StreakCurrent:  intPtr(6),
		StreakBest:     intPtr(4),
		StreakLastDate: &last,
	}}
	tr := newTestTracker(backend, profiles)

	tr.Refetch(context.Background())

	state := tr.State()
	require.NotNil(t, state.Status)
	assert.ErrorIs(t, state.Err, remoteErr)
	assert.Equal(t, 6, state.Status.CurrentStreak)
	assert.GreaterOrEqual(t, state.Status.BestStreak, state.Status.CurrentStreak)
	assert.Equal(t, 0, state.Status.FreezesAvailable)
	assert.Equal(t, &last, state.Status.LastActivityDate)
	assert.False(t, state.Status.IsAtRisk)
	assert.Empty(t, state.Status.MilestonesAchieved)
}

func TestRefetch_WithoutUserIsNoop(t *testing.T) {
	backend := &stubBackend{}
	tr := newTestTracker(backend, &stubProfiles{})

	tr.Refetch(context.Background())

	assert.Nil(t, tr.Status())
	assert.Equal(t, 0, backend.statusCalls)
}

func TestRefetch_Idempotent(t *testing.T) {
	last := model.Date{Year: 2026, Month: time.October, Day: 18}
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{CurrentStreak: 3, BestStreak: 8, LastActivityDate: &last, MilestonesAchieved: []int{3}}}, nil
		},
	}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New()}})

	tr.Refetch(context.Background())
	first := *tr.Status()
	tr.Refetch(context.Background())
	second := *tr.Status()

	assert.Equal(t, first, second)
}

func TestRefetch_DropsSupersededResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	var mu sync.Mutex
	call := 0
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			mu.Lock()
			call++
			n := call
			mu.Unlock()

			if n == 1 {
				close(started)
				<-release
				return []model.StreakStatus{{CurrentStreak: 1, BestStreak: 1}}, nil
			}
			return []model.StreakStatus{{CurrentStreak: 2, BestStreak: 2}}, nil
		},
	}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New()}})

	done := make(chan struct{})
	go func() {
		tr.Refetch(context.Background())
		close(done)
	}()

	<-started
	tr.Refetch(context.Background())
	close(release)
	<-done

	require.NotNil(t, tr.Status())
	assert.Equal(t, 2, tr.Status().CurrentStreak)
	assert.False(t, tr.State().Loading)
}

func TestPurchaseFreeze_InsufficientTokens(t *testing.T) {
	backend := &stubBackend{}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(3)}})

	err := tr.PurchaseFreeze(context.Background())

	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "Not enough tokens. Need 5 tokens.", UserMessage(err))
	assert.Equal(t, 0, backend.remoteCalls())
}

func TestPurchaseFreeze_NotAuthenticated(t *testing.T) {
	tr := newTestTracker(&stubBackend{}, &stubProfiles{})

	err := tr.PurchaseFreeze(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	err = tr.UseFreeze(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, "Not authenticated", UserMessage(err))
}

func TestPurchaseFreeze_Success(t *testing.T) {
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{CurrentStreak: 4, BestStreak: 4, FreezesAvailable: 1}}, nil
		},
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(12)}}
	tr := newTestTracker(backend, profiles)

	err := tr.PurchaseFreeze(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, backend.purchaseCalls)
	assert.Empty(t, backend.updates)
	assert.Equal(t, 1, profiles.refreshes)
	require.NotNil(t, tr.Status())
	assert.Equal(t, 1, tr.Status().FreezesAvailable)
}

func TestPurchaseFreeze_RemoteInsufficientFunds(t *testing.T) {
	backend := &stubBackend{
		purchaseFn: func() error { return errors.New("Insufficient tokens") },
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(5)}}
	tr := newTestTracker(backend, profiles)

	err := tr.PurchaseFreeze(context.Background())

	assert.Equal(t, "Not enough tokens. Need 5 tokens.", UserMessage(err))
	assert.Empty(t, backend.updates)
	assert.Equal(t, 0, profiles.refreshes)
}

func TestPurchaseFreeze_FallbackUpdate(t *testing.T) {
	backend := &stubBackend{
		purchaseFn: func() error { return errors.New("connection reset by peer") },
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(7), StreakFreezes: intPtr(2)}}
	tr := newTestTracker(backend, profiles)

	err := tr.PurchaseFreeze(context.Background())

	require.NoError(t, err)
	require.Len(t, backend.updates, 1)
	assert.Equal(t, model.StreakUpdate{
		ExpectTokens:  7,
		ExpectFreezes: 2,
		Tokens:        2,
		Freezes:       3,
	}, backend.updates[0])
	assert.Equal(t, 1, profiles.refreshes)
}

func TestPurchaseFreeze_FallbackConflict(t *testing.T) {
	backend := &stubBackend{
		purchaseFn: func() error { return errors.New("timeout") },
		updateErr:  ErrConflict,
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(7)}}
	tr := newTestTracker(backend, profiles)

	err := tr.PurchaseFreeze(context.Background())

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 0, profiles.refreshes)
}

func TestPurchaseFreeze_RefreshFailure(t *testing.T) {
	refreshErr := errors.New("profile unavailable")
	profiles := &stubProfiles{
		profile:    &model.Profile{ID: uuid.New(), Tokens: intPtr(50)},
		refreshErr: refreshErr,
	}
	tr := newTestTracker(&stubBackend{}, profiles)

	err := tr.PurchaseFreeze(context.Background())
	assert.ErrorIs(t, err, refreshErr)
}

func TestUseFreeze_NoFreezes(t *testing.T) {
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{CurrentStreak: 9, BestStreak: 9, FreezesAvailable: 0}}, nil
		},
	}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New(), StreakFreezes: intPtr(0)}})
	tr.Refetch(context.Background())

	err := tr.UseFreeze(context.Background())

	require.ErrorIs(t, err, ErrNoFreezes)
	assert.Equal(t, "No streak freezes available", UserMessage(err))
	assert.Equal(t, 0, backend.remoteCalls())
}

func TestUseFreeze_BeforeStatusLoaded(t *testing.T) {
	backend := &stubBackend{}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New()}})

	err := tr.UseFreeze(context.Background())

	assert.ErrorIs(t, err, ErrNoFreezes)
	assert.Equal(t, 0, backend.remoteCalls())
}

func TestUseFreeze_Success(t *testing.T) {
	var gotToday model.Date
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{CurrentStreak: 9, BestStreak: 12, FreezesAvailable: 2}}, nil
		},
		useFn: func(today model.Date) error {
			gotToday = today
			return nil
		},
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New(), StreakFreezes: intPtr(2)}}
	tr := newTestTracker(backend, profiles)
	tr.Refetch(context.Background())

	err := tr.UseFreeze(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.DateOf(testNow), gotToday)
	assert.Equal(t, 1, profiles.refreshes)
	assert.Empty(t, backend.updates)
}

func TestUseFreeze_RemoteNoFreezes(t *testing.T) {
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{FreezesAvailable: 1}}, nil
		},
		useFn: func(model.Date) error { return errors.New("No freezes available") },
	}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New(), StreakFreezes: intPtr(1)}})
	tr.Refetch(context.Background())

	err := tr.UseFreeze(context.Background())

	assert.ErrorIs(t, err, ErrNoFreezes)
	assert.Empty(t, backend.updates)
}

func TestUseFreeze_FallbackUpdate(t *testing.T) {
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{CurrentStreak: 3, BestStreak: 3, FreezesAvailable: 1}}, nil
		},
		useFn: func(model.Date) error { return errors.New("503 service unavailable") },
	}
	profiles := &stubProfiles{profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(4), StreakFreezes: intPtr(1)}}
	tr := newTestTracker(backend, profiles)
	tr.Refetch(context.Background())

	err := tr.UseFreeze(context.Background())

	require.NoError(t, err)
	require.Len(t, backend.updates, 1)
	upd := backend.updates[0]
	assert.Equal(t, 1, upd.ExpectFreezes)
	assert.Equal(t, 0, upd.Freezes)
	assert.Equal(t, 4, upd.Tokens)
	require.NotNil(t, upd.LastDate)
	assert.Equal(t, model.DateOf(testNow), *upd.LastDate)
}

func TestCanAffordFreeze(t *testing.T) {
	tests := []struct {
		name    string
		profile *model.Profile
		want    bool
	}{
		{name: "signed out", profile: nil, want: false},
		{name: "unknown tokens", profile: &model.Profile{ID: uuid.New()}, want: false},
		{name: "below cost", profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(4)}, want: false},
		{name: "exact cost", profile: &model.Profile{ID: uuid.New(), Tokens: intPtr(5)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(&stubBackend{}, &stubProfiles{profile: tt.profile})
			assert.Equal(t, tt.want, tr.CanAffordFreeze())
		})
	}
}

func TestTracker_FormatTimeRemaining(t *testing.T) {
	last := model.DateOf(testNow.AddDate(0, 0, -3))
	backend := &stubBackend{
		statusFn: func(ctx context.Context) ([]model.StreakStatus, error) {
			return []model.StreakStatus{{CurrentStreak: 1, BestStreak: 1, LastActivityDate: &last}}, nil
		},
	}
	tr := newTestTracker(backend, &stubProfiles{profile: &model.Profile{ID: uuid.New()}})

	_, ok := tr.FormatTimeRemaining()
	assert.False(t, ok)

	tr.Refetch(context.Background())

	label, ok := tr.FormatTimeRemaining()
	require.True(t, ok)
	assert.Equal(t, "Expired", label)
}
