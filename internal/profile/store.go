// Package profile хранит закэшированный профиль пользователя сессии.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mmeshcher/streak-tracker/internal/model"
)

// ErrUserNotFound возвращается загрузчиком, если пользователя нет в бэкенде.
var ErrUserNotFound = errors.New("user not found")

// Loader загружает профиль пользователя из бэкенда.
type Loader interface {
	FetchProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
}

// Store — кэш профиля одного пользователя. Пустой Store означает, что пользователь вышел.
type Store struct {
	loader Loader
	userID uuid.UUID

	mu       sync.RWMutex
	profile  *model.Profile
	signedIn bool
}

// NewStore создаёт кэш профиля для пользователя userID.
func NewStore(loader Loader, userID uuid.UUID) *Store {
	return &Store{
		loader:   loader,
		userID:   userID,
		profile:  &model.Profile{ID: userID},
		signedIn: true,
	}
}

// Profile возвращает копию закэшированного профиля или nil после выхода.
func (s *Store) Profile() *model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.signedIn || s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// Refresh перечитывает профиль из бэкенда.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	signedIn := s.signedIn
	s.mu.RUnlock()
	if !signedIn {
		return nil
	}

	p, err := s.loader.FetchProfile(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedIn {
		s.profile = p
	}
	return nil
}

// SignOut сбрасывает профиль. Последующие Refresh ничего не делают.
func (s *Store) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedIn = false
	s.profile = nil
}
