// Package model содержит доменные сущности сервиса стриков.
package model

import (
	"github.com/google/uuid"
)

// FreezeCost — стоимость одной заморозки стрика в токенах.
const FreezeCost = 5

// StreakStatus описывает состояние стрика пользователя.
// Значение заменяется целиком при каждом обновлении и не изменяется на месте.
type StreakStatus struct {
	CurrentStreak      int   `json:"current_streak"`
	BestStreak         int   `json:"best_streak"`
	FreezesAvailable   int   `json:"freezes_available"`
	LastActivityDate   *Date `json:"last_activity_date"`
	IsAtRisk           bool  `json:"is_at_risk"`
	MilestonesAchieved []int `json:"milestones_achieved"`
}

// Profile представляет профиль пользователя, которым владеет внешний бэкенд.
// Указатели обозначают поля, значение которых неизвестно.
type Profile struct {
	ID             uuid.UUID `json:"id"`
	Tokens         *int      `json:"tokens"`
	StreakCurrent  *int      `json:"streak_current"`
	StreakBest     *int      `json:"streak_best"`
	StreakFreezes  *int      `json:"streak_freezes"`
	StreakLastDate *Date     `json:"streak_last_date"`
}

// TokenBalance возвращает баланс токенов, считая неизвестное значение нулём.
func (p *Profile) TokenBalance() int {
	if p == nil {
		return 0
	}
	return intOrZero(p.Tokens)
}

// FreezeBalance возвращает число заморозок в профиле, считая неизвестное значение нулём.
func (p *Profile) FreezeBalance() int {
	if p == nil {
		return 0
	}
	return intOrZero(p.StreakFreezes)
}

// StreakUpdate описывает условное обновление полей стрика в профиле.
// Запись применяется только если текущие значения совпадают с ожидаемыми.
type StreakUpdate struct {
	ExpectTokens  int
	ExpectFreezes int
	Tokens        int
	Freezes       int
	LastDate      *Date
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
