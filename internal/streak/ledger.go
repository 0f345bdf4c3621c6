package streak

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/streak-tracker/internal/model"
)

// PurchaseFreeze покупает одну заморозку за model.FreezeCost токенов.
//
// Покупка выполняется транзакцией бэкенда. Если бэкенд вернул ошибку, не связанную с
// нехваткой токенов, баланс обновляется напрямую условной записью по значениям профиля.
// После записи профиль и статус синхронизируются.
func (t *Tracker) PurchaseFreeze(ctx context.Context) error {
	p := t.profiles.Profile()
	if p == nil {
		return ErrNotAuthenticated
	}

	tokens := p.TokenBalance()
	if tokens < model.FreezeCost {
		t.metrics.FreezeOp("purchase", "rejected")
		return &InsufficientFundsError{Cost: model.FreezeCost}
	}

	if err := t.backend.PurchaseStreakFreeze(ctx, p.ID); err != nil {
		if isInsufficientFunds(err) {
			t.metrics.FreezeOp("purchase", "rejected")
			return &InsufficientFundsError{Cost: model.FreezeCost}
		}

		t.logger.Warn("purchase freeze rpc failed, updating profile directly",
			zap.String("userID", p.ID.String()), zap.Error(err))

		freezes := p.FreezeBalance()
		upd := model.StreakUpdate{
			ExpectTokens:  tokens,
			ExpectFreezes: freezes,
			Tokens:        tokens - model.FreezeCost,
			Freezes:       freezes + 1,
		}
		if err := t.backend.UpdateUserStreak(ctx, p.ID, upd); err != nil {
			t.metrics.FreezeOp("purchase", "error")
			return fmt.Errorf("purchase freeze: %w", err)
		}
		t.metrics.FreezeOp("purchase", "fallback")
	} else {
		t.metrics.FreezeOp("purchase", "ok")
	}

	return t.resync(ctx)
}

// UseFreeze тратит одну заморозку, чтобы сохранить стрик: дата последней
// активности становится сегодняшней.
func (t *Tracker) UseFreeze(ctx context.Context) error {
	p := t.profiles.Profile()
	if p == nil {
		return ErrNotAuthenticated
	}

	status := t.Status()
	if status == nil || status.FreezesAvailable < 1 {
		t.metrics.FreezeOp("use", "rejected")
		return ErrNoFreezes
	}

	today := t.today()
	if err := t.backend.UseStreakFreeze(ctx, p.ID, today); err != nil {
		if isNoFreezes(err) {
			t.metrics.FreezeOp("use", "rejected")
			return ErrNoFreezes
		}

		t.logger.Warn("use freeze rpc failed, updating profile directly",
			zap.String("userID", p.ID.String()), zap.Error(err))

		freezes := p.FreezeBalance()
		if freezes < 1 {
			t.metrics.FreezeOp("use", "rejected")
			return ErrNoFreezes
		}
		tokens := p.TokenBalance()
		upd := model.StreakUpdate{
			ExpectTokens:  tokens,
			ExpectFreezes: freezes,
			Tokens:        tokens,
			Freezes:       freezes - 1,
			LastDate:      &today,
		}
		if err := t.backend.UpdateUserStreak(ctx, p.ID, upd); err != nil {
			t.metrics.FreezeOp("use", "error")
			return fmt.Errorf("use freeze: %w", err)
		}
		t.metrics.FreezeOp("use", "fallback")
	} else {
		t.metrics.FreezeOp("use", "ok")
	}

	return t.resync(ctx)
}

// resync обновляет профиль, затем статус. Запись к этому моменту уже выполнена.
func (t *Tracker) resync(ctx context.Context) error {
	if err := t.profiles.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}
	t.Refetch(ctx)
	return nil
}
