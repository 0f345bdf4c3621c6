package streak

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAuthenticated возвращается, если в сессии нет пользователя.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoFreezes возвращается при попытке использовать заморозку, когда их нет.
	ErrNoFreezes = errors.New("no streak freezes available")
	// ErrInsufficientFunds сопоставляется с InsufficientFundsError через errors.Is.
	ErrInsufficientFunds = errors.New("insufficient tokens")
	// ErrConflict возвращается бэкендом, если условное обновление профиля не применилось.
	ErrConflict = errors.New("profile changed concurrently")
)

// InsufficientFundsError сообщает, что токенов меньше стоимости заморозки.
type InsufficientFundsError struct {
	Cost int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient tokens: need %d", e.Cost)
}

// Is позволяет сравнивать ошибку с ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// UserMessage возвращает текст ошибки операции для показа пользователю.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var funds *InsufficientFundsError
	switch {
	case errors.As(err, &funds):
		return fmt.Sprintf("Not enough tokens. Need %d tokens.", funds.Cost)
	case errors.Is(err, ErrNoFreezes):
		return "No streak freezes available"
	case errors.Is(err, ErrNotAuthenticated):
		return "Not authenticated"
	default:
		return err.Error()
	}
}

func isInsufficientFunds(err error) bool {
	if errors.Is(err, ErrInsufficientFunds) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "not enough tokens")
}

func isNoFreezes(err error) bool {
	if errors.Is(err, ErrNoFreezes) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no freezes") || strings.Contains(msg, "no streak freezes")
}
