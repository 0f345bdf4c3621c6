package streak

import (
	"fmt"
	"time"

	"github.com/mmeshcher/streak-tracker/internal/model"
)

// TimeRemaining вычисляет, сколько времени осталось до сгорания стрика.
// Второе значение false, если статуса или даты последней активности нет.
//
// Активность сегодня — стрик в безопасности до конца завтрашнего дня.
// Активность вчера — стрик нужно продлить до конца сегодняшнего дня.
// Иначе стрик уже сгорел и остаток равен нулю.
func TimeRemaining(status *model.StreakStatus, now time.Time, loc *time.Location) (time.Duration, bool) {
	if status == nil || status.LastActivityDate == nil {
		return 0, false
	}
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	today := model.DateOf(local)
	last := *status.LastActivityDate

	switch last {
	case today:
		return endOfDay(today.AddDays(1), loc).Sub(local), true
	case today.AddDays(-1):
		return endOfDay(today, loc).Sub(local), true
	default:
		return 0, true
	}
}

// endOfDay возвращает момент 23:59:59.999 даты d по местному времени.
func endOfDay(d model.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, int(999*time.Millisecond), loc)
}

// FormatRemaining форматирует остаток времени, отбрасывая дробные единицы.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}

	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)

	switch {
	case hours >= 24:
		return fmt.Sprintf("%dd %dh left", hours/24, hours%24)
	case hours >= 1:
		return fmt.Sprintf("%dh %dm left", hours, minutes)
	default:
		return fmt.Sprintf("%dm left", minutes)
	}
}
