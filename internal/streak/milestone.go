package streak

import "github.com/mmeshcher/streak-tracker/internal/model"

// NextMilestone возвращает ближайшую веху строго больше текущей серии.
// Без статуса целью считается первая веха; false — все вехи пройдены.
func NextMilestone(status *model.StreakStatus) (int, bool) {
	table := model.Milestones()
	if status == nil {
		return table[0].Days, true
	}

	for _, m := range table {
		if m.Days > status.CurrentStreak {
			return m.Days, true
		}
	}
	return 0, false
}

// MilestoneProgress возвращает прогресс к следующей вехе в процентах [0, 100].
// Отсчёт идёт от вехи, непосредственно предшествующей целевой (или от нуля).
func MilestoneProgress(status *model.StreakStatus) float64 {
	if status == nil {
		return 0
	}

	next, ok := NextMilestone(status)
	if !ok {
		return 100
	}

	prev := 0
	for _, m := range model.Milestones() {
		if m.Days >= next {
			break
		}
		prev = m.Days
	}

	progress := 100 * float64(status.CurrentStreak-prev) / float64(next-prev)
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}
