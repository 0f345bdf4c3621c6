package streak

import (
	"testing"
	"time"

	"github.com/mmeshcher/streak-tracker/internal/model"
)

func dateAt(t time.Time) *model.Date {
	d := model.DateOf(t)
	return &d
}

func TestTimeRemaining(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, time.October, 18, 10, 0, 0, 0, loc)

	tests := []struct {
		name   string
		status *model.StreakStatus
		want   time.Duration
		wantOK bool
	}{
		{
			name:   "no status",
			status: nil,
			wantOK: false,
		},
		{
			name:   "no last activity",
			status: &model.StreakStatus{CurrentStreak: 4},
			wantOK: false,
		},
		{
			name:   "active today is safe through tomorrow",
			status: &model.StreakStatus{LastActivityDate: dateAt(now)},
			want:   time.Date(2026, time.October, 19, 23, 59, 59, 999_000_000, loc).Sub(now),
			wantOK: true,
		},
		{
			name:   "active yesterday must renew today",
			status: &model.StreakStatus{LastActivityDate: dateAt(now.AddDate(0, 0, -1))},
			want:   time.Date(2026, time.October, 18, 23, 59, 59, 999_000_000, loc).Sub(now),
			wantOK: true,
		},
		{
			name:   "two days ago already lapsed",
			status: &model.StreakStatus{LastActivityDate: dateAt(now.AddDate(0, 0, -2))},
			want:   0,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TimeRemaining(tt.status, now, loc)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("TimeRemaining = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeRemaining_UsesLocalDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC на 17-е — это уже 18-е по местному времени.
	now := time.Date(2026, time.October, 17, 22, 30, 0, 0, time.UTC)
	last := model.Date{Year: 2026, Month: time.October, Day: 18}

	got, ok := TimeRemaining(&model.StreakStatus{LastActivityDate: &last}, now, loc)
	if !ok {
		t.Fatalf("expected a duration")
	}

	want := time.Date(2026, time.October, 19, 23, 59, 59, 999_000_000, loc).Sub(now)
	if got != want {
		t.Fatalf("TimeRemaining = %v, want %v", got, want)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "Expired"},
		{d: -time.Minute, want: "Expired"},
		{d: 59*time.Second + 999*time.Millisecond, want: "0m left"},
		{d: 45*time.Minute + 59*time.Second, want: "45m left"},
		{d: time.Hour, want: "1h 0m left"},
		{d: 13*time.Hour + 59*time.Minute + 59*time.Second, want: "13h 59m left"},
		{d: 24 * time.Hour, want: "1d 0h left"},
		{d: 37*time.Hour + 59*time.Minute, want: "1d 13h left"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatRemaining(tt.d); got != tt.want {
				t.Fatalf("FormatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
