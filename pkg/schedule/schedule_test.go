package schedule

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextRun_Daily(t *testing.T) {
	s := Settings{Frequency: FrequencyDaily, Hour: 9, Minute: 0}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after slot, next day", date(2024, time.March, 10, 9, 30), date(2024, time.March, 11, 9, 0)},
		{"before slot, same day", date(2024, time.March, 10, 8, 0), date(2024, time.March, 10, 9, 0)},
		{"exactly at slot, next day", date(2024, time.March, 10, 9, 0), date(2024, time.March, 11, 9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextRun(s, tt.now)
			if !ok {
				t.Fatal("NextRun() ok = false")
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRun_Weekly(t *testing.T) {
	// 2024-03-10 — воскресенье
	s := Settings{Frequency: FrequencyWeekly, Hour: 6, Minute: 30, DayOfWeek: 3} // среда

	got, ok := NextRun(s, date(2024, time.March, 10, 12, 0))
	if !ok {
		t.Fatal("NextRun() ok = false")
	}
	want := date(2024, time.March, 13, 6, 30)
	if !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
	if got.Weekday() != time.Wednesday {
		t.Errorf("NextRun() weekday = %v, want Wednesday", got.Weekday())
	}
}

func TestNextRun_WeeklySameDayPast(t *testing.T) {
	// now — среда после слота: следующий запуск через неделю
	s := Settings{Frequency: FrequencyWeekly, Hour: 6, Minute: 0, DayOfWeek: 3}

	got, _ := NextRun(s, date(2024, time.March, 13, 7, 0))
	want := date(2024, time.March, 20, 6, 0)
	if !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestNextRun_Monthly(t *testing.T) {
	s := Settings{Frequency: FrequencyMonthly, Hour: 0, Minute: 15, DayOfMonth: 15}

	got, _ := NextRun(s, date(2024, time.March, 20, 10, 0))
	want := date(2024, time.April, 15, 0, 15)
	if !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestNextRun_MonthlyClampsDay(t *testing.T) {
	s := Settings{Frequency: FrequencyMonthly, Hour: 8, Minute: 0, DayOfMonth: 31}

	// В феврале 2024 нет 31-го: последний день — 29-е
	got, _ := NextRun(s, date(2024, time.February, 1, 0, 0))
	want := date(2024, time.February, 29, 8, 0)
	if !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestNextRun_MonthlyDecemberRollsOver(t *testing.T) {
	s := Settings{Frequency: FrequencyMonthly, Hour: 8, Minute: 0, DayOfMonth: 5}

	got, _ := NextRun(s, date(2024, time.December, 20, 0, 0))
	want := date(2025, time.January, 5, 8, 0)
	if !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestNextRun_Manual(t *testing.T) {
	if _, ok := NextRun(Settings{Frequency: FrequencyManual}, time.Now()); ok {
		t.Error("NextRun() manual schedule must have no next run")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"daily ok", Settings{Frequency: FrequencyDaily, Hour: 9}, false},
		{"bad frequency", Settings{Frequency: "hourly"}, true},
		{"bad hour", Settings{Frequency: FrequencyDaily, Hour: 24}, true},
		{"bad minute", Settings{Frequency: FrequencyDaily, Minute: 61}, true},
		{"weekly bad day", Settings{Frequency: FrequencyWeekly, DayOfWeek: 7}, true},
		{"monthly bad day", Settings{Frequency: FrequencyMonthly, DayOfMonth: 0}, true},
		{"monthly ok", Settings{Frequency: FrequencyMonthly, DayOfMonth: 31}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
