// Package schedule реализует чистую арифметику расписаний запусков:
// по настройкам и текущему времени вычисляет момент следующего запуска.
// Периодический триггер, вызывающий ее по таймеру, в ядро не входит.
package schedule

import (
	"fmt"
	"time"
)

// Частоты запуска.
const (
	FrequencyManual  = "manual"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Settings — настройки расписания одного пайплайна.
type Settings struct {
	Frequency  string
	Hour       int
	Minute     int
	DayOfWeek  int // 0 = воскресенье, для weekly
	DayOfMonth int // 1..31, для monthly; вне диапазона месяца берется последний день
	NextRun    *time.Time
	LastRun    *time.Time
	IsActive   bool
}

// Validate проверяет настройки расписания.
func (s *Settings) Validate() error {
	switch s.Frequency {
	case FrequencyManual, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("unsupported frequency '%s', must be one of: manual, daily, weekly, monthly", s.Frequency)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour must be in [0, 23], got %d", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute must be in [0, 59], got %d", s.Minute)
	}
	if s.Frequency == FrequencyWeekly && (s.DayOfWeek < 0 || s.DayOfWeek > 6) {
		return fmt.Errorf("dayOfWeek must be in [0, 6], got %d", s.DayOfWeek)
	}
	if s.Frequency == FrequencyMonthly && (s.DayOfMonth < 1 || s.DayOfMonth > 31) {
		return fmt.Errorf("dayOfMonth must be in [1, 31], got %d", s.DayOfMonth)
	}
	return nil
}

// NextRun вычисляет момент следующего запуска после now.
//
// Время суток выставляется в (Hour, Minute) на дате now; если полученный
// момент не позже now, дата сдвигается на одну единицу частоты вперед
// (+1 день / +7 дней / +1 месяц) с учетом DayOfWeek/DayOfMonth.
// Для manual возвращается (zero, false): следующего запуска нет.
func NextRun(s Settings, now time.Time) (time.Time, bool) {
	switch s.Frequency {
	case FrequencyDaily:
		candidate := atTime(now, s.Hour, s.Minute)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true

	case FrequencyWeekly:
		candidate := atTime(now, s.Hour, s.Minute)
		// Сдвигаемся на нужный день недели
		offset := (s.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, true

	case FrequencyMonthly:
		candidate := onMonthDay(now.Year(), now.Month(), s.DayOfMonth, s.Hour, s.Minute, now.Location())
		if !candidate.After(now) {
			year, month := now.Year(), now.Month()
			if month == time.December {
				year, month = year+1, time.January
			} else {
				month++
			}
			candidate = onMonthDay(year, month, s.DayOfMonth, s.Hour, s.Minute, now.Location())
		}
		return candidate, true

	default: // manual
		return time.Time{}, false
	}
}

// atTime — момент (hour, minute) на дате t.
func atTime(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

// onMonthDay — момент (hour, minute) на дне day месяца, с ограничением
// day длиной месяца (31 в феврале дает последний день февраля).
func onMonthDay(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}
