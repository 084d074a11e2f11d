package aggregator

import (
	"sort"
	"time"

	"medease-realtime/internal/models"
)

type clock struct{ hour, minute int }

var (
	morning   = []clock{{9, 0}}
	schedules = map[models.MedicationFrequency][]clock{
		models.FrequencyOnceDaily:       morning,
		models.FrequencyTwiceDaily:      {{9, 0}, {21, 0}},
		models.FrequencyThreeTimesDaily: {{8, 0}, {14, 0}, {20, 0}},
		models.FrequencyFourTimesDaily:  {{8, 0}, {12, 0}, {16, 0}, {20, 0}},
		models.FrequencyWeekly:          morning,
		models.FrequencyMonthly:         morning,
	}
)

// scheduleFor 每日服药时刻；as_needed 与未知频率按 09:00
func scheduleFor(f models.MedicationFrequency) []clock {
	if times, ok := schedules[f]; ok {
		return times
	}
	return morning
}

func parseDay(s *string, loc *time.Location) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	// 兼容 "2025-03-01" 与带时间的写法
	v := *s
	if len(v) > 10 {
		v = v[:10]
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// dueOn 药物在 day（当地零点）是否需要服用
func dueOn(m models.Medication, day time.Time, loc *time.Location) bool {
	start, hasStart := parseDay(m.StartDate, loc)
	if hasStart && day.Before(start) {
		return false
	}
	if end, ok := parseDay(m.EndDate, loc); ok && day.After(end) {
		return false
	}
	if !hasStart {
		return true
	}
	switch m.Frequency {
	case models.FrequencyWeekly:
		return day.Weekday() == start.Weekday()
	case models.FrequencyMonthly:
		want := start.Day()
		// 当月没有该日时取月末
		last := time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, loc).Day()
		if want > last {
			want = last
		}
		return day.Day() == want
	}
	return true
}

type reminderKey struct {
	medicationID string
	at           int64
}

// buildReminders 生成 now 所在日期的提醒，按时间排序
func buildReminders(meds []models.Medication, taken map[reminderKey]bool, now time.Time, loc *time.Location) []models.MedicationReminder {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var out []models.MedicationReminder
	for _, m := range meds {
		if !m.IsActive || !dueOn(m, day, loc) {
			continue
		}
		for _, c := range scheduleFor(m.Frequency) {
			at := time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, loc)
			done := taken[reminderKey{medicationID: m.ID, at: at.Unix()}]
			out = append(out, models.MedicationReminder{
				MedicationID: m.ID,
				Name:         m.Name,
				Dosage:       m.Dosage,
				Instructions: m.Instructions,
				At:           at,
				Taken:        done,
				Overdue:      !done && at.Before(now),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Name < out[j].Name
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

func countOverdue(reminders []models.MedicationReminder) int {
	n := 0
	for _, r := range reminders {
		if r.Overdue {
			n++
		}
	}
	return n
}
