package aggregator

import (
	"testing"
	"time"

	"medease-realtime/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFor(t *testing.T) {
	assert.Equal(t, []clock{{9, 0}, {21, 0}}, scheduleFor(models.FrequencyTwiceDaily))
	assert.Len(t, scheduleFor(models.FrequencyThreeTimesDaily), 3)
	assert.Len(t, scheduleFor(models.FrequencyFourTimesDaily), 4)
	assert.Equal(t, []clock{{9, 0}}, scheduleFor(models.FrequencyAsNeeded))
	assert.Equal(t, []clock{{9, 0}}, scheduleFor("every_full_moon"))
}

func TestBuildReminders_OrderAndOverdue(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, loc)
	meds := []models.Medication{
		{ID: "m1", Name: "Metformin", Frequency: models.FrequencyTwiceDaily, IsActive: true},
		{ID: "m2", Name: "Atorvastatin", Frequency: models.FrequencyThreeTimesDaily, IsActive: true},
		{ID: "m3", Name: "Inactive", Frequency: models.FrequencyOnceDaily, IsActive: false},
	}
	taken := map[reminderKey]bool{
		{medicationID: "m1", at: time.Date(2025, 3, 10, 9, 0, 0, 0, loc).Unix()}: true,
	}

	got := buildReminders(meds, taken, now, loc)
	require.Len(t, got, 5)

	var order []string
	for _, r := range got {
		order = append(order, r.MedicationID+"@"+r.At.Format("15:04"))
	}
	assert.Equal(t, []string{"m2@08:00", "m1@09:00", "m2@14:00", "m2@20:00", "m1@21:00"}, order)

	assert.True(t, got[0].Overdue)
	assert.True(t, got[1].Taken)
	assert.False(t, got[1].Overdue)
	assert.False(t, got[2].Overdue)
	assert.Equal(t, 1, countOverdue(got))
}

func TestBuildReminders_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	// 02:30 UTC = 09:30 Bangkok
	now := time.Date(2025, 3, 10, 2, 30, 0, 0, time.UTC)
	meds := []models.Medication{{ID: "m1", Frequency: models.FrequencyOnceDaily, IsActive: true}}

	got := buildReminders(meds, nil, now, loc)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, loc), got[0].At)
	assert.True(t, got[0].Overdue)
}

func TestDueOn(t *testing.T) {
	loc := time.UTC
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, loc) }

	weekly := models.Medication{Frequency: models.FrequencyWeekly, StartDate: strPtr("2025-03-03")} // Monday
	assert.True(t, dueOn(weekly, day(2025, 3, 10), loc))
	assert.False(t, dueOn(weekly, day(2025, 3, 11), loc))

	monthly := models.Medication{Frequency: models.FrequencyMonthly, StartDate: strPtr("2025-01-31")}
	assert.True(t, dueOn(monthly, day(2025, 2, 28), loc))
	assert.False(t, dueOn(monthly, day(2025, 3, 28), loc))
	assert.True(t, dueOn(monthly, day(2025, 3, 31), loc))

	bounded := models.Medication{
		Frequency: models.FrequencyOnceDaily,
		StartDate: strPtr("2025-03-05"),
		EndDate:   strPtr("2025-03-07T00:00:00Z"),
	}
	assert.False(t, dueOn(bounded, day(2025, 3, 4), loc))
	assert.True(t, dueOn(bounded, day(2025, 3, 7), loc))
	assert.False(t, dueOn(bounded, day(2025, 3, 8), loc))

	noStart := models.Medication{Frequency: models.FrequencyWeekly}
	assert.True(t, dueOn(noStart, day(2025, 3, 11), loc))
}
