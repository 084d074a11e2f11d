package aggregator

import (
	"time"

	"medease-realtime/internal/models"
)

// computeStats 由快照计算派生计数
func computeStats(snap *models.Snapshot, overdue int, now time.Time, loc *time.Location) models.Stats {
	today := now.In(loc).Format("2006-01-02")

	var stats models.Stats
	for _, n := range snap.Notifications {
		if !n.IsRead {
			stats.UnreadNotifications++
		}
	}
	for _, a := range snap.Appointments {
		if a.AppointmentDate == today && a.Status == models.AppointmentScheduled {
			stats.TodayAppointments++
		}
	}
	for _, l := range snap.LabResults {
		if l.Status == models.LabPending {
			stats.PendingLabResults++
		}
	}
	stats.OverdueMedications = overdue
	return stats
}
