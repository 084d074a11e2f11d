package models

import "time"

// ConnectionState 变更订阅连接状态
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// ConnectionStatus 连接状态 + 最近一次错误
type ConnectionStatus struct {
	State     ConnectionState `json:"state"`
	LastError string          `json:"last_error,omitempty"`
	Attempts  int             `json:"attempts"`
	// WaitingManual 自动重连次数用尽，等待手动 Reconnect
	WaitingManual bool      `json:"waiting_manual"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Stats 派生计数
type Stats struct {
	UnreadNotifications int `json:"unread_notifications"`
	TodayAppointments   int `json:"today_appointments"`
	PendingLabResults   int `json:"pending_lab_results"`
	OverdueMedications  int `json:"overdue_medications"`
}

// Snapshot 单个用户的聚合快照
type Snapshot struct {
	UserID        string              `json:"user_id"`
	Appointments  []Appointment       `json:"appointments"`
	Medications   []Medication        `json:"medications"`
	LabResults    []LabResult         `json:"lab_results"`
	MoodLogs      []MoodLog           `json:"mood_logs"`
	Notifications []Notification      `json:"notifications"`
	Assignments   []PatientAssignment `json:"assignments"`
	Stats         Stats               `json:"stats"`
	Warnings      []string            `json:"warnings,omitempty"`
	LastUpdated   time.Time           `json:"last_updated"`
}

// Clone 深拷贝切片（元素为值类型，指针字段只读共享）
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Appointments = append([]Appointment(nil), s.Appointments...)
	out.Medications = append([]Medication(nil), s.Medications...)
	out.LabResults = append([]LabResult(nil), s.LabResults...)
	out.MoodLogs = append([]MoodLog(nil), s.MoodLogs...)
	out.Notifications = append([]Notification(nil), s.Notifications...)
	out.Assignments = append([]PatientAssignment(nil), s.Assignments...)
	out.Warnings = append([]string(nil), s.Warnings...)
	return out
}

// MedicationReminder 某药物在某一时刻的服药提醒
type MedicationReminder struct {
	MedicationID string    `json:"medication_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Instructions *string   `json:"instructions,omitempty"`
	At           time.Time `json:"at"`
	Taken        bool      `json:"taken"`
	Overdue      bool      `json:"overdue"`
}
