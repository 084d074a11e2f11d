package models

import "time"

// Record 可按 id 合并的行记录
type Record interface {
	RecordID() string
}

// AppointmentStatus 预约状态
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// Appointment 预约（appointments 表）
type Appointment struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	DoctorName      string            `json:"doctor_name"`
	Specialty       *string           `json:"specialty"`
	AppointmentDate string            `json:"appointment_date"` // YYYY-MM-DD
	AppointmentTime string            `json:"appointment_time"` // HH:MM[:SS]
	Reason          *string           `json:"reason"`
	Location        *string           `json:"location"`
	Notes           *string           `json:"notes"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (a Appointment) RecordID() string { return a.ID }

// MedicationFrequency 服药频率
type MedicationFrequency string

const (
	FrequencyOnceDaily       MedicationFrequency = "once_daily"
	FrequencyTwiceDaily      MedicationFrequency = "twice_daily"
	FrequencyThreeTimesDaily MedicationFrequency = "three_times_daily"
	FrequencyFourTimesDaily  MedicationFrequency = "four_times_daily"
	FrequencyAsNeeded        MedicationFrequency = "as_needed"
	FrequencyWeekly          MedicationFrequency = "weekly"
	FrequencyMonthly         MedicationFrequency = "monthly"
)

func (f MedicationFrequency) Valid() bool {
	switch f {
	case FrequencyOnceDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily, FrequencyFourTimesDaily,
		FrequencyAsNeeded, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Medication 药物（medications 表）
type Medication struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Name         string              `json:"name"`
	Dosage       string              `json:"dosage"`
	Frequency    MedicationFrequency `json:"frequency"`
	PrescribedBy *string             `json:"prescribed_by"`
	StartDate    *string             `json:"start_date"`
	EndDate      *string             `json:"end_date"`
	Instructions *string             `json:"instructions"`
	SideEffects  *string             `json:"side_effects"`
	IsActive     bool                `json:"is_active"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (m Medication) RecordID() string { return m.ID }

// LabStatus 化验结果状态
type LabStatus string

const (
	LabNormal   LabStatus = "normal"
	LabAbnormal LabStatus = "abnormal"
	LabPending  LabStatus = "pending"
	LabCritical LabStatus = "critical"
)

func (s LabStatus) Valid() bool {
	switch s {
	case LabNormal, LabAbnormal, LabPending, LabCritical:
		return true
	}
	return false
}

// LabResult 化验结果（lab_results 表）
type LabResult struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TestName       string    `json:"test_name"`
	TestDate       string    `json:"test_date"`
	ResultValue    *string   `json:"result_value"`
	ReferenceRange *string   `json:"reference_range"`
	Unit           *string   `json:"unit"`
	Status         LabStatus `json:"status"`
	LabName        *string   `json:"lab_name"`
	DoctorName     *string   `json:"doctor_name"`
	Notes          *string   `json:"notes"`
	FileURL        *string   `json:"file_url"`
	CreatedAt      time.Time `json:"created_at"`
}

func (l LabResult) RecordID() string { return l.ID }

// MoodLevel 情绪等级
type MoodLevel string

const (
	MoodVerySad   MoodLevel = "very_sad"
	MoodSad       MoodLevel = "sad"
	MoodNeutral   MoodLevel = "neutral"
	MoodHappy     MoodLevel = "happy"
	MoodVeryHappy MoodLevel = "very_happy"
)

var moodScale = []MoodLevel{MoodVerySad, MoodSad, MoodNeutral, MoodHappy, MoodVeryHappy}

// Score 情绪等级映射为 1-5 分（图表用），未知等级返回 0
func (m MoodLevel) Score() int {
	for i, level := range moodScale {
		if level == m {
			return i + 1
		}
	}
	return 0
}

// MoodLevelFromScore 1-5 分反查情绪等级
func MoodLevelFromScore(score int) (MoodLevel, bool) {
	if score < 1 || score > len(moodScale) {
		return "", false
	}
	return moodScale[score-1], true
}

// MoodLog 情绪日志（mood_logs 表）
type MoodLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MoodLevel MoodLevel `json:"mood_level"`
	Note      *string   `json:"note"`
	LogDate   string    `json:"log_date"`
	LogTime   string    `json:"log_time"`
	CreatedAt time.Time `json:"created_at"`
}

func (m MoodLog) RecordID() string { return m.ID }

// MedicalDocument 医疗文档元数据（medical_documents 表），文件本体在对象存储
type MedicalDocument struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FileName     string    `json:"file_name"`
	FilePath     string    `json:"file_path"`
	FileSize     *int64    `json:"file_size"`
	FileType     *string   `json:"file_type"`
	DocumentType *string   `json:"document_type"`
	Description  *string   `json:"description"`
	UploadDate   time.Time `json:"upload_date"`
	CreatedAt    time.Time `json:"created_at"`
}

func (d MedicalDocument) RecordID() string { return d.ID }

// NotificationType 通知类型
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// NotificationPriority 通知优先级
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// Notification 通知（notifications 表，由服务端创建）
type Notification struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	Type         NotificationType     `json:"type"`
	Priority     NotificationPriority `json:"priority"`
	IsRead       bool                 `json:"is_read"`
	RelatedTable *string              `json:"related_table"`
	RelatedID    *string              `json:"related_id"`
	CreatedAt    time.Time            `json:"created_at"`
	ReadAt       *time.Time           `json:"read_at"`
}

func (n Notification) RecordID() string { return n.ID }

// Normalize 未知 type 归为 info，未知 priority 归为 medium
func (n Notification) Normalize() Notification {
	switch n.Type {
	case NotificationInfo, NotificationWarning, NotificationSuccess, NotificationError:
	default:
		n.Type = NotificationInfo
	}
	switch n.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		n.Priority = PriorityMedium
	}
	return n
}

// Profile 用户资料（profiles 表，仅保留分配关系需要的字段）
type Profile struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Email          *string `json:"email,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
}

// PatientAssignment 医患分配关系（patient_doctor_assignments 表）
type PatientAssignment struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	DoctorID       string    `json:"doctor_id"`
	AssignedAt     time.Time `json:"assigned_at"`
	IsActive       bool      `json:"is_active"`
	Notes          *string   `json:"notes"`
	PatientProfile *Profile  `json:"patient_profile,omitempty"`
	DoctorProfile  *Profile  `json:"doctor_profile,omitempty"`
}

func (p PatientAssignment) RecordID() string { return p.ID }
