package repository

import (
	"context"
	"errors"

	"medease-realtime/internal/models"
)

var (
	// ErrNotFound 目标行不存在或不属于当前用户
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput 入参校验失败
	ErrInvalidInput = errors.New("invalid input")
)

// SnapshotReader 聚合快照的初始读取
type SnapshotReader interface {
	ListAppointments(ctx context.Context, userID string) ([]models.Appointment, error)
	ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error)
	ListLabResults(ctx context.Context, userID string) ([]models.LabResult, error)
	ListMoodLogs(ctx context.Context, userID string, limit int) ([]models.MoodLog, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	// ListAssignments 当前用户作为医生或患者的有效分配关系（带双方资料）
	ListAssignments(ctx context.Context, userID string) ([]models.PatientAssignment, error)
}

// Mutator HTTP 层直接发起的写操作，不经过聚合器
type Mutator interface {
	CreateAppointment(ctx context.Context, userID string, in models.CreateAppointmentInput) (*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, userID, id string, status models.AppointmentStatus) error
	CreateMedication(ctx context.Context, userID string, in models.CreateMedicationInput) (*models.Medication, error)
	SetMedicationActive(ctx context.Context, userID, id string, active bool) error
	CreateLabResult(ctx context.Context, userID string, in models.CreateLabResultInput) (*models.LabResult, error)
	SaveMoodLog(ctx context.Context, userID string, in models.SaveMoodInput) (*models.MoodLog, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	AssignPatient(ctx context.Context, doctorID string, in models.AssignPatientInput) (*models.PatientAssignment, error)
	UnassignPatient(ctx context.Context, doctorID, id string) error

	ListDocuments(ctx context.Context, userID string) ([]models.MedicalDocument, error)
	GetDocument(ctx context.Context, userID, id string) (*models.MedicalDocument, error)
	CreateDocument(ctx context.Context, userID string, in models.CreateDocumentInput) (*models.MedicalDocument, error)
	DeleteDocument(ctx context.Context, userID, id string) error

	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	// UpsertProfile 按 id 插入或更新当前用户资料
	UpsertProfile(ctx context.Context, userID string, in models.UpsertProfileInput) (*models.UserProfile, error)
}

// Store 读 + 写
type Store interface {
	SnapshotReader
	Mutator
}
