package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"medease-realtime/internal/models"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// 外键名与 Supabase 生成的类型定义一致
const assignmentSelect = `*,` +
	`patient_profile:profiles!patient_doctor_assignments_patient_id_fkey(first_name,last_name,email),` +
	`doctor_profile:profiles!patient_doctor_assignments_doctor_id_fkey(first_name,last_name,specialization)`

// SupabaseStore 通过 PostgREST（supabase-go）访问托管后端
type SupabaseStore struct {
	client *supa.Client
	logger *zap.Logger
}

// NewSupabaseStore creates a new supabase-backed store
func NewSupabaseStore(client *supa.Client, logger *zap.Logger) *SupabaseStore {
	return &SupabaseStore{
		client: client,
		logger: logger,
	}
}

// NewSupabaseClient 使用 service role key 创建客户端
func NewSupabaseClient(url, serviceKey string) (*supa.Client, error) {
	client, err := supa.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

// decodeRows 解码 PostgREST 的 JSON 数组
func decodeRows[T any](data []byte, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// decodeOne 返回第一行，空数组视为 ErrNotFound
func decodeOne[T any](data []byte, err error) (*T, error) {
	rows, err := decodeRows[T](data, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func execute(b *postgrest.FilterBuilder) ([]byte, error) {
	data, _, err := b.Execute()
	return data, err
}

func desc() *postgrest.OrderOpts { return &postgrest.OrderOpts{Ascending: false} }
func asc() *postgrest.OrderOpts  { return &postgrest.OrderOpts{Ascending: true} }

func (s *SupabaseStore) ListAppointments(ctx context.Context, userID string) ([]models.Appointment, error) {
	list, err := decodeRows[models.Appointment](execute(s.client.From("appointments").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("appointment_date", asc()).
		Order("appointment_time", asc())))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, nil
}

func (s *SupabaseStore) ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error) {
	list, err := decodeRows[models.Medication](execute(s.client.From("medications").
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("is_active", "true").
		Order("created_at", desc())))
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	return list, nil
}

func (s *SupabaseStore) ListLabResults(ctx context.Context, userID string) ([]models.LabResult, error) {
	list, err := decodeRows[models.LabResult](execute(s.client.From("lab_results").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("test_date", desc())))
	if err != nil {
		return nil, fmt.Errorf("failed to list lab results: %w", err)
	}
	return list, nil
}

func (s *SupabaseStore) ListMoodLogs(ctx context.Context, userID string, limit int) ([]models.MoodLog, error) {
	list, err := decodeRows[models.MoodLog](execute(s.client.From("mood_logs").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("log_date", desc()).
		Limit(limit, "")))
	if err != nil {
		return nil, fmt.Errorf("failed to list mood logs: %w", err)
	}
	return list, nil
}

func (s *SupabaseStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	list, err := decodeRows[models.Notification](execute(s.client.From("notifications").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", desc()).
		Limit(limit, "")))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	for i := range list {
		list[i] = list[i].Normalize()
	}
	return list, nil
}

// ListAssignments or= 过滤器按原文拼接，userID 必须是 UUID
func (s *SupabaseStore) ListAssignments(ctx context.Context, userID string) ([]models.PatientAssignment, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, invalid("user id must be a uuid, got %q", userID)
	}
	list, err := decodeRows[models.PatientAssignment](execute(s.client.From("patient_doctor_assignments").
		Select(assignmentSelect, "", false).
		Eq("is_active", "true").
		Or(fmt.Sprintf("doctor_id.eq.%s,patient_id.eq.%s", userID, userID), "").
		Order("assigned_at", desc())))
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return list, nil
}

// returning=representation 让 PostgREST 回传写入后的行

func (s *SupabaseStore) CreateAppointment(ctx context.Context, userID string, in models.CreateAppointmentInput) (*models.Appointment, error) {
	if err := ValidateAppointment(in); err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"user_id":          userID,
		"doctor_name":      in.DoctorName,
		"specialty":        in.Specialty,
		"appointment_date": in.AppointmentDate,
		"appointment_time": in.AppointmentTime,
		"reason":           in.Reason,
		"location":         in.Location,
		"notes":            in.Notes,
		"status":           models.AppointmentScheduled,
	}
	a, err := decodeOne[models.Appointment](execute(s.client.From("appointments").
		Insert(row, false, "", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return a, nil
}

func (s *SupabaseStore) UpdateAppointmentStatus(ctx context.Context, userID, id string, status models.AppointmentStatus) error {
	if !status.Valid() {
		return invalid("unknown appointment status %q", status)
	}
	_, err := decodeOne[models.Appointment](execute(s.client.From("appointments").
		Update(map[string]interface{}{"status": status}, "representation", "").
		Eq("id", id).
		Eq("user_id", userID)))
	if err != nil {
		return fmt.Errorf("failed to update appointment %s: %w", id, err)
	}
	return nil
}

func (s *SupabaseStore) CreateMedication(ctx context.Context, userID string, in models.CreateMedicationInput) (*models.Medication, error) {
	if err := ValidateMedication(in); err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"user_id":       userID,
		"name":          in.Name,
		"dosage":        in.Dosage,
		"frequency":     in.Frequency,
		"prescribed_by": in.PrescribedBy,
		"start_date":    in.StartDate,
		"end_date":      in.EndDate,
		"instructions":  in.Instructions,
		"side_effects":  in.SideEffects,
		"is_active":     true,
	}
	m, err := decodeOne[models.Medication](execute(s.client.From("medications").
		Insert(row, false, "", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to create medication: %w", err)
	}
	return m, nil
}

func (s *SupabaseStore) SetMedicationActive(ctx context.Context, userID, id string, active bool) error {
	_, err := decodeOne[models.Medication](execute(s.client.From("medications").
		Update(map[string]interface{}{"is_active": active}, "representation", "").
		Eq("id", id).
		Eq("user_id", userID)))
	if err != nil {
		return fmt.Errorf("failed to update medication %s: %w", id, err)
	}
	return nil
}

func (s *SupabaseStore) CreateLabResult(ctx context.Context, userID string, in models.CreateLabResultInput) (*models.LabResult, error) {
	if err := ValidateLabResult(&in); err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"user_id":         userID,
		"test_name":       in.TestName,
		"test_date":       in.TestDate,
		"result_value":    in.ResultValue,
		"reference_range": in.ReferenceRange,
		"unit":            in.Unit,
		"status":          in.Status,
		"lab_name":        in.LabName,
		"doctor_name":     in.DoctorName,
		"notes":           in.Notes,
	}
	l, err := decodeOne[models.LabResult](execute(s.client.From("lab_results").
		Insert(row, false, "", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to create lab result: %w", err)
	}
	return l, nil
}

func (s *SupabaseStore) SaveMoodLog(ctx context.Context, userID string, in models.SaveMoodInput) (*models.MoodLog, error) {
	level, err := MoodLevelForInput(in)
	if err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"user_id":    userID,
		"mood_level": level,
		"note":       in.Note,
	}
	// 缺省时由列默认值填充
	if in.LogDate != "" {
		row["log_date"] = in.LogDate
	}
	if in.LogTime != "" {
		row["log_time"] = in.LogTime
	}
	m, err := decodeOne[models.MoodLog](execute(s.client.From("mood_logs").
		Insert(row, false, "", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to save mood log: %w", err)
	}
	return m, nil
}

func (s *SupabaseStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	_, err := decodeOne[models.Notification](execute(s.client.From("notifications").
		Update(readPatch(), "representation", "").
		Eq("id", id).
		Eq("user_id", userID)))
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return nil
}

func (s *SupabaseStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	rows, err := decodeRows[models.Notification](execute(s.client.From("notifications").
		Update(readPatch(), "representation", "").
		Eq("user_id", userID).
		Eq("is_read", "false")))
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int64(len(rows)), nil
}

func readPatch() map[string]interface{} {
	return map[string]interface{}{
		"is_read": true,
		"read_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (s *SupabaseStore) AssignPatient(ctx context.Context, doctorID string, in models.AssignPatientInput) (*models.PatientAssignment, error) {
	patientID := in.PatientID
	if patientID == "" {
		email := strings.TrimSpace(in.PatientEmail)
		if email == "" {
			return nil, invalid("patient_email or patient_id is required")
		}
		type profileID struct {
			ID string `json:"id"`
		}
		p, err := decodeOne[profileID](execute(s.client.From("profiles").
			Select("id", "", false).
			Eq("email", email).
			Limit(1, "")))
		if err != nil {
			return nil, fmt.Errorf("patient %s: %w", email, err)
		}
		patientID = p.ID
	}

	row := map[string]interface{}{
		"patient_id": patientID,
		"doctor_id":  doctorID,
		"notes":      in.Notes,
		"is_active":  true,
	}
	a, err := decodeOne[models.PatientAssignment](execute(s.client.From("patient_doctor_assignments").
		Insert(row, false, "", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to assign patient: %w", err)
	}
	s.logger.Info("Patient assigned",
		zap.String("doctor_id", doctorID),
		zap.String("patient_id", patientID),
		zap.String("assignment_id", a.ID),
	)
	return a, nil
}

func (s *SupabaseStore) UnassignPatient(ctx context.Context, doctorID, id string) error {
	_, err := decodeOne[models.PatientAssignment](execute(s.client.From("patient_doctor_assignments").
		Update(map[string]interface{}{"is_active": false}, "representation", "").
		Eq("id", id).
		Eq("doctor_id", doctorID)))
	if err != nil {
		return fmt.Errorf("failed to unassign %s: %w", id, err)
	}
	return nil
}

func (s *SupabaseStore) ListDocuments(ctx context.Context, userID string) ([]models.MedicalDocument, error) {
	list, err := decodeRows[models.MedicalDocument](execute(s.client.From("medical_documents").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", desc())))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return list, nil
}

func (s *SupabaseStore) GetDocument(ctx context.Context, userID, id string) (*models.MedicalDocument, error) {
	d, err := decodeOne[models.MedicalDocument](execute(s.client.From("medical_documents").
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID)))
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return d, nil
}

func (s *SupabaseStore) CreateDocument(ctx context.Context, userID string, in models.CreateDocumentInput) (*models.MedicalDocument, error) {
	if err := ValidateDocument(userID, in); err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"user_id":       userID,
		"file_name":     in.FileName,
		"file_path":     in.FilePath,
		"file_size":     in.FileSize,
		"file_type":     in.FileType,
		"document_type": in.DocumentType,
		"description":   in.Description,
	}
	d, err := decodeOne[models.MedicalDocument](execute(s.client.From("medical_documents").
		Insert(row, false, "", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return d, nil
}

func (s *SupabaseStore) DeleteDocument(ctx context.Context, userID, id string) error {
	_, err := decodeOne[models.MedicalDocument](execute(s.client.From("medical_documents").
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", userID)))
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (s *SupabaseStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := decodeOne[models.UserProfile](execute(s.client.From("profiles").
		Select("*", "", false).
		Eq("id", userID)))
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return p, nil
}

func (s *SupabaseStore) UpsertProfile(ctx context.Context, userID string, in models.UpsertProfileInput) (*models.UserProfile, error) {
	if err := ValidateProfile(&in); err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"id":                      userID,
		"first_name":              in.FirstName,
		"last_name":               in.LastName,
		"date_of_birth":           in.DateOfBirth,
		"phone":                   in.Phone,
		"emergency_contact_name":  in.EmergencyContactName,
		"emergency_contact_phone": in.EmergencyContactPhone,
		"medical_conditions":      in.MedicalConditions,
		"allergies":               in.Allergies,
		"updated_at":              time.Now().UTC().Format(time.RFC3339Nano),
	}
	p, err := decodeOne[models.UserProfile](execute(s.client.From("profiles").
		Upsert(row, "id", "representation", "")))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile %s: %w", userID, err)
	}
	return p, nil
}
