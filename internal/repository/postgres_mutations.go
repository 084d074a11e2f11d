package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"medease-realtime/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// requireAffected 影响行数为 0 视为 ErrNotFound
func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAppointment 新建预约，状态固定为 scheduled
func (s *PostgresStore) CreateAppointment(ctx context.Context, userID string, in models.CreateAppointmentInput) (*models.Appointment, error) {
	if err := ValidateAppointment(in); err != nil {
		return nil, err
	}
	query := `
		INSERT INTO appointments (user_id, doctor_name, specialty, appointment_date, appointment_time, reason, location, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'scheduled')
		RETURNING ` + appointmentColumns
	a, err := scanAppointment(s.db.QueryRowContext(ctx, query,
		userID, in.DoctorName, in.Specialty, in.AppointmentDate, in.AppointmentTime, in.Reason, in.Location, in.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return &a, nil
}

// UpdateAppointmentStatus 更新预约状态
func (s *PostgresStore) UpdateAppointmentStatus(ctx context.Context, userID, id string, status models.AppointmentStatus) error {
	if !status.Valid() {
		return invalid("unknown appointment status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = $1 WHERE id = $2 AND user_id = $3`, status, id, userID)
	if err := requireAffected(res, err); err != nil {
		return fmt.Errorf("failed to update appointment %s: %w", id, err)
	}
	return nil
}

// CreateMedication 新建药物（默认 active）
func (s *PostgresStore) CreateMedication(ctx context.Context, userID string, in models.CreateMedicationInput) (*models.Medication, error) {
	if err := ValidateMedication(in); err != nil {
		return nil, err
	}
	query := `
		INSERT INTO medications (user_id, name, dosage, frequency, prescribed_by, start_date, end_date, instructions, side_effects, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		RETURNING ` + medicationColumns
	m, err := scanMedication(s.db.QueryRowContext(ctx, query,
		userID, in.Name, in.Dosage, in.Frequency, in.PrescribedBy, in.StartDate, in.EndDate, in.Instructions, in.SideEffects))
	if err != nil {
		return nil, fmt.Errorf("failed to create medication: %w", err)
	}
	return &m, nil
}

// SetMedicationActive 启用/停用药物
func (s *PostgresStore) SetMedicationActive(ctx context.Context, userID, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medications SET is_active = $1 WHERE id = $2 AND user_id = $3`, active, id, userID)
	if err := requireAffected(res, err); err != nil {
		return fmt.Errorf("failed to update medication %s: %w", id, err)
	}
	return nil
}

// CreateLabResult 新建化验结果
func (s *PostgresStore) CreateLabResult(ctx context.Context, userID string, in models.CreateLabResultInput) (*models.LabResult, error) {
	if err := ValidateLabResult(&in); err != nil {
		return nil, err
	}
	query := `
		INSERT INTO lab_results (user_id, test_name, test_date, result_value, reference_range, unit, status, lab_name, doctor_name, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + labResultColumns
	l, err := scanLabResult(s.db.QueryRowContext(ctx, query,
		userID, in.TestName, in.TestDate, in.ResultValue, in.ReferenceRange, in.Unit, in.Status, in.LabName, in.DoctorName, in.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create lab result: %w", err)
	}
	return &l, nil
}

// SaveMoodLog 按 1-5 分写入情绪日志，日期/时间缺省取数据库当前值
func (s *PostgresStore) SaveMoodLog(ctx context.Context, userID string, in models.SaveMoodInput) (*models.MoodLog, error) {
	level, err := MoodLevelForInput(in)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO mood_logs (user_id, mood_level, note, log_date, log_time)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, '')::date, CURRENT_DATE), COALESCE(NULLIF($5, '')::time, LOCALTIME))
		RETURNING ` + moodLogColumns
	m, err := scanMoodLog(s.db.QueryRowContext(ctx, query, userID, level, in.Note, in.LogDate, in.LogTime))
	if err != nil {
		return nil, fmt.Errorf("failed to save mood log: %w", err)
	}
	return &m, nil
}

// MarkNotificationRead 标记单条已读
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID)
	if err := requireAffected(res, err); err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead 标记全部未读为已读，返回更新条数
func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = NOW() WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// AssignPatient 医生分配患者；按邮箱查找患者 profile
func (s *PostgresStore) AssignPatient(ctx context.Context, doctorID string, in models.AssignPatientInput) (*models.PatientAssignment, error) {
	patientID := in.PatientID
	if patientID == "" {
		email := strings.TrimSpace(in.PatientEmail)
		if email == "" {
			return nil, invalid("patient_email or patient_id is required")
		}
		err := s.db.QueryRowContext(ctx, `SELECT id FROM profiles WHERE email = $1`, email).Scan(&patientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient %s: %w", email, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up patient: %w", err)
		}
	}

	var a models.PatientAssignment
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO patient_doctor_assignments (patient_id, doctor_id, notes, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, patient_id, doctor_id, assigned_at, is_active, notes`,
		patientID, doctorID, in.Notes,
	).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AssignedAt, &a.IsActive, &notes)
	if err != nil {
		return nil, fmt.Errorf("failed to assign patient: %w", err)
	}
	a.Notes = nullString(notes)

	s.logger.Info("Patient assigned",
		zap.String("doctor_id", doctorID),
		zap.String("patient_id", patientID),
		zap.String("assignment_id", a.ID),
	)
	return &a, nil
}

// UnassignPatient 软删除（is_active = FALSE），仅限该医生自己的分配
func (s *PostgresStore) UnassignPatient(ctx context.Context, doctorID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patient_doctor_assignments SET is_active = FALSE WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err := requireAffected(res, err); err != nil {
		return fmt.Errorf("failed to unassign %s: %w", id, err)
	}
	return nil
}

// ListDocuments 文档列表，按创建时间倒序
func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]models.MedicalDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM medical_documents
		WHERE user_id = $1
		ORDER BY created_at DESC`
	list, err := queryList(ctx, s.db, scanDocument, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return list, nil
}

// GetDocument 单个文档
func (s *PostgresStore) GetDocument(ctx context.Context, userID, id string) (*models.MedicalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM medical_documents WHERE id = $1 AND user_id = $2`
	d, err := scanDocument(s.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return &d, nil
}

// CreateDocument 写入文档元数据
func (s *PostgresStore) CreateDocument(ctx context.Context, userID string, in models.CreateDocumentInput) (*models.MedicalDocument, error) {
	if err := ValidateDocument(userID, in); err != nil {
		return nil, err
	}
	query := `
		INSERT INTO medical_documents (user_id, file_name, file_path, file_size, file_type, document_type, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + documentColumns
	d, err := scanDocument(s.db.QueryRowContext(ctx, query,
		userID, in.FileName, in.FilePath, in.FileSize, in.FileType, in.DocumentType, in.Description))
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return &d, nil
}

// DeleteDocument 删除文档元数据（存储对象由调用方删除）
func (s *PostgresStore) DeleteDocument(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM medical_documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err := requireAffected(res, err); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// GetProfile 当前用户资料
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return &p, nil
}

// UpsertProfile 插入或整体覆盖可编辑字段
func (s *PostgresStore) UpsertProfile(ctx context.Context, userID string, in models.UpsertProfileInput) (*models.UserProfile, error) {
	if err := ValidateProfile(&in); err != nil {
		return nil, err
	}
	query := `
		INSERT INTO profiles (id, first_name, last_name, date_of_birth, phone, emergency_contact_name,
			emergency_contact_phone, medical_conditions, allergies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			date_of_birth = EXCLUDED.date_of_birth,
			phone = EXCLUDED.phone,
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			medical_conditions = EXCLUDED.medical_conditions,
			allergies = EXCLUDED.allergies,
			updated_at = NOW()
		RETURNING ` + profileColumns
	p, err := scanProfile(s.db.QueryRowContext(ctx, query,
		userID, in.FirstName, in.LastName, in.DateOfBirth, in.Phone, in.EmergencyContactName,
		in.EmergencyContactPhone, pq.Array(in.MedicalConditions), pq.Array(in.Allergies)))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile %s: %w", userID, err)
	}
	return &p, nil
}
