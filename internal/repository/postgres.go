package repository

import (
	"context"
	"database/sql"
	"fmt"

	"medease-realtime/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore 直连 Postgres 的存储实现（database/sql + lib/pq）
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new postgres store
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// 日期/时间列统一转 text，保持与 PostgREST 返回格式一致
const (
	appointmentColumns = `id, user_id, doctor_name, specialty, appointment_date::text, appointment_time::text,
		reason, location, notes, status, created_at`
	medicationColumns = `id, user_id, name, dosage, frequency, prescribed_by, start_date::text, end_date::text,
		instructions, side_effects, is_active, created_at`
	labResultColumns = `id, user_id, test_name, test_date::text, result_value, reference_range, unit, status,
		lab_name, doctor_name, notes, file_url, created_at`
	moodLogColumns      = `id, user_id, mood_level, note, log_date::text, log_time::text, created_at`
	notificationColumns = `id, user_id, title, message, type, priority, is_read, related_table, related_id,
		created_at, read_at`
	documentColumns = `id, user_id, file_name, file_path, file_size, file_type, document_type, description,
		upload_date, created_at`
	profileColumns = `id, first_name, last_name, date_of_birth::text, phone, emergency_contact_name,
		emergency_contact_phone, medical_conditions, allergies, role, specialization, license_number, bio,
		created_at, updated_at`
)

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func scanAppointment(row rowScanner) (models.Appointment, error) {
	var a models.Appointment
	var specialty, reason, location, notes sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.DoctorName, &specialty, &a.AppointmentDate, &a.AppointmentTime,
		&reason, &location, &notes, &a.Status, &a.CreatedAt)
	a.Specialty = nullString(specialty)
	a.Reason = nullString(reason)
	a.Location = nullString(location)
	a.Notes = nullString(notes)
	return a, err
}

func scanMedication(row rowScanner) (models.Medication, error) {
	var m models.Medication
	var prescribedBy, startDate, endDate, instructions, sideEffects sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &prescribedBy, &startDate, &endDate,
		&instructions, &sideEffects, &m.IsActive, &m.CreatedAt)
	m.PrescribedBy = nullString(prescribedBy)
	m.StartDate = nullString(startDate)
	m.EndDate = nullString(endDate)
	m.Instructions = nullString(instructions)
	m.SideEffects = nullString(sideEffects)
	return m, err
}

func scanLabResult(row rowScanner) (models.LabResult, error) {
	var l models.LabResult
	var value, refRange, unit, labName, doctor, notes, fileURL sql.NullString
	err := row.Scan(&l.ID, &l.UserID, &l.TestName, &l.TestDate, &value, &refRange, &unit, &l.Status,
		&labName, &doctor, &notes, &fileURL, &l.CreatedAt)
	l.ResultValue = nullString(value)
	l.ReferenceRange = nullString(refRange)
	l.Unit = nullString(unit)
	l.LabName = nullString(labName)
	l.DoctorName = nullString(doctor)
	l.Notes = nullString(notes)
	l.FileURL = nullString(fileURL)
	return l, err
}

func scanMoodLog(row rowScanner) (models.MoodLog, error) {
	var m models.MoodLog
	var note sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.MoodLevel, &note, &m.LogDate, &m.LogTime, &m.CreatedAt)
	m.Note = nullString(note)
	return m, err
}

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	var relatedTable, relatedID sql.NullString
	var readAt sql.NullTime
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Priority, &n.IsRead,
		&relatedTable, &relatedID, &n.CreatedAt, &readAt)
	n.RelatedTable = nullString(relatedTable)
	n.RelatedID = nullString(relatedID)
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return n.Normalize(), err
}

func scanDocument(row rowScanner) (models.MedicalDocument, error) {
	var d models.MedicalDocument
	var size sql.NullInt64
	var fileType, docType, description sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &d.FileName, &d.FilePath, &size, &fileType, &docType, &description,
		&d.UploadDate, &d.CreatedAt)
	if size.Valid {
		v := size.Int64
		d.FileSize = &v
	}
	d.FileType = nullString(fileType)
	d.DocumentType = nullString(docType)
	d.Description = nullString(description)
	return d, err
}

func scanProfile(row rowScanner) (models.UserProfile, error) {
	var p models.UserProfile
	var first, last, dob, phone, ecName, ecPhone, role, spec, license, bio sql.NullString
	var conditions, allergies pq.StringArray
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&p.ID, &first, &last, &dob, &phone, &ecName, &ecPhone,
		&conditions, &allergies, &role, &spec, &license, &bio, &createdAt, &updatedAt)
	p.FirstName = nullString(first)
	p.LastName = nullString(last)
	p.DateOfBirth = nullString(dob)
	p.Phone = nullString(phone)
	p.EmergencyContactName = nullString(ecName)
	p.EmergencyContactPhone = nullString(ecPhone)
	p.MedicalConditions = []string(conditions)
	p.Allergies = []string(allergies)
	p.Role = models.UserRole(role.String)
	p.Specialization = nullString(spec)
	p.LicenseNumber = nullString(license)
	p.Bio = nullString(bio)
	if createdAt.Valid {
		p.CreatedAt = &createdAt.Time
	}
	if updatedAt.Valid {
		p.UpdatedAt = &updatedAt.Time
	}
	return p, err
}

// queryList 执行查询并逐行扫描
func queryList[T any](ctx context.Context, db *sql.DB, scan func(rowScanner) (T, error), query string, args ...interface{}) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAppointments 按日期、时间升序
func (s *PostgresStore) ListAppointments(ctx context.Context, userID string) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE user_id = $1
		ORDER BY appointment_date ASC, appointment_time ASC`
	list, err := queryList(ctx, s.db, scanAppointment, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, nil
}

// ListActiveMedications 仅 is_active = TRUE，按创建时间倒序
func (s *PostgresStore) ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error) {
	query := `SELECT ` + medicationColumns + `
		FROM medications
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC`
	list, err := queryList(ctx, s.db, scanMedication, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	return list, nil
}

// ListLabResults 按化验日期倒序
func (s *PostgresStore) ListLabResults(ctx context.Context, userID string) ([]models.LabResult, error) {
	query := `SELECT ` + labResultColumns + `
		FROM lab_results
		WHERE user_id = $1
		ORDER BY test_date DESC`
	list, err := queryList(ctx, s.db, scanLabResult, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab results: %w", err)
	}
	return list, nil
}

// ListMoodLogs 最新的 limit 条
func (s *PostgresStore) ListMoodLogs(ctx context.Context, userID string, limit int) ([]models.MoodLog, error) {
	query := `SELECT ` + moodLogColumns + `
		FROM mood_logs
		WHERE user_id = $1
		ORDER BY log_date DESC, created_at DESC
		LIMIT $2`
	list, err := queryList(ctx, s.db, scanMoodLog, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list mood logs: %w", err)
	}
	return list, nil
}

// ListNotifications 最新的 limit 条
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	list, err := queryList(ctx, s.db, scanNotification, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// ListAssignments 有效分配关系，LEFT JOIN 双方 profiles
func (s *PostgresStore) ListAssignments(ctx context.Context, userID string) ([]models.PatientAssignment, error) {
	query := `
		SELECT
			a.id, a.patient_id, a.doctor_id, a.assigned_at, a.is_active, a.notes,
			p.first_name, p.last_name, p.email,
			d.first_name, d.last_name, d.specialization
		FROM patient_doctor_assignments a
		LEFT JOIN profiles p ON p.id = a.patient_id
		LEFT JOIN profiles d ON d.id = a.doctor_id
		WHERE a.is_active = TRUE
		  AND (a.doctor_id = $1 OR a.patient_id = $1)
		ORDER BY a.assigned_at DESC`
	list, err := queryList(ctx, s.db, scanAssignmentWithProfiles, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return list, nil
}

func scanAssignmentWithProfiles(row rowScanner) (models.PatientAssignment, error) {
	var a models.PatientAssignment
	var notes sql.NullString
	var pFirst, pLast, pEmail, dFirst, dLast, dSpec sql.NullString
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AssignedAt, &a.IsActive, &notes,
		&pFirst, &pLast, &pEmail, &dFirst, &dLast, &dSpec)
	a.Notes = nullString(notes)
	a.PatientProfile = profileOf(pFirst, pLast, pEmail, sql.NullString{})
	a.DoctorProfile = profileOf(dFirst, dLast, sql.NullString{}, dSpec)
	return a, err
}

// profileOf 资料全部为空（未找到 profile）时返回 nil
func profileOf(first, last, email, specialization sql.NullString) *models.Profile {
	if !first.Valid && !last.Valid && !email.Valid && !specialization.Valid {
		return nil
	}
	return &models.Profile{
		FirstName:      nullString(first),
		LastName:       nullString(last),
		Email:          nullString(email),
		Specialization: nullString(specialization),
	}
}
