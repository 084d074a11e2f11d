package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"medease-realtime/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	store := NewPostgresStore(db, logger)

	return db, mock, store
}

var created = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func TestListAppointments_Success(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "doctor_name", "specialty", "appointment_date", "appointment_time",
		"reason", "location", "notes", "status", "created_at"}).
		AddRow("a1", "u1", "Dr. Lee", "Cardiology", "2025-03-02", "09:30:00", nil, "Room 4", nil, "scheduled", created).
		AddRow("a2", "u1", "Dr. Kim", nil, "2025-03-05", "14:00:00", "Follow-up", nil, nil, "completed", created)

	mock.ExpectQuery(`FROM appointments\s+WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(rows)

	list, err := store.ListAppointments(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a1", list[0].ID)
	assert.Equal(t, "Cardiology", *list[0].Specialty)
	assert.Nil(t, list[0].Reason)
	assert.Equal(t, "Room 4", *list[0].Location)
	assert.Equal(t, models.AppointmentScheduled, list[0].Status)
	assert.Nil(t, list[1].Specialty)
	assert.Equal(t, models.AppointmentCompleted, list[1].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveMedications_EmptyResult(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "dosage", "frequency", "prescribed_by", "start_date",
		"end_date", "instructions", "side_effects", "is_active", "created_at"})

	mock.ExpectQuery(`FROM medications\s+WHERE user_id = \$1 AND is_active = TRUE`).
		WithArgs("u1").
		WillReturnRows(rows)

	list, err := store.ListActiveMedications(context.Background(), "u1")

	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Len(t, list, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotifications_NormalizesAndLimits(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	readAt := created.Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "user_id", "title", "message", "type", "priority", "is_read",
		"related_table", "related_id", "created_at", "read_at"}).
		AddRow("n1", "u1", "Lab ready", "CBC is ready", "lab", "urgent", false, "lab_results", "l1", created, nil).
		AddRow("n2", "u1", "Reminder", "Take aspirin", "warning", "high", true, nil, nil, created, readAt)

	mock.ExpectQuery(`FROM notifications\s+WHERE user_id = \$1\s+ORDER BY created_at DESC\s+LIMIT \$2`).
		WithArgs("u1", 50).
		WillReturnRows(rows)

	list, err := store.ListNotifications(context.Background(), "u1", 50)

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.NotificationInfo, list[0].Type)
	assert.Equal(t, models.PriorityMedium, list[0].Priority)
	assert.Equal(t, "lab_results", *list[0].RelatedTable)
	assert.Nil(t, list[0].ReadAt)
	assert.Equal(t, models.NotificationWarning, list[1].Type)
	assert.Equal(t, models.PriorityHigh, list[1].Priority)
	require.NotNil(t, list[1].ReadAt)
	assert.True(t, readAt.Equal(*list[1].ReadAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMoodLogs_QueryError(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM mood_logs`).
		WithArgs("u1", 10).
		WillReturnError(errors.New("connection reset"))

	_, err := store.ListMoodLogs(context.Background(), "u1", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list mood logs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAssignments_WithProfiles(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "patient_id", "doctor_id", "assigned_at", "is_active", "notes",
		"p_first", "p_last", "p_email", "d_first", "d_last", "d_spec"}).
		AddRow("pa1", "u2", "u1", created, true, nil, "Ann", "Doe", "ann@example.com", "Bob", "Lee", "Cardiology").
		AddRow("pa2", "u3", "u1", created, true, "new", nil, nil, nil, "Bob", "Lee", nil)

	mock.ExpectQuery(`FROM patient_doctor_assignments a`).
		WithArgs("u1").
		WillReturnRows(rows)

	list, err := store.ListAssignments(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].PatientProfile)
	assert.Equal(t, "ann@example.com", *list[0].PatientProfile.Email)
	assert.Equal(t, "Cardiology", *list[0].DoctorProfile.Specialization)
	assert.Nil(t, list[1].PatientProfile)
	assert.Equal(t, "new", *list[1].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointment_Success(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "doctor_name", "specialty", "appointment_date", "appointment_time",
		"reason", "location", "notes", "status", "created_at"}).
		AddRow("a9", "u1", "Dr. Lee", nil, "2025-03-02", "09:30:00", nil, nil, nil, "scheduled", created)

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs("u1", "Dr. Lee", nil, "2025-03-02", "09:30", nil, nil, nil).
		WillReturnRows(rows)

	a, err := store.CreateAppointment(context.Background(), "u1", models.CreateAppointmentInput{
		DoctorName:      "Dr. Lee",
		AppointmentDate: "2025-03-02",
		AppointmentTime: "09:30",
	})

	require.NoError(t, err)
	assert.Equal(t, "a9", a.ID)
	assert.Equal(t, models.AppointmentScheduled, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointment_InvalidDate(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	_, err := store.CreateAppointment(context.Background(), "u1", models.CreateAppointmentInput{
		DoctorName:      "Dr. Lee",
		AppointmentDate: "03/02/2025",
		AppointmentTime: "09:30",
	})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatus_NotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE appointments SET status = \$1 WHERE id = \$2 AND user_id = \$3`).
		WithArgs("completed", "a1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateAppointmentStatus(context.Background(), "u2", "a1", models.AppointmentCompleted)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatus_RejectsUnknownStatus(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	err := store.UpdateAppointmentStatus(context.Background(), "u1", "a1", "rescheduled")

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMoodLog_MapsScore(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "mood_level", "note", "log_date", "log_time", "created_at"}).
		AddRow("m1", "u1", "happy", nil, "2025-03-01", "08:00:00", created)

	mock.ExpectQuery(`INSERT INTO mood_logs`).
		WithArgs("u1", "happy", nil, "", "").
		WillReturnRows(rows)

	m, err := store.SaveMoodLog(context.Background(), "u1", models.SaveMoodInput{Score: 4})

	require.NoError(t, err)
	assert.Equal(t, models.MoodHappy, m.MoodLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMoodLog_ScoreOutOfRange(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	_, err := store.SaveMoodLog(context.Background(), "u1", models.SaveMoodInput{Score: 6})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAllNotificationsRead_ReturnsCount(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE, read_at = NOW\(\) WHERE user_id = \$1 AND is_read = FALSE`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.MarkAllNotificationsRead(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignPatient_ByEmail(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM profiles WHERE email = \$1`).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u2"))
	mock.ExpectQuery(`INSERT INTO patient_doctor_assignments`).
		WithArgs("u2", "u1", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "doctor_id", "assigned_at", "is_active", "notes"}).
			AddRow("pa1", "u2", "u1", created, true, nil))

	a, err := store.AssignPatient(context.Background(), "u1", models.AssignPatientInput{PatientEmail: "ann@example.com"})

	require.NoError(t, err)
	assert.Equal(t, "pa1", a.ID)
	assert.Equal(t, "u2", a.PatientID)
	assert.True(t, a.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignPatient_UnknownEmail(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM profiles WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.AssignPatient(context.Background(), "u1", models.AssignPatientInput{PatientEmail: "nobody@example.com"})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnassignPatient_SoftDeletes(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE patient_doctor_assignments SET is_active = FALSE WHERE id = \$1 AND doctor_id = \$2`).
		WithArgs("pa1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UnassignPatient(context.Background(), "u1", "pa1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_NotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM medical_documents WHERE id = \$1 AND user_id = \$2`).
		WithArgs("d1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetDocument(context.Background(), "u1", "d1")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocument_PathMustBeUnderUser(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	_, err := store.CreateDocument(context.Background(), "u1", models.CreateDocumentInput{
		FileName: "scan.pdf",
		FilePath: "u2/abc.pdf",
	})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocument_Success(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	size := int64(2048)
	pdf := "application/pdf"
	mock.ExpectQuery(`INSERT INTO medical_documents`).
		WithArgs("u1", "scan.pdf", "u1/abc.pdf", &size, &pdf, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "file_name", "file_path", "file_size", "file_type",
			"document_type", "description", "upload_date", "created_at"}).
			AddRow("d1", "u1", "scan.pdf", "u1/abc.pdf", 2048, "application/pdf", nil, nil, created, created))

	d, err := store.CreateDocument(context.Background(), "u1", models.CreateDocumentInput{
		FileName: "scan.pdf",
		FilePath: "u1/abc.pdf",
		FileSize: &size,
		FileType: &pdf,
	})

	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, int64(2048), *d.FileSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var profileRowColumns = []string{"id", "first_name", "last_name", "date_of_birth", "phone", "emergency_contact_name",
	"emergency_contact_phone", "medical_conditions", "allergies", "role", "specialization", "license_number", "bio",
	"created_at", "updated_at"}

func TestGetProfile_Success(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM profiles WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(profileRowColumns).
			AddRow("u1", "Ann", "Doe", "1990-04-02", nil, nil, nil, "{asthma,\"type 2 diabetes\"}", nil,
				"patient", nil, nil, nil, created, nil))

	p, err := store.GetProfile(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "1990-04-02", *p.DateOfBirth)
	assert.Equal(t, []string{"asthma", "type 2 diabetes"}, p.MedicalConditions)
	assert.Empty(t, p.Allergies)
	assert.Equal(t, models.RolePatient, p.Role)
	assert.Nil(t, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM profiles WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(profileRowColumns))

	_, err := store.GetProfile(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfile_OnConflictUpdate(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	first := "Ann"
	mock.ExpectQuery(`INSERT INTO profiles .* ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs("u1", &first, nil, nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(profileRowColumns).
			AddRow("u1", "Ann", nil, nil, nil, nil, nil, "{}", "{penicillin}",
				"patient", nil, nil, nil, created, created))

	p, err := store.UpsertProfile(context.Background(), "u1", models.UpsertProfileInput{
		FirstName: &first,
		Allergies: []string{"penicillin", "  "},
	})

	require.NoError(t, err)
	assert.Equal(t, "Ann", *p.FirstName)
	assert.Equal(t, []string{"penicillin"}, p.Allergies)
	require.NotNil(t, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfile_InvalidBirthDate(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	dob := "02/04/1990"
	_, err := store.UpsertProfile(context.Background(), "u1", models.UpsertProfileInput{DateOfBirth: &dob})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}
