package repository

import (
	"fmt"
	"strings"
	"time"

	"medease-realtime/internal/models"
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func validClock(s string) bool {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ValidateAppointment 校验新建预约
func ValidateAppointment(in models.CreateAppointmentInput) error {
	if strings.TrimSpace(in.DoctorName) == "" {
		return invalid("doctor_name is required")
	}
	if !validDate(in.AppointmentDate) {
		return invalid("appointment_date must be YYYY-MM-DD, got %q", in.AppointmentDate)
	}
	if !validClock(in.AppointmentTime) {
		return invalid("appointment_time must be HH:MM, got %q", in.AppointmentTime)
	}
	return nil
}

// ValidateMedication 校验新建药物
func ValidateMedication(in models.CreateMedicationInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Dosage) == "" {
		return invalid("name and dosage are required")
	}
	if !in.Frequency.Valid() {
		return invalid("unknown frequency %q", in.Frequency)
	}
	for _, d := range []*string{in.StartDate, in.EndDate} {
		if d != nil && !validDate(*d) {
			return invalid("dates must be YYYY-MM-DD, got %q", *d)
		}
	}
	return nil
}

// ValidateLabResult 校验新建化验结果，status 为空时按 pending 处理
func ValidateLabResult(in *models.CreateLabResultInput) error {
	if strings.TrimSpace(in.TestName) == "" {
		return invalid("test_name is required")
	}
	if !validDate(in.TestDate) {
		return invalid("test_date must be YYYY-MM-DD, got %q", in.TestDate)
	}
	if in.Status == "" {
		in.Status = models.LabPending
	}
	if !in.Status.Valid() {
		return invalid("unknown lab status %q", in.Status)
	}
	return nil
}

// MoodLevelForInput 1-5 分转换为情绪等级，并校验可选的日期/时间
func MoodLevelForInput(in models.SaveMoodInput) (models.MoodLevel, error) {
	level, ok := models.MoodLevelFromScore(in.Score)
	if !ok {
		return "", invalid("mood score must be between 1 and 5, got %d", in.Score)
	}
	if in.LogDate != "" && !validDate(in.LogDate) {
		return "", invalid("log_date must be YYYY-MM-DD, got %q", in.LogDate)
	}
	if in.LogTime != "" && !validClock(in.LogTime) {
		return "", invalid("log_time must be HH:MM, got %q", in.LogTime)
	}
	return level, nil
}

// ValidateDocument 校验文档元数据
func ValidateDocument(userID string, in models.CreateDocumentInput) error {
	if strings.TrimSpace(in.FileName) == "" {
		return invalid("file_name is required")
	}
	// 存储路径必须位于用户自己的目录下
	if !strings.HasPrefix(in.FilePath, userID+"/") {
		return invalid("file_path must be under %s/", userID)
	}
	return nil
}

// ValidateProfile 校验资料字段；空生日置为 nil，列表中的空项被丢弃
func ValidateProfile(in *models.UpsertProfileInput) error {
	if in.DateOfBirth != nil && *in.DateOfBirth == "" {
		in.DateOfBirth = nil
	}
	if in.DateOfBirth != nil && !validDate(*in.DateOfBirth) {
		return invalid("date_of_birth must be YYYY-MM-DD, got %q", *in.DateOfBirth)
	}
	in.MedicalConditions = compact(in.MedicalConditions)
	in.Allergies = compact(in.Allergies)
	return nil
}

func compact(items []string) []string {
	out := []string{}
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
