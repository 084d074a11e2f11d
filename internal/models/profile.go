package models

import "time"

// UserRole 用户角色
type UserRole string

const (
	RolePatient UserRole = "patient"
	RoleDoctor  UserRole = "doctor"
)

// UserProfile 完整的用户资料（profiles 表）
type UserProfile struct {
	ID                    string     `json:"id"`
	FirstName             *string    `json:"first_name"`
	LastName              *string    `json:"last_name"`
	DateOfBirth           *string    `json:"date_of_birth"`
	Phone                 *string    `json:"phone"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone"`
	MedicalConditions     []string   `json:"medical_conditions"`
	Allergies             []string   `json:"allergies"`
	Role                  UserRole   `json:"role"`
	Specialization        *string    `json:"specialization"`
	LicenseNumber         *string    `json:"license_number"`
	Bio                   *string    `json:"bio"`
	CreatedAt             *time.Time `json:"created_at"`
	UpdatedAt             *time.Time `json:"updated_at"`
}

// UpsertProfileInput 用户可自行维护的资料字段；角色与医生资质不在此修改
type UpsertProfileInput struct {
	FirstName             *string  `json:"first_name"`
	LastName              *string  `json:"last_name"`
	DateOfBirth           *string  `json:"date_of_birth"`
	Phone                 *string  `json:"phone"`
	EmergencyContactName  *string  `json:"emergency_contact_name"`
	EmergencyContactPhone *string  `json:"emergency_contact_phone"`
	MedicalConditions     []string `json:"medical_conditions"`
	Allergies             []string `json:"allergies"`
}
