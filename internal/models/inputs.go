package models

// CreateAppointmentInput 新建预约
type CreateAppointmentInput struct {
	DoctorName      string  `json:"doctor_name"`
	Specialty       *string `json:"specialty"`
	AppointmentDate string  `json:"appointment_date"`
	AppointmentTime string  `json:"appointment_time"`
	Reason          *string `json:"reason"`
	Location        *string `json:"location"`
	Notes           *string `json:"notes"`
}

// CreateMedicationInput 新建药物
type CreateMedicationInput struct {
	Name         string              `json:"name"`
	Dosage       string              `json:"dosage"`
	Frequency    MedicationFrequency `json:"frequency"`
	PrescribedBy *string             `json:"prescribed_by"`
	StartDate    *string             `json:"start_date"`
	EndDate      *string             `json:"end_date"`
	Instructions *string             `json:"instructions"`
	SideEffects  *string             `json:"side_effects"`
}

// CreateLabResultInput 新建化验结果
type CreateLabResultInput struct {
	TestName       string    `json:"test_name"`
	TestDate       string    `json:"test_date"`
	ResultValue    *string   `json:"result_value"`
	ReferenceRange *string   `json:"reference_range"`
	Unit           *string   `json:"unit"`
	Status         LabStatus `json:"status"`
	LabName        *string   `json:"lab_name"`
	DoctorName     *string   `json:"doctor_name"`
	Notes          *string   `json:"notes"`
}

// SaveMoodInput 按 1-5 分记录情绪
type SaveMoodInput struct {
	Score   int     `json:"score"`
	Note    *string `json:"note"`
	LogDate string  `json:"log_date"`
	LogTime string  `json:"log_time"`
}

// AssignPatientInput 医生按邮箱分配患者（PatientID 非空时直接使用）
type AssignPatientInput struct {
	PatientEmail string  `json:"patient_email"`
	PatientID    string  `json:"patient_id"`
	Notes        *string `json:"notes"`
}

// CreateDocumentInput 文档元数据（文件已写入对象存储）
type CreateDocumentInput struct {
	FileName     string  `json:"file_name"`
	FilePath     string  `json:"file_path"`
	FileSize     *int64  `json:"file_size"`
	FileType     *string `json:"file_type"`
	DocumentType *string `json:"document_type"`
	Description  *string `json:"description"`
}
