package httpapi

import (
	"context"
	"sync"
	"time"

	"medease-realtime/internal/feed"
	"medease-realtime/internal/models"
	"medease-realtime/internal/repository"
	"medease-realtime/internal/storage"
)

// fakeStore 内存版 repository.Store
type fakeStore struct {
	mu            sync.Mutex
	appointments  []models.Appointment
	medications   []models.Medication
	notifications []models.Notification
	documents     map[string]models.MedicalDocument
	lastMood      *models.SaveMoodInput
	lastAssign    *models.AssignPatientInput
	profiles      map[string]models.UserProfile
	failCreateDoc error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: make(map[string]models.MedicalDocument),
		profiles:  make(map[string]models.UserProfile),
	}
}

func (f *fakeStore) ListAppointments(ctx context.Context, userID string) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Appointment(nil), f.appointments...), nil
}

func (f *fakeStore) ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Medication(nil), f.medications...), nil
}

func (f *fakeStore) ListLabResults(ctx context.Context, userID string) ([]models.LabResult, error) {
	return []models.LabResult{}, nil
}

func (f *fakeStore) ListMoodLogs(ctx context.Context, userID string, limit int) ([]models.MoodLog, error) {
	return []models.MoodLog{}, nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.notifications...), nil
}

func (f *fakeStore) ListAssignments(ctx context.Context, userID string) ([]models.PatientAssignment, error) {
	return []models.PatientAssignment{}, nil
}

func (f *fakeStore) CreateAppointment(ctx context.Context, userID string, in models.CreateAppointmentInput) (*models.Appointment, error) {
	if err := repository.ValidateAppointment(in); err != nil {
		return nil, err
	}
	a := models.Appointment{
		ID:              "appt-new",
		UserID:          userID,
		DoctorName:      in.DoctorName,
		AppointmentDate: in.AppointmentDate,
		AppointmentTime: in.AppointmentTime,
		Status:          models.AppointmentScheduled,
	}
	f.mu.Lock()
	f.appointments = append(f.appointments, a)
	f.mu.Unlock()
	return &a, nil
}

func (f *fakeStore) UpdateAppointmentStatus(ctx context.Context, userID, id string, status models.AppointmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			f.appointments[i].Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) CreateMedication(ctx context.Context, userID string, in models.CreateMedicationInput) (*models.Medication, error) {
	if err := repository.ValidateMedication(in); err != nil {
		return nil, err
	}
	return &models.Medication{ID: "med-new", UserID: userID, Name: in.Name, Frequency: in.Frequency, IsActive: true}, nil
}

func (f *fakeStore) SetMedicationActive(ctx context.Context, userID, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.medications {
		if f.medications[i].ID == id {
			f.medications[i].IsActive = active
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) CreateLabResult(ctx context.Context, userID string, in models.CreateLabResultInput) (*models.LabResult, error) {
	if err := repository.ValidateLabResult(&in); err != nil {
		return nil, err
	}
	return &models.LabResult{ID: "lab-new", UserID: userID, TestName: in.TestName, Status: in.Status}, nil
}

func (f *fakeStore) SaveMoodLog(ctx context.Context, userID string, in models.SaveMoodInput) (*models.MoodLog, error) {
	level, err := repository.MoodLevelForInput(in)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastMood = &in
	f.mu.Unlock()
	return &models.MoodLog{ID: "mood-new", UserID: userID, MoodLevel: level}, nil
}

func (f *fakeStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.notifications {
		if !f.notifications[i].IsRead {
			f.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) AssignPatient(ctx context.Context, doctorID string, in models.AssignPatientInput) (*models.PatientAssignment, error) {
	f.mu.Lock()
	f.lastAssign = &in
	f.mu.Unlock()
	if in.PatientEmail == "nobody@example.com" {
		return nil, repository.ErrNotFound
	}
	return &models.PatientAssignment{ID: "pa-new", DoctorID: doctorID, PatientID: "patient-1", IsActive: true}, nil
}

func (f *fakeStore) UnassignPatient(ctx context.Context, doctorID, id string) error {
	if id != "pa-1" {
		return repository.ErrNotFound
	}
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, userID string) ([]models.MedicalDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.MedicalDocument{}
	for _, d := range f.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, userID, id string) (*models.MedicalDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok || d.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (f *fakeStore) CreateDocument(ctx context.Context, userID string, in models.CreateDocumentInput) (*models.MedicalDocument, error) {
	if f.failCreateDoc != nil {
		return nil, f.failCreateDoc
	}
	if err := repository.ValidateDocument(userID, in); err != nil {
		return nil, err
	}
	d := models.MedicalDocument{
		ID:           "doc-new",
		UserID:       userID,
		FileName:     in.FileName,
		FilePath:     in.FilePath,
		FileSize:     in.FileSize,
		FileType:     in.FileType,
		DocumentType: in.DocumentType,
		Description:  in.Description,
		UploadDate:   time.Now(),
	}
	f.mu.Lock()
	f.documents[d.ID] = d
	f.mu.Unlock()
	return &d, nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok || d.UserID != userID {
		return repository.ErrNotFound
	}
	delete(f.documents, id)
	return nil
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) UpsertProfile(ctx context.Context, userID string, in models.UpsertProfileInput) (*models.UserProfile, error) {
	if err := repository.ValidateProfile(&in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		p = models.UserProfile{ID: userID, Role: models.RolePatient}
	}
	p.FirstName, p.LastName, p.DateOfBirth, p.Phone = in.FirstName, in.LastName, in.DateOfBirth, in.Phone
	p.EmergencyContactName, p.EmergencyContactPhone = in.EmergencyContactName, in.EmergencyContactPhone
	p.MedicalConditions, p.Allergies = in.MedicalConditions, in.Allergies
	f.profiles[userID] = p
	return &p, nil
}

// fakeBlobs 内存对象存储
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	removed []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (b *fakeBlobs) Upload(ctx context.Context, objectPath, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectPath] = data
	b.types[objectPath] = contentType
	return nil
}

func (b *fakeBlobs) Download(ctx context.Context, objectPath string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[objectPath]
	if !ok {
		return nil, "", storage.ErrObjectNotFound
	}
	return data, b.types[objectPath], nil
}

func (b *fakeBlobs) Remove(ctx context.Context, objectPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectPath)
	b.removed = append(b.removed, objectPath)
	return nil
}

func (b *fakeBlobs) SignedURL(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error) {
	return "https://storage.test/object/sign/" + objectPath + "?token=t", nil
}

// idleFeed 订阅成功但从不投递
type idleFeed struct{}

type idleChannel struct {
	once sync.Once
	done chan struct{}
}

func (idleFeed) Subscribe(ctx context.Context, name string, subs []feed.Subscription, h feed.Handler) (feed.Channel, error) {
	return &idleChannel{done: make(chan struct{})}, nil
}

func (c *idleChannel) Done() <-chan struct{} { return c.done }
func (c *idleChannel) Err() error            { return nil }
func (c *idleChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
