package httpapi

import (
	"net/http"
	"strings"

	"medease-realtime/internal/models"
	"medease-realtime/internal/repository"

	"go.uber.org/zap"
)

// RecordsHandler 健康记录写操作
type RecordsHandler struct {
	store  repository.Mutator
	logger *zap.Logger
}

func NewRecordsHandler(store repository.Mutator, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{store: store, logger: logger}
}

// decode 读 body；失败时已写响应
func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := readBodyJSON(r, maxJSONBody, out); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return false
	}
	return true
}

// POST /api/v1/appointments
func (h *RecordsHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in models.CreateAppointmentInput
	if !decode(w, r, &in) {
		return
	}
	a, err := h.store.CreateAppointment(r.Context(), uid, in)
	if err != nil {
		h.fail(w, "create appointment", uid, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(a))
}

// POST /api/v1/appointments/{id}/status
func (h *RecordsHandler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Status models.AppointmentStatus `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	if !body.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, Fail("unknown appointment status"))
		return
	}
	if err := h.store.UpdateAppointmentStatus(r.Context(), uid, id, body.Status); err != nil {
		h.fail(w, "update appointment status", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "status": body.Status}))
}

// POST /api/v1/medications
func (h *RecordsHandler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in models.CreateMedicationInput
	if !decode(w, r, &in) {
		return
	}
	m, err := h.store.CreateMedication(r.Context(), uid, in)
	if err != nil {
		h.fail(w, "create medication", uid, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(m))
}

// POST /api/v1/medications/{id}/active
func (h *RecordsHandler) SetMedicationActive(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Active == nil {
		writeJSON(w, http.StatusBadRequest, Fail("active is required"))
		return
	}
	if err := h.store.SetMedicationActive(r.Context(), uid, id, *body.Active); err != nil {
		h.fail(w, "set medication active", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "is_active": *body.Active}))
}

// POST /api/v1/lab-results
func (h *RecordsHandler) CreateLabResult(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in models.CreateLabResultInput
	if !decode(w, r, &in) {
		return
	}
	l, err := h.store.CreateLabResult(r.Context(), uid, in)
	if err != nil {
		h.fail(w, "create lab result", uid, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(l))
}

// POST /api/v1/mood-logs
func (h *RecordsHandler) SaveMoodLog(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in models.SaveMoodInput
	if !decode(w, r, &in) {
		return
	}
	m, err := h.store.SaveMoodLog(r.Context(), uid, in)
	if err != nil {
		h.fail(w, "save mood log", uid, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(m))
}

// POST /api/v1/notifications/{id}/read
func (h *RecordsHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.store.MarkNotificationRead(r.Context(), uid, id); err != nil {
		h.fail(w, "mark notification read", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "is_read": true}))
}

// POST /api/v1/notifications/read-all
func (h *RecordsHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkAllNotificationsRead(r.Context(), uid)
	if err != nil {
		h.fail(w, "mark all notifications read", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"updated": n}))
}

// POST /api/v1/assignments（当前用户为医生）
func (h *RecordsHandler) AssignPatient(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in models.AssignPatientInput
	if !decode(w, r, &in) {
		return
	}
	in.PatientEmail = strings.TrimSpace(in.PatientEmail)
	if in.PatientEmail == "" && in.PatientID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("patient_email or patient_id is required"))
		return
	}
	a, err := h.store.AssignPatient(r.Context(), uid, in)
	if err != nil {
		h.fail(w, "assign patient", uid, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(a))
}

// DELETE /api/v1/assignments/{id}
func (h *RecordsHandler) UnassignPatient(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.store.UnassignPatient(r.Context(), uid, id); err != nil {
		h.fail(w, "unassign patient", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "is_active": false}))
}

// GET /api/v1/profile
func (h *RecordsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetProfile(r.Context(), uid)
	if err != nil {
		h.fail(w, "get profile", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(p))
}

// PUT /api/v1/profile
func (h *RecordsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in models.UpsertProfileInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.store.UpsertProfile(r.Context(), uid, in)
	if err != nil {
		h.fail(w, "upsert profile", uid, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(p))
}

func (h *RecordsHandler) fail(w http.ResponseWriter, op, uid string, err error) {
	status, res := FailErr(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Record operation failed",
			zap.String("op", op),
			zap.String("user_id", uid),
			zap.Error(err),
		)
	}
	writeJSON(w, status, res)
}
