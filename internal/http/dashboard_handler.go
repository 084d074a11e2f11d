package httpapi

import (
	"context"
	"net/http"
	"time"

	"medease-realtime/internal/aggregator"
	"medease-realtime/internal/models"

	"go.uber.org/zap"
)

// SessionProvider 按用户获取会话（aggregator.Registry）
type SessionProvider interface {
	Acquire(ctx context.Context, userID string) (*aggregator.Session, func(), error)
}

// DashboardHandler 仪表盘读取与连接控制
type DashboardHandler struct {
	sessions SessionProvider
	logger   *zap.Logger
}

func NewDashboardHandler(sessions SessionProvider, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, logger: logger}
}

// withSession 取会话执行 fn，结束后释放引用（会话在空闲超时前保持订阅）
func (h *DashboardHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(s *aggregator.Session)) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, release, err := h.sessions.Acquire(r.Context(), uid)
	if err != nil {
		h.logger.Error("Failed to acquire session", zap.String("user_id", uid), zap.Error(err))
		writeError(w, err)
		return
	}
	defer release()
	fn(s)
}

// GET /api/v1/dashboard/snapshot
func (h *DashboardHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *aggregator.Session) {
		snap := s.Snapshot()
		if len(snap.Warnings) > 0 {
			writeJSON(w, http.StatusOK, Warn("some collections could not be refreshed", snap))
			return
		}
		writeJSON(w, http.StatusOK, Ok(snap))
	})
}

// GET /api/v1/dashboard/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *aggregator.Session) {
		writeJSON(w, http.StatusOK, Ok(s.Stats()))
	})
}

// GET /api/v1/dashboard/status
func (h *DashboardHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *aggregator.Session) {
		writeJSON(w, http.StatusOK, Ok(s.Status()))
	})
}

// POST /api/v1/dashboard/reconnect
func (h *DashboardHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *aggregator.Session) {
		if err := s.Reconnect(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, Ok(s.Status()))
	})
}

// POST /api/v1/dashboard/refresh
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *aggregator.Session) {
		if err := s.Refresh(r.Context()); err != nil {
			h.logger.Warn("Refresh incomplete", zap.String("user_id", s.UserID()), zap.Error(err))
			writeJSON(w, http.StatusOK, Warn(err.Error(), s.Snapshot()))
			return
		}
		writeJSON(w, http.StatusOK, Ok(s.Snapshot()))
	})
}

// GET /api/v1/medications/reminders
func (h *DashboardHandler) GetReminders(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *aggregator.Session) {
		reminders := s.TodayReminders()
		if reminders == nil {
			reminders = []models.MedicationReminder{}
		}
		writeJSON(w, http.StatusOK, Ok(reminders))
	})
}

type reminderTakenRequest struct {
	MedicationID string    `json:"medication_id"`
	At           time.Time `json:"at"`
}

// POST /api/v1/medications/reminders/taken
func (h *DashboardHandler) MarkReminderTaken(w http.ResponseWriter, r *http.Request) {
	var req reminderTakenRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.MedicationID == "" || req.At.IsZero() {
		writeJSON(w, http.StatusBadRequest, Fail("medication_id and at are required"))
		return
	}
	h.withSession(w, r, func(s *aggregator.Session) {
		if err := s.MarkReminderTaken(req.MedicationID, req.At); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(s.TodayReminders()))
	})
}
