package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Router 路由表，底层为 http.ServeMux
// - 精确路径按 HTTP 方法分发，未声明的方法返回 405 + Allow
// - "{prefix}{id}{suffix}" 形式的子路径按后缀分发，都不匹配时返回 404
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

// methods HTTP 方法到处理函数
type methods map[string]http.HandlerFunc

// idHandlerFunc 带路径 id 的处理函数
type idHandlerFunc func(w http.ResponseWriter, r *http.Request, id string)

// idRoute prefix 之后的单段 id，再接 suffix（可为空）
type idRoute struct {
	suffix string
	method string
	handle idHandlerFunc
}

func (r *Router) route(pattern string, m methods) {
	allow := allowList(m)
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		h, ok := m[req.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	})
}

// routeID prefix 必须以 / 结尾
func (r *Router) routeID(prefix string, routes ...idRoute) {
	r.mux.HandleFunc(prefix, func(w http.ResponseWriter, req *http.Request) {
		var allowed []string
		for _, rt := range routes {
			id, ok := pathID(req.URL.Path, prefix, rt.suffix)
			if !ok {
				continue
			}
			if req.Method == rt.method {
				rt.handle(w, req, id)
				return
			}
			allowed = append(allowed, rt.method)
		}
		if len(allowed) == 0 {
			r.logger.Debug("No route", zap.String("method", req.Method), zap.String("path", req.URL.Path))
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowList(m methods) string {
	out := make([]string, 0, len(m))
	for method := range m {
		out = append(out, method)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// Mount 挂载任意 http.Handler（websocket）
func (r *Router) Mount(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDashboardRoutes 快照 / 计数 / 连接状态 / 服药提醒
func (r *Router) RegisterDashboardRoutes(d *DashboardHandler) {
	r.route("/api/v1/dashboard/snapshot", methods{http.MethodGet: d.GetSnapshot})
	r.route("/api/v1/dashboard/stats", methods{http.MethodGet: d.GetStats})
	r.route("/api/v1/dashboard/status", methods{http.MethodGet: d.GetStatus})
	r.route("/api/v1/dashboard/reconnect", methods{http.MethodPost: d.Reconnect})
	r.route("/api/v1/dashboard/refresh", methods{http.MethodPost: d.Refresh})
	r.route("/api/v1/medications/reminders", methods{http.MethodGet: d.GetReminders})
	r.route("/api/v1/medications/reminders/taken", methods{http.MethodPost: d.MarkReminderTaken})
}

// RegisterRecordRoutes 直接写库的操作，结果经变更流回到快照
func (r *Router) RegisterRecordRoutes(h *RecordsHandler) {
	r.route("/api/v1/appointments", methods{http.MethodPost: h.CreateAppointment})
	r.routeID("/api/v1/appointments/",
		idRoute{suffix: "/status", method: http.MethodPost, handle: h.UpdateAppointmentStatus})

	r.route("/api/v1/medications", methods{http.MethodPost: h.CreateMedication})
	// /api/v1/medications/reminders* 为更长的精确模式，优先匹配
	r.routeID("/api/v1/medications/",
		idRoute{suffix: "/active", method: http.MethodPost, handle: h.SetMedicationActive})

	r.route("/api/v1/lab-results", methods{http.MethodPost: h.CreateLabResult})
	r.route("/api/v1/mood-logs", methods{http.MethodPost: h.SaveMoodLog})

	r.route("/api/v1/notifications/read-all", methods{http.MethodPost: h.MarkAllNotificationsRead})
	r.routeID("/api/v1/notifications/",
		idRoute{suffix: "/read", method: http.MethodPost, handle: h.MarkNotificationRead})

	r.route("/api/v1/assignments", methods{http.MethodPost: h.AssignPatient})
	r.routeID("/api/v1/assignments/",
		idRoute{method: http.MethodDelete, handle: h.UnassignPatient})

	r.route("/api/v1/profile", methods{
		http.MethodGet: h.GetProfile,
		http.MethodPut: h.UpdateProfile,
	})
}

// RegisterDocumentRoutes 医疗文档
func (r *Router) RegisterDocumentRoutes(h *DocumentsHandler) {
	r.route("/api/v1/documents", methods{
		http.MethodGet:  h.ListDocuments,
		http.MethodPost: h.UploadDocument,
	})
	r.routeID("/api/v1/documents/",
		idRoute{suffix: "/download", method: http.MethodGet, handle: h.DownloadDocument},
		idRoute{method: http.MethodDelete, handle: h.DeleteDocument})
}

// RegisterHealthRoutes /healthz 不限方法
func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.mux.HandleFunc("/healthz", h.HealthCheck)
}
