package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"medease-realtime/internal/alert"
	"medease-realtime/internal/feed"
	"medease-realtime/internal/models"
	"medease-realtime/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrSessionStarted   = errors.New("session already started")
	ErrReminderNotFound = errors.New("reminder not found")
)

// Deps 会话依赖
type Deps struct {
	Reader repository.SnapshotReader
	Feed   feed.Feed
	Alerts alert.Sink      // 可为 nil
	Cache  *CacheManager   // 可为 nil
	Ledger *ReminderLedger // 可为 nil，此时服药标记只保存在会话内存中
	Logger *zap.Logger
}

// Options 会话参数，零值字段取默认值
type Options struct {
	MoodLogLimit      int
	NotificationLimit int
	Backoff           BackoffPolicy
	Location          *time.Location // “今天”的判定时区
	Now               func() time.Time
	Rand              func() float64
}

// DefaultOptions 情绪日志 10 条，通知 50 条，UTC
func DefaultOptions() Options {
	return Options{
		MoodLogLimit:      10,
		NotificationLimit: 50,
		Backoff:           DefaultBackoff(),
		Location:          time.UTC,
		Now:               time.Now,
		Rand:              defaultRand,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MoodLogLimit <= 0 {
		o.MoodLogLimit = d.MoodLogLimit
	}
	if o.NotificationLimit <= 0 {
		o.NotificationLimit = d.NotificationLimit
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff = d.Backoff
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.Rand == nil {
		o.Rand = d.Rand
	}
	return o
}

// UpdateKind 会话对外推送的事件类型
type UpdateKind string

const (
	UpdateSnapshot UpdateKind = "snapshot.updated"
	UpdateStatus   UpdateKind = "status.changed"
	UpdateAlert    UpdateKind = "alert"
)

// Update 推送内容，按 Kind 只填一个字段
type Update struct {
	Kind     UpdateKind
	UserID   string
	Snapshot *models.Snapshot
	Status   *models.ConnectionStatus
	Alert    *alert.Alert
}

// Listener 更新回调；在会话内部 goroutine 上同步调用，不要在回调里调用 OnUpdate 返回的取消函数
type Listener func(Update)

// Session 单个用户的实时聚合快照
type Session struct {
	id     string
	userID string
	reader repository.SnapshotReader
	feed   feed.Feed
	alerts alert.Sink
	cache  *CacheManager
	ledger *ReminderLedger
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	snap    models.Snapshot
	status  models.ConnectionStatus
	taken   map[reminderKey]bool
	started bool
	closed  bool

	emitMu    sync.Mutex
	listeners map[int]Listener
	nextID    int
	silenced  bool

	ctx         context.Context
	cancel      context.CancelFunc
	reconnectCh chan struct{}
	wg          sync.WaitGroup
}

// NewSession 创建会话，需调用 Start 开始拉取与订阅，用完 Close
func NewSession(userID string, deps Deps, opts Options) *Session {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		userID: userID,
		reader: deps.Reader,
		feed:   deps.Feed,
		alerts: deps.Alerts,
		cache:  deps.Cache,
		ledger: deps.Ledger,
		logger: logger.With(zap.String("user_id", userID), zap.String("session_id", id)),
		opts:   opts,
		snap: models.Snapshot{
			UserID:        userID,
			Appointments:  []models.Appointment{},
			Medications:   []models.Medication{},
			LabResults:    []models.LabResult{},
			MoodLogs:      []models.MoodLog{},
			Notifications: []models.Notification{},
			Assignments:   []models.PatientAssignment{},
		},
		status:      models.ConnectionStatus{State: models.StateConnecting, UpdatedAt: opts.Now()},
		taken:       make(map[reminderKey]bool),
		listeners:   make(map[int]Listener),
		ctx:         ctx,
		cancel:      cancel,
		reconnectCh: make(chan struct{}, 1),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Start 初始拉取 + 建立订阅。拉取失败只记为 warning；订阅失败进入退避重连。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.mu.Unlock()

	s.setStatus(models.StateConnecting, nil, 0, false)
	s.seedFromCache(ctx)
	s.loadTaken(ctx)
	if err := s.fetchAll(ctx); err != nil {
		s.logger.Warn("Initial fetch incomplete", zap.Error(err))
	}

	ch, err := s.subscribe(ctx)
	if err != nil {
		s.logger.Warn("Initial subscription failed", zap.Error(err))
		s.setStatus(models.StateDisconnected, err, 0, false)
	} else {
		s.setStatus(models.StateConnected, nil, 0, false)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return ErrSessionClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ch)

	s.logger.Info("Realtime session started")
	return nil
}

// Close 释放订阅；返回后不再有回调
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.emitMu.Lock()
	s.silenced = true
	s.emitMu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.logger.Info("Realtime session closed")
	return nil
}

// Reconnect 手动重连（已连接时强制重建订阅并重新拉取）
func (s *Session) Reconnect() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
	return nil
}

// Refresh 重新拉取全部集合
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.fetchAll(ctx)
}

// Snapshot 当前快照副本（派生计数按当前时间重算）
func (s *Session) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeLocked()
	return s.snap.Clone()
}

// Stats 当前派生计数
func (s *Session) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeLocked()
	return s.snap.Stats
}

// Status 连接状态
func (s *Session) Status() models.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TodayReminders 今天的服药提醒，按时间排序
func (s *Session) TodayReminders() []models.MedicationReminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildReminders(s.snap.Medications, s.taken, s.opts.Now(), s.opts.Location)
}

// MarkReminderTaken 只标记该药物在 at 时刻的那一次提醒
func (s *Session) MarkReminderTaken(medicationID string, at time.Time) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	now := s.opts.Now()
	reminders := buildReminders(s.snap.Medications, s.taken, now, s.opts.Location)
	found := false
	for _, r := range reminders {
		if r.MedicationID == medicationID && r.At.Equal(at) {
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s at %s", ErrReminderNotFound, medicationID, at.Format(time.RFC3339))
	}

	// 只保留今天的标记
	local := now.In(s.opts.Location)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.opts.Location).Unix()
	for k := range s.taken {
		if k.at < dayStart {
			delete(s.taken, k)
		}
	}
	s.taken[reminderKey{medicationID: medicationID, at: at.Unix()}] = true
	s.snap.LastUpdated = now
	s.recomputeLocked()
	snap := s.snap.Clone()
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.add(s.ctx, s.userID, medicationID, at, now, s.opts.Location); err != nil {
			s.logger.Warn("Failed to persist reminder mark", zap.String("medication_id", medicationID), zap.Error(err))
		}
	}
	s.publishSnapshot(snap)
	return nil
}

// loadTaken 恢复今天已保存的服药标记
func (s *Session) loadTaken(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	marks, err := s.ledger.load(ctx, s.userID, s.opts.Now(), s.opts.Location)
	if err != nil {
		s.logger.Warn("Failed to restore reminder marks", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range marks {
		s.taken[k] = true
	}
}

// OnUpdate 注册更新回调，返回取消函数
func (s *Session) OnUpdate(l Listener) func() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.emitMu.Lock()
		defer s.emitMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) emit(u Update) {
	u.UserID = s.userID
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.silenced {
		return
	}
	for _, l := range s.listeners {
		l(u)
	}
}

// recomputeLocked 重算派生计数，调用方持有 s.mu
func (s *Session) recomputeLocked() {
	now := s.opts.Now()
	reminders := buildReminders(s.snap.Medications, s.taken, now, s.opts.Location)
	s.snap.Stats = computeStats(&s.snap, countOverdue(reminders), now, s.opts.Location)
}

func (s *Session) setStatus(state models.ConnectionState, err error, attempts int, waitingManual bool) {
	s.mu.Lock()
	prev := s.status.State
	s.status = models.ConnectionStatus{
		State:         state,
		Attempts:      attempts,
		WaitingManual: waitingManual,
		UpdatedAt:     s.opts.Now(),
	}
	if err != nil {
		s.status.LastError = err.Error()
	}
	status := s.status
	s.mu.Unlock()

	if prev != state {
		s.logger.Info("Connection status changed",
			zap.String("from", string(prev)),
			zap.String("to", string(state)),
			zap.Int("attempts", attempts),
		)
	}
	s.emit(Update{Kind: UpdateStatus, Status: &status})
}

func (s *Session) subscribe(ctx context.Context) (feed.Channel, error) {
	return s.feed.Subscribe(ctx, s.id, subscriptionsFor(s.userID), s.handleChange)
}

// handleChange 订阅回调：合并、重算、推送；告警在释放锁之后发送
func (s *Session) handleChange(c feed.Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	eff, err := s.applyLocked(c)
	var snap models.Snapshot
	if eff.changed {
		s.snap.LastUpdated = s.opts.Now()
		s.recomputeLocked()
		snap = s.snap.Clone()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Failed to apply change",
			zap.String("table", c.Table),
			zap.String("type", string(c.Type)),
			zap.Error(err),
		)
		return
	}
	if eff.refetchAssignments {
		s.refreshAssignments()
		return
	}
	if eff.changed {
		s.publishSnapshot(snap)
	}
	for _, a := range eff.alerts {
		s.sendAlert(a)
	}
}

func (s *Session) refreshAssignments() {
	list, err := s.reader.ListAssignments(s.ctx, s.userID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("Failed to refresh assignments", zap.Error(err))
		}
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.snap.Assignments = list
	s.snap.LastUpdated = s.opts.Now()
	s.recomputeLocked()
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.publishSnapshot(snap)
}

func (s *Session) publishSnapshot(snap models.Snapshot) {
	if s.cache != nil && s.ctx.Err() == nil {
		if err := s.cache.SaveSnapshot(s.ctx, snap); err != nil {
			s.logger.Debug("Failed to cache snapshot", zap.Error(err))
		}
	}
	s.emit(Update{Kind: UpdateSnapshot, Snapshot: &snap})
}

func (s *Session) sendAlert(a alert.Alert) {
	if s.alerts != nil {
		if err := s.alerts.Send(s.ctx, a); err != nil {
			s.logger.Error("Failed to deliver alert",
				zap.String("kind", string(a.Kind)),
				zap.String("resource_id", a.ResourceID),
				zap.Error(err),
			)
		}
	}
	s.emit(Update{Kind: UpdateAlert, Alert: &a})
}

// seedFromCache 用缓存快照作为各集合的“最后已知值”
func (s *Session) seedFromCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.LoadSnapshot(ctx, s.userID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Debug("Failed to load cached snapshot", zap.Error(err))
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Appointments = nonNil(cached.Appointments)
	s.snap.Medications = nonNil(cached.Medications)
	s.snap.LabResults = nonNil(cached.LabResults)
	s.snap.MoodLogs = truncate(nonNil(cached.MoodLogs), s.opts.MoodLogLimit)
	s.snap.Notifications = truncate(nonNil(cached.Notifications), s.opts.NotificationLimit)
	s.snap.Assignments = nonNil(cached.Assignments)
	s.snap.LastUpdated = cached.LastUpdated
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// fetchAll 并发拉取六个集合，互不影响；失败的集合保留原值并记为 warning
func (s *Session) fetchAll(ctx context.Context) error {
	var (
		appointments  []models.Appointment
		medications   []models.Medication
		labResults    []models.LabResult
		moodLogs      []models.MoodLog
		notifications []models.Notification
		assignments   []models.PatientAssignment

		errMu    sync.Mutex
		errs     []error
		warnings []string
	)
	fail := func(name string, err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		warnings = append(warnings, fmt.Sprintf("%s could not be refreshed", name))
	}

	var g errgroup.Group
	g.Go(func() error {
		v, err := s.reader.ListAppointments(ctx, s.userID)
		if err != nil {
			fail("appointments", err)
			return nil
		}
		appointments = nonNil(v)
		return nil
	})
	g.Go(func() error {
		v, err := s.reader.ListActiveMedications(ctx, s.userID)
		if err != nil {
			fail("medications", err)
			return nil
		}
		medications = nonNil(v)
		return nil
	})
	g.Go(func() error {
		v, err := s.reader.ListLabResults(ctx, s.userID)
		if err != nil {
			fail("lab_results", err)
			return nil
		}
		labResults = nonNil(v)
		return nil
	})
	g.Go(func() error {
		v, err := s.reader.ListMoodLogs(ctx, s.userID, s.opts.MoodLogLimit)
		if err != nil {
			fail("mood_logs", err)
			return nil
		}
		moodLogs = nonNil(v)
		return nil
	})
	g.Go(func() error {
		v, err := s.reader.ListNotifications(ctx, s.userID, s.opts.NotificationLimit)
		if err != nil {
			fail("notifications", err)
			return nil
		}
		notifications = nonNil(v)
		return nil
	})
	g.Go(func() error {
		v, err := s.reader.ListAssignments(ctx, s.userID)
		if err != nil {
			fail("patient_doctor_assignments", err)
			return nil
		}
		assignments = nonNil(v)
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if appointments != nil {
		s.snap.Appointments = appointments
	}
	if medications != nil {
		s.snap.Medications = medications
	}
	if labResults != nil {
		s.snap.LabResults = labResults
	}
	if moodLogs != nil {
		s.snap.MoodLogs = truncate(moodLogs, s.opts.MoodLogLimit)
	}
	if notifications != nil {
		for i := range notifications {
			notifications[i] = notifications[i].Normalize()
		}
		s.snap.Notifications = truncate(notifications, s.opts.NotificationLimit)
	}
	if assignments != nil {
		s.snap.Assignments = assignments
	}
	s.snap.Warnings = warnings
	s.snap.LastUpdated = s.opts.Now()
	s.recomputeLocked()
	snap := s.snap.Clone()
	s.mu.Unlock()

	for _, w := range warnings {
		s.logger.Warn("Fetch failed, keeping last known value", zap.String("warning", w))
	}
	s.publishSnapshot(snap)
	return errors.Join(errs...)
}

// run 监听订阅断开与手动重连，断开后按退避策略重订阅
func (s *Session) run(ch feed.Channel) {
	defer s.wg.Done()
	for {
		if ch == nil {
			ch = s.resubscribe(false)
			if ch == nil {
				return
			}
			continue
		}
		select {
		case <-s.ctx.Done():
			_ = ch.Close()
			return
		case <-ch.Done():
			err := ch.Err()
			_ = ch.Close()
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("Change subscription lost", zap.Error(err))
			s.setStatus(models.StateDisconnected, err, 0, false)
			ch = s.resubscribe(false)
		case <-s.reconnectCh:
			_ = ch.Close()
			s.logger.Info("Manual reconnect requested")
			ch = s.resubscribe(true)
		}
		if ch == nil {
			return
		}
	}
}

// resubscribe 重建订阅直到成功或会话关闭（返回 nil）；成功后整体重拉以补齐断线期间的变更
func (s *Session) resubscribe(immediate bool) feed.Channel {
	attempt := 0
	for {
		if !immediate {
			attempt++
			if attempt > s.opts.Backoff.MaxAttempts && s.opts.Backoff.MaxAttempts > 0 {
				s.setStatus(models.StateDisconnected, s.lastError(), attempt-1, true)
				s.logger.Warn("Reconnect attempts exhausted, waiting for manual reconnect",
					zap.Int("attempts", attempt-1))
				select {
				case <-s.ctx.Done():
					return nil
				case <-s.reconnectCh:
					attempt = 0
					immediate = true
					continue
				}
			}

			delay := s.opts.Backoff.Delay(attempt, s.opts.Rand)
			timer := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return nil
			case <-s.reconnectCh:
				timer.Stop()
				attempt = 0
			case <-timer.C:
			}
		}
		immediate = false

		s.setStatus(models.StateConnecting, nil, attempt, false)
		ch, err := s.subscribe(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Resubscribe failed", zap.Int("attempt", attempt), zap.Error(err))
			s.setStatus(models.StateDisconnected, err, attempt, false)
			continue
		}

		s.setStatus(models.StateConnected, nil, 0, false)
		if err := s.fetchAll(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("Resync after reconnect incomplete", zap.Error(err))
		}
		return ch
	}
}

func (s *Session) lastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.LastError == "" {
		return nil
	}
	return errors.New(s.status.LastError)
}
