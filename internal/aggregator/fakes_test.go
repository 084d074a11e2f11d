package aggregator_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"medease-realtime/internal/feed"
	"medease-realtime/internal/models"
)

// fakeReader 内存版 SnapshotReader，可按集合注入错误
type fakeReader struct {
	mu            sync.Mutex
	appointments  []models.Appointment
	medications   []models.Medication
	labResults    []models.LabResult
	moodLogs      []models.MoodLog
	notifications []models.Notification
	assignments   []models.PatientAssignment
	errs          map[string]error
	calls         map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{errs: make(map[string]error), calls: make(map[string]int)}
}

func (r *fakeReader) fail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, name)
		return
	}
	r.errs[name] = err
}

func (r *fakeReader) callCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeReader) hit(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	return r.errs[name]
}

func (r *fakeReader) ListAppointments(ctx context.Context, userID string) ([]models.Appointment, error) {
	if err := r.hit("appointments"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Appointment(nil), r.appointments...), nil
}

func (r *fakeReader) ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error) {
	if err := r.hit("medications"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// 与真实存储一致，只返回 is_active 的药物
	var out []models.Medication
	for _, m := range r.medications {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeReader) ListLabResults(ctx context.Context, userID string) ([]models.LabResult, error) {
	if err := r.hit("lab_results"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LabResult(nil), r.labResults...), nil
}

func (r *fakeReader) ListMoodLogs(ctx context.Context, userID string, limit int) ([]models.MoodLog, error) {
	if err := r.hit("mood_logs"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.moodLogs
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]models.MoodLog(nil), list...), nil
}

func (r *fakeReader) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if err := r.hit("notifications"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.notifications
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]models.Notification(nil), list...), nil
}

func (r *fakeReader) ListAssignments(ctx context.Context, userID string) ([]models.PatientAssignment, error) {
	if err := r.hit("assignments"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PatientAssignment(nil), r.assignments...), nil
}

func (r *fakeReader) setAssignments(list []models.PatientAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = list
}

// fakeFeed 手动驱动的变更流：emit 同步回调，drop 模拟断线
type fakeFeed struct {
	mu        sync.Mutex
	channels  []*fakeChannel
	failNext  int
	subscribe int
}

type fakeChannel struct {
	handler feed.Handler
	subs    []feed.Subscription

	mu     sync.Mutex
	done   chan struct{}
	err    error
	closed bool
}

func newFakeFeed() *fakeFeed { return &fakeFeed{} }

func (f *fakeFeed) Subscribe(ctx context.Context, name string, subs []feed.Subscription, h feed.Handler) (feed.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribe++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("realtime unavailable")
	}
	ch := &fakeChannel{handler: h, subs: subs, done: make(chan struct{})}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeFeed) setFailures(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

func (f *fakeFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribe
}

// current 最近一次成功订阅的通道
func (f *fakeFeed) current() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.channels) == 0 {
		return nil
	}
	return f.channels[len(f.channels)-1]
}

func (f *fakeFeed) liveChannels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ch := range f.channels {
		if !ch.isClosed() {
			n++
		}
	}
	return n
}

// emit 按订阅过滤后同步投递
func (c *fakeChannel) emit(change feed.Change) {
	if c.isClosed() {
		return
	}
	for _, s := range c.subs {
		if s.Table == change.Table && s.Filter.Matches(change) {
			c.handler(change)
			return
		}
	}
}

func (c *fakeChannel) drop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
	c.closed = true
	close(c.done)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Done() <-chan struct{} { return c.done }

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func change(t *testing.T, table string, typ feed.ChangeType, record interface{}) feed.Change {
	t.Helper()
	c := feed.Change{Table: table, Type: typ, CommitTimestamp: time.Now()}
	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if typ == feed.Delete {
		c.OldRecord = raw
	} else {
		c.Record = raw
	}
	return c
}
