package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// 订阅的表
const (
	TableAppointments  = "appointments"
	TableMedications   = "medications"
	TableLabResults    = "lab_results"
	TableMoodLogs      = "mood_logs"
	TableNotifications = "notifications"
	TableAssignments   = "patient_doctor_assignments"
)

// Tables 聚合器关心的全部表
var Tables = []string{
	TableAppointments,
	TableMedications,
	TableLabResults,
	TableMoodLogs,
	TableNotifications,
	TableAssignments,
}

// ChangeType 行变更类型
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// Change 一条行变更（与 Supabase realtime 的 postgres_changes 载荷同形）
type Change struct {
	Table           string          `json:"table"`
	Type            ChangeType      `json:"type"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// Filter 等值过滤 column=eq.value，零值表示不过滤
type Filter struct {
	Column string
	Value  string
}

// ParseFilter 解析 "user_id=eq.<id>"
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, nil
	}
	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("invalid filter %q", s)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return Filter{}, fmt.Errorf("unsupported filter operator in %q", s)
	}
	return Filter{Column: column, Value: value}, nil
}

// UserFilter user_id=eq.<userID>
func UserFilter(userID string) Filter {
	return Filter{Column: "user_id", Value: userID}
}

func (f Filter) IsZero() bool { return f.Column == "" }

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// Matches 判断变更是否满足过滤条件。
// DELETE 的 old_record 缺少过滤列时放行（默认 replica identity 只带主键）。
func (f Filter) Matches(c Change) bool {
	if f.IsZero() {
		return true
	}
	row := c.Record
	if c.Type == Delete {
		row = c.OldRecord
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	raw, ok := fields[f.Column]
	if !ok {
		return c.Type == Delete
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Subscription 一张表 + 过滤条件
type Subscription struct {
	Table  string
	Filter Filter
}

// Handler 变更回调，同一 Channel 内由单个 goroutine 顺序调用
type Handler func(Change)

// Channel 一次订阅的句柄
type Channel interface {
	// Done 连接断开或 Close 后关闭
	Done() <-chan struct{}
	// Err 断开原因，Close 主动关闭时为 nil
	Err() error
	Close() error
}

// Feed 变更流
type Feed interface {
	// Subscribe 建立订阅，返回前确认订阅已生效
	Subscribe(ctx context.Context, name string, subs []Subscription, h Handler) (Channel, error)
}

// router 把变更分发给匹配的订阅（每条变更最多回调一次）
type router struct {
	subs    []Subscription
	handler Handler
}

func (r router) dispatch(c Change) bool {
	for _, s := range r.subs {
		if s.Table == c.Table && s.Filter.Matches(c) {
			r.handler(c)
			return true
		}
	}
	return false
}

// tables 去重后的表名，保持顺序
func tablesOf(subs []Subscription) []string {
	seen := make(map[string]bool, len(subs))
	var out []string
	for _, s := range subs {
		if !seen[s.Table] {
			seen[s.Table] = true
			out = append(out, s.Table)
		}
	}
	return out
}

// channelState Channel 的公共部分：done/err 只设置一次
type channelState struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newChannelState() *channelState {
	return &channelState{done: make(chan struct{})}
}

func (c *channelState) Done() <-chan struct{} { return c.done }

func (c *channelState) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// finish 记录原因并关闭 done，只有第一次调用生效
func (c *channelState) finish(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}
