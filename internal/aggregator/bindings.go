package aggregator

import (
	"encoding/json"
	"fmt"

	"medease-realtime/internal/alert"
	"medease-realtime/internal/feed"
	"medease-realtime/internal/models"
)

// tableBinding 一张表的订阅方式
type tableBinding struct {
	table    string
	filtered bool // 是否按 user_id 过滤
}

var bindings = []tableBinding{
	{table: feed.TableAppointments, filtered: true},
	{table: feed.TableMedications, filtered: true},
	{table: feed.TableLabResults, filtered: true},
	{table: feed.TableMoodLogs, filtered: true},
	{table: feed.TableNotifications, filtered: true},
	// 分配关系按 doctor_id / patient_id 关联，任何变更都整体重拉
	{table: feed.TableAssignments, filtered: false},
}

func subscriptionsFor(userID string) []feed.Subscription {
	subs := make([]feed.Subscription, 0, len(bindings))
	for _, b := range bindings {
		s := feed.Subscription{Table: b.table}
		if b.filtered {
			s.Filter = feed.UserFilter(userID)
		}
		subs = append(subs, s)
	}
	return subs
}

// effect 一条变更对快照的影响
type effect struct {
	changed            bool
	alerts             []alert.Alert
	refetchAssignments bool
}

type applied[T models.Record] struct {
	list []T
	rec  *T // insert/update 的新值
	prev *T // 被替换的旧值
}

// applyChange 按变更类型合并到列表
func applyChange[T models.Record](list []T, c feed.Change, limit int, normalize func(T) T) (applied[T], bool, error) {
	out := applied[T]{list: list}
	switch c.Type {
	case feed.Insert, feed.Update:
		var rec T
		if err := json.Unmarshal(c.Record, &rec); err != nil {
			return out, false, fmt.Errorf("failed to decode %s record: %w", c.Table, err)
		}
		if rec.RecordID() == "" {
			return out, false, fmt.Errorf("%s record without id", c.Table)
		}
		if normalize != nil {
			rec = normalize(rec)
		}
		out.rec = &rec
		if c.Type == feed.Insert {
			for i := range list {
				if list[i].RecordID() == rec.RecordID() {
					prev := list[i]
					out.prev = &prev
					break
				}
			}
			out.list = prependByID(list, rec, limit)
			return out, true, nil
		}
		var prev *T
		out.list, prev = replaceByID(list, rec)
		out.prev = prev
		return out, prev != nil, nil
	case feed.Delete:
		var key struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(c.OldRecord, &key); err != nil {
			return out, false, fmt.Errorf("failed to decode %s old record: %w", c.Table, err)
		}
		var removed bool
		out.list, removed = removeByID(list, key.ID)
		return out, removed, nil
	}
	return out, false, fmt.Errorf("unknown change type %q", c.Type)
}

// applyLocked 把变更应用到快照，调用方持有 s.mu
func (s *Session) applyLocked(c feed.Change) (effect, error) {
	var eff effect
	switch c.Table {
	case feed.TableAppointments:
		res, changed, err := applyChange(s.snap.Appointments, c, 0, nil)
		if err != nil {
			return eff, err
		}
		s.snap.Appointments, eff.changed = res.list, changed

	case feed.TableMedications:
		res, changed, err := applyChange(s.snap.Medications, c, 0, nil)
		if err != nil {
			return eff, err
		}
		s.snap.Medications, eff.changed = res.list, changed

	case feed.TableLabResults:
		res, changed, err := applyChange(s.snap.LabResults, c, 0, nil)
		if err != nil {
			return eff, err
		}
		s.snap.LabResults, eff.changed = res.list, changed
		if changed && res.rec != nil && enteredCritical(c.Type, res.rec, res.prev) {
			eff.alerts = append(eff.alerts, s.labAlert(*res.rec))
		}

	case feed.TableMoodLogs:
		res, changed, err := applyChange(s.snap.MoodLogs, c, s.opts.MoodLogLimit, nil)
		if err != nil {
			return eff, err
		}
		s.snap.MoodLogs, eff.changed = res.list, changed

	case feed.TableNotifications:
		res, changed, err := applyChange(s.snap.Notifications, c, s.opts.NotificationLimit, models.Notification.Normalize)
		if err != nil {
			return eff, err
		}
		s.snap.Notifications, eff.changed = res.list, changed
		// 重复投递的 insert 不再告警
		if c.Type == feed.Insert && res.prev == nil && urgent(*res.rec) {
			eff.alerts = append(eff.alerts, s.notificationAlert(*res.rec))
		}

	case feed.TableAssignments:
		eff.refetchAssignments = true

	default:
		return eff, fmt.Errorf("unexpected table %q", c.Table)
	}
	return eff, nil
}

// enteredCritical insert 即为 critical，或 update 由非 critical 变为 critical
func enteredCritical(t feed.ChangeType, rec, prev *models.LabResult) bool {
	if rec.Status != models.LabCritical {
		return false
	}
	if prev != nil && prev.Status == models.LabCritical {
		return false
	}
	switch t {
	case feed.Insert:
		return true
	case feed.Update:
		return prev != nil
	}
	return false
}

func urgent(n models.Notification) bool {
	return n.Priority == models.PriorityHigh || n.Type == models.NotificationError
}

func (s *Session) notificationAlert(n models.Notification) alert.Alert {
	severity := string(models.PriorityHigh)
	if n.Type == models.NotificationError {
		severity = string(models.NotificationError)
	}
	return alert.Alert{
		UserID:       s.userID,
		Kind:         alert.KindNotification,
		Title:        n.Title,
		Message:      n.Message,
		Severity:     severity,
		ResourceKind: feed.TableNotifications,
		ResourceID:   n.ID,
		CreatedAt:    s.opts.Now(),
	}
}

func (s *Session) labAlert(l models.LabResult) alert.Alert {
	return alert.Alert{
		UserID:       s.userID,
		Kind:         alert.KindCriticalLab,
		Title:        "Critical Lab Result",
		Message:      fmt.Sprintf("%s requires immediate attention", l.TestName),
		Severity:     string(models.LabCritical),
		ResourceKind: feed.TableLabResults,
		ResourceID:   l.ID,
		CreatedAt:    s.opts.Now(),
	}
}
