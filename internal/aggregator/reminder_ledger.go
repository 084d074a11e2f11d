package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReminderLedger 按用户、按天保存“已服药”标记，会话关闭、进程重启后可恢复。
// 当天的标记在本地时区午夜过期。
type ReminderLedger struct {
	kv     KVStore
	logger *zap.Logger
}

func NewReminderLedger(kv KVStore, logger *zap.Logger) *ReminderLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderLedger{kv: kv, logger: logger}
}

// ReminderLedgerKey medease:reminders:<user_id>:<yyyy-mm-dd>
func ReminderLedgerKey(userID string, day time.Time) string {
	return fmt.Sprintf("medease:reminders:%s:%s", userID, day.Format("2006-01-02"))
}

type takenMark struct {
	MedicationID string    `json:"medication_id"`
	At           time.Time `json:"at"`
}

func (l *ReminderLedger) read(ctx context.Context, key string) ([]takenMark, error) {
	raw, err := l.kv.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var marks []takenMark
	if err := json.Unmarshal([]byte(raw), &marks); err != nil {
		l.logger.Warn("Ignoring unreadable reminder ledger", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return marks, nil
}

// load now 所在日期的标记
func (l *ReminderLedger) load(ctx context.Context, userID string, now time.Time, loc *time.Location) (map[reminderKey]bool, error) {
	marks, err := l.read(ctx, ReminderLedgerKey(userID, now.In(loc)))
	if err != nil {
		return nil, fmt.Errorf("failed to load reminder ledger: %w", err)
	}
	out := make(map[reminderKey]bool, len(marks))
	for _, m := range marks {
		out[reminderKey{medicationID: m.MedicationID, at: m.At.Unix()}] = true
	}
	return out, nil
}

// add 读-合并-写，其他实例写入的标记不会被覆盖
func (l *ReminderLedger) add(ctx context.Context, userID, medicationID string, at, now time.Time, loc *time.Location) error {
	local := now.In(loc)
	key := ReminderLedgerKey(userID, local)
	marks, err := l.read(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load reminder ledger: %w", err)
	}
	for _, m := range marks {
		if m.MedicationID == medicationID && m.At.Equal(at) {
			return nil
		}
	}
	marks = append(marks, takenMark{MedicationID: medicationID, At: at.UTC()})

	raw, err := json.Marshal(marks)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder ledger: %w", err)
	}
	if err := l.kv.Set(ctx, key, string(raw), untilMidnight(local, loc)); err != nil {
		return fmt.Errorf("failed to save reminder ledger: %w", err)
	}
	return nil
}

func untilMidnight(local time.Time, loc *time.Location) time.Duration {
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	if d := next.Sub(local); d > 0 {
		return d
	}
	return time.Minute
}
