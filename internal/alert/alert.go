package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Kind 告警来源
type Kind string

const (
	KindNotification Kind = "notification"
	KindCriticalLab  Kind = "critical_lab"
)

// Alert 需要立即提醒用户的事件
type Alert struct {
	UserID       string    `json:"user_id"`
	Kind         Kind      `json:"kind"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Severity     string    `json:"severity"` // high / error / critical
	ResourceKind string    `json:"resource_kind"`
	ResourceID   string    `json:"resource_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sink 告警投递
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// SinkFunc 函数适配
type SinkFunc func(ctx context.Context, a Alert) error

func (f SinkFunc) Send(ctx context.Context, a Alert) error { return f(ctx, a) }

// LogSink 仅写日志
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, a Alert) error {
	s.logger.Warn("Health alert",
		zap.String("user_id", a.UserID),
		zap.String("kind", string(a.Kind)),
		zap.String("severity", a.Severity),
		zap.String("resource_kind", a.ResourceKind),
		zap.String("resource_id", a.ResourceID),
		zap.String("title", a.Title),
	)
	return nil
}

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 以 JSON 发布到 <prefix>/<user_id>
type MQTTSink struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
}

func NewMQTTSink(publisher Publisher, topicPrefix string, qos byte) *MQTTSink {
	return &MQTTSink{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
	}
}

// Topic 用户的告警主题
func (s *MQTTSink) Topic(userID string) string {
	return s.topicPrefix + "/" + userID
}

func (s *MQTTSink) Send(_ context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return s.publisher.Publish(s.Topic(a.UserID), s.qos, false, payload)
}

// MultiSink 依次投递到所有 sink，某个失败不影响其余
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
