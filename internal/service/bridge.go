package service

import (
	"context"
	"fmt"

	"medease-realtime/internal/aggregator"
	"medease-realtime/internal/realtime"

	"go.uber.org/zap"
)

// 客户端指令
const (
	ActionRefresh   = "refresh"
	ActionReconnect = "reconnect"
)

// SessionBridge 把聚合会话的更新转发到 websocket hub
type SessionBridge struct {
	registry *aggregator.Registry
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewSessionBridge 注册 OnSession 钩子，之后创建的会话自动推送
func NewSessionBridge(registry *aggregator.Registry, hub *realtime.Hub, logger *zap.Logger) *SessionBridge {
	b := &SessionBridge{registry: registry, hub: hub, logger: logger}
	registry.OnSession(b.bind)
	return b
}

func (b *SessionBridge) bind(s *aggregator.Session) {
	s.OnUpdate(func(u aggregator.Update) {
		ev, err := EventFor(u)
		if err != nil {
			b.logger.Warn("Failed to encode session update",
				zap.String("user_id", u.UserID),
				zap.String("kind", string(u.Kind)),
				zap.Error(err),
			)
			return
		}
		b.hub.Broadcast(u.UserID, ev)
	})
}

// EventFor 会话更新 → websocket 事件
func EventFor(u aggregator.Update) (realtime.Event, error) {
	switch u.Kind {
	case aggregator.UpdateSnapshot:
		return realtime.NewEvent(realtime.EventSnapshot, u.UserID, u.Snapshot)
	case aggregator.UpdateStatus:
		return realtime.NewEvent(realtime.EventStatus, u.UserID, u.Status)
	case aggregator.UpdateAlert:
		return realtime.NewEvent(realtime.EventAlert, u.UserID, u.Alert)
	default:
		return realtime.Event{}, fmt.Errorf("unknown update kind %q", u.Kind)
	}
}

// Attach 连接建立：先推当前快照与连接状态
func (b *SessionBridge) Attach(ctx context.Context, userID string) ([]realtime.Event, func(), error) {
	s, release, err := b.registry.Acquire(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	snap := s.Snapshot()
	status := s.Status()
	events := make([]realtime.Event, 0, 2)
	for _, u := range []aggregator.Update{
		{Kind: aggregator.UpdateSnapshot, UserID: userID, Snapshot: &snap},
		{Kind: aggregator.UpdateStatus, UserID: userID, Status: &status},
	} {
		ev, err := EventFor(u)
		if err != nil {
			release()
			return nil, nil, err
		}
		events = append(events, ev)
	}
	return events, release, nil
}

// Command 只作用于已存在的会话（连接持有引用）
func (b *SessionBridge) Command(ctx context.Context, userID, action string) error {
	s, ok := b.registry.Get(userID)
	if !ok {
		return aggregator.ErrSessionClosed
	}
	switch action {
	case ActionRefresh:
		return s.Refresh(ctx)
	case ActionReconnect:
		return s.Reconnect()
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
