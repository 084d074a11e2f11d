package service

import (
	"context"
	"sync"

	"medease-realtime/internal/feed"
	"medease-realtime/internal/models"
	"medease-realtime/internal/repository"
)

// memStore 只实现读接口，写接口在这些测试中不会被调用
type memStore struct {
	repository.Store

	mu            sync.Mutex
	notifications []models.Notification
}

func (s *memStore) ListAppointments(ctx context.Context, userID string) ([]models.Appointment, error) {
	return nil, nil
}

func (s *memStore) ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error) {
	return nil, nil
}

func (s *memStore) ListLabResults(ctx context.Context, userID string) ([]models.LabResult, error) {
	return nil, nil
}

func (s *memStore) ListMoodLogs(ctx context.Context, userID string, limit int) ([]models.MoodLog, error) {
	return nil, nil
}

func (s *memStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...), nil
}

func (s *memStore) ListAssignments(ctx context.Context, userID string) ([]models.PatientAssignment, error) {
	return nil, nil
}

func (s *memStore) setNotifications(list []models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = list
}

// idleFeed 订阅成功但从不投递
type idleFeed struct{}

type idleChannel struct {
	once sync.Once
	done chan struct{}
}

func (idleFeed) Subscribe(ctx context.Context, name string, subs []feed.Subscription, h feed.Handler) (feed.Channel, error) {
	return &idleChannel{done: make(chan struct{})}, nil
}

func (c *idleChannel) Done() <-chan struct{} { return c.done }
func (c *idleChannel) Err() error            { return nil }
func (c *idleChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
