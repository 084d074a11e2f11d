package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrRegistryClosed = errors.New("registry closed")

type entry struct {
	session *Session
	refs    int
	idle    *time.Timer
}

// Registry 按用户复用会话：引用计数归零后空闲 idleTimeout 再关闭
type Registry struct {
	deps        Deps
	opts        Options
	idleTimeout time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	sessions  map[string]*entry
	closed    bool
	onSession func(*Session)
}

func NewRegistry(deps Deps, opts Options, idleTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Registry{
		deps:        deps,
		opts:        opts,
		idleTimeout: idleTimeout,
		logger:      logger,
		sessions:    make(map[string]*entry),
	}
}

// OnSession 新会话 Start 之前回调（用于挂接推送）
func (r *Registry) OnSession(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSession = fn
}

// Acquire 获取（必要时创建并启动）用户会话，用完调用返回的 release
func (r *Registry) Acquire(ctx context.Context, userID string) (*Session, func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrRegistryClosed
	}
	if e, ok := r.sessions[userID]; ok {
		e.refs++
		if e.idle != nil {
			e.idle.Stop()
			e.idle = nil
		}
		r.mu.Unlock()
		return e.session, r.releaser(userID, e), nil
	}
	s := NewSession(userID, r.deps, r.opts)
	e := &entry{session: s, refs: 1}
	r.sessions[userID] = e
	hook := r.onSession
	r.mu.Unlock()

	if hook != nil {
		hook(s)
	}

	if err := s.Start(ctx); err != nil {
		r.mu.Lock()
		if r.sessions[userID] == e {
			delete(r.sessions, userID)
		}
		r.mu.Unlock()
		_ = s.Close()
		return nil, nil, err
	}
	return s, r.releaser(userID, e), nil
}

// Get 已存在的会话，不改变引用计数
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) releaser(userID string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(userID, e) })
	}
}

func (r *Registry) release(userID string, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs > 0 || r.closed || r.sessions[userID] != e {
		r.mu.Unlock()
		return
	}
	if r.idleTimeout > 0 {
		e.idle = time.AfterFunc(r.idleTimeout, func() { r.expire(userID, e) })
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	r.mu.Unlock()

	_ = e.session.Close()
}

func (r *Registry) expire(userID string, e *entry) {
	r.mu.Lock()
	if e.refs > 0 || r.sessions[userID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	r.mu.Unlock()

	r.logger.Debug("Closing idle session", zap.String("user_id", userID))
	_ = e.session.Close()
}

// Close 关闭全部会话
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for userID, e := range r.sessions {
		if e.idle != nil {
			e.idle.Stop()
		}
		sessions = append(sessions, e.session)
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = s.Close()
		}(s)
	}
	wg.Wait()
	return nil
}
