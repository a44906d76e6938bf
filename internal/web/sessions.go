package web

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablekit/internal/notify"
	"github.com/JonMunkholm/tablekit/internal/schema"
	"github.com/JonMunkholm/tablekit/internal/table"
)

// Session is one mounted table owned by a browser tab or API client.
type Session struct {
	ID      uuid.UUID
	Table   string
	Engine  *table.Engine
	Notices *notify.Buffer
	Created time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen is when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// EngineFactory builds the engine for a new session.
type EngineFactory func(cfg schema.TableConfig, params map[string]string, n table.Notifier) (*table.Engine, error)

// Sessions holds live table sessions. Idle sessions are closed after ttl.
type Sessions struct {
	build  EngineFactory
	ttl    time.Duration
	max    int
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewSessions returns an empty store. max caps live sessions.
func NewSessions(build EngineFactory, ttl time.Duration, max int, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		build:    build,
		ttl:      ttl,
		max:      max,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create builds and registers a session for the named table. The table is
// not mounted; callers decide when the first fetch happens.
func (s *Sessions) Create(name string, params map[string]string) (*Session, error) {
	cfg, err := schema.Lookup(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	full := s.max > 0 && len(s.sessions) >= s.max
	s.mu.Unlock()
	if full {
		s.Sweep()
		s.mu.Lock()
		full = len(s.sessions) >= s.max
		s.mu.Unlock()
		if full {
			return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.max)
		}
	}

	notices := notify.NewBuffer(0)
	id := uuid.New()
	engine, err := s.build(cfg, params, notify.Multi{
		notices,
		notify.NewLogger(s.logger.With("session_id", id.String(), "table", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("build table %s: %w", name, err)
	}

	now := s.now()
	sess := &Session{
		ID:       id,
		Table:    name,
		Engine:   engine,
		Notices:  notices,
		Created:  now,
		lastSeen: now,
	}

	// Other creates may have filled the store while the engine was built.
	s.mu.Lock()
	if s.max > 0 && len(s.sessions) >= s.max {
		s.mu.Unlock()
		engine.Close()
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.max)
	}
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns a live session and marks it as used.
func (s *Sessions) Get(id string) (*Session, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	sess, ok := s.sessions[uid]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.touch(s.now())
	return sess, nil
}

// Delete closes and forgets a session.
func (s *Sessions) Delete(id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	sess, ok := s.sessions[uid]
	delete(s.sessions, uid)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.Engine.Close()
	return nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// List returns live sessions, oldest first.
func (s *Sessions) List() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Sweep closes sessions idle for longer than ttl and returns how many.
func (s *Sessions) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Engine.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("expired table sessions", "count", len(expired), "remaining", s.Len())
	}
	return len(expired)
}

// Run sweeps every interval until ctx ends, then closes every session.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.Engine.Close()
	}
}
