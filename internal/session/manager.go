package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/photoquest/internal/photoquest"
)

// Manager caches live sessions and restores them from the store on a
// cache miss.
type Manager struct {
	deps   Dependencies
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Dependencies, logger *slog.Logger) *Manager {
	return &Manager{
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts an empty session and persists it.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := newSession(uuid.NewString(), m.deps, m.logger)
	if m.deps.Store != nil {
		if err := m.deps.Store.Save(ctx, s.Snapshot()); err != nil {
			return nil, fmt.Errorf("saving session %s: %w", s.id, err)
		}
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", s.id)
	return s, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if m.deps.Store == nil {
		return nil, photoquest.ErrNotFound
	}

	snap, err := m.deps.Store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, photoquest.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	s = restore(snap, m.deps, m.logger)
	m.sessions[id] = s
	m.logger.Info("session restored", "session_id", id, "status", s.status)
	return s, nil
}

// Dispose drops the session from the cache and the store. Operations
// still in flight for it are discarded.
func (m *Manager) Dispose(ctx context.Context, id string) error {
	m.mu.Lock()
	s, cached := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if cached {
		s.dispose()
	}

	if m.deps.Store == nil {
		if !cached {
			return photoquest.ErrNotFound
		}
		return nil
	}
	err := m.deps.Store.Delete(ctx, id)
	if errors.Is(err, photoquest.ErrNotFound) && cached {
		return nil
	}
	return err
}

// Sweep evicts cached sessions that are idle since cutoff and reports
// how many were dropped. Their stored snapshots are left alone, so a
// later Get restores them unless the store purged them too.
func (m *Manager) Sweep(cutoff time.Time) int {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.dispose()
	}
	return len(idle)
}

// Len is the number of cached sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close forgets every cached session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.dispose()
		delete(m.sessions, id)
	}
	return nil
}
