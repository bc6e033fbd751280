// Package storage provides the session, lock and document stores used by
// the suggestion service.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
)

// MemorySessions keeps sessions in process memory. Sessions idle for
// longer than ttl are removed by a periodic sweep.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]*suggestions.Session
	ttl      time.Duration
	cron     *cron.Cron
	logger   *errors.Logger
}

// NewMemorySessions creates an in-memory session store. A zero ttl keeps
// sessions until they are deleted.
func NewMemorySessions(ttl time.Duration, logger *errors.Logger) *MemorySessions {
	return &MemorySessions{
		sessions: make(map[string]*suggestions.Session),
		ttl:      ttl,
		logger:   logger,
	}
}

// StartSweeper schedules expiry sweeps every interval.
func (m *MemorySessions) StartSweeper(interval time.Duration) error {
	if m.ttl <= 0 || interval <= 0 {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() {
		if n := m.Sweep(time.Now()); n > 0 {
			m.logger.Debug("Expired idle sessions", "count", n, "remaining", m.Len())
		}
	}); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid session sweep interval", err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Sweep removes sessions whose last update is older than the ttl and
// returns how many were removed.
func (m *MemorySessions) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper.
func (m *MemorySessions) Close() error {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	return nil
}

func (m *MemorySessions) Create(_ context.Context, s *suggestions.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return errors.NewConflictError(errors.ErrCodeInvalidRequest, "session already exists", nil).WithContext("session_id", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemorySessions) Get(_ context.Context, id string) (*suggestions.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, suggestions.ErrSessionNotFound(id)
	}
	return s.Clone(), nil
}

func (m *MemorySessions) Update(_ context.Context, id string, fn func(*suggestions.Session) error) (*suggestions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[id]
	if !ok {
		return nil, suggestions.ErrSessionNotFound(id)
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.sessions[id] = working
	return working.Clone(), nil
}

func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return suggestions.ErrSessionNotFound(id)
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *MemorySessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// MemoryLocks is a process-local Locker.
type MemoryLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocks() *MemoryLocks {
	return &MemoryLocks{held: make(map[string]struct{})}
}

func (l *MemoryLocks) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, suggestions.ErrInFlight(key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// MemoryDocuments is a DocumentRepository for development and tests.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]document.Document
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]document.Document)}
}

func (m *MemoryDocuments) SaveDocument(_ context.Context, doc document.Document) (document.Document, error) {
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.docs[doc.ID] = doc
	m.mu.Unlock()
	return doc.Clone(), nil
}

func (m *MemoryDocuments) LoadDocument(_ context.Context, id string) (document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, suggestions.ErrDocumentNotFound(id)
	}
	return doc.Clone(), nil
}
