package suggestions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

type mapSessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func (m *mapSessions) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *mapSessions) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound(id)
	}
	return s.Clone(), nil
}

func (m *mapSessions) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound(id)
	}
	next := s.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *mapSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type keyLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *keyLocks) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrInFlight(key)
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type mapDocuments struct {
	mu   sync.Mutex
	docs map[string]document.Document
}

func (m *mapDocuments) SaveDocument(_ context.Context, doc document.Document) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.docs[doc.ID] = doc.Clone()
	return doc, nil
}

func (m *mapDocuments) LoadDocument(_ context.Context, id string) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, ErrDocumentNotFound(id)
	}
	return doc.Clone(), nil
}

func newTestService(gen Generator) *Service {
	return NewService(ServiceConfig{
		Sessions:  &mapSessions{sessions: map[string]*Session{}},
		Locks:     &keyLocks{held: map[string]bool{}},
		Documents: &mapDocuments{docs: map[string]document.Document{}},
		Fetcher:   NewFetcher(gen, 0, testLogger()),
	}, testLogger())
}

func TestService_SaveDoesNotReleaseInFlightGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	gen := GeneratorFunc(func(ctx context.Context, _ types.SuggestionRequest) (types.Completion, error) {
		defer calls.Done()
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return types.Completion{}, ctx.Err()
		}
		return types.Completion{Text: `{"suggestions": [` + suggestionA + `]}`}, nil
	})
	svc := newTestService(gen)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, document.Document{About: "Engineer"})
	require.NoError(t, err)
	assert.Empty(t, sess.DocumentID)

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.RequestSuggestions(ctx, sess.ID, nil)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the generator")
	}

	saved, err := svc.Save(ctx, sess.ID)
	require.NoError(t, err)
	require.NotEmpty(t, saved.DocumentID)

	_, _, err = svc.RequestSuggestions(ctx, sess.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRequestInFlight))

	close(release)
	require.NoError(t, <-done)
	calls.Wait()

	updated, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, updated.Status)
	assert.Equal(t, saved.DocumentID, updated.DocumentID)
	assert.Len(t, updated.Pending(), 1)
}

func TestService_RequestSuggestionsAfterCompletion(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{"suggestions": [` + suggestionA + `]}`}}
	svc := newTestService(gen)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, document.Document{About: "Engineer"})
	require.NoError(t, err)

	for range 2 {
		_, result, err := svc.RequestSuggestions(ctx, sess.ID, nil)
		require.NoError(t, err)
		assert.Len(t, result.Suggestions, 1)
	}
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestService_RequestSuggestionsEmptyDocument(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{"suggestions": []}`}}
	svc := newTestService(gen)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, document.Document{})
	require.NoError(t, err)

	_, _, err = svc.RequestSuggestions(ctx, sess.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Zero(t, gen.calls.Load())
}
