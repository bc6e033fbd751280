package suggestions

import (
	"context"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
)

// Service coordinates sessions, the in-flight guard, the fetcher and the
// document repository.
type Service struct {
	sessions        SessionStore
	locks           Locker
	documents       DocumentRepository
	fetcher         *Fetcher
	defaultSections []document.Section
	logger          *errors.Logger
}

// ServiceConfig holds the collaborators of a Service. Documents may be nil
// when persistence is not configured.
type ServiceConfig struct {
	Sessions        SessionStore
	Locks           Locker
	Documents       DocumentRepository
	Fetcher         *Fetcher
	DefaultSections []document.Section
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, logger *errors.Logger) *Service {
	return &Service{
		sessions:        cfg.Sessions,
		locks:           cfg.Locks,
		documents:       cfg.Documents,
		fetcher:         cfg.Fetcher,
		defaultSections: cfg.DefaultSections,
		logger:          logger,
	}
}

// CreateSession starts editing doc.
func (s *Service) CreateSession(ctx context.Context, doc document.Document) (*Session, error) {
	sess := NewSession(doc)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("Session created", "session_id", sess.ID, "document_id", sess.DocumentID)
	return sess, nil
}

// OpenDocument loads a saved document into a new session.
func (s *Service) OpenDocument(ctx context.Context, documentID string) (*Session, error) {
	doc, err := s.LoadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.CreateSession(ctx, doc)
}

// GetSession returns the session with id.
func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.sessions.Get(ctx, id)
}

// DeleteSession discards a session and its suggestions.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.sessions.Delete(ctx, id)
}

// UpdateDocument replaces the document being edited.
func (s *Service) UpdateDocument(ctx context.Context, id string, doc document.Document) (*Session, error) {
	return s.sessions.Update(ctx, id, func(sess *Session) error {
		sess.ReplaceDocument(doc)
		return nil
	})
}

// RequestSuggestions fetches suggestions for the session's current
// document. Only one request per session may run at a time.
// On failure the session is marked failed and the returned Result still
// carries the attempt count.
func (s *Service) RequestSuggestions(ctx context.Context, id string, sections []document.Section) (*Session, *Result, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	log := s.logger.With("session_id", id)

	unlock, err := s.locks.TryLock(ctx, lockKey(sess))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	if len(sections) == 0 {
		sections = s.defaultSections
	}

	var snapshot document.Document
	sess, err = s.sessions.Update(ctx, id, func(sess *Session) error {
		snapshot = sess.Document.Clone()
		if BuildRequest(snapshot, sections...).IsEmpty() {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest, "the document has no content to evaluate", nil)
		}
		sess.BeginRequest()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	result, fetchErr := s.fetcher.Fetch(ctx, BuildRequest(snapshot, sections...))

	// Record the outcome even if the caller has gone away.
	writeCtx := context.WithoutCancel(ctx)
	if fetchErr != nil {
		log.LogError(fetchErr, "Suggestion request failed")
		updated, err := s.sessions.Update(writeCtx, id, func(sess *Session) error {
			sess.FailRequest(errors.UserMessage(fetchErr), result.Attempts)
			return nil
		})
		if err != nil {
			log.LogError(err, "Failed to record suggestion failure")
			return sess, result, fetchErr
		}
		return updated, result, fetchErr
	}

	updated, err := s.sessions.Update(writeCtx, id, func(sess *Session) error {
		sess.ReceiveSuggestions(result.Suggestions, result.Attempts, result.Dropped)
		return nil
	})
	if err != nil {
		return nil, result, err
	}
	log.Info("Suggestions received",
		"count", len(result.Suggestions),
		"dropped", result.Dropped,
		"attempts", result.Attempts)
	return updated, result, nil
}

// Accept applies a pending suggestion.
func (s *Service) Accept(ctx context.Context, id, suggestionID string) (*Session, Transition, error) {
	return s.transition(ctx, id, suggestionID, (*Session).Accept)
}

// Reject dismisses a pending suggestion.
func (s *Service) Reject(ctx context.Context, id, suggestionID string) (*Session, Transition, error) {
	return s.transition(ctx, id, suggestionID, (*Session).Reject)
}

func (s *Service) transition(ctx context.Context, id, suggestionID string, fn func(*Session, string) (Transition, error)) (*Session, Transition, error) {
	var t Transition
	sess, err := s.sessions.Update(ctx, id, func(sess *Session) error {
		var err error
		t, err = fn(sess, suggestionID)
		return err
	})
	if err != nil {
		return nil, Transition{}, err
	}
	if t.Changed && t.To == StateApplied && !t.PathResolved {
		s.logger.Debug("Accepted suggestion did not resolve to a field", "session_id", id, "suggestion_id", suggestionID)
	}
	return sess, t, nil
}

// Save persists the session's document and records the assigned ID.
func (s *Service) Save(ctx context.Context, id string) (*Session, error) {
	if s.documents == nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "document storage is not configured", nil)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := sess.Document.Clone()
	doc.StripTempIDs()
	saved, err := s.documents.SaveDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	updated, err := s.sessions.Update(ctx, id, func(sess *Session) error {
		sess.DocumentID = saved.ID
		sess.Document.ID = saved.ID
		sess.touch()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Document saved", "session_id", id, "document_id", saved.ID)
	return updated, nil
}

// LoadDocument returns a saved document.
func (s *Service) LoadDocument(ctx context.Context, documentID string) (document.Document, error) {
	if s.documents == nil {
		return document.Document{}, errors.NewConfigError(errors.ErrCodeInvalidConfig, "document storage is not configured", nil)
	}
	return s.documents.LoadDocument(ctx, documentID)
}

// Fetcher exposes the underlying fetcher.
func (s *Service) Fetcher() *Fetcher {
	return s.fetcher
}

// lockKey is stable for the life of a session; saving assigns a document
// ID mid-session and must not open a second slot.
func lockKey(sess *Session) string {
	return "suggest:" + sess.ID
}
