package suggestions

import (
	"context"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
)

// SessionStore persists sessions between requests. Update runs fn against
// the current session and stores the result atomically; fn's error aborts
// the update and is returned unchanged.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// Locker guards the single in-flight suggestion request per document.
// TryLock fails fast with a REQUEST_IN_FLIGHT error when key is held.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// DocumentRepository is the persistence boundary for saved documents.
type DocumentRepository interface {
	SaveDocument(ctx context.Context, doc document.Document) (document.Document, error)
	LoadDocument(ctx context.Context, id string) (document.Document, error)
}

// ErrInFlight builds the error returned when a request is already running.
func ErrInFlight(key string) *errors.AppError {
	return errors.NewConflictError(errors.ErrCodeRequestInFlight, "a suggestion request is already in progress for this document", nil).
		WithContext("lock_key", key)
}

// ErrSessionNotFound builds the error returned for unknown sessions.
func ErrSessionNotFound(id string) *errors.AppError {
	return errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "session not found", nil).
		WithContext("session_id", id)
}

// ErrDocumentNotFound builds the error returned for unknown documents.
func ErrDocumentNotFound(id string) *errors.AppError {
	return errors.NewNotFoundError(errors.ErrCodeDocumentNotFound, "document not found", nil).
		WithContext("document_id", id)
}
