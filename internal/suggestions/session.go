package suggestions

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

// State is the lifecycle position of a suggestion within a session.
type State string

const (
	StatePending   State = "pending"
	StateApplied   State = "applied"
	StateDismissed State = "dismissed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateDismissed
}

// Status describes the suggestion request of a session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Entry is a suggestion tracked by a session.
type Entry struct {
	ID         string           `json:"id"`
	Suggestion types.Suggestion `json:"suggestion"`
	State      State            `json:"state"`
	// Resolved is set once an accepted suggestion's path was found in the
	// document.
	Resolved bool `json:"resolved,omitempty"`
}

// Session is the editing state container for one document. All suggestion
// state lives here and is addressed by session ID.
type Session struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId,omitempty"`
	Document   document.Document `json:"document"`
	Entries    []Entry           `json:"entries"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts,omitempty"`
	Dropped    int               `json:"dropped,omitempty"`
	// LastError holds only the user-facing message of the last failure.
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession starts a session editing doc.
func NewSession(doc document.Document) *Session {
	now := time.Now().UTC()
	doc = doc.Clone()
	doc.AssignTempIDs()
	return &Session{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Document:   doc,
		Entries:    []Entry{},
		Status:     StatusIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	out := *s
	out.Document = s.Document.Clone()
	out.Entries = slices.Clone(s.Entries)
	return &out
}

// Pending returns the entries still awaiting a decision, in arrival order.
func (s *Session) Pending() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.State == StatePending {
			out = append(out, e)
		}
	}
	return out
}

// Counts tallies entries by state.
func (s *Session) Counts() map[State]int {
	counts := map[State]int{StatePending: 0, StateApplied: 0, StateDismissed: 0}
	for _, e := range s.Entries {
		counts[e.State]++
	}
	return counts
}

// BeginRequest marks a suggestion request as in flight.
func (s *Session) BeginRequest() {
	s.Status = StatusLoading
	s.LastError = ""
	s.touch()
}

// ReceiveSuggestions replaces the entries with a fresh pending set.
func (s *Session) ReceiveSuggestions(list []types.Suggestion, attempts, dropped int) {
	entries := make([]Entry, 0, len(list))
	for _, sug := range list {
		entries = append(entries, Entry{ID: uuid.NewString(), Suggestion: sug, State: StatePending})
	}
	s.Entries = entries
	s.Status = StatusReady
	s.Attempts = attempts
	s.Dropped = dropped
	s.LastError = ""
	s.touch()
}

// FailRequest records a terminal request failure. Existing entries are kept.
func (s *Session) FailRequest(userMessage string, attempts int) {
	s.Status = StatusFailed
	s.Attempts = attempts
	s.LastError = userMessage
	s.touch()
}

// ReplaceDocument records a manual edit.
func (s *Session) ReplaceDocument(doc document.Document) {
	doc = doc.Clone()
	doc.AssignTempIDs()
	if doc.ID == "" {
		doc.ID = s.DocumentID
	}
	s.Document = doc
	s.touch()
}

// Transition describes the effect of Accept or Reject.
type Transition struct {
	EntryID string `json:"entryId"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	// Changed is false when the entry was already terminal.
	Changed bool `json:"changed"`
	// PathResolved is false when an accepted suggestion's section did not
	// address a text field; the document is then left as it was.
	PathResolved bool `json:"pathResolved"`
}

// Accept applies the suggestion's text to the document and marks it
// applied. Accepting a terminal entry is a no-op.
func (s *Session) Accept(id string) (Transition, error) {
	idx, err := s.find(id)
	if err != nil {
		return Transition{}, err
	}
	e := &s.Entries[idx]
	if e.State.Terminal() {
		return Transition{EntryID: id, From: e.State, To: e.State, PathResolved: e.Resolved}, nil
	}

	doc, ok := s.Document.ApplyString(e.Suggestion.Section, e.Suggestion.SuggestedText)
	if ok {
		s.Document = doc
	}
	e.State = StateApplied
	e.Resolved = ok
	s.touch()
	return Transition{EntryID: id, From: StatePending, To: StateApplied, Changed: true, PathResolved: ok}, nil
}

// Reject dismisses the suggestion without touching the document.
func (s *Session) Reject(id string) (Transition, error) {
	idx, err := s.find(id)
	if err != nil {
		return Transition{}, err
	}
	e := &s.Entries[idx]
	if e.State.Terminal() {
		return Transition{EntryID: id, From: e.State, To: e.State, PathResolved: e.Resolved}, nil
	}
	e.State = StateDismissed
	s.touch()
	return Transition{EntryID: id, From: StatePending, To: StateDismissed, Changed: true}, nil
}

func (s *Session) find(id string) (int, error) {
	idx := slices.IndexFunc(s.Entries, func(e Entry) bool { return e.ID == id })
	if idx < 0 {
		return -1, errors.NewNotFoundError(errors.ErrCodeSuggestionNotFound, "suggestion not found", nil).
			WithContext("suggestion_id", id)
	}
	return idx, nil
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
