package server

import (
	"context"
	"net/http"

	"cvcoach/internal/document"
	appErrors "cvcoach/internal/errors"
	"cvcoach/internal/observability"
	"cvcoach/internal/suggestions"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// SessionResponse is the API view of a session: the stored state plus the
// pending list and per-state counts clients render from.
type SessionResponse struct {
	*suggestions.Session
	Pending []suggestions.Entry       `json:"pending"`
	Counts  map[suggestions.State]int `json:"counts"`
}

// SuggestionsResponse is returned by a successful suggestion run
type SuggestionsResponse struct {
	Session  SessionResponse `json:"session"`
	Attempts int             `json:"attempts"`
	Dropped  int             `json:"dropped"`
}

// DecisionResponse is returned by accept and reject
type DecisionResponse struct {
	Session    SessionResponse        `json:"session"`
	Transition suggestions.Transition `json:"transition"`
}

func newSessionResponse(sess *suggestions.Session) SessionResponse {
	return SessionResponse{Session: sess, Pending: sess.Pending(), Counts: sess.Counts()}
}

// createSessionHandler starts a session from an inline or saved document
func (s *Server) createSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.create_session")
		defer span.End()

		var req CreateSessionRequest
		if err := s.decodeRequest(r, &req); err != nil {
			s.writeAppError(w, span, err)
			return
		}

		var (
			sess *suggestions.Session
			err  error
		)
		if req.DocumentID != "" {
			span.SetAttributes(attribute.String("document.id", req.DocumentID))
			sess, err = s.Suggestions.OpenDocument(ctx, req.DocumentID)
		} else {
			sess, err = s.Suggestions.CreateSession(ctx, *req.Document)
		}
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}

		span.SetAttributes(attribute.String("session.id", sess.ID))
		writeJSON(w, http.StatusCreated, newSessionResponse(sess))
	}
}

// getSessionHandler returns the current state of a session
func (s *Server) getSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.get_session")
		defer span.End()

		sess, err := s.Suggestions.GetSession(ctx, r.PathValue("id"))
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

// updateDocumentHandler records a manual edit of the session document
func (s *Server) updateDocumentHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.update_document")
		defer span.End()

		var req UpdateDocumentRequest
		if err := s.decodeRequest(r, &req); err != nil {
			s.writeAppError(w, span, err)
			return
		}

		sess, err := s.Suggestions.UpdateDocument(ctx, r.PathValue("id"), *req.Document)
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

// requestSuggestionsHandler runs the suggestion workflow for a session
func (s *Server) requestSuggestionsHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.request_suggestions")
		defer span.End()

		var req SuggestionsRequest
		if r.ContentLength != 0 {
			if err := s.decodeRequest(r, &req); err != nil {
				s.writeAppError(w, span, err)
				return
			}
		}

		sections, err := document.ParseSections(req.Sections)
		if err != nil {
			s.writeAppError(w, span, appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, err.Error(), err))
			return
		}

		id := r.PathValue("id")
		span.SetAttributes(attribute.String("session.id", id), attribute.Int("request.sections", len(sections)))

		sess, result, err := s.Suggestions.RequestSuggestions(ctx, id, sections)
		if result != nil {
			om.GetMetrics().RecordSuggestionRun(ctx, len(result.Suggestions), result.Dropped, result.Attempts, err, om)
			span.SetAttributes(
				attribute.Int("suggestions.attempts", result.Attempts),
				attribute.Int("suggestions.dropped", result.Dropped),
			)
		}
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}

		span.SetAttributes(attribute.Int("suggestions.count", len(result.Suggestions)))
		writeJSON(w, http.StatusOK, SuggestionsResponse{
			Session:  newSessionResponse(sess),
			Attempts: result.Attempts,
			Dropped:  result.Dropped,
		})
	}
}

// acceptHandler applies a pending suggestion to the session document
func (s *Server) acceptHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.decisionHandler(om, "api.accept_suggestion", observability.MetricSuggestionAccepted, s.Suggestions.Accept)
}

// rejectHandler dismisses a pending suggestion
func (s *Server) rejectHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.decisionHandler(om, "api.reject_suggestion", observability.MetricSuggestionRejected, s.Suggestions.Reject)
}

type decisionFunc func(ctx context.Context, id, suggestionID string) (*suggestions.Session, suggestions.Transition, error)

func (s *Server) decisionHandler(om *observability.ObservabilityManager, spanName, metricType string, decide decisionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), spanName)
		defer span.End()

		id, suggestionID := r.PathValue("id"), r.PathValue("sid")
		span.SetAttributes(attribute.String("session.id", id), attribute.String("suggestion.id", suggestionID))

		sess, t, err := decide(ctx, id, suggestionID)
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}

		if t.Changed {
			om.GetMetrics().RecordBusinessMetric(ctx, metricType, true, om,
				attribute.Bool("path_resolved", t.PathResolved))
		}
		span.SetAttributes(
			attribute.Bool("transition.changed", t.Changed),
			attribute.String("transition.to", string(t.To)),
		)
		writeJSON(w, http.StatusOK, DecisionResponse{Session: newSessionResponse(sess), Transition: t})
	}
}

// saveSessionHandler persists the session document
func (s *Server) saveSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.save_session")
		defer span.End()

		sess, err := s.Suggestions.Save(ctx, r.PathValue("id"))
		om.GetMetrics().RecordBusinessMetric(ctx, observability.MetricSessionSaved, err == nil, om)
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}

		span.SetAttributes(attribute.String("document.id", sess.DocumentID))
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

// deleteSessionHandler discards a session
func (s *Server) deleteSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.delete_session")
		defer span.End()

		if err := s.Suggestions.DeleteSession(ctx, r.PathValue("id")); err != nil {
			s.writeAppError(w, span, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// getDocumentHandler returns a saved document
func (s *Server) getDocumentHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvcoach.api").Start(r.Context(), "api.get_document")
		defer span.End()

		doc, err := s.Suggestions.LoadDocument(ctx, r.PathValue("id"))
		if err != nil {
			s.writeAppError(w, span, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// writeAppError logs the full error, records it on the span and writes only
// the user-facing message.
func (s *Server) writeAppError(w http.ResponseWriter, span oteltrace.Span, err error) {
	status := appErrors.HTTPStatus(err)
	span.RecordError(err)
	span.SetAttributes(attribute.Int("http.status_code", status))

	resp := ErrorResponse{Error: appErrors.UserMessage(err)}
	if appErr, ok := appErrors.As(err); ok {
		resp.Code = appErr.Code
		if appErr.Type == appErrors.ErrorTypeAI || appErr.Type == appErrors.ErrorTypeNetwork {
			resp.Message = "Please try again in a few moments."
		}
	}

	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, "Request failed", "status", status)
	} else {
		s.Logger.Debug("Request rejected", "status", status, "error", err.Error())
	}

	writeJSON(w, status, resp)
}

// createRateLimitMiddleware adds observability to rate limiting
func (s *Server) createRateLimitMiddleware(om *observability.ObservabilityManager) func(http.HandlerFunc) http.HandlerFunc {
	return s.rateLimitMiddleware(func(r *http.Request) {
		om.GetMetrics().RecordBusinessMetric(r.Context(), observability.MetricRateLimitHit, true, om,
			attribute.String("endpoint", r.URL.Path),
			attribute.String("method", r.Method))
	})
}
