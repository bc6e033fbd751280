package server

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
)

// CreateSessionRequest starts a session from an inline document or from a
// saved document ID. Exactly one of the two must be set.
type CreateSessionRequest struct {
	DocumentID string             `json:"documentId" validate:"omitempty,max=128"`
	Document   *document.Document `json:"document" validate:"required_without=DocumentID,excluded_with=DocumentID"`
}

// UpdateDocumentRequest replaces the document of a session
type UpdateDocumentRequest struct {
	Document *document.Document `json:"document" validate:"required"`
}

// SuggestionsRequest limits a suggestion run to some sections. Empty means
// the configured default.
type SuggestionsRequest struct {
	Sections []string `json:"sections" validate:"omitempty,max=8,dive,cvsection"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// newValidator returns a validator that reports JSON field names and knows
// the cvsection tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cvsection", func(fl validator.FieldLevel) bool {
		_, err := document.ParseSection(fl.Field().String())
		return err == nil
	})
	return v
}

// validateRequest runs struct validation and converts failures into a
// validation AppError naming the first offending field.
func (s *Server) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid request: %s failed %s", ve.Field(), ve.Tag()), err)
	}
	return errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid request", err)
}
