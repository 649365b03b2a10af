package errors

import (
	"errors"
	"fmt"
	"net/http"

	"remo-voting/internal/domain"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeExternal       ErrorType = "external"

	ErrorTypePollNotOpen         ErrorType = "poll_not_open"
	ErrorTypeNotEligible         ErrorType = "not_eligible"
	ErrorTypeDuplicateVote       ErrorType = "duplicate_vote"
	ErrorTypeIncompleteSelection ErrorType = "incomplete_selection"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Expected reports whether the error is a user-facing outcome rather than a fault.
func (e *AppError) Expected() bool {
	return e.StatusCode < http.StatusInternalServerError
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
	}
}

func newDomainError(t ErrorType, status int, err error) *AppError {
	return &AppError{Type: t, Message: err.Error(), StatusCode: status, Internal: err}
}

// FromDomain maps service errors onto the HTTP taxonomy. Anything it does
// not recognise becomes an internal error with a generic message.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newDomainError(ErrorTypeNotFound, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrPollNotOpen):
		return newDomainError(ErrorTypePollNotOpen, http.StatusConflict, err)
	case errors.Is(err, domain.ErrDuplicateVote):
		return newDomainError(ErrorTypeDuplicateVote, http.StatusConflict, err)
	case errors.Is(err, domain.ErrNotEligible):
		return newDomainError(ErrorTypeNotEligible, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrIncompleteSelection):
		return newDomainError(ErrorTypeIncompleteSelection, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrPollStarted):
		return newDomainError(ErrorTypeConflict, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidPoll), errors.Is(err, domain.ErrInvalidInput):
		return newDomainError(ErrorTypeValidation, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrCommentsDisabled), errors.Is(err, domain.ErrForbidden):
		return newDomainError(ErrorTypeAuthorization, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrUnauthenticated):
		return newDomainError(ErrorTypeAuthentication, http.StatusUnauthorized, err)
	}
	return NewInternalError("internal server error", err)
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Error struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
