package services

import (
	"errors"
	"fmt"

	apperrors "github.com/openlms/quiz-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")

	// Not-found errors
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptNotFound  = errors.New("attempt not found")

	// Availability errors (on start)
	ErrQuizNotPublished    = errors.New("quiz is not published")
	ErrQuizNotYetAvailable = errors.New("quiz is not yet available")
	ErrQuizClosed          = errors.New("quiz due date has passed")

	// Eligibility errors
	ErrNotEnrolled       = errors.New("student is not enrolled in the course")
	ErrAttemptsExhausted = errors.New("maximum attempts reached")

	// Attempt lifecycle errors
	ErrAlreadySubmitted  = errors.New("attempt already submitted")
	ErrTimeLimitExceeded = errors.New("attempt time limit exceeded")

	// Result visibility
	ErrResultsNotVisible = errors.New("results are not visible yet")

	// Catalog errors
	ErrQuizNotEditable = errors.New("published quiz with attempts cannot be edited")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// ===== ERROR CLASSIFIERS =====

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}

// IsForbidden checks if error represents a permission failure
func IsForbidden(err error) bool {
	if errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotEnrolled) ||
		errors.Is(err, ErrResultsNotVisible) {
		return true
	}
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsUnavailable checks if error represents a quiz outside its taking window
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrQuizNotPublished) ||
		errors.Is(err, ErrQuizNotYetAvailable) ||
		errors.Is(err, ErrQuizClosed) ||
		errors.Is(err, ErrTimeLimitExceeded)
}

// IsConflict checks if error represents a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrAttemptsExhausted) ||
		errors.Is(err, ErrQuizNotEditable)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// ErrorCode returns the machine-readable code surfaced to HTTP clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrAttemptNotFound):
		return "not_found"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrResultsNotVisible):
		return "results_not_yet_visible"
	case errors.Is(err, ErrQuizNotPublished), errors.Is(err, ErrQuizNotYetAvailable), errors.Is(err, ErrQuizClosed):
		return "unavailable"
	case errors.Is(err, ErrAttemptsExhausted):
		return "attempts_exhausted"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrTimeLimitExceeded):
		return "time_limit_exceeded"
	case IsForbidden(err):
		return "forbidden"
	case IsValidation(err):
		return "validation_failed"
	case IsConflict(err):
		return "conflict"
	default:
		return "internal_error"
	}
}
