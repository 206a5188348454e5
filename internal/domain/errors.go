package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	// Common errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrValidation   ErrorCode = "VALIDATION_FAILED"

	// Content errors
	ErrExamNotFound      ErrorCode = "EXAM_NOT_FOUND"
	ErrSectionNotFound   ErrorCode = "SECTION_NOT_FOUND"
	ErrDuplicateExamCode ErrorCode = "DUPLICATE_EXAM_CODE"
	ErrSectionNotInExam  ErrorCode = "SECTION_NOT_IN_EXAM"
	ErrExamNotPublished  ErrorCode = "EXAM_NOT_PUBLISHED"

	// Attempt errors
	ErrAttemptNotFound   ErrorCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptSubmitted  ErrorCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrSectionLocked     ErrorCode = "SECTION_LOCKED"
	ErrEmptyAnswers      ErrorCode = "EMPTY_ANSWERS"
	ErrAttemptIncomplete ErrorCode = "ATTEMPT_INCOMPLETE"
	ErrNotAttemptOwner   ErrorCode = "NOT_ATTEMPT_OWNER"
	ErrConcurrentUpdate  ErrorCode = "CONCURRENT_UPDATE"

	// Upstream errors
	ErrGradingService ErrorCode = "GRADING_SERVICE_ERROR"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Err     error                  `json:"-"`
	Context map[string]interface{} `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements the json.Marshaler interface
func (e *DomainError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
	})
}

// WithContext attaches a detail entry that is rendered in error responses.
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewError creates a new DomainError
func NewError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err, or any error it wraps, is a DomainError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// Helper functions for common errors
func NewNotFoundError(message string) *DomainError {
	return NewError(ErrNotFound, message, nil)
}

func NewInvalidInputError(message string) *DomainError {
	return NewError(ErrInvalidInput, message, nil)
}

func NewInternalError(message string, err error) *DomainError {
	return NewError(ErrInternal, message, err)
}

func NewExamNotFoundError(examID int64) *DomainError {
	return NewError(ErrExamNotFound, fmt.Sprintf("Exam not found with ID: %d", examID), nil).
		WithContext("examId", examID)
}

func NewSectionNotFoundError(sectionID int64) *DomainError {
	return NewError(ErrSectionNotFound, fmt.Sprintf("Section not found with ID: %d", sectionID), nil).
		WithContext("sectionId", sectionID)
}

func NewAttemptNotFoundError(attemptID int64) *DomainError {
	return NewError(ErrAttemptNotFound, fmt.Sprintf("Attempt not found with ID: %d", attemptID), nil).
		WithContext("attemptId", attemptID)
}

func NewDuplicateExamCodeError(codes ...string) *DomainError {
	return NewError(ErrDuplicateExamCode, "Exam code already exists", nil).
		WithContext("codes", codes)
}

func NewSectionNotInExamError(examID, sectionID int64) *DomainError {
	return NewError(ErrSectionNotInExam, "Section does not belong to this exam", nil).
		WithContext("examId", examID).
		WithContext("sectionId", sectionID)
}

func NewExamNotPublishedError(examID int64) *DomainError {
	return NewError(ErrExamNotPublished, "Exam is not published", nil).
		WithContext("examId", examID)
}

func NewAttemptSubmittedError(attemptID int64) *DomainError {
	return NewError(ErrAttemptSubmitted, "Attempt is already finalized", nil).
		WithContext("attemptId", attemptID)
}

func NewSectionLockedError(targetSectionID, sectionID int64) *DomainError {
	return NewError(ErrSectionLocked, "This attempt is locked to another section", nil).
		WithContext("targetSectionId", targetSectionID).
		WithContext("sectionId", sectionID)
}

func NewEmptyAnswersError() *DomainError {
	return NewError(ErrEmptyAnswers, "Answers payload is empty", nil)
}

func NewAttemptIncompleteError(missingSectionIDs []int64) *DomainError {
	return NewError(ErrAttemptIncomplete, "Please submit every section before finalizing the test", nil).
		WithContext("missingSectionIds", missingSectionIDs)
}

func NewNotAttemptOwnerError(attemptID int64) *DomainError {
	return NewError(ErrNotAttemptOwner, "You are not allowed to access this attempt", nil).
		WithContext("attemptId", attemptID)
}

func NewConcurrentUpdateError(attemptID int64) *DomainError {
	return NewError(ErrConcurrentUpdate, "Attempt was modified concurrently", nil).
		WithContext("attemptId", attemptID)
}

func NewGradingServiceError(err error) *DomainError {
	return NewError(ErrGradingService, "Failed to grade answer with AI service", err)
}
