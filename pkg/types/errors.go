package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeCatalog     ErrorType = "catalog"
	ErrorTypeInternal    ErrorType = "internal"
)

// TrackError represents a structured error in the tracking system
type TrackError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TrackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *TrackError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *TrackError {
	return &TrackError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *TrackError {
	return &TrackError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewPersistenceError creates a new persistence error wrapping the storage failure
func NewPersistenceError(code, message string, cause error) *TrackError {
	return &TrackError{
		Type:    ErrorTypePersistence,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewCatalogError creates a new catalog lookup error
func NewCatalogError(code, message string, cause error) *TrackError {
	return &TrackError{
		Type:    ErrorTypeCatalog,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *TrackError {
	return &TrackError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsPersistence reports whether err is a persistence error
func IsPersistence(err error) bool {
	return isType(err, ErrorTypePersistence)
}

func isType(err error, t ErrorType) bool {
	var te *TrackError
	if errors.As(err, &te) {
		return te.Type == t
	}
	return false
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeSaveFailed    = "SAVE_FAILED"
	ErrCodeLoadFailed    = "LOAD_FAILED"
	ErrCodeDeleteFailed  = "DELETE_FAILED"
	ErrCodeCatalogMiss   = "CATALOG_MISS"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
