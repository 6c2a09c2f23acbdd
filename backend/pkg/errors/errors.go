package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeStore represents document store transport/infrastructure errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeRelation represents relationship mutation/read errors
	ErrorTypeRelation ErrorType = "relation"
	// ErrorTypeRanking represents ranking resolution errors
	ErrorTypeRanking ErrorType = "ranking"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Relation Errors

// ErrAlreadyExists is returned when an active edge of the same kind already
// links the pair
type ErrAlreadyExists struct {
	*BaseError
	Kind     string
	SourceID string
	TargetID string
}

func NewAlreadyExists(kind, sourceID, targetID string) *ErrAlreadyExists {
	return &ErrAlreadyExists{
		BaseError: NewBaseError(ErrorTypeRelation, fmt.Sprintf("active %s already exists: %s -> %s", kind, sourceID, targetID), nil),
		Kind:      kind,
		SourceID:  sourceID,
		TargetID:  targetID,
	}
}

// ErrAlreadySponsored is returned when the sponsored user already has a
// different active sponsor
type ErrAlreadySponsored struct {
	*BaseError
	SponsoredID string
	SponsorID   string // the sponsor currently holding the slot
}

func NewAlreadySponsored(sponsoredID, sponsorID string) *ErrAlreadySponsored {
	return &ErrAlreadySponsored{
		BaseError:   NewBaseError(ErrorTypeRelation, fmt.Sprintf("user %s is already sponsored by %s", sponsoredID, sponsorID), nil),
		SponsoredID: sponsoredID,
		SponsorID:   sponsorID,
	}
}

// ErrUserNotFound is returned when a referenced user document is absent
type ErrUserNotFound struct {
	*BaseError
	UserID string
}

func NewUserNotFound(userID string) *ErrUserNotFound {
	return &ErrUserNotFound{
		BaseError: NewBaseError(ErrorTypeRelation, fmt.Sprintf("user not found: %s", userID), nil),
		UserID:    userID,
	}
}

// Store Errors

// ErrContention is returned when the transaction retry budget is exhausted
// on conflicting concurrent writes
type ErrContention struct {
	*BaseError
	Attempts int
}

func NewContention(attempts int, err error) *ErrContention {
	return &ErrContention{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("transaction aborted after %d attempts", attempts), err),
		Attempts:  attempts,
	}
}

// ErrStoreUnavailable is returned on transport/infrastructure failure;
// the caller may retry
type ErrStoreUnavailable struct {
	*BaseError
}

func NewStoreUnavailable(err error) *ErrStoreUnavailable {
	return &ErrStoreUnavailable{
		BaseError: NewBaseError(ErrorTypeStore, "document store unavailable", err),
	}
}

// ErrMalformedDocument is returned when a document fails schema validation
// at the read boundary
type ErrMalformedDocument struct {
	*BaseError
	Path  string
	Field string
}

func NewMalformedDocument(path, field string) *ErrMalformedDocument {
	return &ErrMalformedDocument{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("malformed document %s: field %s", path, field), nil),
		Path:      path,
		Field:     field,
	}
}

// Unwrap implementations so errors.As can reach the BaseError tag

func (e *ErrAlreadyExists) Unwrap() error     { return e.BaseError }
func (e *ErrAlreadySponsored) Unwrap() error  { return e.BaseError }
func (e *ErrUserNotFound) Unwrap() error      { return e.BaseError }
func (e *ErrContention) Unwrap() error        { return e.BaseError }
func (e *ErrStoreUnavailable) Unwrap() error  { return e.BaseError }
func (e *ErrMalformedDocument) Unwrap() error { return e.BaseError }

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var base *BaseError
	if errors.As(err, &base) {
		return base.Type == errType
	}
	return false
}

// IsAlreadyExists reports whether err is a duplicate-active-edge error
func IsAlreadyExists(err error) bool {
	var target *ErrAlreadyExists
	return errors.As(err, &target)
}

// IsAlreadySponsored reports whether err is a sponsorship uniqueness error
func IsAlreadySponsored(err error) bool {
	var target *ErrAlreadySponsored
	return errors.As(err, &target)
}

// IsUserNotFound reports whether err is a missing-user error
func IsUserNotFound(err error) bool {
	var target *ErrUserNotFound
	return errors.As(err, &target)
}

// IsMalformedDocument reports whether err is a schema validation error
func IsMalformedDocument(err error) bool {
	var target *ErrMalformedDocument
	return errors.As(err, &target)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var contention *ErrContention
	if errors.As(err, &contention) {
		return true
	}
	var unavailable *ErrStoreUnavailable
	if errors.As(err, &unavailable) {
		return true
	}
	// Duplicate edges, uniqueness violations and malformed documents will
	// not resolve on retry
	return false
}
