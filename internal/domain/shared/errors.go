// Package shared holds the error kinds, events and value objects used by
// every other domain package. It imports nothing outside the standard
// library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError carries where an error happened, what kind it is and the
// message shown to the user.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
}

// Unwrap returns the cause, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

// Is matches the error itself, its kind chain and its cause chain.
func (e *DomainError) Is(target error) bool {
	switch {
	case e == target:
		return true
	case e.Kind != nil && errors.Is(e.Kind, target):
		return true
	default:
		return e.Err != nil && errors.Is(e.Err, target)
	}
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

var (
	ErrCourseNotFound        = NewDomainError("course", "Find", ErrNotFound, "Course not found")
	ErrCourseNotFoundForCode = NewDomainError("course", "FindByCode", ErrNotFound, "No course for QR code")
	ErrInvalidCourse         = NewDomainError("course", "Validate", ErrEmptyValue, "Course code and name are required")
	ErrCourseCodeTaken       = NewDomainError("course", "Create", ErrAlreadyExists, "Course code already exists")

	ErrAlreadyCheckedIn = NewDomainError("attendance", "CheckIn", ErrAlreadyExists, "Already checked in for today")
	ErrDuplicateSession = NewDomainError("attendance", "AddSession", ErrAlreadyExists, "Session already exists for that date")
	ErrInvalidCode      = NewDomainError("attendance", "Scan", ErrInvalidInput, "Invalid QR code")

	ErrStoreFailure       = NewDomainError("store", "Access", ErrExternalService, "Storage unavailable")
	ErrNotificationFailed = NewDomainError("notification", "Send", ErrExternalService, "failed to send notification")
)

// CourseNotFoundForCode is ErrCourseNotFoundForCode with the scanned code
// in its message.
func CourseNotFoundForCode(code string) *DomainError {
	return NewDomainError("course", "FindByCode", ErrCourseNotFoundForCode, "No course for QR: "+code)
}

// StoreFailure wraps a persistence fault. Its message is the cause's text.
func StoreFailure(op string, err error) *DomainError {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	return WrapError("store", op, ErrStoreFailure, msg, err)
}

// UserMessage returns the message of the outermost DomainError in err,
// falling back to err's text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation reports errors caused by bad input.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsExternalService reports failures of a dependency.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) || errors.Is(err, ErrServiceUnavailable)
}
