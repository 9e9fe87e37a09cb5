package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific field or answer key.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError carries the full list of individual field errors so callers
// can report every problem at once.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError: a referenced entity does not exist.
type NotFoundError struct {
	message string
}

func NewNotFoundError(msg string) *NotFoundError { return &NotFoundError{message: msg} }
func (err *NotFoundError) Error() string         { return err.message }

// ConflictError: a uniqueness invariant was violated (duplicate assignment,
// re-submission of an already submitted assignment).
type ConflictError struct {
	message string
}

func NewConflictError(msg string) *ConflictError { return &ConflictError{message: msg} }
func (err *ConflictError) Error() string         { return err.message }

// StateError: a mutation was attempted on a locked or terminal entity.
type StateError struct {
	message string
}

func NewStateError(msg string) *StateError { return &StateError{message: msg} }
func (err *StateError) Error() string      { return err.message }

// AuthorizationError: the caller lacks ownership or an accepted assignment.
type AuthorizationError struct {
	message string
}

func NewAuthorizationError(msg string) *AuthorizationError {
	return &AuthorizationError{message: msg}
}
func (err *AuthorizationError) Error() string { return err.message }

// EligibilityError: the quiz gate for task assignment is not satisfied.
// Participant names the person that failed the gate.
type EligibilityError struct {
	Participant string
	message     string
}

func NewEligibilityError(participant, msg string) *EligibilityError {
	return &EligibilityError{Participant: participant, message: msg}
}
func (err *EligibilityError) Error() string { return err.message }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
