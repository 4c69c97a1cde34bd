package apperr

import "errors"

// Base error classes. Domain errors wrap one of these so transport layers can
// map them without knowing every domain sentinel.
var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// IsValidation reports whether err is a caller mistake that must not be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err contradicts state that was already recorded.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

type classified struct {
	msg   string
	class error
}

func (e *classified) Error() string { return e.msg }
func (e *classified) Unwrap() error { return e.class }

// Validation returns an error with message msg that matches ErrValidation.
func Validation(msg string) error {
	return &classified{msg: msg, class: ErrValidation}
}

// NotFound returns an error with message msg that matches ErrNotFound.
func NotFound(msg string) error {
	return &classified{msg: msg, class: ErrNotFound}
}

// Conflict returns an error with message msg that matches ErrConflict.
func Conflict(msg string) error {
	return &classified{msg: msg, class: ErrConflict}
}
