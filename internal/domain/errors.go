package domain

import "errors"

// Structural errors raised by tree and activity mutations.
var (
	ErrCircularReference   = errors.New("circular reference")
	ErrInvalidState        = errors.New("invalid state")
	ErrConstraintViolation = errors.New("constraint violation")
)

// Field errors. They wrap ErrConstraintViolation so callers can match either.
var (
	ErrInvalidID     = fieldError("invalid id")
	ErrInvalidName   = fieldError("invalid name")
	ErrInvalidCode   = fieldError("invalid code")
	ErrInvalidKind   = fieldError("invalid group kind")
	ErrInvalidPoints = fieldError("invalid points")
	ErrInvalidWindow = fieldError("invalid activity window")
	ErrInvalidEmail  = fieldError("invalid email address")
	ErrInvalidColor  = fieldError("invalid color")
	ErrUnknownGroup  = errors.New("unknown group")
	ErrUnknownPeriod = errors.New("unknown expiry period")
)

// constraintError is a field-level failure that still matches ErrConstraintViolation.
type constraintError struct {
	msg string
}

func fieldError(msg string) error {
	return &constraintError{msg: msg}
}

// Error implements error.
func (e *constraintError) Error() string {
	return e.msg
}

// Is reports ErrConstraintViolation as an ancestor.
func (e *constraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}
