package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = fmt.Errorf("invalid status transition: %w", ErrValidation)
	ErrDelivery          = errors.New("event delivery failed")
	ErrCorrelationMiss   = errors.New("no invoice for order")
)

// Error carries the failing operation and the business key it was applied to.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}

// Wrap attaches a kind to a cause so both are visible to errors.Is.
func Wrap(op, key string, kind, cause error) error {
	return &Error{Op: op, Key: key, Err: fmt.Errorf("%w: %w", kind, cause)}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsDelivery(err error) bool {
	return errors.Is(err, ErrDelivery)
}

func IsCorrelationMiss(err error) bool {
	return errors.Is(err, ErrCorrelationMiss)
}
