// Package apperr defines the error kinds every store operation reports.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel kinds. Typed errors below match them through errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("resource not found")
	ErrConstraint   = errors.New("constraint violation")
	ErrConsistency  = errors.New("consistency fault")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing sale, item, debt, party or store.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConstraintError reports a duplicate unique key.
type ConstraintError struct {
	Field string
	Value string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraint }

// OverpaymentError rejects a payment larger than what is left on a debt.
type OverpaymentError struct {
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment exceeds remaining amount %s", e.Remaining.StringFixed(2))
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrValidation }

// ConsistencyError marks a multi-step write that could not be applied whole.
// The surrounding transaction has been rolled back when this is returned.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// Consistency wraps err as a ConsistencyError unless it already carries a
// caller-facing kind.
func Consistency(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsCallerError(err) || errors.Is(err, ErrConsistency) {
		return err
	}
	return &ConsistencyError{Op: op, Err: err}
}

// AuthError rejects an operation before it reaches a store.
type AuthError struct {
	Forbidden bool
	Reason    string
}

func (e *AuthError) Error() string { return e.Reason }

func (e *AuthError) Is(target error) bool {
	if e.Forbidden {
		return target == ErrForbidden
	}
	return target == ErrUnauthorized
}

// Unauthorized reports a missing or unusable identity.
func Unauthorized(reason string) error { return &AuthError{Reason: reason} }

// Forbidden reports an identity without enough permission.
func Forbidden(reason string) error { return &AuthError{Forbidden: true, Reason: reason} }

// IsCallerError reports whether err is one of the recoverable kinds the
// caller is expected to show to the user.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConstraint) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden)
}
