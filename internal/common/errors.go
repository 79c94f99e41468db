// Package common holds the errors, retry policy and logging setup shared by
// the categorization packages.
package common

import (
	"errors"
	"fmt"
)

// Storage errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Categorization errors.
var (
	ErrMissingTenant        = errors.New("tenant ID is required")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrClassificationFailed = errors.New("classification failed")
	ErrProviderUnavailable  = errors.New("classification provider unavailable")
)

// Configuration errors.
var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError carries a message meant for the person running the command,
// alongside the underlying cause.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.UserMessage
	}
	return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a message for the user.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

// UserMessage returns the user-facing message of err, or err.Error() when it
// carries none.
func UserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}
