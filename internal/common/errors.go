// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Store errors.
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("store write failed")

	// Mail transport errors.
	ErrConnection = errors.New("mail connection failed")
	ErrSearch     = errors.New("mail search failed")

	// Extraction errors.
	ErrParse = errors.New("parse failed")

	// API errors.
	ErrValidation = errors.New("validation failed")
	ErrPolicy     = errors.New("refused by policy")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
