// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"

	"crimson-city-bot/internal/repository"
)

// Common errors for player and admin operations.
var (
	ErrUnauthorized     = errors.New("caller is not the admin")
	ErrNotAdjacent      = errors.New("destination is not connected to the current location")
	ErrAlreadySubmitted = errors.New("voice already submitted")
	ErrInvalidName      = errors.New("invalid character name")
	ErrWrongStage       = errors.New("action not allowed at this lifecycle stage")
)

// UsageError reports a problem with admin input. Its message is meant to be
// shown to the admin as is.
type UsageError struct {
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	return e.Msg
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// targetErr turns a missing player into a usage error and wraps the rest.
func targetErr(id int64, op string, err error) error {
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return &UsageError{Msg: fmt.Sprintf("player %d not found", id), Err: err}
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
