package lock

import "errors"

// Lock-related errors.
var (
	// ErrLockTimeout is returned when a player lock cannot be acquired in time.
	ErrLockTimeout = errors.New("player lock acquisition timeout")
)
