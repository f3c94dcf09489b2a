package model

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandRequired is returned when a spawn request is missing the command.
	ErrCommandRequired = errors.New("command is required")

	// ErrSessionNotFound is returned when an operation references an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAgentConfigNotFound is returned when an agent config is not found.
	ErrAgentConfigNotFound = errors.New("agent config not found")

	// ErrDefaultAgentConfig is returned when deleting the default agent config.
	ErrDefaultAgentConfig = errors.New("default agent config cannot be deleted")
)

// SpawnError reports that the OS could not allocate a pseudo-terminal or
// execute the command. It is fatal to that one spawn attempt only.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IOError reports a failed write or resize on a live session. The session
// stays registered and usable.
type IOError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
