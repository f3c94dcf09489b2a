// Package pty opens pseudo-terminals, spawns child processes attached to them
// and exposes the read/write/resize/terminate primitives the session core needs.
package pty

import (
	"errors"
	"io"
)

const (
	DefaultRows = 24
	DefaultCols = 80
)

// ErrUnsupported is returned by Open on platforms without a PTY backend.
var ErrUnsupported = errors.New("pseudo-terminals are not supported on this platform")

// Size is a terminal window size in character cells.
type Size struct {
	Rows uint16
	Cols uint16
}

// orDefault fills zero dimensions with the 24x80 default.
func (s Size) orDefault() Size {
	if s.Rows == 0 {
		s.Rows = DefaultRows
	}
	if s.Cols == 0 {
		s.Cols = DefaultCols
	}
	return s
}

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the command to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the environment for the process.
	// If nil, the current process environment is used.
	Env []string

	// Dir is the working directory for the process.
	// If empty, the current directory is used.
	Dir string

	// Size is the initial window size. Zero fields default to 24x80.
	Size Size
}

// Controller is the handle bundle for one process running on a PTY: the
// output reader, the input writer, the terminal control and the child
// process control.
type Controller interface {
	// Read reads process output from the PTY master.
	io.Reader

	// Write writes to the process input.
	io.Writer

	// Resize changes the terminal dimensions.
	Resize(size Size) error

	// Terminate kills the child and releases the PTY. It is idempotent and
	// does not fail when the process has already exited.
	Terminate() error

	// PID returns the child process id, or 0 if unknown.
	PID() int

	// Done is closed once the child has exited and been reaped.
	Done() <-chan struct{}
}

// Backend opens PTY-backed processes.
type Backend interface {
	Open(opts StartOptions) (Controller, error)
}

// Native is the OS-backed Backend.
type Native struct{}

// Open allocates a PTY pair and starts opts.Command on its slave side.
func (Native) Open(opts StartOptions) (Controller, error) {
	if opts.Command == "" {
		return nil, errors.New("command is required")
	}
	opts.Size = opts.Size.orDefault()
	p, err := start(opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
