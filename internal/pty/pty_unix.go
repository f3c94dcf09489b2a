//go:build !windows

package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Process is a child process attached to a PTY master on a unix host.
type Process struct {
	master *os.File
	cmd    *exec.Cmd
	pid    int

	done     chan struct{}
	exitCode atomic.Int64

	terminateOnce sync.Once
}

func start(opts StartOptions) (*Process, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	// StartWithSize puts the child in its own session with the slave as its
	// controlling terminal and closes the slave in the parent.
	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Size.Rows, Cols: opts.Size.Cols})
	if err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &Process{
		master: master,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		done:   make(chan struct{}),
	}
	p.exitCode.Store(-1)
	go p.wait()
	return p, nil
}

// wait reaps the child and records its exit code.
func (p *Process) wait() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	p.exitCode.Store(int64(code))
	close(p.done)
}

// Read reads data from the PTY output.
func (p *Process) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

// Write writes data to the PTY input.
func (p *Process) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

// Resize changes the PTY window size.
func (p *Process) Resize(size Size) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// PID returns the process ID of the running process.
func (p *Process) PID() int {
	return p.pid
}

// Done is closed after the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code once Done is closed; -1 before that or when
// the process was killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// Terminate sends SIGKILL to the child's process group and closes the master.
// Only the first call does any work.
func (p *Process) Terminate() error {
	var err error
	p.terminateOnce.Do(func() {
		err = p.terminate()
	})
	return err
}

func (p *Process) terminate() error {
	var firstErr error

	select {
	case <-p.done:
	default:
		// The child is a session leader, so its pid is also the group id.
		if err := unix.Kill(-p.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			firstErr = fmt.Errorf("failed to kill process group %d: %w", p.pid, err)
		}
	}

	if err := p.master.Close(); err != nil && !errors.Is(err, os.ErrClosed) && firstErr == nil {
		firstErr = fmt.Errorf("failed to close PTY: %w", err)
	}

	return firstErr
}
