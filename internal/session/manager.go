package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/thiemotorres/spawn/internal/model"
	"github.com/thiemotorres/spawn/internal/pty"
)

// DefaultShell is used when neither Config.Shell nor $SHELL is set.
const DefaultShell = "/bin/bash"

// errSessionStopped is wrapped in the IOError returned when writing to a
// session whose process has exited.
var errSessionStopped = errors.New("session is stopped")

// ScrollbackSource is the durable store consulted for sessions that are no
// longer in the registry. It returns model.ErrSessionNotFound when it has no
// record for id.
type ScrollbackSource interface {
	Scrollback(ctx context.Context, id string) ([]byte, error)
}

// Config holds configuration for the session manager.
type Config struct {
	// Shell is the interactive shell for SpawnShell. Defaults to $SHELL,
	// then DefaultShell.
	Shell string

	// InitialSize is the terminal size for new sessions.
	InitialSize pty.Size

	// Env is the environment for spawned processes; nil inherits ours.
	Env []string

	// ReadBufferSize is the pump's read chunk size.
	ReadBufferSize int

	// Notifier is told about natural process exits. Optional.
	Notifier ExitNotifier

	// Fallback supplies scrollback for sessions that are not registered. Optional.
	Fallback ScrollbackSource

	Logger *slog.Logger
}

// Manager is the session command surface: it spawns PTY processes, keeps
// them in a Registry and runs one output pump per session.
type Manager struct {
	backend   pty.Backend
	registry  *Registry
	publisher Publisher
	notifier  ExitNotifier
	fallback  ScrollbackSource
	logger    *slog.Logger

	shell          string
	size           pty.Size
	env            []string
	readBufferSize int

	// spawnMu serializes spawns so the check-then-insert in SpawnShell
	// cannot race with another spawn for the same id.
	spawnMu sync.Mutex
}

// NewManager creates a session manager that opens processes through backend
// and publishes their output to publisher.
func NewManager(backend pty.Backend, publisher Publisher, config Config) *Manager {
	if config.Shell == "" {
		config.Shell = os.Getenv("SHELL")
	}
	if config.Shell == "" {
		config.Shell = DefaultShell
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultReadBufferSize
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		backend:        backend,
		registry:       NewRegistry(),
		publisher:      publisher,
		notifier:       config.Notifier,
		fallback:       config.Fallback,
		logger:         config.Logger,
		shell:          config.Shell,
		size:           config.InitialSize,
		env:            config.Env,
		readBufferSize: config.ReadBufferSize,
	}
}

// Registry returns the manager's session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Shell returns the interactive shell used by SpawnShell.
func (m *Manager) Shell() string {
	return m.shell
}

// SpawnAgent starts command in a new PTY under id. A running session already
// registered under id is replaced and its process terminated. On failure the
// registry is left unchanged and the error is a *model.SpawnError.
func (m *Manager) SpawnAgent(ctx context.Context, id, ownerContext, workdir, command string, args []string) error {
	if command == "" {
		return model.ErrCommandRequired
	}

	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()

	return m.spawnLocked(ctx, id, ownerContext, workdir, command, args)
}

// SpawnShell starts the interactive shell in a new PTY under id. If id
// already names a running session this is a no-op, so reconnecting UIs can
// call it unconditionally.
func (m *Manager) SpawnShell(ctx context.Context, id, workdir string) error {
	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()

	if _, status, ok := m.registry.lookup(id); ok && status != StatusStopped {
		return nil
	}
	return m.spawnLocked(ctx, id, "", workdir, m.shell, nil)
}

func (m *Manager) spawnLocked(ctx context.Context, id, ownerContext, workdir, command string, args []string) error {
	if id == "" {
		return errors.New("session id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctrl, err := m.backend.Open(pty.StartOptions{
		Command: command,
		Args:    args,
		Env:     m.env,
		Dir:     workdir,
		Size:    m.size,
	})
	if err != nil {
		return &model.SpawnError{Command: command, Err: err}
	}

	s := NewSession(id, ownerContext, ctrl)

	// Register before the pump starts so no output or exit is missed.
	if prev := m.registry.Insert(s); prev != nil {
		if err := prev.ctrl.Terminate(); err != nil {
			m.logger.Warn("failed to terminate replaced session", "session", id, "error", err)
		}
	}

	go m.pump(s)

	m.logger.Info("session spawned", "session", id, "command", command, "pid", ctrl.PID(), "workdir", workdir)
	return nil
}

// Write forwards data to the session's PTY input.
func (m *Manager) Write(id string, data []byte) error {
	s, status, ok := m.registry.lookup(id)
	if !ok {
		return fmt.Errorf("write %s: %w", id, model.ErrSessionNotFound)
	}
	if status == StatusStopped {
		return &model.IOError{Op: "write", SessionID: id, Err: errSessionStopped}
	}

	s.writeMu.Lock()
	_, err := s.ctrl.Write(data)
	s.writeMu.Unlock()

	if err != nil {
		return &model.IOError{Op: "write", SessionID: id, Err: err}
	}
	return nil
}

// Resize changes the session's terminal size. Unknown and stopped sessions
// are ignored.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	s, status, ok := m.registry.lookup(id)
	if !ok || status == StatusStopped {
		return nil
	}

	if err := s.ctrl.Resize(pty.Size{Rows: rows, Cols: cols}); err != nil {
		return &model.IOError{Op: "resize", SessionID: id, Err: err}
	}
	return nil
}

// Kill removes the session from the registry and terminates its process. It
// reports whether the session was registered; an unknown id is a no-op.
func (m *Manager) Kill(id string) bool {
	s, ok := m.registry.Remove(id)
	if !ok {
		return false
	}

	if err := s.ctrl.Terminate(); err != nil {
		m.logger.Warn("failed to terminate session", "session", id, "error", err)
	}
	m.logger.Info("session killed", "session", id)
	return true
}

// Scrollback returns the live scrollback of a registered session, or the
// durable snapshot of one that is gone, or nil.
func (m *Manager) Scrollback(ctx context.Context, id string) ([]byte, error) {
	if snap, ok := m.registry.Snapshot(id); ok {
		return snap.Scrollback, nil
	}
	if m.fallback == nil {
		return nil, nil
	}

	data, err := m.fallback.Scrollback(ctx, id)
	if errors.Is(err, model.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stored scrollback: %w", err)
	}
	return data, nil
}

// Snapshot returns a copy of a registered session's state.
func (m *Manager) Snapshot(id string) (Snapshot, bool) {
	return m.registry.Snapshot(id)
}

// List returns snapshots of every registered session.
func (m *Manager) List() []Snapshot {
	return m.registry.Snapshots()
}

// Close kills every registered session.
func (m *Manager) Close() error {
	var firstErr error
	for _, s := range m.registry.drain() {
		if err := s.ctrl.Terminate(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
