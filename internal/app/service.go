// Package app is the application layer over the session core: it keeps the
// durable session records in step with live sessions, resolves agent
// configs, and fans lifecycle events out.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thiemotorres/spawn/internal/buffer"
	"github.com/thiemotorres/spawn/internal/events"
	"github.com/thiemotorres/spawn/internal/logger"
	"github.com/thiemotorres/spawn/internal/model"
	"github.com/thiemotorres/spawn/internal/pty"
	"github.com/thiemotorres/spawn/internal/repository"
	"github.com/thiemotorres/spawn/internal/session"
)

// persistTimeout bounds the store writes done from the exit hook.
const persistTimeout = 5 * time.Second

// Deps are the collaborators a Service is built from. Recorder is optional.
type Deps struct {
	Backend   pty.Backend
	Publisher session.Publisher
	Sessions  *repository.SessionRepository
	Configs   *repository.AgentConfigRepository
	Bus       *events.Bus
	Recorder  *logger.Recorder
}

// Config holds application settings.
type Config struct {
	Session session.Config

	// ScrollbackLimit caps the bytes of scrollback persisted per session.
	ScrollbackLimit int

	Logger *slog.Logger
}

// Service is the command surface the HTTP handlers dispatch to.
type Service struct {
	manager  *session.Manager
	sessions *repository.SessionRepository
	configs  *repository.AgentConfigRepository
	bus      *events.Bus
	recorder *logger.Recorder
	limit    int
	logger   *slog.Logger
}

// New creates the service and the session manager it owns. The manager
// reports natural exits to the service and falls back to the session store
// for scrollback of sessions it no longer holds.
func New(deps Deps, config Config) *Service {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.ScrollbackLimit <= 0 {
		config.ScrollbackLimit = buffer.DefaultCapacity
	}

	s := &Service{
		sessions: deps.Sessions,
		configs:  deps.Configs,
		bus:      deps.Bus,
		recorder: deps.Recorder,
		limit:    config.ScrollbackLimit,
		logger:   config.Logger,
	}

	sc := config.Session
	sc.Notifier = s
	sc.Fallback = deps.Sessions
	if sc.Logger == nil {
		sc.Logger = config.Logger
	}
	s.manager = session.NewManager(deps.Backend, deps.Publisher, sc)
	return s
}

// Manager returns the underlying session manager.
func (s *Service) Manager() *session.Manager {
	return s.manager
}

// AgentRequest describes an agent session to start.
type AgentRequest struct {
	// SessionID is generated when empty.
	SessionID   string
	ProjectID   string
	ProjectPath string
	Name        string

	// Command and Args are used as given when Command is set. Otherwise the
	// agent config AgentConfigID, or the default config, supplies them.
	Command       string
	Args          []string
	AgentConfigID string
}

// SpawnAgent marks the session record running, creating it if needed, and
// starts the agent. If the spawn fails a new record is removed again and an
// existing one is put back to stopped, unless a session is still running
// under id.
//
// The record is running before the process starts so that an immediate exit
// always lands after it and leaves the record stopped.
func (s *Service) SpawnAgent(ctx context.Context, req AgentRequest) (*model.SessionRecord, error) {
	if req.ProjectID == "" {
		return nil, errors.New("project id is required")
	}

	command, args, name, err := s.resolveCommand(ctx, req)
	if err != nil {
		return nil, err
	}

	id := req.SessionID
	if id == "" {
		id = uuid.New().String()
	}

	created := false
	err = s.sessions.UpdateStatus(ctx, id, model.RecordStatusRunning)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		record := &model.SessionRecord{
			ID:        id,
			ProjectID: req.ProjectID,
			Name:      name,
			Status:    model.RecordStatusRunning,
		}
		if err := s.sessions.Create(ctx, record); err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, err
	}

	if _, ok := s.manager.Snapshot(id); ok {
		s.finishRecording(id)
	}

	if err := s.manager.SpawnAgent(ctx, id, req.ProjectID, req.ProjectPath, command, args); err != nil {
		var undoErr error
		switch snap, ok := s.manager.Snapshot(id); {
		case created:
			undoErr = s.sessions.Delete(ctx, id)
		case ok && snap.Status != session.StatusStopped:
			// The session already registered under id is still running.
		default:
			undoErr = s.sessions.UpdateStatus(ctx, id, model.RecordStatusStopped)
		}
		if undoErr != nil {
			s.logger.Warn("failed to undo record of failed spawn", "session", id, "error", undoErr)
		}
		return nil, err
	}

	return s.sessions.GetByID(ctx, id)
}

func (s *Service) resolveCommand(ctx context.Context, req AgentRequest) (command string, args []string, name string, err error) {
	name = req.Name
	if req.Command != "" {
		if name == "" {
			name = req.Command
		}
		return req.Command, req.Args, name, nil
	}

	var cfg *model.AgentConfig
	if req.AgentConfigID != "" {
		cfg, err = s.configs.GetByID(ctx, req.AgentConfigID)
	} else {
		cfg, err = s.configs.GetDefault(ctx)
	}
	if err != nil {
		return "", nil, "", err
	}
	if name == "" {
		name = cfg.Name
	}
	return cfg.Command, cfg.Args, name, nil
}

// SpawnShell starts the interactive shell under id unless it is running.
func (s *Service) SpawnShell(ctx context.Context, id, cwd string) error {
	if snap, ok := s.manager.Snapshot(id); ok && snap.Status == session.StatusStopped {
		s.finishRecording(id)
	}
	return s.manager.SpawnShell(ctx, id, cwd)
}

// Write forwards input to the session and records it.
func (s *Service) Write(id string, data []byte) error {
	if err := s.manager.Write(id, data); err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.Input(id, data)
	}
	return nil
}

// Resize changes a session's terminal size.
func (s *Service) Resize(id string, cols, rows uint16) error {
	return s.manager.Resize(id, cols, rows)
}

// Kill terminates the session and deletes its record. Unknown ids are not
// an error.
func (s *Service) Kill(ctx context.Context, id string) error {
	s.manager.Kill(id)
	s.finishRecording(id)

	err := s.sessions.Delete(ctx, id)
	if err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Scrollback returns a session's live or stored scrollback.
func (s *Service) Scrollback(ctx context.Context, id string) ([]byte, error) {
	return s.manager.Scrollback(ctx, id)
}

// ListSessions returns a project's session records, newest first.
func (s *Service) ListSessions(ctx context.Context, projectID string) ([]*model.SessionRecord, error) {
	return s.sessions.ListByProject(ctx, projectID)
}

// Rename changes a session record's name.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	return s.sessions.Rename(ctx, id, name)
}

// ListAgentConfigs returns every agent config, the default first.
func (s *Service) ListAgentConfigs(ctx context.Context) ([]*model.AgentConfig, error) {
	return s.configs.List(ctx)
}

// AddAgentConfig stores a new agent config.
func (s *Service) AddAgentConfig(ctx context.Context, cfg *model.AgentConfig) error {
	return s.configs.Add(ctx, cfg)
}

// UpdateAgentConfig changes an agent config.
func (s *Service) UpdateAgentConfig(ctx context.Context, cfg *model.AgentConfig) error {
	return s.configs.Update(ctx, cfg)
}

// DeleteAgentConfig removes a non-default agent config.
func (s *Service) DeleteAgentConfig(ctx context.Context, id string) error {
	return s.configs.Delete(ctx, id)
}

// SetDefaultAgentConfig makes id the default agent config.
func (s *Service) SetDefaultAgentConfig(ctx context.Context, id string) error {
	return s.configs.SetDefault(ctx, id)
}

// Events subscribes to lifecycle events.
func (s *Service) Events() (<-chan events.Event, func()) {
	return s.bus.Subscribe()
}

// SessionExited persists the exited session's scrollback tail, marks its
// record stopped and publishes a session-exited event. The manager calls it
// from the session's pump goroutine.
func (s *Service) SessionExited(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	s.persist(ctx, id)
	s.finishRecording(id)
	s.bus.PublishSessionExited(id)
	s.logger.Info("session exited", "session", id)
}

// finishRecording ends id's current recording so the next session started
// under id gets its own cast file.
func (s *Service) finishRecording(id string) {
	if s.recorder != nil {
		s.recorder.Finish(id)
	}
}

// persist saves the bounded scrollback of a registered session. Sessions
// without a record, such as shells, are skipped.
func (s *Service) persist(ctx context.Context, id string) {
	snap, ok := s.manager.Snapshot(id)
	if !ok {
		return
	}

	tail := buffer.NewRingBuffer(s.limit)
	tail.Write(snap.Scrollback)
	if tail.Truncated() {
		s.logger.Debug("scrollback truncated for storage", "session", id, "bytes", tail.Total(), "kept", tail.Len())
	}

	err := s.sessions.SaveScrollback(ctx, id, tail.Bytes())
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
	case err != nil:
		s.logger.Error("failed to persist scrollback", "session", id, "error", err)
	}
}

// Reconcile marks records left running by a previous process as stopped.
func (s *Service) Reconcile(ctx context.Context) error {
	n, err := s.sessions.MarkRunningStopped(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("reconciled stale sessions", "count", n)
	}
	return nil
}

// Close persists the scrollback of every live session and kills them all.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	for _, snap := range s.manager.List() {
		s.persist(ctx, snap.ID)
	}
	if err := s.manager.Close(); err != nil {
		return fmt.Errorf("failed to close sessions: %w", err)
	}
	return nil
}
