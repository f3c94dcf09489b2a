// Package session owns PTY-backed sessions: the registry of live session
// state, the per-session output pump and the command surface used to spawn,
// drive and kill sessions.
package session

import (
	"sync"

	"github.com/thiemotorres/spawn/internal/pty"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusRunning Status = "running"
	// StatusIdle is reserved for observers; the core never sets it.
	StatusIdle    Status = "idle"
	StatusStopped Status = "stopped"
)

// Session is one live or recently-live PTY-backed process. Status and
// Scrollback are only read or written while the owning Registry's lock is
// held; the controller is immutable after construction.
type Session struct {
	ID           string
	OwnerContext string
	Status       Status
	Scrollback   []byte

	ctrl    pty.Controller
	writeMu sync.Mutex
}

// NewSession creates a running session that owns ctrl.
func NewSession(id, ownerContext string, ctrl pty.Controller) *Session {
	return &Session{
		ID:           id,
		OwnerContext: ownerContext,
		Status:       StatusRunning,
		ctrl:         ctrl,
	}
}

// Snapshot is an independent copy of a session's observable state.
type Snapshot struct {
	ID           string `json:"id"`
	OwnerContext string `json:"ownerContext,omitempty"`
	Status       Status `json:"status"`
	Scrollback   []byte `json:"-"`
	PID          int    `json:"pid,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:           s.ID,
		OwnerContext: s.OwnerContext,
		Status:       s.Status,
		Scrollback:   make([]byte, len(s.Scrollback)),
	}
	copy(snap.Scrollback, s.Scrollback)
	if s.ctrl != nil {
		snap.PID = s.ctrl.PID()
	}
	return snap
}
