package session

import (
	"errors"
	"io"
)

// DefaultReadBufferSize is the buffer size for reading PTY output.
const DefaultReadBufferSize = 4096

// Publisher receives every output chunk read from a session.
type Publisher interface {
	Publish(sessionID string, data []byte)
}

// ExitNotifier is told when a session's process exits on its own.
type ExitNotifier interface {
	SessionExited(sessionID string)
}

// NotifierFunc adapts a function to ExitNotifier.
type NotifierFunc func(sessionID string)

// SessionExited calls f(sessionID).
func (f NotifierFunc) SessionExited(sessionID string) {
	f(sessionID)
}

// pump drains s's PTY output until the stream ends. Each chunk is appended
// to the scrollback and then published, both in read order because this
// goroutine is the only reader of the stream. Once s has been killed or
// replaced its remaining output is dropped, so it never shows up in the
// stream of the session now registered under the same id.
func (m *Manager) pump(s *Session) {
	buf := make([]byte, m.readBufferSize)
	total := 0

	for {
		n, err := s.ctrl.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			total += n

			current := m.registry.mutateIfCurrent(s, func(s *Session) {
				s.Scrollback = append(s.Scrollback, chunk...)
			})
			if current {
				m.publisher.Publish(s.ID, chunk)
			}
		}
		if err != nil || n == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				m.logger.Debug("pty read ended", "session", s.ID, "error", err)
			}
			break
		}
	}

	// The stream is gone; make sure the child and the master are released.
	if err := s.ctrl.Terminate(); err != nil {
		m.logger.Warn("failed to release pty", "session", s.ID, "error", err)
	}

	natural := m.registry.mutateIfCurrent(s, func(s *Session) {
		s.Status = StatusStopped
	})
	m.logger.Debug("output stream ended", "session", s.ID, "bytes", total, "natural", natural)

	if natural && m.notifier != nil {
		m.notifier.SessionExited(s.ID)
	}
}
