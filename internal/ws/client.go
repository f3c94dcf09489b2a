package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// serveClient runs one subscriber until the client goes away, the hub is
// closed or ctx is canceled. It never affects other subscribers.
func (s *Server) serveClient(ctx context.Context, conn *websocket.Conn) {
	// Subscribe before anything else so output published while the client
	// is being set up is not lost.
	sub := s.hub.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote := conn.RemoteAddr().String()
	s.logger.Info("relay client connected", "remote", remote, "subscribers", s.hub.SubscriberCount())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		s.readPump(conn)
	}()

	s.writePump(ctx, conn, sub)

	conn.Close()
	<-readDone
	s.logger.Info("relay client disconnected", "remote", remote)
}

// readPump drains inbound frames. Clients send nothing meaningful; reading
// is only how a close or broken connection is noticed, so frames of any size
// are discarded without being buffered.
func (s *Server) readPump(conn *websocket.Conn) {
	for {
		_, r, err := conn.NextReader()
		if err == nil {
			_, err = io.Copy(io.Discard, r)
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("relay read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards hub messages to conn as TerminalOutput frames, one
// message per websocket frame, with a Ping frame on every idle tick.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		msg, err := sub.TryRecv()
		switch {
		case err == nil:
			if err := s.writeFrame(conn, NewOutputFrame(msg)); err != nil {
				s.logger.Debug("relay write failed", "error", err)
				return
			}
			continue
		case errors.Is(err, errEmpty):
		case errors.Is(err, ErrHubClosed):
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
			return
		default:
			var lag *LagError
			if errors.As(err, &lag) {
				s.logger.Warn("relay client lagged", "skipped", lag.Skipped)
				continue
			}
			return
		}

		select {
		case <-sub.Ready():
		case <-ticker.C:
			if err := s.writeFrame(conn, Frame{Type: FramePing}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
