package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thiemotorres/spawn/internal/ws"
)

// RecorderConfig holds recorder settings.
type RecorderConfig struct {
	// Dir receives one .cast file per session recording.
	Dir string

	// Width and Height go into each recording's header.
	Width  int
	Height int

	Logger *slog.Logger
}

// Recorder is an independent hub subscriber that writes every session's
// output to its own cast file. Messages lost to hub lag show up in each open
// recording as a marker event.
//
// Each session start gets a new file: Finish cuts a session's recording at
// the hub position current when it is called, so output still queued from
// the finished process lands in the old file and everything after in a new
// one.
type Recorder struct {
	dir    string
	width  int
	height int
	logger *slog.Logger

	mu    sync.Mutex
	casts map[string]*CastWriter
	// cuts maps a session to the hub sequence its open recording ends at.
	cuts map[string]uint64
	// hub and cursor are set while Run consumes a subscription; cursor is
	// the sequence of the next message Run expects.
	hub    *ws.Hub
	cursor uint64
}

// NewRecorder creates dir if needed and returns a recorder writing into it.
func NewRecorder(config RecorderConfig) (*Recorder, error) {
	if config.Dir == "" {
		return nil, errors.New("recording directory is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Recorder{
		dir:    config.Dir,
		width:  config.Width,
		height: config.Height,
		logger: config.Logger,
		casts:  make(map[string]*CastWriter),
		cuts:   make(map[string]uint64),
	}, nil
}

// Run consumes sub until the hub closes or ctx is canceled, then closes
// every open recording.
func (r *Recorder) Run(ctx context.Context, sub *ws.Subscription) error {
	defer sub.Close()
	defer r.Close()

	r.mu.Lock()
	r.hub = sub.Hub()
	r.cursor = sub.Cursor()
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.hub = nil
		r.mu.Unlock()
	}()

	for {
		msg, err := sub.Recv(ctx)
		var lag *ws.LagError
		switch {
		case err == nil:
			r.record(msg)
		case errors.As(err, &lag):
			r.markGap(lag.Skipped)
		case errors.Is(err, ws.ErrHubClosed):
			return nil
		default:
			return err
		}
	}
}

// Input records keyboard input for an open recording. Input for a session
// with no recording yet is dropped.
func (r *Recorder) Input(sessionID string, data []byte) {
	r.mu.Lock()
	cast := r.casts[sessionID]
	r.mu.Unlock()

	if cast == nil {
		return
	}
	if err := cast.WriteInput(data); err != nil {
		r.logger.Warn("failed to record input", "session", sessionID, "error", err)
	}
}

// Finish ends the session's recording once every message already published
// to the hub has been recorded. Later output for the same id starts a new
// file.
func (r *Recorder) Finish(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hub != nil {
		if cut := r.hub.Head(); cut > r.cursor {
			r.cuts[sessionID] = cut
			return
		}
	}
	r.finishLocked(sessionID)
}

func (r *Recorder) finishLocked(sessionID string) {
	delete(r.cuts, sessionID)
	cast := r.casts[sessionID]
	if cast == nil {
		return
	}
	delete(r.casts, sessionID)
	if err := cast.Close(); err != nil {
		r.logger.Warn("failed to close recording", "session", sessionID, "error", err)
	}
}

// settle closes every recording whose cut is at or before next.
func (r *Recorder) settle(next uint64) {
	for id, cut := range r.cuts {
		if cut <= next {
			r.finishLocked(id)
		}
	}
}

// Close closes every open recording.
func (r *Recorder) Close() error {
	r.mu.Lock()
	casts := r.casts
	r.casts = make(map[string]*CastWriter)
	r.cuts = make(map[string]uint64)
	r.mu.Unlock()

	var firstErr error
	for _, cast := range casts {
		if err := cast.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Path returns the file name a recording of sessionID started at t uses.
func (r *Recorder) Path(sessionID string, t time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%d.cast", sanitize(sessionID), t.UnixNano()))
}

// record writes one hub message, first closing recordings cut before it.
func (r *Recorder) record(msg ws.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settle(msg.Seq)
	r.outputLocked(msg.SessionID, msg.Data)
	r.cursor = msg.Seq + 1
	r.settle(r.cursor)
}

func (r *Recorder) output(sessionID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputLocked(sessionID, data)
}

func (r *Recorder) outputLocked(sessionID string, data []byte) {
	cast, err := r.openLocked(sessionID)
	if err != nil {
		r.logger.Warn("failed to start recording", "session", sessionID, "error", err)
		return
	}
	if err := cast.WriteOutput(data); err != nil {
		r.logger.Warn("failed to record output", "session", sessionID, "error", err)
	}
}

func (r *Recorder) openLocked(sessionID string) (*CastWriter, error) {
	if cast, ok := r.casts[sessionID]; ok {
		return cast, nil
	}
	now := time.Now()
	cast, err := CreateCast(r.Path(sessionID, now), CastHeader{
		Width:     r.width,
		Height:    r.height,
		Timestamp: now.Unix(),
		Title:     sessionID,
	})
	if err != nil {
		return nil, err
	}
	r.casts[sessionID] = cast
	r.logger.Debug("recording started", "session", sessionID)
	return cast, nil
}

func (r *Recorder) markGap(skipped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := fmt.Sprintf("gap: %d chunks dropped", skipped)
	for id, cast := range r.casts {
		if err := cast.WriteMarker(label); err != nil {
			r.logger.Warn("failed to record gap", "session", id, "error", err)
		}
	}
	r.logger.Warn("recorder lagged", "skipped", skipped)
}

// sanitize keeps session ids usable as file names.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
