// Package logger records session output as asciicast v2 files.
package logger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event codes used in cast files.
const (
	EventOutput = "o"
	EventInput  = "i"
	EventMarker = "m"
)

// CastHeader is the first line of an asciicast v2 recording.
type CastHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// CastEvent is one recorded event, encoded as [time, code, data].
type CastEvent struct {
	Time float64
	Code string
	Data string
}

// MarshalJSON encodes e as a three-element array.
func (e CastEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Time, e.Code, e.Data})
}

// UnmarshalJSON decodes a three-element array.
func (e *CastEvent) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &e.Time); err != nil {
		return fmt.Errorf("invalid event time: %w", err)
	}
	if err := json.Unmarshal(arr[1], &e.Code); err != nil {
		return fmt.Errorf("invalid event code: %w", err)
	}
	if err := json.Unmarshal(arr[2], &e.Data); err != nil {
		return fmt.Errorf("invalid event data: %w", err)
	}
	return nil
}

// CastWriter appends events to one cast stream.
type CastWriter struct {
	mu        sync.Mutex
	w         io.Writer
	file      *os.File // set only when the writer owns the file
	startTime time.Time
}

// CreateCast creates the file at path and writes header to it.
func CreateCast(path string, header CastHeader) (*CastWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create cast file: %w", err)
	}

	cw := &CastWriter{w: file, file: file, startTime: time.Now()}
	if err := cw.WriteHeader(header); err != nil {
		file.Close()
		return nil, err
	}
	return cw, nil
}

// NewCastWriter writes a cast stream to w. The caller writes the header.
func NewCastWriter(w io.Writer) *CastWriter {
	return &CastWriter{w: w, startTime: time.Now()}
}

// WriteHeader writes header, filling in the version and timestamp.
func (c *CastWriter) WriteHeader(header CastHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header.Version = 2
	if header.Timestamp == 0 {
		header.Timestamp = c.startTime.Unix()
	}
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteOutput records terminal output.
func (c *CastWriter) WriteOutput(data []byte) error {
	return c.writeEvent(EventOutput, string(data))
}

// WriteInput records keyboard input.
func (c *CastWriter) WriteInput(data []byte) error {
	return c.writeEvent(EventInput, string(data))
}

// WriteMarker records a marker with label.
func (c *CastWriter) WriteMarker(label string) error {
	return c.writeEvent(EventMarker, label)
}

func (c *CastWriter) writeEvent(code, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w == nil {
		return errors.New("cast writer closed")
	}
	line, err := json.Marshal(CastEvent{
		Time: time.Since(c.startTime).Seconds(),
		Code: code,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the underlying file if the writer owns one. Later writes fail.
func (c *CastWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w = nil
	if c.file != nil {
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}
