package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FrameType tags relay frames.
type FrameType string

const (
	FrameTerminalOutput FrameType = "TerminalOutput"
	FramePing           FrameType = "Ping"
)

// Frame is a server-to-client relay message.
type Frame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      ByteArray `json:"data,omitempty"`
}

// NewOutputFrame wraps one hub message.
func NewOutputFrame(msg Message) Frame {
	return Frame{Type: FrameTerminalOutput, SessionID: msg.SessionID, Data: msg.Data}
}

// ByteArray is raw bytes encoded as a JSON array of numbers rather than the
// base64 string encoding/json uses for []byte.
type ByteArray []byte

// MarshalJSON encodes b as [n,n,...].
func (b ByteArray) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON decodes a JSON array of numbers in 0..255.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
