package model

import (
	"encoding/json"
	"time"
)

// Record status values stored in the agent_sessions table.
const (
	RecordStatusRunning = "running"
	RecordStatusStopped = "stopped"
)

// SessionRecord is the durable row for an agent session. It is written by the
// application layer and read by the core only as a scrollback fallback.
type SessionRecord struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Scrollback string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AgentConfig is a saved agent command preset.
type AgentConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
}

// ArgsToJSON converts Args to a JSON array string for storage.
func (c *AgentConfig) ArgsToJSON() (string, error) {
	if c.Args == nil {
		return "[]", nil
	}
	data, err := json.Marshal(c.Args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ArgsFromJSON parses a JSON array string into Args.
func (c *AgentConfig) ArgsFromJSON(data string) error {
	if data == "" {
		c.Args = []string{}
		return nil
	}
	return json.Unmarshal([]byte(data), &c.Args)
}

// Validate validates the agent config.
func (c *AgentConfig) Validate() error {
	if c.Command == "" {
		return ErrCommandRequired
	}
	return nil
}
