package app

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/thiemotorres/spawn/internal/model"
	"github.com/thiemotorres/spawn/internal/session"
)

// SessionInfo describes a live session.
type SessionInfo struct {
	ID              string         `json:"id"`
	OwnerContext    string         `json:"ownerContext,omitempty"`
	Status          session.Status `json:"status"`
	PID             int            `json:"pid,omitempty"`
	ScrollbackBytes int            `json:"scrollbackBytes"`
	Process         *ProcessStats  `json:"process,omitempty"`
}

// ProcessStats is what the OS reports about a session's child process.
type ProcessStats struct {
	Alive      bool    `json:"alive"`
	RSS        uint64  `json:"rss,omitempty"`
	CPUPercent float64 `json:"cpuPercent,omitempty"`
}

// SessionInfo returns the state of a registered session. Process stats are
// best effort and omitted when the pid cannot be inspected.
func (s *Service) SessionInfo(ctx context.Context, id string) (*SessionInfo, error) {
	snap, ok := s.manager.Snapshot(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrSessionNotFound)
	}

	info := &SessionInfo{
		ID:              snap.ID,
		OwnerContext:    snap.OwnerContext,
		Status:          snap.Status,
		PID:             snap.PID,
		ScrollbackBytes: len(snap.Scrollback),
	}
	if snap.PID > 0 && snap.Status != session.StatusStopped {
		info.Process = processStats(ctx, snap.PID)
	}
	return info, nil
}

func processStats(ctx context.Context, pid int) *ProcessStats {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return &ProcessStats{Alive: false}
	}

	stats := &ProcessStats{}
	stats.Alive, _ = p.IsRunningWithContext(ctx)
	if !stats.Alive {
		return stats
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}
