package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thiemotorres/spawn/internal/model"
)

// SessionRepository provides data access for agent session records.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session record. An empty status is stored as stopped.
func (r *SessionRepository) Create(ctx context.Context, record *model.SessionRecord) error {
	if record.Status == "" {
		record.Status = model.RecordStatusStopped
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `
		INSERT INTO agent_sessions (id, project_id, name, status, scrollback, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.ProjectID,
		record.Name,
		record.Status,
		record.Scrollback,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

const sessionColumns = `id, project_id, name, status, scrollback, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*model.SessionRecord, error) {
	record := &model.SessionRecord{}
	err := row.Scan(
		&record.ID,
		&record.ProjectID,
		&record.Name,
		&record.Status,
		&record.Scrollback,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetByID retrieves a session record by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM agent_sessions WHERE id = ?`

	record, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return record, nil
}

// ListByProject retrieves every session record of a project, newest first.
func (r *SessionRepository) ListByProject(ctx context.Context, projectID string) ([]*model.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + `
		FROM agent_sessions
		WHERE project_id = ?
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	records := []*model.SessionRecord{}
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return records, nil
}

// UpdateStatus updates the status of a session record.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE agent_sessions SET status = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, "update session status", query, status, time.Now().UTC(), id)
}

// SaveScrollback marks a session record stopped and stores its scrollback.
func (r *SessionRepository) SaveScrollback(ctx context.Context, id string, scrollback []byte) error {
	query := `UPDATE agent_sessions SET status = ?, scrollback = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, "save scrollback", query, model.RecordStatusStopped, string(scrollback), time.Now().UTC(), id)
}

// Rename changes a session record's display name.
func (r *SessionRepository) Rename(ctx context.Context, id, name string) error {
	query := `UPDATE agent_sessions SET name = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, "rename session", query, name, time.Now().UTC(), id)
}

// Delete removes a session record.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM agent_sessions WHERE id = ?`
	return r.execOne(ctx, "delete session", query, id)
}

// MarkRunningStopped marks every running record stopped and returns how many
// were changed. Processes do not survive a restart, so this runs at startup.
func (r *SessionRepository) MarkRunningStopped(ctx context.Context) (int64, error) {
	query := `UPDATE agent_sessions SET status = ?, updated_at = ? WHERE status = ?`

	result, err := r.db.ExecContext(ctx, query, model.RecordStatusStopped, time.Now().UTC(), model.RecordStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Scrollback returns the stored scrollback of a session record.
func (r *SessionRepository) Scrollback(ctx context.Context, id string) ([]byte, error) {
	var scrollback string
	err := r.db.QueryRowContext(ctx, `SELECT scrollback FROM agent_sessions WHERE id = ?`, id).Scan(&scrollback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scrollback: %w", err)
	}
	return []byte(scrollback), nil
}

// execOne runs a statement that must affect exactly one session record.
func (r *SessionRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}
