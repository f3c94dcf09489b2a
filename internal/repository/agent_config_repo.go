package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thiemotorres/spawn/internal/model"
)

// AgentConfigRepository provides data access for agent configs.
type AgentConfigRepository struct {
	db *sql.DB
}

// NewAgentConfigRepository creates a new AgentConfigRepository.
func NewAgentConfigRepository(db *sql.DB) *AgentConfigRepository {
	return &AgentConfigRepository{db: db}
}

const agentConfigColumns = `id, name, command, args, is_default, created_at`

func scanAgentConfig(row interface{ Scan(...any) error }) (*model.AgentConfig, error) {
	cfg := &model.AgentConfig{}
	var argsJSON string
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Command,
		&argsJSON,
		&cfg.IsDefault,
		&cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ArgsFromJSON(argsJSON); err != nil {
		return nil, fmt.Errorf("failed to parse args: %w", err)
	}
	return cfg, nil
}

// List returns every agent config, the default first, then oldest first.
func (r *AgentConfigRepository) List(ctx context.Context) ([]*model.AgentConfig, error) {
	query := `SELECT ` + agentConfigColumns + `
		FROM agent_configs
		ORDER BY is_default DESC, created_at ASC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent configs: %w", err)
	}
	defer rows.Close()

	configs := []*model.AgentConfig{}
	for rows.Next() {
		cfg, err := scanAgentConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent configs: %w", err)
	}
	return configs, nil
}

// GetByID retrieves an agent config by its ID.
func (r *AgentConfigRepository) GetByID(ctx context.Context, id string) (*model.AgentConfig, error) {
	query := `SELECT ` + agentConfigColumns + ` FROM agent_configs WHERE id = ?`

	cfg, err := scanAgentConfig(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrAgentConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent config: %w", err)
	}
	return cfg, nil
}

// GetDefault retrieves the default agent config.
func (r *AgentConfigRepository) GetDefault(ctx context.Context) (*model.AgentConfig, error) {
	query := `SELECT ` + agentConfigColumns + ` FROM agent_configs WHERE is_default = 1 LIMIT 1`

	cfg, err := scanAgentConfig(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrAgentConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default agent config: %w", err)
	}
	return cfg, nil
}

// Add stores a new, non-default agent config and assigns its ID.
func (r *AgentConfigRepository) Add(ctx context.Context, cfg *model.AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	argsJSON, err := cfg.ArgsToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize args: %w", err)
	}

	cfg.ID = uuid.New().String()
	cfg.IsDefault = false
	cfg.CreatedAt = time.Now().UTC()

	query := `INSERT INTO agent_configs (id, name, command, args, is_default, created_at) VALUES (?, ?, ?, ?, 0, ?)`
	if _, err := r.db.ExecContext(ctx, query, cfg.ID, cfg.Name, cfg.Command, argsJSON, cfg.CreatedAt); err != nil {
		return fmt.Errorf("failed to add agent config: %w", err)
	}
	return nil
}

// Update changes an agent config's name, command and args.
func (r *AgentConfigRepository) Update(ctx context.Context, cfg *model.AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	argsJSON, err := cfg.ArgsToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize args: %w", err)
	}

	query := `UPDATE agent_configs SET name = ?, command = ?, args = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, cfg.Name, cfg.Command, argsJSON, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update agent config: %w", err)
	}
	return requireAffected(result, model.ErrAgentConfigNotFound)
}

// Delete removes a non-default agent config.
func (r *AgentConfigRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM agent_configs WHERE id = ? AND is_default = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent config: %w", err)
	}

	err = requireAffected(result, model.ErrAgentConfigNotFound)
	if !errors.Is(err, model.ErrAgentConfigNotFound) {
		return err
	}

	// Tell a refused default apart from a missing id.
	if cfg, getErr := r.GetByID(ctx, id); getErr == nil && cfg.IsDefault {
		return model.ErrDefaultAgentConfig
	}
	return err
}

// SetDefault makes id the only default agent config.
func (r *AgentConfigRepository) SetDefault(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM agent_configs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrAgentConfigNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get agent config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE agent_configs SET is_default = CASE WHEN id = ? THEN 1 ELSE 0 END`, id); err != nil {
		return fmt.Errorf("failed to set default agent config: %w", err)
	}
	return tx.Commit()
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
