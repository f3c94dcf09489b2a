package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/thiemotorres/spawn/internal/db"
	"github.com/thiemotorres/spawn/internal/model"
)

func TestAgentConfigRepository(t *testing.T) {
	repo := NewAgentConfigRepository(setupTestDB(t))
	ctx := context.Background()

	t.Run("builtin default is seeded", func(t *testing.T) {
		cfg, err := repo.GetDefault(ctx)
		if err != nil {
			t.Fatalf("GetDefault: %v", err)
		}
		if cfg.ID != db.DefaultAgentConfigID || cfg.Command != "claude" {
			t.Errorf("Unexpected default: %+v", cfg)
		}
		if cfg.Args == nil || len(cfg.Args) != 0 {
			t.Errorf("Expected empty args, got %v", cfg.Args)
		}
	})

	aider := &model.AgentConfig{Name: "Aider", Command: "aider", Args: []string{"--model", "sonnet"}}
	if err := repo.Add(ctx, aider); err != nil {
		t.Fatalf("Add: %v", err)
	}
	codex := &model.AgentConfig{Name: "Codex", Command: "codex"}
	if err := repo.Add(ctx, codex); err != nil {
		t.Fatalf("Add: %v", err)
	}

	t.Run("add validates command", func(t *testing.T) {
		err := repo.Add(ctx, &model.AgentConfig{Name: "empty"})
		if !errors.Is(err, model.ErrCommandRequired) {
			t.Errorf("Expected ErrCommandRequired, got %v", err)
		}
	})

	t.Run("add assigns id and round-trips args", func(t *testing.T) {
		if aider.ID == "" {
			t.Fatal("Expected Add to assign an id")
		}
		got, err := repo.GetByID(ctx, aider.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.IsDefault {
			t.Error("Expected added config not to be default")
		}
		if len(got.Args) != 2 || got.Args[0] != "--model" || got.Args[1] != "sonnet" {
			t.Errorf("Unexpected args %v", got.Args)
		}
	})

	t.Run("list puts default first", func(t *testing.T) {
		configs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(configs) != 3 {
			t.Fatalf("Expected 3 configs, got %d", len(configs))
		}
		if !configs[0].IsDefault {
			t.Errorf("Expected first config to be the default, got %+v", configs[0])
		}
	})

	t.Run("update", func(t *testing.T) {
		codex.Args = []string{"--full-auto"}
		codex.Name = "Codex CLI"
		if err := repo.Update(ctx, codex); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, _ := repo.GetByID(ctx, codex.ID)
		if got.Name != "Codex CLI" || len(got.Args) != 1 {
			t.Errorf("Unexpected config after update: %+v", got)
		}

		missing := &model.AgentConfig{ID: "missing", Command: "x"}
		if err := repo.Update(ctx, missing); !errors.Is(err, model.ErrAgentConfigNotFound) {
			t.Errorf("Expected ErrAgentConfigNotFound, got %v", err)
		}
	})

	t.Run("set default keeps exactly one", func(t *testing.T) {
		if err := repo.SetDefault(ctx, aider.ID); err != nil {
			t.Fatalf("SetDefault: %v", err)
		}
		configs, _ := repo.List(ctx)
		defaults := 0
		for _, c := range configs {
			if c.IsDefault {
				defaults++
			}
		}
		if defaults != 1 {
			t.Errorf("Expected exactly 1 default, got %d", defaults)
		}
		if configs[0].ID != aider.ID {
			t.Errorf("Expected %s first, got %s", aider.ID, configs[0].ID)
		}

		if err := repo.SetDefault(ctx, "missing"); !errors.Is(err, model.ErrAgentConfigNotFound) {
			t.Errorf("Expected ErrAgentConfigNotFound, got %v", err)
		}
	})

	t.Run("delete refuses the default", func(t *testing.T) {
		if err := repo.Delete(ctx, aider.ID); !errors.Is(err, model.ErrDefaultAgentConfig) {
			t.Errorf("Expected ErrDefaultAgentConfig, got %v", err)
		}
		if err := repo.Delete(ctx, db.DefaultAgentConfigID); err != nil {
			t.Errorf("Expected former default to be deletable, got %v", err)
		}
		if err := repo.Delete(ctx, "missing"); !errors.Is(err, model.ErrAgentConfigNotFound) {
			t.Errorf("Expected ErrAgentConfigNotFound, got %v", err)
		}
	})
}
