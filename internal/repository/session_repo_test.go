package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/thiemotorres/spawn/internal/db"
	"github.com/thiemotorres/spawn/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return testDB
}

func TestSessionRepository(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		record := &model.SessionRecord{
			ID:        id,
			ProjectID: "p1",
			Name:      "agent " + id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := repo.Create(ctx, &model.SessionRecord{ID: "other", ProjectID: "p2"}); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	t.Run("create defaults to stopped", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "old")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != model.RecordStatusStopped {
			t.Errorf("Expected stopped, got %s", got.Status)
		}
		if got.Name != "agent old" || got.ProjectID != "p1" {
			t.Errorf("Unexpected record: %+v", got)
		}
	})

	t.Run("list by project newest first", func(t *testing.T) {
		records, err := repo.ListByProject(ctx, "p1")
		if err != nil {
			t.Fatalf("ListByProject: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}
		if records[0].ID != "new" || records[1].ID != "old" {
			t.Errorf("Expected [new old], got [%s %s]", records[0].ID, records[1].ID)
		}

		empty, err := repo.ListByProject(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListByProject: %v", err)
		}
		if empty == nil || len(empty) != 0 {
			t.Errorf("Expected empty non-nil slice, got %v", empty)
		}
	})

	t.Run("status, rename and scrollback", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "new", model.RecordStatusRunning); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if err := repo.Rename(ctx, "new", "renamed"); err != nil {
			t.Fatalf("Rename: %v", err)
		}
		got, _ := repo.GetByID(ctx, "new")
		if got.Status != model.RecordStatusRunning || got.Name != "renamed" {
			t.Errorf("Unexpected record after update: %+v", got)
		}

		if err := repo.SaveScrollback(ctx, "new", []byte("\x1b[1mdone\x1b[0m")); err != nil {
			t.Fatalf("SaveScrollback: %v", err)
		}
		data, err := repo.Scrollback(ctx, "new")
		if err != nil {
			t.Fatalf("Scrollback: %v", err)
		}
		if string(data) != "\x1b[1mdone\x1b[0m" {
			t.Errorf("Unexpected scrollback %q", data)
		}
		got, _ = repo.GetByID(ctx, "new")
		if got.Status != model.RecordStatusStopped {
			t.Errorf("Expected SaveScrollback to mark stopped, got %s", got.Status)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("GetByID: expected ErrSessionNotFound, got %v", err)
		}
		if _, err := repo.Scrollback(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("Scrollback: expected ErrSessionNotFound, got %v", err)
		}
		if err := repo.Rename(ctx, "missing", "x"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("Rename: expected ErrSessionNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("Delete: expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("mark running stopped", func(t *testing.T) {
		repo.UpdateStatus(ctx, "old", model.RecordStatusRunning)
		repo.UpdateStatus(ctx, "other", model.RecordStatusRunning)

		n, err := repo.MarkRunningStopped(ctx)
		if err != nil {
			t.Fatalf("MarkRunningStopped: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 records reconciled, got %d", n)
		}
		for _, id := range []string{"old", "new", "other"} {
			got, _ := repo.GetByID(ctx, id)
			if got.Status != model.RecordStatusStopped {
				t.Errorf("Expected %s stopped, got %s", id, got.Status)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "old"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := repo.GetByID(ctx, "old"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("Expected deleted record to be gone, got %v", err)
		}
	})
}

// Any record, once created, reads back unchanged and its scrollback survives
// a save byte for byte.
func TestSessionRecordRoundTripProperty(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("records and scrollback persist", prop.ForAll(
		func(projectID, name string, scrollback []byte) bool {
			id := uuid.New().String()
			record := &model.SessionRecord{ID: id, ProjectID: projectID, Name: name}
			if err := repo.Create(ctx, record); err != nil {
				t.Logf("failed to create session: %v", err)
				return false
			}
			defer repo.Delete(ctx, id)

			got, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Logf("failed to retrieve session: %v", err)
				return false
			}
			if got.ProjectID != projectID || got.Name != name || got.Status != model.RecordStatusStopped {
				return false
			}

			if err := repo.SaveScrollback(ctx, id, scrollback); err != nil {
				t.Logf("failed to save scrollback: %v", err)
				return false
			}
			stored, err := repo.Scrollback(ctx, id)
			if err != nil {
				return false
			}
			return bytes.Equal(stored, scrollback) || (len(stored) == 0 && len(scrollback) == 0)
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.SliceOf(gen.UInt8Range(1, 127)),
	))

	properties.TestingRun(t)
}
