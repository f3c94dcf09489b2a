package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thiemotorres/spawn/internal/db"
	"github.com/thiemotorres/spawn/internal/events"
	"github.com/thiemotorres/spawn/internal/logger"
	"github.com/thiemotorres/spawn/internal/model"
	"github.com/thiemotorres/spawn/internal/pty"
	"github.com/thiemotorres/spawn/internal/pty/ptytest"
	"github.com/thiemotorres/spawn/internal/repository"
	"github.com/thiemotorres/spawn/internal/session"
	"github.com/thiemotorres/spawn/internal/ws"
)

type testEnv struct {
	service  *Service
	backend  *ptytest.Backend
	sessions *repository.SessionRepository
	configs  *repository.AgentConfigRepository
	bus      *events.Bus
}

func setupTestService(t *testing.T, backend *ptytest.Backend, config Config) *testEnv {
	t.Helper()
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	env := &testEnv{
		backend:  backend,
		sessions: repository.NewSessionRepository(database),
		configs:  repository.NewAgentConfigRepository(database),
		bus:      events.NewBus(),
	}
	hub := ws.NewHub(64)
	env.service = New(Deps{
		Backend:   backend,
		Publisher: hub,
		Sessions:  env.sessions,
		Configs:   env.configs,
		Bus:       env.bus,
	}, config)

	t.Cleanup(func() {
		env.service.Close()
		env.bus.Close()
		hub.Close()
		database.Close()
	})
	return env
}

func TestSpawnAgentUsesDefaultConfig(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	record, err := env.service.SpawnAgent(ctx, AgentRequest{ProjectID: "p1", ProjectPath: "/src/p1"})
	if err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	if record.ID == "" {
		t.Fatal("Expected a generated session id")
	}
	if record.Status != model.RecordStatusRunning {
		t.Errorf("Expected running record, got %s", record.Status)
	}
	if record.Name != "Claude" {
		t.Errorf("Expected name from default config, got %q", record.Name)
	}

	opts := env.backend.Last().Options
	if opts.Command != "claude" || opts.Dir != "/src/p1" {
		t.Errorf("Unexpected spawn options %+v", opts)
	}
}

func TestSpawnAgentWithConfigOrCommand(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	aider := &model.AgentConfig{Name: "Aider", Command: "aider", Args: []string{"--yes"}}
	if err := env.configs.Add(ctx, aider); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", AgentConfigID: aider.ID}); err != nil {
		t.Fatalf("SpawnAgent with config: %v", err)
	}
	if opts := env.backend.Last().Options; opts.Command != "aider" || len(opts.Args) != 1 {
		t.Errorf("Unexpected options %+v", opts)
	}

	record, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a2", ProjectID: "p1", Command: "codex", Args: []string{"exec"}})
	if err != nil {
		t.Fatalf("SpawnAgent with command: %v", err)
	}
	if record.Name != "codex" {
		t.Errorf("Expected name to default to command, got %q", record.Name)
	}

	_, err = env.service.SpawnAgent(ctx, AgentRequest{ProjectID: "p1", AgentConfigID: "missing"})
	if !errors.Is(err, model.ErrAgentConfigNotFound) {
		t.Errorf("Expected ErrAgentConfigNotFound, got %v", err)
	}

	records, _ := env.service.ListSessions(ctx, "p1")
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
}

func TestSpawnAgentFailureRemovesRecord(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{OpenErr: errors.New("exec format error")}, Config{})
	ctx := context.Background()

	_, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "bad", ProjectID: "p1", Command: "broken"})
	var spawnErr *model.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Expected *model.SpawnError, got %v", err)
	}
	if _, err := env.sessions.GetByID(ctx, "bad"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected record to be removed, got %v", err)
	}
}

func TestRespawnFailureKeepsRecordStopped(t *testing.T) {
	backend := &ptytest.Backend{}
	env := setupTestService(t, backend, Config{})
	ctx := context.Background()

	env.sessions.Create(ctx, &model.SessionRecord{ID: "a1", ProjectID: "p1", Name: "kept"})
	backend.OpenErr = errors.New("permission denied")

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", Command: "claude"}); err == nil {
		t.Fatal("Expected spawn to fail")
	}
	record, err := env.sessions.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("Expected existing record to survive, got %v", err)
	}
	if record.Status != model.RecordStatusStopped || record.Name != "kept" {
		t.Errorf("Unexpected record after failed respawn: %+v", record)
	}
}

func TestRespawnFailureOverRunningSessionKeepsRecordRunning(t *testing.T) {
	backend := &ptytest.Backend{}
	env := setupTestService(t, backend, Config{})
	ctx := context.Background()

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", Command: "claude"}); err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	backend.OpenErr = errors.New("no such file")

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", Command: "bogus"}); err == nil {
		t.Fatal("Expected respawn to fail")
	}
	snap, ok := env.service.Manager().Snapshot("a1")
	if !ok || snap.Status != session.StatusRunning {
		t.Fatalf("Expected the first session to keep running, got %+v", snap)
	}
	record, err := env.sessions.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if record.Status != model.RecordStatusRunning {
		t.Errorf("Expected record to stay running, got %s", record.Status)
	}
}

func TestEachSessionStartGetsItsOwnRecording(t *testing.T) {
	dir := t.TempDir()
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer database.Close()

	recorder, err := logger.NewRecorder(logger.RecorderConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	hub := ws.NewHub(64)
	recDone := make(chan error, 1)
	sub := hub.Subscribe()
	go func() { recDone <- recorder.Run(context.Background(), sub) }()

	bus := events.NewBus()
	defer bus.Close()
	backend := &ptytest.Backend{Script: [][]byte{[]byte("prompt$ ")}, ExitAfterScript: true}
	service := New(Deps{
		Backend:   backend,
		Publisher: hub,
		Sessions:  repository.NewSessionRepository(database),
		Configs:   repository.NewAgentConfigRepository(database),
		Bus:       bus,
		Recorder:  recorder,
	}, Config{})
	defer service.Close()

	evs, unsub := service.Events()
	defer unsub()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := service.SpawnShell(ctx, "sh", ""); err != nil {
			t.Fatalf("SpawnShell %d: %v", i, err)
		}
		select {
		case <-evs:
		case <-time.After(2 * time.Second):
			t.Fatalf("Expected session-exited event for start %d", i)
		}
		time.Sleep(2 * time.Millisecond)
	}

	hub.Close()
	if err := <-recDone; err != nil {
		t.Fatalf("recorder Run: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "sh-*.cast"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected one cast file per session start, got %d", len(files))
	}
}

func TestSessionExitPersistsAndPublishes(t *testing.T) {
	backend := &ptytest.Backend{
		Script:          [][]byte{[]byte("0123456789"), []byte("abcdef")},
		ExitAfterScript: true,
	}
	env := setupTestService(t, backend, Config{ScrollbackLimit: 8})
	ctx := context.Background()

	evs, unsub := env.service.Events()
	defer unsub()

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", Command: "true"}); err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}

	select {
	case e := <-evs:
		if e.SessionID != "a1" {
			t.Errorf("Expected event for a1, got %s", e.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected session-exited event")
	}

	record, err := env.sessions.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if record.Status != model.RecordStatusStopped {
		t.Errorf("Expected stopped, got %s", record.Status)
	}
	if record.Scrollback != "89abcdef" {
		t.Errorf("Expected bounded tail '89abcdef', got %q", record.Scrollback)
	}

	live, _ := env.service.Scrollback(ctx, "a1")
	if string(live) != "0123456789abcdef" {
		t.Errorf("Expected full live scrollback, got %q", live)
	}

	if err := env.service.Kill(ctx, "a1"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if _, err := env.sessions.GetByID(ctx, "a1"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected record to be deleted on kill, got %v", err)
	}
}

func TestScrollbackFallsBackToStore(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	env.sessions.Create(ctx, &model.SessionRecord{ID: "old", ProjectID: "p1"})
	env.sessions.SaveScrollback(ctx, "old", []byte("from a previous run"))

	data, err := env.service.Scrollback(ctx, "old")
	if err != nil {
		t.Fatalf("Scrollback: %v", err)
	}
	if string(data) != "from a previous run" {
		t.Errorf("Unexpected scrollback %q", data)
	}

	data, err = env.service.Scrollback(ctx, "never")
	if err != nil || len(data) != 0 {
		t.Errorf("Expected empty scrollback, got %q, %v", data, err)
	}
}

func TestKillUnknownSession(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	if err := env.service.Kill(context.Background(), "nope"); err != nil {
		t.Errorf("Expected nil for unknown session, got %v", err)
	}
}

func TestShellSessionsHaveNoRecord(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{ExitAfterScript: true}, Config{})
	ctx := context.Background()

	evs, unsub := env.service.Events()
	defer unsub()

	if err := env.service.SpawnShell(ctx, "sh1", "/tmp"); err != nil {
		t.Fatalf("SpawnShell: %v", err)
	}
	select {
	case <-evs:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected session-exited event for the shell")
	}
	if _, err := env.sessions.GetByID(ctx, "sh1"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected no record for a shell, got %v", err)
	}
}

func TestWriteResizeRename(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", Command: "claude"}); err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	if err := env.service.Write("a1", []byte("hi\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := string(env.backend.Last().Input()); got != "hi\r" {
		t.Errorf("Expected input 'hi\\r', got %q", got)
	}
	if err := env.service.Resize("a1", 132, 43); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if sizes := env.backend.Last().Sizes(); len(sizes) != 1 || sizes[0] != (pty.Size{Rows: 43, Cols: 132}) {
		t.Errorf("Unexpected sizes %v", sizes)
	}
	if err := env.service.Rename(ctx, "a1", "reviewer"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	record, _ := env.sessions.GetByID(ctx, "a1")
	if record.Name != "reviewer" {
		t.Errorf("Expected renamed record, got %q", record.Name)
	}

	if err := env.service.Write("missing", []byte("x")); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestReconcile(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	env.sessions.Create(ctx, &model.SessionRecord{ID: "stale", ProjectID: "p1", Status: model.RecordStatusRunning})
	if err := env.service.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	record, _ := env.sessions.GetByID(ctx, "stale")
	if record.Status != model.RecordStatusStopped {
		t.Errorf("Expected stale record stopped, got %s", record.Status)
	}
}

func TestClosePersistsLiveSessions(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	if _, err := env.service.SpawnAgent(ctx, AgentRequest{SessionID: "a1", ProjectID: "p1", Command: "claude"}); err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	if err := env.backend.Last().Emit([]byte("work in progress")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := env.service.Scrollback(ctx, "a1")
		if string(data) == "work in progress" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for scrollback")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := env.service.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	record, _ := env.sessions.GetByID(ctx, "a1")
	if record.Status != model.RecordStatusStopped || record.Scrollback != "work in progress" {
		t.Errorf("Unexpected record after close: %+v", record)
	}
}

func TestSessionInfo(t *testing.T) {
	env := setupTestService(t, &ptytest.Backend{}, Config{})
	ctx := context.Background()

	if _, err := env.service.SessionInfo(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	if err := env.service.SpawnShell(ctx, "sh1", ""); err != nil {
		t.Fatalf("SpawnShell: %v", err)
	}
	info, err := env.service.SessionInfo(ctx, "sh1")
	if err != nil {
		t.Fatalf("SessionInfo: %v", err)
	}
	if info.ID != "sh1" || info.PID != env.backend.Last().PID() {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestProcessStatsForOwnPID(t *testing.T) {
	stats := processStats(context.Background(), os.Getpid())
	if !stats.Alive {
		t.Error("Expected the test process to be alive")
	}
	if stats.RSS == 0 {
		t.Error("Expected a non-zero RSS for the test process")
	}
}
