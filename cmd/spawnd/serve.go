package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thiemotorres/spawn/api/handlers"
	"github.com/thiemotorres/spawn/internal/app"
	"github.com/thiemotorres/spawn/internal/config"
	"github.com/thiemotorres/spawn/internal/db"
	"github.com/thiemotorres/spawn/internal/events"
	"github.com/thiemotorres/spawn/internal/logger"
	"github.com/thiemotorres/spawn/internal/pty"
	"github.com/thiemotorres/spawn/internal/repository"
	"github.com/thiemotorres/spawn/internal/session"
	"github.com/thiemotorres/spawn/internal/ws"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	configPath string
	apiAddr    string
	dbPath     string
	recordDir  string
	logLevel   string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session API and the output relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.apiAddr, "api-addr", "", "address for the session API")
	flags.StringVar(&opts.dbPath, "db", "", "path to the SQLite session store")
	flags.StringVar(&opts.recordDir, "record-dir", "", "directory for asciicast recordings")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}

// loadConfig reads the config file and applies any flags that were set.
func loadConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-addr") {
		cfg.API.Addr = opts.apiAddr
	}
	if flags.Changed("db") {
		cfg.Store.Path = opts.dbPath
	}
	if flags.Changed("record-dir") {
		cfg.Record.Dir = opts.recordDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := (&config.Config{Log: cfg}).SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// serve runs until ctx is cancelled or a listener fails.
func serve(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	log, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	database, err := db.InitDB(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.CloseDB()

	bus := events.NewBus()
	defer bus.Close()
	hub := ws.NewHub(cfg.Relay.HubCapacity)
	defer hub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var recorder *logger.Recorder
	if cfg.Record.Dir != "" {
		recorder, err = logger.NewRecorder(logger.RecorderConfig{
			Dir:    cfg.Record.Dir,
			Width:  int(cfg.Terminal.Cols),
			Height: int(cfg.Terminal.Rows),
			Logger: log,
		})
		if err != nil {
			return err
		}
		defer recorder.Close()

		sub := hub.Subscribe()
		go func() {
			defer sub.Close()
			if err := recorder.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("recorder stopped", "error", err)
			}
		}()
	}

	service := app.New(app.Deps{
		Backend:   pty.Native{},
		Publisher: hub,
		Sessions:  repository.NewSessionRepository(database),
		Configs:   repository.NewAgentConfigRepository(database),
		Bus:       bus,
		Recorder:  recorder,
	}, app.Config{
		Session: session.Config{
			Shell:       cfg.Terminal.Shell,
			InitialSize: pty.Size{Rows: cfg.Terminal.Rows, Cols: cfg.Terminal.Cols},
			Logger:      log,
		},
		ScrollbackLimit: cfg.Store.ScrollbackLimit,
		Logger:          log,
	})
	defer func() {
		if err := service.Close(); err != nil {
			log.Error("failed to close sessions", "error", err)
		}
	}()

	if err := service.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile sessions: %w", err)
	}

	ln, err := ws.Listen(cfg.Relay.Port)
	if err != nil {
		return err
	}
	relay := ws.NewServer(hub, ws.ServerConfig{
		PingInterval: cfg.Relay.PingInterval,
		WriteTimeout: cfg.Relay.WriteTimeout,
		Logger:       log,
	})

	api := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: handlers.NewRouter(service, log),
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- relay.Serve(ctx, ln)
	}()
	go func() {
		log.Info("api listening", "addr", cfg.API.Addr)
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", "error", err)
	}
	return nil
}
