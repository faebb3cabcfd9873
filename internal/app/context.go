package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"retentionline/internal/calendar"
	"retentionline/internal/config"
	"retentionline/internal/db"
	"retentionline/internal/engine"
	"retentionline/internal/events"
	"retentionline/internal/logging"
	"retentionline/internal/metrics"
	"retentionline/internal/migrate"
	"retentionline/internal/notify"
	"retentionline/internal/roster"
)

// Options selects the workspace and overrides parts of retentionline.yml.
type Options struct {
	Workspace    string
	UnitOverride string
	LogLevel     string
	LogFormat    string
	LogOutput    io.Writer
}

// Runtime is an opened workspace: database, config and a wired engine.
type Runtime struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Logger *slog.Logger
}

// Close waits for pending notifications and bookings, then closes the
// database.
func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	r.Engine.Drain()
	return r.DB.Close()
}

// ResolveConfig loads the workspace config. Without a config file the
// defaults for unitOverride are used; an override always wins.
func ResolveConfig(workspace, unitOverride string) (*config.Config, error) {
	if unitOverride == "" {
		return config.Load(workspace)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(unitOverride)
	}
	cfg.Unit.ID = unitOverride
	return cfg, nil
}

// Open resolves config, migrates the database and syncs the unit and its
// department members.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := ResolveConfig(opts.Workspace, opts.UnitOverride)
	if err != nil {
		return nil, err
	}
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		format = opts.LogFormat
	}
	logger, err := logging.New(level, format, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := Build(conn, cfg, logger)
	if _, err := e.SyncUnit(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sync unit: %w", err)
	}
	return &Runtime{DB: conn, Config: cfg, Engine: e, Logger: logger}, nil
}

// Build wires an engine with the collaborators named in cfg.
func Build(conn *sql.DB, cfg *config.Config, logger *slog.Logger) engine.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Bus = events.NewBus(logger)
	metrics.Observe(e.Bus)
	e.Roster = roster.FromConfig(cfg.Roster)
	e.Calendar = calendar.FromConfig(cfg.Calendar)
	if hooks := notify.NewWebhook(cfg.Webhooks); hooks.Len() > 0 {
		e.Notifier = hooks
	} else {
		e.Notifier = notify.Log{Logger: logger}
	}
	return e
}
