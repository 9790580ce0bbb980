package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/motorlane/feedbridge/pkg/audit"
	"github.com/motorlane/feedbridge/pkg/config"
	"github.com/motorlane/feedbridge/pkg/inventory"
	"github.com/motorlane/feedbridge/pkg/pipeline"
	"github.com/motorlane/feedbridge/pkg/store"
	"github.com/motorlane/feedbridge/pkg/vault"
)

// App связывает зависимости одного вызова feedctl. База конфигураций
// открывается сразу; целевая база, vault и движок поднимаются лениво,
// только для команд, которым они нужны.
type App struct {
	cfg     *config.Config
	store   *store.Store
	log     *slog.Logger
	auditor audit.Logger

	target *inventory.Store
	engine *pipeline.Engine
	v      *vault.Vault
}

// newApp открывает базу конфигураций и журналы по сервисной конфигурации.
func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}

	app := &App{
		cfg:     cfg,
		store:   st,
		log:     newLogger(cfg.Logging),
		auditor: audit.NewNullLogger(),
	}

	if cfg.Audit.Enabled {
		auditor, err := newAuditLogger(cfg.Audit, st)
		if err != nil {
			st.Close()
			return nil, err
		}
		app.auditor = auditor
	}

	return app, nil
}

// Close освобождает все открытые ресурсы.
func (a *App) Close() {
	if a.target != nil {
		a.target.Close()
	}
	a.auditor.Close()
	a.store.Close()
}

// Vault возвращает vault, поднимая его при первом обращении.
// Парольная фраза читается только из окружения.
func (a *App) Vault() (*vault.Vault, error) {
	if a.v != nil {
		return a.v, nil
	}
	pass, err := config.Passphrase()
	if err != nil {
		return nil, err
	}
	v, err := vault.New(pass)
	if err != nil {
		return nil, err
	}
	a.v = v
	return v, nil
}

// Engine возвращает движок запусков, поднимая целевую базу и vault
// при первом обращении.
func (a *App) Engine(ctx context.Context) (*pipeline.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	v, err := a.Vault()
	if err != nil {
		return nil, err
	}

	target, err := inventory.Open(ctx, a.cfg.Inventory.Type, a.cfg.Inventory.BuildDSN())
	if err != nil {
		return nil, fmt.Errorf("open inventory database: %w", err)
	}
	if a.cfg.Inventory.Type == "sqlite" {
		if err := target.EnsureSchema(ctx); err != nil {
			target.Close()
			return nil, fmt.Errorf("ensure inventory schema: %w", err)
		}
	}
	a.target = target

	engine, err := pipeline.NewEngine(pipeline.Options{
		Store:             a.store,
		Vault:             v,
		Inventory:         target,
		Audit:             a.auditor,
		Logger:            a.log,
		TempDir:           a.cfg.Engine.TempDir,
		SummaryErrorLimit: a.cfg.Engine.SummaryErrorLimit,
	})
	if err != nil {
		return nil, err
	}
	a.engine = engine
	return engine, nil
}

// newLogger настраивает сервисный лог на stderr.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newAuditLogger собирает журнал аудита по конфигурации.
func newAuditLogger(cfg config.AuditConfig, st *store.Store) (audit.Logger, error) {
	level := parseAuditLevel(cfg.Level)

	var appenders []audit.Appender
	if cfg.File != "" {
		fa, err := audit.NewFileAppender(audit.FileAppenderConfig{
			FilePath: cfg.File,
			MaxSize:  int64(cfg.MaxSize),
			Level:    level,
		})
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		appenders = append(appenders, fa)
	}
	if cfg.Console {
		appenders = append(appenders, audit.NewConsoleAppender(level))
	}
	if cfg.Database {
		da, err := audit.NewDatabaseAppender(audit.DatabaseAppenderConfig{
			DB:              st.DB(),
			Level:           level,
			AutoCreateTable: true,
		})
		if err != nil {
			return nil, fmt.Errorf("open audit table: %w", err)
		}
		appenders = append(appenders, da)
	}
	if len(appenders) == 0 {
		return audit.NewNullLogger(), nil
	}

	return audit.NewLogger(audit.LoggerConfig{DefaultLevel: level}, appenders...), nil
}

func parseAuditLevel(s string) audit.Level {
	switch s {
	case "minimal":
		return audit.LevelMinimal
	case "full":
		return audit.LevelFull
	default:
		return audit.LevelStandard
	}
}
