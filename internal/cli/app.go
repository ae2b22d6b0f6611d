package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/persistence/memory"
	"ROLLCALL-backend/internal/persistence/mysql"
	"ROLLCALL-backend/internal/platform/config"
	"ROLLCALL-backend/internal/platform/db"
	"ROLLCALL-backend/internal/platform/logging"
)

// env は設定・ロガー・ストアをまとめたもの。close で接続を閉じる
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  persistence.Store
	conn   *sql.DB // memory ドライバでは nil
}

func (e *env) close() {
	if e.conn == nil {
		return
	}
	if err := e.conn.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
}

func loadConfig(opts *RootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitConfigError, "failed to load config", err)
	}
	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger}

	switch cfg.DB.Driver {
	case "memory":
		st := memory.New()
		if cfg.Seed != "" {
			seed, err := memory.ReadSeed(cfg.Seed)
			if err != nil {
				return nil, WrapExitError(ExitConfigError, "failed to read seed", err)
			}
			if err := st.Load(seed); err != nil {
				return nil, WrapExitError(ExitConfigError, "failed to load seed", err)
			}
		}
		logger.Warn("using in-memory store; data is lost on exit", "seed", cfg.Seed)
		e.store = st
	default:
		conn, err := db.Connect(ctx, cfg.DB)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to connect database", err)
		}
		logger.Info("connected to DB", "dbname", cfg.DB.DBName, "host", cfg.DB.Host)
		e.conn = conn
		e.store = mysql.NewStore(conn)
	}
	return e, nil
}

func requireMySQL(cfg *config.Config) error {
	if cfg.DB.Driver != "mysql" {
		return WrapExitError(ExitConfigError, "command needs the mysql driver", fmt.Errorf("database.driver is %q", cfg.DB.Driver))
	}
	return nil
}
