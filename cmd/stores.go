package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hacastro22/watibot3-sub002/internal/config"
	"github.com/hacastro22/watibot3-sub002/internal/store"
	"github.com/hacastro22/watibot3-sub002/internal/store/pg"
	"github.com/hacastro22/watibot3-sub002/internal/store/sqlite"
	"github.com/hacastro22/watibot3-sub002/internal/upgrade"
)

// openStores selects the buffer backend from the database section:
// Postgres in managed mode (schema-gated), SQLite otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	if cfg.Database.Mode == "managed" && cfg.Database.PostgresDSN == "" {
		return nil, errors.New("managed mode requires WATIBOT_POSTGRES_DSN")
	}
	if cfg.IsManagedMode() {
		if err := checkSchemaOrAutoUpgrade(ctx, cfg.Database.PostgresDSN); err != nil {
			return nil, err
		}
		stores, err := pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
		if err != nil {
			return nil, err
		}
		slog.Info("buffer store: postgres")
		return stores, nil
	}

	path := config.ExpandHome(cfg.Database.SQLitePath)
	stores, err := sqlite.NewStores(store.StoreConfig{SQLitePath: path})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	slog.Info("buffer store: sqlite", "path", path)
	return stores, nil
}

// checkSchemaOrAutoUpgrade gates managed-mode startup on schema compatibility.
// With WATIBOT_AUTO_UPGRADE=true an outdated schema is migrated inline.
func checkSchemaOrAutoUpgrade(ctx context.Context, dsn string) error {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if !s.NeedsMigration || os.Getenv("WATIBOT_AUTO_UPGRADE") != "true" {
		return fmt.Errorf("%w\n%s", s.Err(), upgrade.FormatError(s))
	}

	slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
	m, err := newMigrator(dsn)
	if err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	defer m.Close()

	if err := ignoreNoChange(m.Up()); err != nil {
		return fmt.Errorf("auto-upgrade: migrate up: %w", err)
	}
	v, _, _ := m.Version()
	slog.Info("auto-upgrade complete", "version", v)
	return nil
}
