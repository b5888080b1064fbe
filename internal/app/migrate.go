package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/store/migrations"
)

func openDB(db config.DatabaseConfig) (*sql.DB, migrations.Dialect, error) {
	switch db.Driver {
	case config.DriverPostgres:
		conn, err := sql.Open("pgx", db.DSN)
		return conn, migrations.Postgres, err
	case config.DriverSQLite, "":
		conn, err := sql.Open("sqlite3", db.Path+"?_foreign_keys=on")
		return conn, migrations.SQLite, err
	}
	return nil, "", fmt.Errorf("unsupported database driver %q", db.Driver)
}

// Migrate applies pending migrations without starting the server.
func Migrate(ctx context.Context, db config.DatabaseConfig, logger *zerolog.Logger) (int, error) {
	conn, dialect, err := openDB(db)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	return migrations.Up(ctx, conn, dialect, logger)
}

// MigrationStatus lists every migration and whether it has been applied.
func MigrationStatus(ctx context.Context, db config.DatabaseConfig) ([]migrations.Status, error) {
	conn, dialect, err := openDB(db)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	return migrations.List(ctx, conn, dialect)
}
