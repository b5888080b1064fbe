// Package migrations embeds the schema for every supported database and
// applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedMigrations embed.FS

// Dialect names a supported database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) goose() (goose.Dialect, error) {
	switch d {
	case SQLite:
		return goose.DialectSQLite3, nil
	case Postgres:
		return goose.DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", d)
}

func newProvider(db *sql.DB, dialect Dialect, logger *zerolog.Logger) (*goose.Provider, error) {
	gd, err := dialect.goose()
	if err != nil {
		return nil, err
	}
	fsys, err := fs.Sub(embedMigrations, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", dialect, err)
	}
	opts := []goose.ProviderOption{}
	if logger != nil {
		opts = append(opts, goose.WithLogger(gooseLogger{logger}), goose.WithVerbose(true))
	}
	p, err := goose.NewProvider(gd, db, fsys, opts...)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return p, nil
}

// Up applies all pending migrations and returns how many ran.
func Up(ctx context.Context, db *sql.DB, dialect Dialect, logger *zerolog.Logger) (int, error) {
	p, err := newProvider(db, dialect, logger)
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}

// Status describes one migration file.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

// List reports the state of every migration.
func List(ctx context.Context, db *sql.DB, dialect Dialect) ([]Status, error) {
	p, err := newProvider(db, dialect, nil)
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

type gooseLogger struct {
	log *zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info().Str("component", "migrations").Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatal().Str("component", "migrations").Msgf(format, v...)
}
