package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/vovakirdan/commhub-server/internal/auth"
	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/service/channels"
	"github.com/vovakirdan/commhub-server/internal/service/messages"
	"github.com/vovakirdan/commhub-server/internal/store"
	"github.com/vovakirdan/commhub-server/internal/store/postgres"
	"github.com/vovakirdan/commhub-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/commhub-server/internal/transport/http"
)

// meterName scopes the hub instruments. Without a configured MeterProvider
// the global one is a no-op.
const meterName = "github.com/vovakirdan/commhub-server"

// App wires together core and transport layers.
type App struct {
	server *stdhttp.Server
	cfg    *config.Config
	hub    *core.Hub
	store  store.Store
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if !cfg.JWTRequired {
		logger.Warn().Msg("jwt_required is disabled: websocket clients may bind any identity without a token")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)
	chans := channels.New(st)
	msgs := messages.New(st, chans, cfg.HistoryLimit, cfg.MaxMessageBytes)

	hub := core.NewHub(msgs, chans,
		core.WithLogger(logger),
		core.WithMaxMessageBytes(cfg.MaxMessageBytes),
		core.WithMeter(otel.Meter(meterName)),
	)
	server := transporthttp.NewServer(hub, transporthttp.Services{
		Auth:     authService,
		Store:    st,
		Channels: chans,
		Messages: msgs,
	}, cfg, logger)

	return &App{
		server: server,
		cfg:    cfg,
		hub:    hub,
		store:  st,
		log:    logger,
	}, nil
}

// OpenStore opens the configured database and applies pending migrations.
func OpenStore(ctx context.Context, db config.DatabaseConfig, logger *zerolog.Logger) (store.Store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, db.DSN, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", db.Driver).Msg("database initialized")
		return st, nil
	case config.DriverSQLite, "":
		st, err := sqlite.New(ctx, db.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", config.DriverSQLite).Str("db_path", db.Path).Msg("database initialized")
		return st, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
