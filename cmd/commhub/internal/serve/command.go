// Package serve runs the chat server.
package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vovakirdan/commhub-server/internal/app"
	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/log"
)

// AddConfigFlags registers the flags config.Load binds onto config keys.
func AddConfigFlags(flags *pflag.FlagSet, configPath *string) {
	def := config.Default()
	flags.StringVarP(configPath, "config", "c", "", "path to config file (created with defaults when missing)")
	flags.String("addr", def.Addr, "HTTP listen address")
	flags.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	flags.String("db-driver", def.Database.Driver, "database driver: sqlite or postgres")
	flags.String("db-path", def.Database.Path, "sqlite database file")
	flags.String("db-dsn", def.Database.DSN, "postgres connection string")
	flags.Bool("jwt-required", def.JWTRequired, "require a valid token on add-user")
}

func NewServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		Example: `  commhub serve
  commhub serve --addr :9000 --log-level debug
  commhub serve --db-driver postgres --db-dsn postgres://localhost/commhub`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info")
			cfg, path, err := config.Load(bootLogger, configPath, cmd.Flags())
			if err != nil {
				bootLogger.Error().Err(err).Msg("failed to load config")
				return err
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to initialize app")
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting commhub server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	AddConfigFlags(cmd.Flags(), &configPath)
	return cmd
}
