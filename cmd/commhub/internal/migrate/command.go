// Package migrate applies and inspects database migrations.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/commhub-server/cmd/commhub/internal/serve"
	"github.com/vovakirdan/commhub-server/internal/app"
	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/log"
)

func NewMigrateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Example: `  commhub migrate up
  commhub migrate status --db-driver postgres --db-dsn postgres://localhost/commhub`,
	}
	serve.AddConfigFlags(cmd.PersistentFlags(), &configPath)

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New("info")
			cfg, _, err := config.Load(logger, configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger = log.New(cfg.LogLevel)
			n, err := app.Migrate(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", n).Str("driver", cfg.Database.Driver).Msg("migrations complete")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New("warn")
			cfg, _, err := config.Load(logger, configPath, cmd.Flags())
			if err != nil {
				return err
			}
			statuses, err := app.MigrationStatus(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%5d  %-8s %s\n", s.Version, state, s.Path)
			}
			return nil
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}
