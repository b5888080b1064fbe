package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/commhub-server/cmd/commhub/internal/chat"
	"github.com/vovakirdan/commhub-server/cmd/commhub/internal/migrate"
	"github.com/vovakirdan/commhub-server/cmd/commhub/internal/serve"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "commhub",
		Short:         "Real-time chat server with channels and direct messages",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		migrate.NewMigrateCommand(),
		chat.NewChatCommand(),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
