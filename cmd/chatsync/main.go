// chatsync - real-time sync daemon for the social client
package main

import (
	"log/slog"
	"os"

	"github.com/ashureev/chatsync/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with every subcommand attached.
func buildRootCmd() *cobra.Command {
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:           "chatsync",
		Short:         "Keeps presence, unread counts, friend requests and conversations in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				slog.Debug("No .env file found, using environment variables")
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			})))
			return nil
		},
	}

	rootCmd.AddCommand(
		buildServeCmd(cfg),
		buildHubCmd(cfg),
		buildSignInCmd(cfg),
		buildSignOutCmd(cfg),
	)
	return rootCmd
}
