package main

import (
	"errors"
	"os"

	"github.com/ashureev/chatsync/internal/config"
	"github.com/spf13/cobra"
)

func buildServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon and its local API",
		Long: `Run the sync daemon.

The daemon restores the stored session (if any), opens the event connection
to SOCKET_URL for the signed-in identity, fetches snapshots from API_BASE_URL
and serves the merged state on the local API at PORT.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func buildHubCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "hub",
		Short: "Run a local event relay for development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHub(cmd.Context(), cfg)
		},
	}
}

func buildSignInCmd(cfg *config.Config) *cobra.Command {
	var (
		username string
		password string
		signUp   bool
	)
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the credentials for serve",
		Example: `  chatsync signin --username alice --password secret
  CHATSYNC_PASSWORD=secret chatsync signin -u alice --signup`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("CHATSYNC_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}
			return runSignIn(cmd.Context(), cmd.OutOrStdout(), cfg, username, password, signUp)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or CHATSYNC_PASSWORD)")
	cmd.Flags().BoolVar(&signUp, "signup", false, "Create the account instead of signing in")
	return cmd
}

func buildSignOutCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignOut(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}
