// Package cmd implements the claimsctl commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kylejryan/claims-portal/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "claimsctl",
	Short: "Administer the claims portal",
	Long: `claimsctl registers principals in the configured store and mints
development tokens for them.

It reads the same environment as the services (STORE_BACKEND, DDB_TABLE,
SQLITE_PATH, JWT_SECRET, ...), after loading any variables from --env-file.
Variables already set in the environment take precedence over the file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return config.LoadDotEnv(envFile)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load; a missing file is ignored")
	rootCmd.AddCommand(principalCmd)
	rootCmd.AddCommand(tokenCmd)
}
