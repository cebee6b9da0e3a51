package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const appName = "money_transfer"

var configDir string

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Money transfer ledger service",
	Long: `Ledger moves money between accounts with idempotent, atomic transfers
and keeps a log of every attempt.

Commands:
  serve    - Run the HTTP API, metrics endpoint and background jobs
  migrate  - Apply the PostgreSQL schema`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; real deployments set the environment directly.
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory holding an optional .env file")
}
