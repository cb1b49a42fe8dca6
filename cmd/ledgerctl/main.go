// Command ledgerctl runs maintenance jobs against the ledger database:
// migrations, aggregate repair, bulk contact import and statements.
package main

import (
	"fmt"
	"os"

	"bizledger-backend/internal/config"
	"bizledger-backend/internal/database"
	"bizledger-backend/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "dev"

// db is opened by the root command before any subcommand runs.
var db *gorm.DB

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Maintenance commands for the bizledger database",
	Long: `ledgerctl works directly on the database configured through the
same environment variables as the API server (DB_DRIVER, SQLITE_PATH,
DATABASE_DSN). A .env file in the working directory is loaded first.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadStorage()
		if err != nil {
			return err
		}
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			return fmt.Errorf("set up logger: %w", err)
		}
		db, err = database.Open(cfg)
		if err != nil {
			return err
		}
		log := logger.WithComponent("ledgerctl")
		log.Debug().
			Str("driver", cfg.DBDriver).
			Str("command", cmd.Name()).
			Msg("database opened")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db == nil {
			return nil
		}
		return database.Close(db)
	},
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("ledgerctl")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
