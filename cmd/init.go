package cmd

import (
	"fmt"
	"log"

	"github.com/levelcord/levelcord/levelcord"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and run schema migrations",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.DatabaseType == "" {
			log.Fatal(
				"Environment variable LC_DATABASE_TYPE not set " +
					"(must be one of: sqlite, postgres)",
			)
		}
		if cfg.Database == "" {
			log.Fatal(
				"Environment variable LC_DATABASE not set (must be a valid " +
					"database connection string or sqlite file path)",
			)
		}

		db, err := levelcord.CreateDB(ctx, cfg.DatabaseType, cfg.Database)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			if closeErr := sqlDB.Close(); closeErr != nil {
				log.Printf("Error closing database: %v", closeErr)
			}
		}

		fmt.Fprintln(
			cmd.OutOrStdout(),
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
