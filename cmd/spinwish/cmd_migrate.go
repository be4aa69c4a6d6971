package main

import (
	"github.com/spf13/cobra"

	"spinwish/internal/db"
	"spinwish/internal/logger"
)

func init() {
	migrateCmd.Flags().Int("down", 0, "roll back this many migrations instead of applying")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply (or roll back) database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		if down, _ := cmd.Flags().GetInt("down"); down > 0 {
			if err := db.RollbackMigrations(database, cfg.MigrationsPath, down); err != nil {
				return err
			}
			logger.Info("migrations rolled back", "steps", down)
			return nil
		}

		return db.RunMigrations(database, cfg.MigrationsPath)
	},
}
