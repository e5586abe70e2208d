// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/database"
	"github.com/EliSopMes/immersive-server/internal/services"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/spf13/cobra"
)

// tableCounts lists the tables reported by db stats, in output order
var tableCounts = []string{"quizzes", "questions", "answers", "quota_ledger", "saved_words", "profiles"}

// DatabaseStats is the output of db stats
type DatabaseStats struct {
	Database        string           `yaml:"database"`
	Rows            map[string]int64 `yaml:"rows"`
	ShellQuizzes    int64            `yaml:"shell_quizzes"`
	OpenConnections int              `yaml:"open_connections"`
}

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, db *sql.DB, cfg config.DatabaseConfig, cleanupService *services.CleanupService) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands.

Available commands:
  migrate   - Apply pending schema migrations
  stats     - Show row counts per table
  cleanup   - Remove quiz shells that were never generated`,
	}

	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := dbManager.RunMigrations(db, cfg.MigrationsPath); err != nil {
				return err
			}
			cmd.Println("Migrations are up to date")
			return nil
		},
	})

	dbCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show row counts per table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := collectStats(cmd.Context(), db)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), stats)
		},
	})

	dbCmd.AddCommand(cleanupCmd(cleanupService))

	return dbCmd
}

// cleanupCmd returns the cleanup command
func cleanupCmd(cleanupService *services.CleanupService) *cobra.Command {
	var statsOnly bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove quiz shells that were never generated",
		Long: `Remove quiz shells that were never generated.

A shell is a quiz without title or questions. Shells older than the shell retention are
deleted; a later request for the same source key simply reserves a new one.

Use --stats to see what would be removed without deleting anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if statsOnly {
				n, err := cleanupService.CountStaleShells(cmd.Context())
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), map[string]int64{"would_remove_shells": n})
			}

			removed, err := cleanupService.CleanupStaleShells(cmd.Context())
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), map[string]int64{"removed_shells": removed})
		},
	}

	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only show cleanup statistics, don't perform cleanup")

	return cmd
}
