// Package main provides the administration CLI for the immersive reading backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/EliSopMes/immersive-server/cmd/adm/commands"
	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/database"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load(".env")

	if os.Getenv("IMMERSIVE_CONFIG_FILE") == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("IMMERSIVE_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set IMMERSIVE_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The admin tool talks to the database only; keep exporters off
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "immersive-adm", observability.ParseLevel("error"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	quotaService := services.NewQuotaService(db, cfg.Quota, nil, logger)
	quizStore := services.NewQuizRepository(db, nil, logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Immersive server administration tool",
		Long: `Immersive server administration tool

Inspect quotas and stored quizzes, and manage the database schema.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, db, cfg.Database, services.NewCleanupServiceWithLogger(db, logger)))
	rootCmd.AddCommand(commands.QuotaCommands(quotaService))
	rootCmd.AddCommand(commands.QuizCommands(quizStore))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
