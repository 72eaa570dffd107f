package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/core/logging"
)

// Version is the scorekeeper release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "scorekeeper",
	Short:        "Scorekeeper declarative formula engine",
	Long:         `Scorekeeper compiles YAML formula pipelines, validates their dependencies and evaluates them against flat inputs.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration, applies explicitly set log flags on top of it and
// builds the logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return cfg, logger, nil
}

// openDB opens --db-url. When migrated is set the schema must be current.
func openDB(migrated bool) (*sqlx.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if migrated {
		if err := db.RequireMigrated(database); err != nil {
			database.Close()
			return nil, err
		}
	}
	return database, nil
}

// openStore opens a migrated database and loads the named queries.
func openStore() (*sqlx.DB, *db.Queries, error) {
	database, err := openDB(true)
	if err != nil {
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}
