package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/values-report/internal/db"
)

var (
	migrateDatabaseURL string
	migratePrint       bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Create the access code, session and selection tables if they do not exist. Safe to run repeatedly.

With --print the DDL is written to stdout and no connection is made.`,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "Print the schema instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}

// databaseURL returns the flag value, falling back to DATABASE_URL.
func databaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if migratePrint {
		fmt.Fprint(cmd.OutOrStdout(), db.Schema()) //nolint:errcheck
		return nil
	}

	url, err := databaseURL(migrateDatabaseURL)
	if err != nil {
		return err
	}

	database, err := db.Connect(cmd.Context(), url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.") //nolint:errcheck
	return nil
}
