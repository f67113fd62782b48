package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/values-report/internal/config"
	"github.com/jonathan/values-report/internal/db"
	"github.com/jonathan/values-report/internal/gate"
)

var (
	codesDatabaseURL string
	codesMaxUses     int
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Manage access codes",
	Long:  `Issue and revoke the access codes that open assessment sessions. Codes are stored only as keyed digests.`,
}

var codesCreateCmd = &cobra.Command{
	Use:   "create CODE",
	Short: "Issue an access code",
	Args:  cobra.ExactArgs(1),
	RunE:  runCodesCreate,
}

var codesStatusCmd = &cobra.Command{
	Use:   "status CODE",
	Short: "Show how many uses an access code has left",
	Args:  cobra.ExactArgs(1),
	RunE:  runCodesStatus,
}

var codesDisableCmd = &cobra.Command{
	Use:   "disable CODE",
	Short: "Revoke an access code",
	Args:  cobra.ExactArgs(1),
	RunE:  runCodesDisable,
}

func init() {
	codesCmd.PersistentFlags().StringVar(&codesDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	codesCreateCmd.Flags().IntVar(&codesMaxUses, "max-uses", 3, "Number of sessions the code can open")

	codesCmd.AddCommand(codesCreateCmd, codesStatusCmd, codesDisableCmd)
	rootCmd.AddCommand(codesCmd)
}

// openGate connects to the database and returns a gate for code management.
// Tokens are never issued here, so no JWT secret is needed.
func openGate(cmd *cobra.Command) (*gate.Gate, *db.DB, error) {
	url, err := databaseURL(codesDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	codes, err := config.NewAccessCodeConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Connect(cmd.Context(), url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return gate.New(database, codes, nil, nil), database, nil
}

func runCodesCreate(cmd *cobra.Command, args []string) error {
	g, database, err := openGate(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := g.IssueCode(cmd.Context(), args[0], codesMaxUses); err != nil {
		return fmt.Errorf("failed to issue access code: %w", err)
	}
	status, err := g.CodeStatus(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read access code: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Issued access code: %s\n", formatCodeStatus(status)) //nolint:errcheck
	return nil
}

func runCodesStatus(cmd *cobra.Command, args []string) error {
	g, database, err := openGate(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	status, err := g.CodeStatus(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read access code: %w", err)
	}
	if status == nil {
		return fmt.Errorf("access code not found")
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatCodeStatus(status)) //nolint:errcheck
	return nil
}

// formatCodeStatus renders e.g. "active, 1/3 uses spent, 2 remaining".
func formatCodeStatus(c *db.AccessCode) string {
	if c == nil {
		return "not found"
	}
	state := "active"
	if !c.Active {
		state = "disabled"
	}
	return fmt.Sprintf("%s, %d/%d uses spent, %d remaining", state, c.UsedCount, c.MaxUses, c.Remaining())
}

func runCodesDisable(cmd *cobra.Command, args []string) error {
	g, database, err := openGate(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	found, err := g.RevokeCode(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to revoke access code: %w", err)
	}
	if !found {
		return fmt.Errorf("access code not found")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Access code disabled.") //nolint:errcheck
	return nil
}
