package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/values-report/internal/assessment"
	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/observability"
)

var catalogLimit int

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the value catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every value in the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		items := catalog.Default().Items()
		limit := catalogLimit
		if limit <= 0 {
			limit = len(items)
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintValues(
			fmt.Sprintf("VALUE CATALOG (%d)", len(items)), items, limit)
		return nil
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search values by label or description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit := catalogLimit
		if limit <= 0 {
			limit = assessment.DirectSearchLimit
		}
		items := catalog.Default().Search(query, limit)
		observability.NewPrinter(cmd.OutOrStdout()).PrintValues(
			fmt.Sprintf("MATCHES FOR %q", query), items, limit)
		return nil
	},
}

func init() {
	catalogCmd.PersistentFlags().IntVar(&catalogLimit, "limit", 0, "Maximum values to show (0 = all for list, 10 for search)")
	catalogCmd.AddCommand(catalogListCmd, catalogSearchCmd)
	rootCmd.AddCommand(catalogCmd)
}
