// Package main provides the entry point for the Values Report service and its
// operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "values_agent",
	Short: "Values Report HTTP API Server",
	Long:  "Values Report walks a user through a personal values assessment, then writes, renders and emails a report on their top five values.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
