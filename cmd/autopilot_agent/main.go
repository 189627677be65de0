// Package main provides the entry point for the Voice Autopilot server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autopilot_agent",
	Short: "Voice Autopilot HTTP API Server",
	Long:  "Voice Autopilot turns business conversations into structured records, knowledge-grounded reply drafts, and confirmed follow-up actions via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
