package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var serverAddr string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - headless orchestrator for AI coding agent swarms",
	Long: `Aegis runs missions: it decomposes a mission brief into a task
graph, executes the tasks on a fixed pool of worker agents with
isolated workspaces, and streams progress events to subscribers.

A single binary serves the daemon and the CLI.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Aegis version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8420", "control plane address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(missionsCmd)
	rootCmd.AddCommand(missionCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(swarmCmd)
	rootCmd.AddCommand(statusCmd)
}
