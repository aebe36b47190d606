package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gcs",
	Short: "NIDAR ground control station",
	Long:  "gcs receives, monitors and records telemetry from the scout and spray drones.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(missionsCmd)
	rootCmd.AddCommand(exportCmd)
}
