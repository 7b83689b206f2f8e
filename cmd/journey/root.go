package main

import (
	"fmt"
	"os"

	"github.com/aretw0/journey/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "journey",
	Short: "Journey runs clock- and event-driven activities",
	Long: `Journey declares trigger sources (clocks, webhooks, redis channels) and the
activities subscribed to them in a single file, then dispatches every firing.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Declaration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the file")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every firing and activity")
}
