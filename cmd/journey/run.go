package main

import (
	"github.com/aretw0/journey/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the declared clocks and activities",
	Long: `Builds the engine from the declaration file, starts the autostart clocks and
the configured adapters, and runs until SIGINT or SIGTERM. In-flight activities
are drained before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.LogLevel, _ = cmd.Flags().GetString("log-level")
		opts.Debug, _ = cmd.Flags().GetBool("debug")
		opts.HTTPAddr, _ = cmd.Flags().GetString("http")
		opts.RedisAddr, _ = cmd.Flags().GetString("redis")
		opts.NoBanner, _ = cmd.Flags().GetBool("no-banner")
		opts.DrainTimeout, _ = cmd.Flags().GetDuration("drain-timeout")

		return cli.Execute(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("http", "", "HTTP listen address; overrides http.addr")
	runCmd.Flags().String("redis", "", "Redis address for the trigger bridge; overrides redis.addr")
	runCmd.Flags().Bool("no-banner", false, "Do not print the banner and source listing")
	runCmd.Flags().Duration("drain-timeout", 0, "Maximum time to wait for in-flight activities on shutdown (default 10s)")
}
