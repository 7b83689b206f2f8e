package main

import (
	"fmt"

	"github.com/aretw0/journey/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the declaration file",
	Long:  `Loads the declaration file and declares every source and activity without starting anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		n, err := cli.Validate(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d activities)\n", path, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
