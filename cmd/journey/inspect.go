package main

import (
	"github.com/aretw0/journey/internal/cli"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List sources and their subscribers",
	Long:  `Prints every declared source with the activities subscribed to it, or a Mermaid diagram (graph LR) with --mermaid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		return cli.Inspect(path, mermaid, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("mermaid", false, "Output a Mermaid diagram")
}
