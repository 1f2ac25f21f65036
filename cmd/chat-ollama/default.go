package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var defaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Run the default task",
	Long:  `Prints a confirmation line and exits. No process is started.`,
	Args:  cobra.NoArgs,
	RunE:  runDefault,
}

func runDefault(cmd *cobra.Command, args []string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "Running default task")
	return err
}
