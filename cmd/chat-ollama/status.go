package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AdrianHagen/chat-ollama/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe Ollama and the chat store once and print the result",
	Long: `Status probes the Ollama CLI, the Ollama HTTP API and the chat store
concurrently, prints the report as JSON to stdout, and exits non-zero
when any dependency is unhealthy.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var errUnhealthy = errors.New("one or more dependencies unhealthy")

func runStatus(cmd *cobra.Command, args []string) error {
	report := app.health.RunDeepHealth(cmd.Context())
	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Healthy() {
		return errUnhealthy
	}
	return nil
}

func printReport(w io.Writer, report health.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding status report: %w", err)
	}
	return nil
}
