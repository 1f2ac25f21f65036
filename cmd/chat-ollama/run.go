package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ensure Ollama is running, then launch the chat front-end",
	Long: `Run probes the local Ollama installation with "ollama list". When the
probe fails, "ollama serve" is started in the background. After the
configured wait (3s by default) the process is replaced by the front-end,
"uv run streamlit run src/app.py" unless configured otherwise.

On success this command does not return; the front-end owns the terminal.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	slog.DebugContext(cmd.Context(), "run task",
		"probe", append([]string{cfg.Ollama.Binary}, cfg.Ollama.ProbeArgs...),
		"frontend", cfg.Frontend.Argv(),
		"wait_mode", cfg.Wait.Mode,
	)
	return app.newSequencer(cmd.OutOrStdout()).EnsureAndLaunch(cmd.Context())
}
