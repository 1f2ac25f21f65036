package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AdrianHagen/chat-ollama/internal/config"
	"github.com/AdrianHagen/chat-ollama/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "chat-ollama",
	Short: "Launch the local chat front-end backed by Ollama",
	Long: `chat-ollama makes sure a local Ollama server is running, starting it
in the background when needed, and then hands the terminal over to the
chat front-end.

Without a subcommand it runs the default task.`,
	SilenceUsage: true,
	RunE:         runDefault,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		_ = initLogger(logLevel, "")

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over the config value.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		}
		if err := initLogger(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFile); err != nil {
			return err
		}

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app != nil {
			app.shutdown()
		}
		return closeLog()
	}

	rootCmd.AddCommand(defaultCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(initDBCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if app != nil {
			app.shutdown()
		}
		closeLog() //nolint:errcheck
		os.Exit(1)
	}
}

// initLogger installs the process-wide logger. Logs go to stderr; stdout
// carries only the user-facing status lines.
func initLogger(level, logFile string) error {
	logger, closeFn, err := telemetry.NewLogger(level, os.Stderr, logFile)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	closeLog() //nolint:errcheck
	closeLog = closeFn
	slog.SetDefault(logger)
	return nil
}
