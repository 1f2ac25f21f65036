package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AdrianHagen/chat-ollama/internal/chatstore"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the chat history tables",
	Long: `Init-db connects to the configured Postgres database and creates the
chats and messages tables if they do not exist. It is safe to run more
than once.`,
	Args: cobra.NoArgs,
	RunE: runInitDB,
}

func runInitDB(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := chatstore.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening chat store: %w", err)
	}
	defer pool.Close()

	if err := chatstore.New(pool).InitSchema(ctx); err != nil {
		return fmt.Errorf("initialising chat store: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Database initialized at: %s/%s\n", cfg.Store.Host, cfg.Store.DB)
	return nil
}
