package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AdrianHagen/chat-ollama/internal/api"
	"github.com/AdrianHagen/chat-ollama/internal/chatstore"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the status and chat history HTTP API",
	Long: `Start the HTTP server on the configured port (default :8502).

The server exposes liveness, readiness and deep health endpoints, the list
of local models, and the chat history API. When the chat store cannot be
reached at startup the chat routes are disabled and the rest keeps serving.
It shuts down cleanly on SIGTERM or SIGINT.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var router *api.Router
	pool, err := chatstore.Open(ctx, cfg.Store)
	if err != nil {
		slog.Warn("chat store unavailable, chat API disabled", "err", err)
		router = api.NewRouter(app.health, app.ollamaAPI, nil)
	} else {
		defer pool.Close()
		router = api.NewRouter(app.health, app.ollamaAPI, chatstore.New(pool))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Serve in a goroutine so we can listen for shutdown signals.
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("chat-ollama server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped cleanly")
	return nil
}
