package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AdrianHagen/chat-ollama/internal/clients"
	"github.com/AdrianHagen/chat-ollama/internal/config"
	"github.com/AdrianHagen/chat-ollama/internal/health"
	"github.com/AdrianHagen/chat-ollama/internal/sequencer"
	"github.com/AdrianHagen/chat-ollama/internal/telemetry"
)

const otelShutdownTimeout = 5 * time.Second

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE. Nothing in it starts a
// process or opens a connection at construction time.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider

	ollamaCLI   *clients.OllamaCLI
	ollamaAPI   *clients.OllamaAPI
	storeProber *clients.ChatStoreProber
	health      *health.Checker

	shutdownOnce sync.Once
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates one circuit breaker per client
//  3. Creates the Ollama and chat store clients
//  4. Creates the health checker
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// Without an endpoint telemetry is disabled entirely, which keeps the
	// periodic reader quiet on machines with no collector.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx, cfg.Telemetry)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	// One circuit breaker per client so each dependency trips independently.
	app.ollamaCLI = clients.NewOllamaCLI(cfg.Ollama, clients.NewCircuitBreaker("ollama-cli"))
	app.ollamaAPI = clients.NewOllamaAPI(cfg.Ollama, clients.NewCircuitBreaker("ollama-api"))
	app.storeProber = clients.NewChatStoreProber(cfg.Store, clients.NewCircuitBreaker("chat-store"))

	app.health = health.New(app.ollamaAPI, app.ollamaCLI, app.ollamaAPI, app.storeProber)

	return app, nil
}

// newWaiter picks the wait strategy configured under wait.mode.
func (a *AppContext) newWaiter() sequencer.Waiter {
	if a.cfg.Wait.Mode == config.WaitModePoll {
		// A dedicated client so polling failures never trip the shared breaker.
		poller := clients.NewOllamaAPI(a.cfg.Ollama, clients.NewPollingBreaker("ollama-api-poll"))
		return sequencer.NewReadinessPoll(poller, a.cfg.Wait.PollInterval, a.cfg.Wait.PollTimeout)
	}
	return sequencer.NewFixedDelay(a.cfg.Wait.GracePeriod)
}

// newSequencer wires the bootstrap sequence. Status lines go to out.
func (a *AppContext) newSequencer(out io.Writer) *sequencer.Sequencer {
	frontend := clients.NewFrontend(a.cfg.Frontend, clients.WithBeforeExec(a.shutdown))
	return sequencer.New(
		a.ollamaCLI,
		a.ollamaCLI,
		a.newWaiter(),
		frontend,
		out,
		sequencer.WithModel(a.ollamaAPI, a.cfg.Ollama.Model),
	)
}

// shutdown flushes telemetry. It runs at most once, either before the
// front-end handoff or when the command returns.
func (a *AppContext) shutdown() {
	a.shutdownOnce.Do(func() {
		if a.otelProvider != nil {
			a.otelProvider.ShutdownWithTimeout(otelShutdownTimeout)
		}
	})
}
