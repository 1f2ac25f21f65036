package clients

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AdrianHagen/chat-ollama/internal/config"
	"github.com/AdrianHagen/chat-ollama/internal/sequencer"
)

const ollamaCLIProbeName = "ollama-cli"

// OllamaCLI drives the ollama binary: the status listing is used as a liveness
// probe and the serve subcommand starts the daemon detached.
type OllamaCLI struct {
	binary    string
	probeArgs []string
	serveArgs []string
	cb        *gobreaker.CircuitBreaker

	run   func(ctx context.Context, name string, args ...string) error
	spawn func(name string, args ...string) error
}

// NewOllamaCLI constructs an OllamaCLI. Nothing is executed at construction time.
func NewOllamaCLI(cfg config.OllamaConfig, cb *gobreaker.CircuitBreaker) *OllamaCLI {
	return &OllamaCLI{
		binary:    cfg.Binary,
		probeArgs: cfg.ProbeArgs,
		serveArgs: cfg.ServeArgs,
		cb:        cb,
		run:       runQuiet,
		spawn:     spawnDetached,
	}
}

// Probe runs the status-listing command once. A zero exit status means the
// daemon answered; anything else, including a missing binary, is reported as
// not OK. The probe is never retried.
func (c *OllamaCLI) Probe(ctx context.Context) sequencer.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		if err := c.run(ctx, c.binary, c.probeArgs...); err != nil {
			return nil, fmt.Errorf("%s %s: %w", c.binary, strings.Join(c.probeArgs, " "), err)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		return sequencer.ProbeResult{
			Name:      ollamaCLIProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     breakerError(err),
		}
	}

	return sequencer.ProbeResult{
		Name:      ollamaCLIProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// Start launches the serve command as a detached background process and
// returns as soon as it has been spawned. The child is not tracked, its output
// is discarded, and its readiness is not checked.
func (c *OllamaCLI) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "spawning detached service", "binary", c.binary, "args", c.serveArgs)
	if err := c.spawn(c.binary, c.serveArgs...); err != nil {
		return fmt.Errorf("spawning %s %s: %w", c.binary, strings.Join(c.serveArgs, " "), err)
	}
	return nil
}

// runQuiet runs a command to completion with stdio discarded.
func runQuiet(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
