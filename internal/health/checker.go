// Package health runs the launcher's dependency probes concurrently for the
// status command and the status API.
package health

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AdrianHagen/chat-ollama/internal/sequencer"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Prober is satisfied by *clients.OllamaCLI, *clients.OllamaAPI and
// *clients.ChatStoreProber.
type Prober interface {
	Probe(ctx context.Context) sequencer.ProbeResult
}

// Report is the aggregate of one deep health run.
type Report struct {
	Status       string                           `json:"status"`
	Dependencies map[string]sequencer.ProbeResult `json:"dependencies"`
}

// Healthy reports whether every dependency probe succeeded.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Checker probes a fixed set of dependencies.
type Checker struct {
	probers []Prober
	ready   Prober
}

// New returns a Checker that runs all probers on every deep check. ready is
// the single prober consulted by Ready; nil means always ready.
func New(ready Prober, probers ...Prober) *Checker {
	return &Checker{probers: probers, ready: ready}
}

// RunDeepHealth probes every dependency concurrently. Results are keyed by
// ProbeResult.Name. A failing probe never cancels its siblings.
func (c *Checker) RunDeepHealth(ctx context.Context) Report {
	ctx, span := otel.Tracer("chat-ollama").Start(ctx, "health.deep")
	defer span.End()

	results := make(map[string]sequencer.ProbeResult, len(c.probers))
	var mu sync.Mutex
	var g errgroup.Group

	for _, p := range c.probers {
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[probe.Name] = probe
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusHealthy, Dependencies: results}
	for name, probe := range results {
		if !probe.OK {
			report.Status = StatusUnhealthy
			slog.WarnContext(ctx, "dependency unhealthy", "dependency", name, "error", probe.Error)
		}
	}

	span.SetAttributes(attribute.String("health.status", report.Status))
	if report.Healthy() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "one or more dependencies unhealthy")
	}
	return report
}

// Ready reports whether the model server answers, which is the precondition
// for the front-end being usable.
func (c *Checker) Ready(ctx context.Context) bool {
	if c.ready == nil {
		return true
	}
	return c.ready.Probe(ctx).OK
}
