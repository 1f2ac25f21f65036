// Package sequencer implements the launcher's bootstrap sequence: make sure the
// model-serving process is up, wait for it, then hand the foreground over to
// the chat front-end.
package sequencer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ServiceProber is satisfied by *clients.OllamaCLI.
type ServiceProber interface {
	Probe(ctx context.Context) ProbeResult
}

// ServiceStarter launches the prerequisite service detached. Implementations
// must not retain or await the child process.
type ServiceStarter interface {
	Start(ctx context.Context) error
}

// Waiter blocks between the probe/start steps and the handoff.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Launcher replaces the current process with the front-end. On success it
// does not return in production; test doubles return nil.
type Launcher interface {
	Launch(ctx context.Context) error
}

// ModelEnsurer is satisfied by *clients.OllamaAPI.
type ModelEnsurer interface {
	EnsureModel(ctx context.Context, model string, out io.Writer)
}

// Sequencer runs the bootstrap sequence once per EnsureAndLaunch call.
type Sequencer struct {
	serviceName string
	prober      ServiceProber
	starter     ServiceStarter
	waiter      Waiter
	launcher    Launcher
	out         io.Writer

	models ModelEnsurer
	model  string

	mu     sync.Mutex
	states []State
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithServiceName sets the name used in the status lines. Defaults to "Ollama".
func WithServiceName(name string) Option {
	return func(s *Sequencer) { s.serviceName = name }
}

// WithModel makes the sequencer ensure model is available locally after the
// wait and before the handoff. An empty model disables the step.
func WithModel(e ModelEnsurer, model string) Option {
	return func(s *Sequencer) {
		s.models = e
		s.model = model
	}
}

// New constructs a Sequencer. Status lines are written to out.
func New(prober ServiceProber, starter ServiceStarter, waiter Waiter, launcher Launcher, out io.Writer, opts ...Option) *Sequencer {
	s := &Sequencer{
		serviceName: "Ollama",
		prober:      prober,
		starter:     starter,
		waiter:      waiter,
		launcher:    launcher,
		out:         out,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAndLaunch probes the prerequisite service, starts it when the probe
// fails, waits, and hands off to the front-end. A failed probe is a branch,
// not an error; spawn, wait and handoff failures are returned as-is with
// context and are never retried.
func (s *Sequencer) EnsureAndLaunch(ctx context.Context) error {
	s.reset()
	s.transition(ctx, StateStart)

	ctx, span := otel.Tracer("chat-ollama").Start(ctx, "launcher.ensure_and_launch")
	// The span is ended before the handoff; exec never returns to a defer.
	ended := false
	endSpan := func(err error) {
		if ended {
			return
		}
		ended = true
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	defer endSpan(nil)

	s.transition(ctx, StateProbing)
	probe := s.prober.Probe(ctx)
	running := probe.OK
	span.SetAttributes(attribute.Bool("launcher.service_running", running))

	if running {
		s.transition(ctx, StateAlreadyUp)
		fmt.Fprintf(s.out, "%s already running\n", s.serviceName)
	} else {
		s.transition(ctx, StateStarting)
		slog.DebugContext(ctx, "probe failed", "service", probe.Name, "error", probe.Error)
		fmt.Fprintf(s.out, "%s not running, starting...\n", s.serviceName)
		if err := s.starter.Start(ctx); err != nil {
			err = fmt.Errorf("starting %s: %w", s.serviceName, err)
			endSpan(err)
			return err
		}
	}

	s.transition(ctx, StateWaiting)
	if err := s.waiter.Wait(ctx); err != nil {
		err = fmt.Errorf("waiting for %s: %w", s.serviceName, err)
		endSpan(err)
		return err
	}

	if s.models != nil && s.model != "" {
		s.models.EnsureModel(ctx, s.model, s.out)
	}

	s.transition(ctx, StateHandoff)
	endSpan(nil)
	if err := s.launcher.Launch(ctx); err != nil {
		return fmt.Errorf("launching front-end: %w", err)
	}
	return nil
}

// States returns the transitions taken by the most recent run, in order.
func (s *Sequencer) States() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.states))
	copy(out, s.states)
	return out
}

func (s *Sequencer) reset() {
	s.mu.Lock()
	s.states = s.states[:0]
	s.mu.Unlock()
}

func (s *Sequencer) transition(ctx context.Context, st State) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	slog.DebugContext(ctx, "launcher state", "state", string(st))
}
