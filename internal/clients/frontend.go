package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/AdrianHagen/chat-ollama/internal/config"
)

// Frontend hands the foreground over to the chat UI command.
type Frontend struct {
	argv       []string
	beforeExec func()

	lookPath func(file string) (string, error)
	environ  func() []string
	exec     func(path string, argv, env []string) error
}

// FrontendOption customises a Frontend.
type FrontendOption func(*Frontend)

// WithBeforeExec registers fn to run right before the process image is
// replaced, e.g. to flush telemetry.
func WithBeforeExec(fn func()) FrontendOption {
	return func(f *Frontend) { f.beforeExec = fn }
}

// NewFrontend constructs a Frontend for cfg's command line.
func NewFrontend(cfg config.FrontendConfig, opts ...FrontendOption) *Frontend {
	f := &Frontend{
		argv:     cfg.Argv(),
		lookPath: exec.LookPath,
		environ:  os.Environ,
		exec:     execProcess,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Argv is the command line the front-end is launched with.
func (f *Frontend) Argv() []string { return f.argv }

// Launch resolves the front-end binary and execs into it with the current
// environment. On success it does not return.
func (f *Frontend) Launch(ctx context.Context) error {
	if len(f.argv) == 0 || f.argv[0] == "" {
		return errors.New("front-end command is empty")
	}

	path, err := f.lookPath(f.argv[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", f.argv[0], err)
	}

	slog.InfoContext(ctx, "handing off to front-end", "path", path, "argv", f.argv)
	if f.beforeExec != nil {
		f.beforeExec()
	}

	if err := f.exec(path, f.argv, f.environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
