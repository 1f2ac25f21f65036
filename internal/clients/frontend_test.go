package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdrianHagen/chat-ollama/internal/config"
)

func TestFrontendLaunch(t *testing.T) {
	t.Parallel()

	cfg := config.FrontendConfig{Command: "uv", Args: []string{"run", "streamlit", "run"}, Script: "src/app.py"}

	t.Run("execs resolved path with full argv", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		var gotArgv, gotEnv []string
		flushed := false

		f := NewFrontend(cfg, WithBeforeExec(func() { flushed = true }))
		f.lookPath = func(file string) (string, error) { return "/usr/local/bin/" + file, nil }
		f.environ = func() []string { return []string{"HOME=/home/chat"} }
		f.exec = func(path string, argv, env []string) error {
			assert.True(t, flushed, "beforeExec must run before exec")
			gotPath, gotArgv, gotEnv = path, argv, env
			return nil
		}

		require.NoError(t, f.Launch(context.Background()))
		assert.Equal(t, "/usr/local/bin/uv", gotPath)
		assert.Equal(t, []string{"uv", "run", "streamlit", "run", "src/app.py"}, gotArgv)
		assert.Equal(t, []string{"HOME=/home/chat"}, gotEnv)
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Parallel()

		lookErr := errors.New("executable file not found in $PATH")
		f := NewFrontend(cfg)
		f.lookPath = func(string) (string, error) { return "", lookErr }
		f.exec = func(string, []string, []string) error {
			t.Fatal("exec must not be called")
			return nil
		}

		err := f.Launch(context.Background())
		assert.ErrorIs(t, err, lookErr)
		assert.Contains(t, err.Error(), "resolving uv")
	})

	t.Run("exec failure", func(t *testing.T) {
		t.Parallel()

		execErr := errors.New("exec format error")
		f := NewFrontend(cfg)
		f.lookPath = func(file string) (string, error) { return "/bin/" + file, nil }
		f.exec = func(string, []string, []string) error { return execErr }

		assert.ErrorIs(t, f.Launch(context.Background()), execErr)
	})

	t.Run("empty command", func(t *testing.T) {
		t.Parallel()

		f := NewFrontend(config.FrontendConfig{})
		assert.Error(t, f.Launch(context.Background()))
	})
}
