package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Ollama.Binary)
	assert.Equal(t, []string{"list"}, cfg.Ollama.ProbeArgs)
	assert.Equal(t, []string{"serve"}, cfg.Ollama.ServeArgs)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Empty(t, cfg.Ollama.Model)
	assert.Equal(t, WaitModeFixed, cfg.Wait.Mode)
	assert.Equal(t, 3*time.Second, cfg.Wait.GracePeriod)
	assert.Equal(t, []string{"uv", "run", "streamlit", "run", "src/app.py"}, cfg.Frontend.Argv())
	assert.Equal(t, 8502, cfg.Server.Port)
	assert.Equal(t, "chat-ollama", cfg.Telemetry.ServiceName)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHAT_OLLAMA_WAIT_GRACE_PERIOD", "5s")
	t.Setenv("CHAT_OLLAMA_OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("CHAT_OLLAMA_STORE_HOST", "my-db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Wait.GracePeriod)
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	assert.Equal(t, "my-db", cfg.Store.Host)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.yaml")
	content := `
ollama:
  model: gemma3:12b
frontend:
  command: streamlit
  args: [run]
  script: src/chat_ollama/frontend/app.py
wait:
  mode: poll
  poll_timeout: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemma3:12b", cfg.Ollama.Model)
	assert.Equal(t, []string{"streamlit", "run", "src/chat_ollama/frontend/app.py"}, cfg.Frontend.Argv())
	assert.Equal(t, WaitModePoll, cfg.Wait.Mode)
	assert.Equal(t, 45*time.Second, cfg.Wait.PollTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3*time.Second, cfg.Wait.GracePeriod)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidWaitMode(t *testing.T) {
	t.Setenv("CHAT_OLLAMA_WAIT_MODE", "forever")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait.mode")
}

func TestLoad_PollModeRejectsNonPositiveSettings(t *testing.T) {
	tests := []struct {
		name     string
		timeout  string
		interval string
		wantKey  string
	}{
		{name: "zero timeout", timeout: "0s", interval: "250ms", wantKey: "wait.poll_timeout"},
		{name: "negative timeout", timeout: "-1s", interval: "250ms", wantKey: "wait.poll_timeout"},
		{name: "zero interval", timeout: "30s", interval: "0s", wantKey: "wait.poll_interval"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CHAT_OLLAMA_WAIT_MODE", WaitModePoll)
			t.Setenv("CHAT_OLLAMA_WAIT_POLL_TIMEOUT", tc.timeout)
			t.Setenv("CHAT_OLLAMA_WAIT_POLL_INTERVAL", tc.interval)

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantKey)
		})
	}
}

func TestLoad_FixedModeIgnoresPollSettings(t *testing.T) {
	t.Setenv("CHAT_OLLAMA_WAIT_POLL_TIMEOUT", "0s")
	t.Setenv("CHAT_OLLAMA_WAIT_POLL_INTERVAL", "0s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, WaitModeFixed, cfg.Wait.Mode)
}

func TestLoad_EnvIsolation(t *testing.T) {
	require.Empty(t, os.Getenv("CHAT_OLLAMA_WAIT_GRACE_PERIOD"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Wait.GracePeriod)
}

func TestStoreConfig_DSN(t *testing.T) {
	s := StoreConfig{User: "chat", Password: "pw", Host: "db", Port: 5433, DB: "chats", SSLMode: "disable"}
	assert.Equal(t, "postgres://chat:pw@db:5433/chats?sslmode=disable", s.DSN())
}

func TestFrontendConfig_ArgvWithoutScript(t *testing.T) {
	f := FrontendConfig{Command: "streamlit", Args: []string{"hello"}}
	assert.Equal(t, []string{"streamlit", "hello"}, f.Argv())
}

func TestStoreConfig_DSNEscapesCredentials(t *testing.T) {
	s := StoreConfig{User: "chat user", Password: "p@ss/w:rd#1", Host: "localhost", Port: 5432, DB: "chats", SSLMode: "disable"}

	pc, err := pgconn.ParseConfig(s.DSN())
	require.NoError(t, err)
	assert.Equal(t, "localhost", pc.Host)
	assert.Equal(t, uint16(5432), pc.Port)
	assert.Equal(t, "chat user", pc.User)
	assert.Equal(t, "p@ss/w:rd#1", pc.Password)
	assert.Equal(t, "chats", pc.Database)
}
