package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Wait modes accepted by WaitConfig.Mode.
const (
	WaitModeFixed = "fixed"
	WaitModePoll  = "poll"
)

// Config is the root configuration for the launcher.
type Config struct {
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Frontend  FrontendConfig  `mapstructure:"frontend"`
	Wait      WaitConfig      `mapstructure:"wait"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// OllamaConfig describes how to reach the model-serving process, both as a
// CLI binary (probe/serve) and over its HTTP API.
type OllamaConfig struct {
	Binary         string        `mapstructure:"binary"`
	ProbeArgs      []string      `mapstructure:"probe_args"`
	ServeArgs      []string      `mapstructure:"serve_args"`
	Host           string        `mapstructure:"host"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FrontendConfig is the command the launcher hands off to. The final argv is
// Command, Args..., Script.
type FrontendConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Script  string   `mapstructure:"script"`
}

// Argv returns the full front-end command line.
func (f FrontendConfig) Argv() []string {
	argv := make([]string, 0, len(f.Args)+2)
	argv = append(argv, f.Command)
	argv = append(argv, f.Args...)
	if f.Script != "" {
		argv = append(argv, f.Script)
	}
	return argv
}

// WaitConfig selects how long the launcher waits before the handoff.
type WaitConfig struct {
	Mode         string        `mapstructure:"mode"`
	GracePeriod  time.Duration `mapstructure:"grace_period"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// StoreConfig locates the chat history database.
type StoreConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN builds a postgres connection URL from the store settings. Credentials
// and database name are percent-encoded.
func (s StoreConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(s.User, s.Password),
		Host:     net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:     "/" + s.DB,
		RawQuery: url.Values{"sslmode": {s.SSLMode}}.Encode(),
	}
	return u.String()
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelemetryConfig controls logging and OTEL export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the CHAT_OLLAMA_ prefix
// (e.g. CHAT_OLLAMA_WAIT_GRACE_PERIOD).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CHAT_OLLAMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Wait.Mode {
	case WaitModeFixed, WaitModePoll:
	default:
		return fmt.Errorf("invalid wait.mode %q (want %q or %q)", c.Wait.Mode, WaitModeFixed, WaitModePoll)
	}
	if c.Wait.GracePeriod < 0 {
		return fmt.Errorf("wait.grace_period must not be negative, got %s", c.Wait.GracePeriod)
	}
	if c.Wait.Mode == WaitModePoll {
		if c.Wait.PollTimeout <= 0 {
			return fmt.Errorf("wait.poll_timeout must be positive in poll mode, got %s", c.Wait.PollTimeout)
		}
		if c.Wait.PollInterval <= 0 {
			return fmt.Errorf("wait.poll_interval must be positive in poll mode, got %s", c.Wait.PollInterval)
		}
	}
	if c.Ollama.Binary == "" {
		return fmt.Errorf("ollama.binary must be set")
	}
	if c.Frontend.Command == "" {
		return fmt.Errorf("frontend.command must be set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ollama.binary", "ollama")
	v.SetDefault("ollama.probe_args", []string{"list"})
	v.SetDefault("ollama.serve_args", []string{"serve"})
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.model", "")
	v.SetDefault("ollama.request_timeout", 10*time.Second)

	v.SetDefault("frontend.command", "uv")
	v.SetDefault("frontend.args", []string{"run", "streamlit", "run"})
	v.SetDefault("frontend.script", "src/app.py")

	v.SetDefault("wait.mode", WaitModeFixed)
	v.SetDefault("wait.grace_period", 3*time.Second)
	v.SetDefault("wait.poll_timeout", 30*time.Second)
	v.SetDefault("wait.poll_interval", 250*time.Millisecond)

	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.user", "chat")
	v.SetDefault("store.db", "chats")
	v.SetDefault("store.ssl_mode", "disable")
	v.SetDefault("store.max_conns", 5)

	v.SetDefault("server.port", 8502)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "chat-ollama")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_file", "")
}
