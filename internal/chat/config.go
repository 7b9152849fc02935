package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portfolio-chat/internal/transport"
)

type Config struct {
	Backend struct {
		Kind           string
		BaseURL        string
		AgentCardURL   string
		AgentEndpoint  string
		AgentCmd       string
		AgentArgs      []string
		AgentDir       string
		RequestTimeout time.Duration
	}
	Session struct {
		EndTimeout time.Duration
		ExitGrace  time.Duration
	}
	Logging struct {
		Level  string
		Format string
	}
	DataDir string
}

func DefaultConfig() Config {
	cfg := Config{}
	cfg.Backend.Kind = transport.KindHTTP
	cfg.Backend.BaseURL = "http://127.0.0.1:5328"
	cfg.Backend.AgentCmd = "portfolio-agent"
	cfg.Backend.RequestTimeout = 30 * time.Second
	cfg.Session.EndTimeout = 3 * time.Second
	cfg.Session.ExitGrace = 2 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.DataDir = defaultDataDir()
	return cfg
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "portfolio-chat")
	}
	return filepath.Join(os.TempDir(), "portfolio-chat")
}

// LoadEnv reads a .env file when present. A missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any CHAT_* and LOG_* variables that are set.
func (cfg *Config) ApplyEnv() error {
	if v := os.Getenv("CHAT_BACKEND"); v != "" {
		cfg.Backend.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("CHAT_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("CHAT_AGENT_CARD_URL"); v != "" {
		cfg.Backend.AgentCardURL = v
	}
	if v := os.Getenv("CHAT_AGENT_ENDPOINT"); v != "" {
		cfg.Backend.AgentEndpoint = v
	}
	if v := os.Getenv("CHAT_AGENT_CMD"); v != "" {
		cfg.Backend.AgentCmd = v
	}
	if v := os.Getenv("CHAT_AGENT_ARGS"); v != "" {
		cfg.Backend.AgentArgs = strings.Fields(v)
	}
	if v := os.Getenv("CHAT_AGENT_DIR"); v != "" {
		cfg.Backend.AgentDir = v
	}
	if v := os.Getenv("CHAT_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CHAT_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Backend.RequestTimeout = d
	}
	if v := os.Getenv("CHAT_END_SESSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CHAT_END_SESSION_TIMEOUT: %w", err)
		}
		cfg.Session.EndTimeout = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CHAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return nil
}

func (cfg Config) Validate() error {
	switch cfg.Backend.Kind {
	case transport.KindHTTP:
		if cfg.Backend.BaseURL == "" {
			return fmt.Errorf("http backend needs a base url")
		}
	case transport.KindA2A:
		if cfg.Backend.AgentCardURL == "" && cfg.Backend.AgentEndpoint == "" {
			return fmt.Errorf("a2a backend needs an agent card url or endpoint")
		}
	case transport.KindExec:
		if cfg.Backend.AgentCmd == "" {
			return fmt.Errorf("exec backend needs an agent command")
		}
		if dir := cfg.Backend.AgentDir; dir != "" {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("agent working directory %q is not a directory", dir)
			}
		}
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
	if cfg.Backend.RequestTimeout < 0 || cfg.Session.EndTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
