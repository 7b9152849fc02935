package chat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/transport"
	"portfolio-chat/internal/utils"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, transport.KindHTTP, cfg.Backend.Kind)
	assert.Equal(t, "http://127.0.0.1:5328", cfg.Backend.BaseURL)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_BACKEND", "A2A")
	t.Setenv("CHAT_AGENT_CARD_URL", "http://agent.local")
	t.Setenv("CHAT_AGENT_ARGS", "--json  --quiet")
	t.Setenv("CHAT_AGENT_DIR", "/srv/agent")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, transport.KindA2A, cfg.Backend.Kind)
	assert.Equal(t, "http://agent.local", cfg.Backend.AgentCardURL)
	assert.Equal(t, []string{"--json", "--quiet"}, cfg.Backend.AgentArgs)
	assert.Equal(t, "/srv/agent", cfg.Backend.AgentDir)
	assert.Equal(t, 5*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("CHAT_END_SESSION_TIMEOUT", "soon")
	cfg := DefaultConfig()
	assert.Error(t, cfg.ApplyEnv())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHAT_BASE_URL=http://example.test:9000\n"), 0o600))
	t.Setenv("CHAT_BASE_URL", "")
	os.Unsetenv("CHAT_BASE_URL")

	require.NoError(t, LoadEnv(path))
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "http://example.test:9000", cfg.Backend.BaseURL)

	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Kind = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Backend.Kind = transport.KindA2A
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Backend.Kind = transport.KindExec
	cfg.Backend.AgentCmd = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Backend.Kind = transport.KindExec
	cfg.Backend.AgentDir = filepath.Join(t.TempDir(), "missing")
	assert.Error(t, cfg.Validate())
	cfg.Backend.AgentDir = t.TempDir()
	assert.NoError(t, cfg.Validate())
}

func TestNewBackendSelectsTransport(t *testing.T) {
	cfg := DefaultConfig()
	b, err := NewBackend(cfg, utils.Discard())
	require.NoError(t, err)
	assert.IsType(t, &transport.HTTPBackend{}, b)

	cfg.Backend.Kind = transport.KindA2A
	cfg.Backend.AgentEndpoint = "http://agent.local/a2a"
	b, err = NewBackend(cfg, utils.Discard())
	require.NoError(t, err)
	assert.IsType(t, &transport.A2ABackend{}, b)

	cfg.Backend.Kind = "nope"
	_, err = NewBackend(cfg, utils.Discard())
	assert.Error(t, err)
}
