package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.RealtimeEnabled())
	assert.True(t, cfg.DeadlinesEnforced())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("QUIZ_TEST_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
auth:
  jwtSecret: ${QUIZ_TEST_SECRET}
quiz:
  questionWindow: 30s
  enforceDeadlines: false
realtime:
  enabled: false
cors:
  allowedOrigins: ["https://quiz.example.org"]
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, TTLDuration(cfg.Quiz.QuestionWindow, 0))
	assert.False(t, cfg.DeadlinesEnforced())
	assert.False(t, cfg.RealtimeEnabled())
	assert.Equal(t, []string{"https://quiz.example.org"}, cfg.CORS.AllowedOrigins)
	// untouched sections keep their defaults
	assert.Equal(t, "quiz:snapshots", cfg.Realtime.RelayChannel)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 5*time.Second, TTLDuration("5s", time.Minute))
}
