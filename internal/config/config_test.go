package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FRONTEND_URL", "http://localhost:5173")
}

func TestNewDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "./data", cfg.DataPath)
	assert.Equal(t, filepath.Join("./data", "databases"), cfg.DbPath)
	assert.Equal(t, filepath.Join("./data", "avatars"), cfg.AvatarPath)
	assert.Equal(t, "gpt-4o-mini", cfg.AssistantModel)
	assert.Equal(t, 500, cfg.AssistantMaxTokens)
	assert.Equal(t, 0, cfg.AssistantHistoryTurns)
	assert.Equal(t, 30*time.Second, cfg.AssistantTimeout)
	assert.Equal(t, "School No. 1", cfg.DefaultSchoolName)
	assert.Equal(t, "localhost:5173", cfg.ParsedFrontendURL.Host)
	assert.False(t, cfg.GoogleLoginEnabled())
	assert.False(t, cfg.EmailEnabled())
}

func TestNewOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DATA_PATH", "/srv/tabys")
	t.Setenv("ASSISTANT_HISTORY_TURNS", "6")
	t.Setenv("ASSISTANT_TIMEOUT", "5s")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/tabys", "databases"), cfg.DbPath)
	assert.Equal(t, 6, cfg.AssistantHistoryTurns)
	assert.Equal(t, 5*time.Second, cfg.AssistantTimeout)
	assert.True(t, cfg.EmailEnabled())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing jwt secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "missing frontend url", env: map[string]string{"FRONTEND_URL": ""}},
		{name: "half configured google", env: map[string]string{"GOOGLE_OAUTH_CLIENT_ID": "id"}},
		{name: "negative history", env: map[string]string{"ASSISTANT_HISTORY_TURNS": "-1"}},
		{name: "zero rate", env: map[string]string{"ASSISTANT_RATE_PER_MINUTE": "0"}},
		{name: "bad port", env: map[string]string{"SMTP_PORT": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}
