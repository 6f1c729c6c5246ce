package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 20, cfg.MaxClients)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, 75*time.Millisecond, cfg.PushInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.StaticDir)
	assert.Empty(t, cfg.AppURL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("MAX_CLIENTS", "3")
	t.Setenv("MAX_MESSAGE_LENGTH", "1024")
	t.Setenv("PUSH_INTERVAL", "250ms")
	t.Setenv("STATIC_DIR", "./web")
	t.Setenv("APP_URL", "https://slides.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.MaxClients)
	assert.Equal(t, 1024, cfg.MaxMessageLength)
	assert.Equal(t, 250*time.Millisecond, cfg.PushInterval)
	assert.Equal(t, "./web", cfg.StaticDir)
	assert.Equal(t, "https://slides.example.com", cfg.AppURL)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"non-numeric port", "PORT", "http", "PORT must be a number"},
		{"port out of range", "PORT", "70000", "PORT must be a number"},
		{"zero clients", "MAX_CLIENTS", "0", "MAX_CLIENTS must be at least 1"},
		{"tiny message length", "MAX_MESSAGE_LENGTH", "1", "MAX_MESSAGE_LENGTH must be at least 2 bytes"},
		{"zero push interval", "PUSH_INTERVAL", "0s", "PUSH_INTERVAL must be positive"},
		{"zero burst", "CONNECTION_BURST", "0", "CONNECTION_BURST must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_UnparsableDuration(t *testing.T) {
	t.Setenv("PUSH_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load environment variables")
}
