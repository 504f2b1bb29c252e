package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 7, cfg.TimeHorizonDays)
	assert.Equal(t, 5*time.Minute, cfg.SnapshotTTL())
	assert.Equal(t, 30*time.Minute, cfg.SuggestionSnapshotTTL())
	assert.Equal(t, "optimized", cfg.PromptStrategy)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.InferenceEnabled())
	assert.False(t, cfg.SlackEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TIME_HORIZON_DAYS", "14")
	t.Setenv("INFERENCE_URL", "https://inference.internal")
	t.Setenv("AUTH_MODE", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.TimeHorizonDays)
	assert.True(t, cfg.InferenceEnabled())
}

func TestValidate_Rejections(t *testing.T) {
	t.Run("unknown auth mode", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "vibes")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("jwt without secret", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "jwt")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("jwt with secret", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "jwt")
		t.Setenv("JWT_SECRET", "s3cr3t")
		_, err := Load()
		assert.NoError(t, err)
	})

	t.Run("horizon below one day", func(t *testing.T) {
		t.Setenv("TIME_HORIZON_DAYS", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown prompt strategy", func(t *testing.T) {
		t.Setenv("PROMPT_STRATEGY", "creative")
		_, err := Load()
		assert.Error(t, err)
	})
}
