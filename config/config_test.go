package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/config"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/roundabout")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "30s")
	t.Setenv("R2_BUCKET_NAME", "proofs")

	cfg, _, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.ExpirySweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.SocialSyncInterval)
	assert.True(t, cfg.R2.Enabled())
	assert.False(t, cfg.Production())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	_, _, err := config.Load()
	require.Error(t, err)
}
