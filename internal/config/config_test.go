package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "5002", cfg.Port)
	require.Equal(t, 32, cfg.PresenceShards)
	require.Equal(t, 64, cfg.WSSendBuffer)
	require.Equal(t, time.Hour, cfg.ParticipantCacheTTL)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, 3*time.Second, cfg.UserServiceTimeout)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsZeroShards(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("PRESENCE_SHARDS", "0")

	_, err := Load()
	require.Error(t, err)
}
