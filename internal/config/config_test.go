package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "classroom-core", cfg.Service)

	assert.Equal(t, 50, cfg.Rooms.DefaultMaxMembers)
	assert.Equal(t, 24*time.Hour, cfg.Rooms.IdleTTL)

	assert.Equal(t, 2000, cfg.Moderation.MaxMessageLength)
	assert.Equal(t, 2*time.Second, cfg.Moderation.Cooldown)
	assert.Equal(t, 30*time.Minute, cfg.Moderation.DefaultMute)
	assert.Equal(t, 24*time.Hour, cfg.Moderation.DefaultBan)
	assert.Equal(t, 5*time.Minute, cfg.Moderation.DefaultTimeout)
	assert.Equal(t, 3, cfg.Moderation.WarnThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Moderation.EscalationMute)
	assert.Equal(t, 5*time.Minute, cfg.Moderation.SpamMute)

	assert.Equal(t, 90*time.Second, cfg.Session.IdleGrace)
	assert.Equal(t, 24*time.Hour, cfg.Activity.Retention)
}

func TestLoadWithoutConfigFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "classroom.events", cfg.AMQP.Exchange)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("AGENT_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}
