package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UCUBE_AUTH", "bearer-token")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Cube.PageSize)
	assert.True(t, cfg.Cube.LoadPosts)
	assert.Zero(t, cfg.Cube.CommentsPerPost)
	assert.False(t, cfg.Cube.FollowAllClubs)

	assert.Equal(t, 60, cfg.Watch.PollIntervalSeconds)
	assert.Equal(t, 300, cfg.Watch.ProfileReloadSeconds)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Server.ShutdownTimeoutSeconds)

	assert.Equal(t, "cubewatch", cfg.Observe.ServiceName)
	assert.False(t, cfg.Observe.Enabled)
}

func TestLoad_PasswordCredentials(t *testing.T) {
	t.Setenv("UCUBE_USERNAME", "fan@example.com")
	t.Setenv("UCUBE_PASSWORD", "pw")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fan@example.com", cfg.Cube.Username)
	assert.Empty(t, cfg.Cube.Token)
}

func TestLoad_BoardCategories(t *testing.T) {
	t.Setenv("UCUBE_AUTH", "bearer-token")
	t.Setenv("UCUBE_BOARD_CATEGORIES", "from_artist,to_artist")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"from_artist", "to_artist"}, cfg.Cube.BoardCategories)
}

func TestLoad_RejectsBothCredentialForms(t *testing.T) {
	t.Setenv("UCUBE_USERNAME", "fan@example.com")
	t.Setenv("UCUBE_PASSWORD", "pw")
	t.Setenv("UCUBE_AUTH", "bearer-token")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestLoad_RejectsMissingCredentials(t *testing.T) {
	t.Setenv("UCUBE_USERNAME", "")
	t.Setenv("UCUBE_PASSWORD", "")
	t.Setenv("UCUBE_AUTH", "")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "must be set")
}

func TestLoad_RejectsIncompletePair(t *testing.T) {
	t.Setenv("UCUBE_USERNAME", "fan@example.com")
	t.Setenv("UCUBE_PASSWORD", "")
	t.Setenv("UCUBE_AUTH", "")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "UCUBE_PASSWORD")
}

func TestLoad_RejectsBadPollInterval(t *testing.T) {
	t.Setenv("UCUBE_AUTH", "bearer-token")
	t.Setenv("WATCH_POLL_INTERVAL_SECS", "0")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "WATCH_POLL_INTERVAL_SECS")
}

func TestLoad_RejectsBadProfileReload(t *testing.T) {
	t.Setenv("UCUBE_AUTH", "bearer-token")
	t.Setenv("WATCH_PROFILE_PATH", "/etc/cubewatch/profile.yaml")
	t.Setenv("WATCH_PROFILE_RELOAD_SECS", "0")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "WATCH_PROFILE_RELOAD_SECS")
}
