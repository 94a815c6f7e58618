package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mediaferry", cfg.Name)
	assert.Equal(t, 7, cfg.Session.FreshnessDays)
	assert.Equal(t, 4, cfg.Transfer.VisibilityDelayDays)
	assert.False(t, cfg.Transfer.IncludeVideos)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("session:\n  freshness_days: 3\ntransfer:\n  include_videos: true\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Session.FreshnessDays)
	assert.True(t, cfg.Transfer.IncludeVideos)
	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.Transfer.ConsentLoopMaxIterations)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDIAFERRY_APPLE_ID", "user@example.com")
	t.Setenv("MEDIAFERRY_DB", "/tmp/other.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.Apple.ID)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.DatabasePath)
}

func TestSessionFreshness(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 7*24*time.Hour, cfg.SessionFreshness())

	cfg.Session.FreshnessDays = 0
	assert.Equal(t, 7*24*time.Hour, cfg.SessionFreshness())

	cfg.Session.FreshnessDays = 1
	assert.Equal(t, 24*time.Hour, cfg.SessionFreshness())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Transfer.ConfirmEnableWaitSeconds = 40
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, loaded.Transfer.ConfirmEnableWaitSeconds)
}
