package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default("/var/lib/daybook")
	cfg.Matching.WindowHours = 48
	cfg.Exception.HighVariancePct = 5
	cfg.Server.Port = 9000

	path := filepath.Join(t.TempDir(), "daybook.yaml")
	err := Save(path, cfg)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/daybook", got.DataDir)
	assert.Equal(t, 48, got.Matching.WindowHours)
	assert.Equal(t, 24, got.Matching.SettlementWindowHours)
	assert.Equal(t, int64(5), got.Exception.HighVariancePct)
	assert.Equal(t, 9000, got.Server.Port)
	assert.Equal(t, "skip", got.Normalize.Policy)
}

func TestDefaults(t *testing.T) {
	cfg := Default(".")

	assert.Equal(t, "daybook.db", cfg.Database.Path)
	assert.Equal(t, 24, cfg.Matching.WindowHours)
	assert.Equal(t, 24, cfg.Matching.SettlementWindowHours)
	assert.Equal(t, int64(10), cfg.Exception.HighVariancePct)
	assert.Equal(t, 6, cfg.Exception.PendingMediumAge)
	assert.Equal(t, "skip", cfg.Normalize.Policy)
	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, "0 30 2 * * *", cfg.Schedule.Nightly)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestYAMLFormat(t *testing.T) {
	cfg := Default("data")
	path := filepath.Join(t.TempDir(), "daybook.yaml")
	err := Save(path, cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "data_dir: data")
	assert.Contains(t, contents, "window_hours: 24")
	assert.Contains(t, contents, "policy: skip")
	assert.Contains(t, contents, "high_variance_pct: 10")
}
