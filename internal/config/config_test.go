package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "boardingpass.db", cfg.Store.SQLitePath)
	assert.Equal(t, 5432, cfg.Store.Postgres.Port)
	assert.Equal(t, 9000, cfg.Store.ClickHouse.Port)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Feed.URL)
	assert.Equal(t, "boardingpass.ocr", cfg.Feed.Subject)
	assert.Equal(t, "boardingpass.extracted", cfg.Feed.ResultSubject)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "boardingpass", cfg.Metrics.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "Local", cfg.Location)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/passes.db
log:
  level: debug
  format: console
feed:
  subject: scans.ocr
location: Asia/Tokyo
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/passes.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "scans.ocr", cfg.Feed.Subject)
	assert.Equal(t, "boardingpass.extracted", cfg.Feed.ResultSubject)
	assert.Equal(t, "Asia/Tokyo", cfg.Location)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("BOARDINGPASS_STORE_DRIVER", "postgres")
	t.Setenv("BOARDINGPASS_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestCalendarLocation(t *testing.T) {
	cfg := &Config{Location: "Local"}
	loc, err := cfg.CalendarLocation()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Location = "UTC"
	loc, err = cfg.CalendarLocation()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Location = "Not/AZone"
	_, err = cfg.CalendarLocation()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
