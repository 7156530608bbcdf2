package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/visit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// =============================================================================
// Loading
// =============================================================================

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[storage]
sqlite_path = "/tmp/reports.db"

[engine]
distance_metric = "geodesic"
segmentation = "gap_or_stop"
prefilter_approach_band = false
workers = 2

[airport]
icao = [" yssy "]

[reporter]
name = "roof"
latitude = -33.9
longitude = 151.2
max_speed = 1200
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/tmp/reports.db", cfg.Storage.SQLitePath)
	assert.Equal(t, []string{"YSSY"}, cfg.Airport.ICAO)

	ec, err := cfg.EngineConfig(engine.AllStages)
	require.NoError(t, err)
	assert.Equal(t, geo.Geodesic, ec.Metric)
	assert.Equal(t, visit.GapOrStop, ec.Segmentation)
	assert.False(t, ec.PrefilterApproachBand)
	assert.Equal(t, 2, ec.Workers)
	assert.Equal(t, engine.AllStages, ec.Stages)

	opts := cfg.DecodeOptions()
	assert.Equal(t, "roof", opts.ReporterID)
	assert.InDelta(t, -33.9, opts.ReporterLat, 1e-9)
	assert.InDelta(t, 1200.0, opts.Limits.MaxSpeed, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nport = "))
	assert.Error(t, err)
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 8181\n")
	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)

	_, err = LoadWithFallback(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidateDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())

	def := engine.DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 5000, cfg.Storage.PageSize)
	assert.Equal(t, def.MinTurnaroundSeconds, cfg.Engine.MinTurnaroundSeconds)
	assert.Equal(t, def.BearingToleranceDegrees, cfg.Engine.BearingToleranceDegrees)
	assert.Equal(t, "haversine", cfg.Engine.DistanceMetric)
	assert.Equal(t, "gap", cfg.Engine.Segmentation)
	require.NotNil(t, cfg.Engine.PrefilterApproachBand)
	assert.True(t, *cfg.Engine.PrefilterApproachBand)

	ec, err := cfg.EngineConfig(engine.AllStages)
	require.NoError(t, err)
	assert.Equal(t, def, ec)
}

func TestValidateLogFileDefaults(t *testing.T) {
	cfg := Config{Logging: LoggingConfig{File: "app.log"}}
	require.NoError(t, cfg.Validate())

	lc := cfg.LoggerConfig()
	assert.Equal(t, "app.log", lc.File)
	assert.Equal(t, 100, lc.MaxSizeMB)
	assert.Equal(t, 5, lc.MaxBackups)
	assert.Equal(t, 30, lc.MaxAgeDays)
}

func TestValidateRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"port", Config{Server: ServerConfig{Port: 70000}}},
		{"log level", Config{Logging: LoggingConfig{Level: "verbose"}}},
		{"log format", Config{Logging: LoggingConfig{Format: "xml"}}},
		{"page size", Config{Storage: StorageConfig{PageSize: -1}}},
		{"metric", Config{Engine: EngineConfig{DistanceMetric: "manhattan"}}},
		{"segmentation", Config{Engine: EngineConfig{Segmentation: "hourly"}}},
		{"tolerance", Config{Engine: EngineConfig{BearingToleranceDegrees: 200}}},
		{"workers", Config{Engine: EngineConfig{Workers: -3}}},
		{"icao", Config{Airport: AirportConfig{ICAO: []string{"SYD"}}}},
		{"latitude", Config{Reporter: ReporterConfig{Latitude: 91}}},
		{"speed range", Config{Reporter: ReporterConfig{MinSpeed: 300, MaxSpeed: 100}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestShippedConfigValidates(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"YSSY"}, cfg.Airport.ICAO)
}
