package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/yegors/planereports/internal/adsb"
	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/visit"
	"github.com/yegors/planereports/pkg/logger"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Engine   EngineConfig   `toml:"engine"`   // Report cleaning and event detection tunables
	Airport  AirportConfig  `toml:"airport"`  // Airports to detect events at
	Reporter ReporterConfig `toml:"reporter"` // Receiver that produced the reports
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains logging configuration settings
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn" or "error"
	Format     string `toml:"format"`       // Output format: "console" or "json"
	File       string `toml:"file"`         // Optional rotating log file
	MaxSizeMB  int    `toml:"max_size_mb"`  // Size at which the log file is rotated
	MaxBackups int    `toml:"max_backups"`  // Rotated files kept
	MaxAgeDays int    `toml:"max_age_days"` // Days rotated files are kept
}

// StorageConfig contains data persistence settings
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
	PageSize   int    `toml:"page_size"`   // Reports read per query when streaming
}

// EngineConfig contains the report cleaning and event detection tunables
type EngineConfig struct {
	MinTurnaroundSeconds      int64   `toml:"min_turnaround_seconds"`      // Gap that separates two visits
	BearingToleranceDegrees   float64 `toml:"bearing_tolerance_degrees"`   // Track to runway heading tolerance
	DistanceFudgeMeters       float64 `toml:"distance_fudge_meters"`       // Slack added to the travelled distance bound
	DuplicateStalenessSeconds int64   `toml:"duplicate_staleness_seconds"` // Identical reports further apart are kept
	LocationPrecision         int     `toml:"location_precision"`          // Decimal places compared by the duplicate filter
	DistanceMetric            string  `toml:"distance_metric"`             // "haversine" or "geodesic"
	Segmentation              string  `toml:"segmentation"`                // "gap" or "gap_or_stop"
	PrefilterApproachBand     *bool   `toml:"prefilter_approach_band"`     // Only segment reports in the airport's altitude band
	FloorMarginMeters         float64 `toml:"floor_margin_meters"`         // Band floor below field elevation
	CommittedHeightMeters     float64 `toml:"committed_height_meters"`     // Band ceiling above field elevation
	Workers                   int     `toml:"workers"`                     // Aircraft processed in parallel
}

// AirportConfig selects the airports events are detected at
type AirportConfig struct {
	ICAO          []string `toml:"icao"`           // Airports loaded from storage for each run
	ReferenceFile string   `toml:"reference_file"` // JSON airport definitions imported by the airports command
}

// ReporterConfig describes the receiver and the sanity limits applied to its
// feed
type ReporterConfig struct {
	Name           string  `toml:"name"`             // Stored with every report
	Latitude       float64 `toml:"latitude"`         // Receiver position
	Longitude      float64 `toml:"longitude"`        // Receiver position
	MaxSeenSeconds float64 `toml:"max_seen_seconds"` // Drop positions older than this at snapshot time (0 = keep all)
	MinAltitude    float64 `toml:"min_altitude"`     // Metres
	MaxAltitude    float64 `toml:"max_altitude"`     // Metres (0 = no altitude limit)
	MinSpeed       float64 `toml:"min_speed"`        // km/h
	MaxSpeed       float64 `toml:"max_speed"`        // km/h (0 = no speed limit)
	MinDistance    float64 `toml:"min_distance"`     // Metres from the receiver
	MaxDistance    float64 `toml:"max_distance"`     // Metres from the receiver (0 = no distance limit)
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Conventional location in configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if err := c.ValidateServer(); err != nil {
		return err
	}
	if err := c.ValidateLogging(); err != nil {
		return err
	}
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if err := c.ValidateEngine(); err != nil {
		return err
	}
	if err := c.ValidateAirport(); err != nil {
		return err
	}
	return c.ValidateReporter()
}

// ValidateServer validates the server configuration
func (c *Config) ValidateServer() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be >= 0")
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 120
	}
	return nil
}

// ValidateLogging validates the logging configuration
func (c *Config) ValidateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays <= 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
	return nil
}

// ValidateStorage validates the storage configuration
func (c *Config) ValidateStorage() error {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/planereports.db"
	}
	if c.Storage.PageSize < 0 {
		return fmt.Errorf("invalid storage page size: %d", c.Storage.PageSize)
	}
	if c.Storage.PageSize == 0 {
		c.Storage.PageSize = 5000
	}
	return nil
}

// ValidateEngine validates the engine tunables, defaulting any left unset
func (c *Config) ValidateEngine() error {
	e := &c.Engine
	def := engine.DefaultConfig()

	if e.MinTurnaroundSeconds == 0 {
		e.MinTurnaroundSeconds = def.MinTurnaroundSeconds
	}
	if e.BearingToleranceDegrees == 0 {
		e.BearingToleranceDegrees = def.BearingToleranceDegrees
	}
	if e.DistanceFudgeMeters == 0 {
		e.DistanceFudgeMeters = def.DistanceFudgeMeters
	}
	if e.DuplicateStalenessSeconds == 0 {
		e.DuplicateStalenessSeconds = def.DuplicateStalenessSeconds
	}
	if e.LocationPrecision == 0 {
		e.LocationPrecision = def.LocationPrecision
	}
	if e.DistanceMetric == "" {
		e.DistanceMetric = def.Metric.String()
	}
	if e.Segmentation == "" {
		e.Segmentation = "gap"
	}
	if e.PrefilterApproachBand == nil {
		prefilter := def.PrefilterApproachBand
		e.PrefilterApproachBand = &prefilter
	}
	if e.FloorMarginMeters == 0 {
		e.FloorMarginMeters = def.FloorMarginMeters
	}
	if e.CommittedHeightMeters == 0 {
		e.CommittedHeightMeters = def.CommittedHeightMeters
	}
	if e.Workers == 0 {
		e.Workers = def.Workers
	}

	if e.MinTurnaroundSeconds < 0 {
		return fmt.Errorf("invalid min_turnaround_seconds: %d", e.MinTurnaroundSeconds)
	}
	if e.BearingToleranceDegrees < 0 || e.BearingToleranceDegrees > 180 {
		return fmt.Errorf("invalid bearing_tolerance_degrees: %f (must be 0-180)", e.BearingToleranceDegrees)
	}
	if e.DistanceFudgeMeters < 0 {
		return fmt.Errorf("invalid distance_fudge_meters: %f", e.DistanceFudgeMeters)
	}
	if e.DuplicateStalenessSeconds < 0 {
		return fmt.Errorf("invalid duplicate_staleness_seconds: %d", e.DuplicateStalenessSeconds)
	}
	if e.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", e.Workers)
	}
	if _, err := geo.ParseMetric(e.DistanceMetric); err != nil {
		return err
	}
	if _, err := visit.ParsePolicy(e.Segmentation); err != nil {
		return err
	}
	return nil
}

// ValidateAirport validates the airport selection
func (c *Config) ValidateAirport() error {
	for i, icao := range c.Airport.ICAO {
		icao = strings.ToUpper(strings.TrimSpace(icao))
		if len(icao) != 4 {
			return fmt.Errorf("invalid airport ICAO code: %q", c.Airport.ICAO[i])
		}
		c.Airport.ICAO[i] = icao
	}
	return nil
}

// ValidateReporter validates the receiver configuration
func (c *Config) ValidateReporter() error {
	r := &c.Reporter
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("invalid reporter latitude: %f", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("invalid reporter longitude: %f", r.Longitude)
	}
	if r.MaxAltitude != 0 && r.MaxAltitude < r.MinAltitude {
		return fmt.Errorf("reporter max_altitude %f is below min_altitude %f", r.MaxAltitude, r.MinAltitude)
	}
	if r.MaxSpeed != 0 && r.MaxSpeed < r.MinSpeed {
		return fmt.Errorf("reporter max_speed %f is below min_speed %f", r.MaxSpeed, r.MinSpeed)
	}
	if r.MaxDistance != 0 && r.MaxDistance < r.MinDistance {
		return fmt.Errorf("reporter max_distance %f is below min_distance %f", r.MaxDistance, r.MinDistance)
	}
	return nil
}

// LoggerConfig returns the settings for the application logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// EngineConfig converts the validated tunables into an engine configuration
func (c *Config) EngineConfig(stages engine.Stage) (engine.Config, error) {
	metric, err := geo.ParseMetric(c.Engine.DistanceMetric)
	if err != nil {
		return engine.Config{}, err
	}
	policy, err := visit.ParsePolicy(c.Engine.Segmentation)
	if err != nil {
		return engine.Config{}, err
	}

	cfg := engine.DefaultConfig()
	cfg.Stages = stages
	cfg.MinTurnaroundSeconds = c.Engine.MinTurnaroundSeconds
	cfg.BearingToleranceDegrees = c.Engine.BearingToleranceDegrees
	cfg.DistanceFudgeMeters = c.Engine.DistanceFudgeMeters
	cfg.DuplicateStalenessSeconds = c.Engine.DuplicateStalenessSeconds
	cfg.LocationPrecision = c.Engine.LocationPrecision
	cfg.Metric = metric
	cfg.Segmentation = policy
	if c.Engine.PrefilterApproachBand != nil {
		cfg.PrefilterApproachBand = *c.Engine.PrefilterApproachBand
	}
	cfg.FloorMarginMeters = c.Engine.FloorMarginMeters
	cfg.CommittedHeightMeters = c.Engine.CommittedHeightMeters
	cfg.Workers = c.Engine.Workers
	return cfg, nil
}

// DecodeOptions returns the feed decoding options for the configured receiver
func (c *Config) DecodeOptions() adsb.Options {
	r := c.Reporter
	return adsb.Options{
		ReporterID:  r.Name,
		ReporterLat: r.Latitude,
		ReporterLon: r.Longitude,
		Limits: adsb.Limits{
			MaxSeenSeconds: r.MaxSeenSeconds,
			MinAltitude:    r.MinAltitude,
			MaxAltitude:    r.MaxAltitude,
			MinSpeed:       r.MinSpeed,
			MaxSpeed:       r.MaxSpeed,
			MinDistance:    r.MinDistance,
			MaxDistance:    r.MaxDistance,
		},
	}
}
