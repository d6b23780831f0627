package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	DataDir      string    `json:"dataDir"`
	DatabasePath string    `json:"databasePath"`
	Media        Media     `json:"media"`
	Remote       Remote    `json:"remote"`
	Sync         Sync      `json:"sync"`
	VenueInfo    VenueInfo `json:"venueInfo"`
	API          API       `json:"api"`
	Logging      Logging   `json:"logging"`
	Telemetry    Telemetry `json:"telemetry"`
}

// Media configuration for the local blob store and encoder
type Media struct {
	BasePath      string `json:"basePath"`
	MaxFileSizeMB int64  `json:"maxFileSizeMB"`
	JPEGQuality   int    `json:"jpegQuality"`
	MaxDimension  int    `json:"maxDimension"`
}

// Remote store configuration. Leaving Endpoint empty selects offline mode.
type Remote struct {
	Endpoint       string `json:"endpoint"`
	ProjectID      string `json:"projectId"`
	APIKey         string `json:"apiKey"`
	TokenURL       string `json:"tokenUrl"`
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	S3             S3     `json:"s3"`
}

// S3 blob storage. Bucket empty means blobs go through the remote endpoint.
type S3 struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
}

// IsConfigured reports whether a live remote store is available
func (r Remote) IsConfigured() bool {
	return strings.TrimSpace(r.Endpoint) != ""
}

// Timeout returns the per-request timeout
func (r Remote) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// UsesClientCredentials reports whether OAuth2 client credentials are set
func (r Remote) UsesClientCredentials() bool {
	return r.TokenURL != "" && r.ClientID != ""
}

// Sync orchestration policy
type Sync struct {
	StaleAfterHours         int `json:"staleAfterHours"`
	AutoSyncIntervalMinutes int `json:"autoSyncIntervalMinutes"`
	MediaConcurrency        int `json:"mediaConcurrency"`
}

// StaleAfter is the age after which an automatic sync is due
func (s Sync) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterHours) * time.Hour
}

// AutoSyncInterval is how often the staleness check runs. Zero disables it.
func (s Sync) AutoSyncInterval() time.Duration {
	return time.Duration(s.AutoSyncIntervalMinutes) * time.Minute
}

// VenueInfo configuration
type VenueInfo struct {
	BundlePath string `json:"bundlePath"`
}

// API configuration for the local presentation API
type API struct {
	Address      string `json:"address"`
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// Logging configuration. An empty File logs to stdout.
type Logging struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
}

// Telemetry configuration
type Telemetry struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Environment string `json:"environment"`
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Media: Media{
			MaxFileSizeMB: 5,
			JPEGQuality:   80,
			MaxDimension:  2048,
		},
		Remote: Remote{
			TimeoutSeconds: 30,
		},
		Sync: Sync{
			StaleAfterHours:         24,
			AutoSyncIntervalMinutes: 15,
			MediaConcurrency:        4,
		},
		VenueInfo: VenueInfo{
			BundlePath: "barinfo.json",
		},
		API: API{
			Address:      "127.0.0.1:8787",
			APIKeyHeader: "X-API-Key",
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4317",
			Environment: "development",
		},
	}
}

// Load reads the config file named by VENUESYNC_CONFIG (default venuesync.json)
// and applies environment overrides on top
func Load() (*Config, error) {
	configPath := os.Getenv("VENUESYNC_CONFIG")
	if configPath == "" {
		configPath = "venuesync.json"
	}
	return LoadFile(configPath)
}

// LoadFile is Load with an explicit path. A missing file is not an error.
func LoadFile(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DataDir, "VENUESYNC_DATA_DIR")
	setString(&cfg.DatabasePath, "VENUESYNC_DATABASE_PATH")
	setString(&cfg.Media.BasePath, "VENUESYNC_MEDIA_PATH")
	setInt(&cfg.Media.JPEGQuality, "VENUESYNC_JPEG_QUALITY")

	setString(&cfg.Remote.Endpoint, "VENUESYNC_REMOTE_ENDPOINT")
	setString(&cfg.Remote.ProjectID, "VENUESYNC_REMOTE_PROJECT_ID")
	setString(&cfg.Remote.APIKey, "VENUESYNC_REMOTE_API_KEY")
	setString(&cfg.Remote.TokenURL, "VENUESYNC_REMOTE_TOKEN_URL")
	setString(&cfg.Remote.ClientID, "VENUESYNC_REMOTE_CLIENT_ID")
	setString(&cfg.Remote.ClientSecret, "VENUESYNC_REMOTE_CLIENT_SECRET")
	setInt(&cfg.Remote.TimeoutSeconds, "VENUESYNC_REMOTE_TIMEOUT_SECONDS")

	setString(&cfg.Remote.S3.Bucket, "VENUESYNC_S3_BUCKET")
	setString(&cfg.Remote.S3.Region, "VENUESYNC_S3_REGION")
	setString(&cfg.Remote.S3.Endpoint, "VENUESYNC_S3_ENDPOINT")
	setString(&cfg.Remote.S3.AccessKey, "VENUESYNC_S3_ACCESS_KEY")
	setString(&cfg.Remote.S3.SecretKey, "VENUESYNC_S3_SECRET_KEY")

	setInt(&cfg.Sync.StaleAfterHours, "VENUESYNC_STALE_AFTER_HOURS")
	setInt(&cfg.Sync.AutoSyncIntervalMinutes, "VENUESYNC_AUTO_SYNC_MINUTES")
	setInt(&cfg.Sync.MediaConcurrency, "VENUESYNC_MEDIA_CONCURRENCY")

	setString(&cfg.VenueInfo.BundlePath, "VENUESYNC_VENUE_INFO_BUNDLE")

	setString(&cfg.API.Address, "VENUESYNC_API_ADDRESS")
	setString(&cfg.API.APIKey, "VENUESYNC_API_KEY")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.File, "VENUESYNC_LOG_FILE")

	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		cfg.Telemetry.Enabled = enabled == "true" || enabled == "1"
	}
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.Environment, "ENVIRONMENT")
}

// finalize derives paths that default relative to DataDir
func (c *Config) finalize() error {
	absData, err := filepath.Abs(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = absData

	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "venues.db")
	}
	if c.Media.BasePath == "" {
		c.Media.BasePath = filepath.Join(c.DataDir, "VenueImages")
	}
	absMedia, err := filepath.Abs(c.Media.BasePath)
	if err != nil {
		return err
	}
	c.Media.BasePath = absMedia
	return nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	if c.Media.MaxFileSizeMB <= 0 {
		return fmt.Errorf("media.maxFileSizeMB must be positive")
	}
	if c.Media.JPEGQuality < 1 || c.Media.JPEGQuality > 100 {
		return fmt.Errorf("media.jpegQuality must be between 1 and 100")
	}
	if c.Media.MaxDimension < 0 {
		return fmt.Errorf("media.maxDimension cannot be negative")
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote.timeoutSeconds must be positive")
	}
	if c.Sync.StaleAfterHours <= 0 {
		return fmt.Errorf("sync.staleAfterHours must be positive")
	}
	if c.Sync.MediaConcurrency <= 0 {
		return fmt.Errorf("sync.mediaConcurrency must be positive")
	}
	if c.Remote.S3.Bucket != "" && c.Remote.S3.Region == "" {
		return fmt.Errorf("remote.s3.region is required when a bucket is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
