// Package config provides configuration loading and structs for the shopassist server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/shopassist/internal/validate"
)

// Config holds all configuration for the application.
type Config struct {
	Debug           bool                  `yaml:"debug"`
	Server          ServerConfig          `yaml:"server"`
	Storage         StorageConfig         `yaml:"storage"`
	Index           IndexConfig           `yaml:"index"`
	Places          PlacesConfig          `yaml:"places"`
	Auth            AuthConfig            `yaml:"auth"`
	Recommendations RecommendationsConfig `yaml:"recommendations"`
	Notifications   NotificationsConfig   `yaml:"notifications"`
	Maintenance     MaintenanceConfig     `yaml:"maintenance"`
	Import          ImportConfig          `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits nearby searches per client. Zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
}

// StorageConfig holds paths for the database and the embedded index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path" validate:"required"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// IndexConfig selects and tunes the place index backend.
type IndexConfig struct {
	Backend        string        `yaml:"backend" validate:"oneof=bleve elastic memory"`
	PageSize       int           `yaml:"page_size" validate:"min=1"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RebuildWorkers int           `yaml:"rebuild_workers" validate:"min=1"`
	Elastic        ElasticConfig `yaml:"elastic"`
}

// ElasticConfig holds Elasticsearch connection settings.
type ElasticConfig struct {
	URL   string `yaml:"url"`
	Index string `yaml:"index"`
}

// PlacesConfig holds proximity search settings.
type PlacesConfig struct {
	// DegradedGeo is set where the index cannot answer geo queries.
	DegradedGeo       bool    `yaml:"degraded_geo"`
	MaxDistanceKm     float64 `yaml:"max_distance_km" validate:"gt=0"`
	MaxResults        int     `yaml:"max_results" validate:"min=1"`
	DefaultDistanceKm float64 `yaml:"default_distance_km" validate:"min=0"`
	DefaultCount      int     `yaml:"default_count" validate:"min=1"`
	PlaceholderBaseKm float64 `yaml:"placeholder_base_km" validate:"min=0"`
	DistanceFormula   string  `yaml:"distance_formula" validate:"oneof=cosines haversine"`
}

// AuthConfig holds token signing settings and the known accounts.
type AuthConfig struct {
	SigningKey string        `yaml:"signing_key"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	// Admins lists the emails allowed to call administrative endpoints.
	Admins []string `yaml:"admins"`
	// Users maps an email to a bcrypt password hash.
	Users map[string]string `yaml:"users"`
}

// RecommendationsConfig tunes the recommendation job queue.
type RecommendationsConfig struct {
	Expiration      time.Duration `yaml:"expiration"`
	GenerationDelay time.Duration `yaml:"generation_delay"`
	Workers         int           `yaml:"workers" validate:"min=1"`
	QueueSize       int           `yaml:"queue_size" validate:"min=1"`
	TemplateID      string        `yaml:"template_id"`
}

// NotificationsConfig tunes push delivery.
type NotificationsConfig struct {
	MaxDevices int `yaml:"max_devices" validate:"min=1"`
	MaxRetries int `yaml:"max_retries" validate:"min=0"`
}

// MaintenanceConfig schedules index maintenance.
type MaintenanceConfig struct {
	// RebuildSchedule is a cron spec; empty disables scheduled rebuilds.
	RebuildSchedule string `yaml:"rebuild_schedule"`
	RebuildOnStart  bool   `yaml:"rebuild_on_start"`
}

// ImportConfig holds directories watched for place sheets.
type ImportConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *ImportConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands paths, and validates.
// Returns an error if the file cannot be read, parsed, or is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	for i := range cfg.Import.Directories {
		cfg.Import.Directories[i] = expandPath(cfg.Import.Directories[i], configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg for invalid or inconsistent values.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Index.Backend == "elastic" && cfg.Index.Elastic.URL == "" {
		return fmt.Errorf("invalid config: index.elastic.url is required for the elastic backend")
	}
	if cfg.Index.Backend == "bleve" && cfg.Storage.BleveIndexPath == "" {
		return fmt.Errorf("invalid config: storage.bleve_index_path is required for the bleve backend")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
