package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/logging"
	"github.com/franckalain/sosscan/internal/ml"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix prefixes every environment override, e.g. SOS_PORT
const envPrefix = "SOS"

// Config holds all application configuration
type Config struct {
	Server struct {
		Port      string `json:"port" envconfig:"PORT"`
		StaticDir string `json:"static_dir" envconfig:"STATIC_DIR"`
		Debug     bool   `json:"debug" envconfig:"DEBUG"`
	} `json:"server"`

	Database struct {
		Path string `json:"path" envconfig:"DB_PATH"`
	} `json:"database"`

	ML ml.Config `json:"ml"`

	Capture struct {
		JPEGQuality        int `json:"jpeg_quality" envconfig:"JPEG_QUALITY"`
		MaxDimension       int `json:"max_dimension" envconfig:"MAX_DIMENSION"`
		ArtifactTTLMinutes int `json:"artifact_ttl_minutes" envconfig:"ARTIFACT_TTL_MINUTES"`
	} `json:"capture"`

	Logging logging.Config `json:"logging"`

	Telemetry struct {
		SentryDSN   string `json:"sentry_dsn" envconfig:"SENTRY_DSN"`
		Environment string `json:"environment" envconfig:"ENVIRONMENT"`
	} `json:"telemetry"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.StaticDir = "./static"
	cfg.Database.Path = "sos.db"
	cfg.ML.RequestTimeoutSeconds = 60
	cfg.ML.ApplyDefaults()
	cfg.Capture.JPEGQuality = capture.DefaultQuality
	cfg.Capture.MaxDimension = capture.DefaultMaxDimension
	cfg.Capture.ArtifactTTLMinutes = 30
	cfg.Logging.Level = "info"
	cfg.Telemetry.Environment = "development"
	return &cfg
}

// LoadConfig loads configuration from a JSON file over the defaults, then
// applies SOS_* environment overrides. An empty path skips the file.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Sections are processed one by one so keys stay flat (SOS_API_KEY, not SOS_ML_API_KEY)
	sections := []any{&config.Server, &config.Database, &config.ML, &config.Capture, &config.Logging, &config.Telemetry}
	for _, section := range sections {
		if err := envconfig.Process(envPrefix, section); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	config.ML.ApplyDefaults()
	return config, nil
}

// Validate checks the loaded configuration. A missing model credential
// wraps ml.ErrMissingCredential.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is not set")
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture jpeg_quality must be between 1 and 100, got %d", c.Capture.JPEGQuality)
	}
	if c.Capture.MaxDimension < 0 {
		return fmt.Errorf("capture max_dimension must not be negative")
	}
	if c.Capture.ArtifactTTLMinutes <= 0 {
		return fmt.Errorf("capture artifact_ttl_minutes must be positive")
	}
	return c.ML.Validate()
}

// RequestTimeout bounds one analysis request; zero means no bound
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.ML.RequestTimeoutSeconds) * time.Second
}

// ArtifactTTL is how long an unreleased still stays servable
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Capture.ArtifactTTLMinutes) * time.Minute
}

// CaptureOptions returns the encoder settings
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{Quality: c.Capture.JPEGQuality, MaxDimension: c.Capture.MaxDimension}
}

// GetConfigPath returns the path to the configuration file, or "" when there is none
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("SOS_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	if path := filepath.Join("config", "config.json"); fileExists(path) {
		return path
	}

	// Finally, try current directory
	if fileExists("config.json") {
		return "config.json"
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
