// Package config holds tunable constants and the runtime configuration of the
// facilityobs server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. Values come from defaults, then an
// optional YAML file, then FACILITYOBS_* environment variables.
type Config struct {
	Port         string `yaml:"port"`
	DataDir      string `yaml:"data_dir"`
	RegistryPath string `yaml:"registry_path"`
	Debug        bool   `yaml:"debug"`

	MaxStorageGB  int64 `yaml:"max_storage_gb"`
	MaxMemoryMB   int64 `yaml:"max_memory_mb"`
	RetentionDays int   `yaml:"retention_days"`

	Report ReportConfig `yaml:"report"`
	Ingest IngestConfig `yaml:"ingest"`
	Auth   AuthConfig   `yaml:"auth"`

	OnlineThreshold time.Duration `yaml:"online_threshold"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	// Timezone is an IANA zone name or "Local". Day boundaries for report
	// periods are computed in this zone.
	Timezone string `yaml:"timezone"`
}

// IngestConfig controls the device ingestion endpoint.
type IngestConfig struct {
	// AssumedOffset is applied to device timestamps sent without a zone,
	// e.g. "+05:30".
	AssumedOffset string  `yaml:"assumed_offset"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// AuthConfig controls sessions and the seeded admin account.
type AuthConfig struct {
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
	AdminUsername string        `yaml:"admin_username"`
	AdminPassword string        `yaml:"admin_password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:          DefaultPort,
		DataDir:       DefaultDataDir,
		MaxStorageGB:  DefaultMaxStorageGB,
		MaxMemoryMB:   DefaultMaxMemoryMB,
		RetentionDays: 0,
		Report:        ReportConfig{Timezone: DefaultTimezone},
		Ingest: IngestConfig{
			AssumedOffset: DefaultAssumedOffset,
			RatePerSecond: DefaultIngestRate,
			Burst:         DefaultIngestBurst,
		},
		Auth: AuthConfig{
			SessionTTL:    DefaultSessionTTL,
			AdminUsername: DefaultAdminUsername,
			AdminPassword: DefaultAdminPassword,
		},
		OnlineThreshold: DefaultOnlineThreshold,
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.RegistryPath == "" {
		cfg.RegistryPath = filepath.Join(cfg.DataDir, DefaultRegistryFile)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must be >= 0, got %d", c.RetentionDays))
	}
	if c.MaxStorageGB < 0 || c.MaxMemoryMB < 0 {
		errs = append(errs, errors.New("storage and memory limits must be >= 0"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.IngestLocation(); err != nil {
		errs = append(errs, err)
	}
	if c.Ingest.RatePerSecond <= 0 || c.Ingest.Burst <= 0 {
		errs = append(errs, errors.New("ingest rate_per_second and burst must be > 0"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth session_ttl must be > 0"))
	}
	if c.OnlineThreshold <= 0 {
		errs = append(errs, errors.New("online_threshold must be > 0"))
	}
	return errors.Join(errs...)
}

// Location returns the canonical report time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" || strings.EqualFold(c.Report.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", c.Report.Timezone, err)
	}
	return loc, nil
}

// IngestLocation returns the fixed zone assumed for unzoned device timestamps.
func (c Config) IngestLocation() (*time.Location, error) {
	return ParseOffset(c.Ingest.AssumedOffset)
}

// ParseOffset parses a "+hh:mm" / "-hh:mm" offset into a fixed zone.
func ParseOffset(offset string) (*time.Location, error) {
	if offset == "" || offset == "Z" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return nil, fmt.Errorf("invalid assumed offset %q (want +hh:mm): %w", offset, err)
	}
	_, secs := t.Zone()
	return time.FixedZone(offset, secs), nil
}

// MaxStorageBytes returns the storage limit in bytes.
func (c Config) MaxStorageBytes() int64 {
	return c.MaxStorageGB * 1024 * 1024 * 1024
}

func applyEnv(c *Config) {
	if port := os.Getenv("PORT"); port != "" {
		c.Port = port
	}
	c.Port = getEnvString("FACILITYOBS_PORT", c.Port)
	c.DataDir = getEnvString("FACILITYOBS_DATA_DIR", c.DataDir)
	c.RegistryPath = getEnvString("FACILITYOBS_REGISTRY_PATH", c.RegistryPath)
	c.Debug = getEnvBool("FACILITYOBS_DEBUG", c.Debug)
	c.MaxStorageGB = getEnvInt64("FACILITYOBS_MAX_STORAGE_GB", c.MaxStorageGB)
	c.MaxMemoryMB = getEnvInt64("FACILITYOBS_MAX_MEMORY_MB", c.MaxMemoryMB)
	c.RetentionDays = int(getEnvInt64("FACILITYOBS_RETENTION_DAYS", int64(c.RetentionDays)))
	c.Report.Timezone = getEnvString("FACILITYOBS_TIMEZONE", c.Report.Timezone)
	c.Ingest.AssumedOffset = getEnvString("FACILITYOBS_ASSUMED_OFFSET", c.Ingest.AssumedOffset)
	c.Auth.AdminUsername = getEnvString("FACILITYOBS_ADMIN_USERNAME", c.Auth.AdminUsername)
	c.Auth.AdminPassword = getEnvString("FACILITYOBS_ADMIN_PASSWORD", c.Auth.AdminPassword)
	c.Auth.SecureCookies = getEnvBool("FACILITYOBS_SECURE_COOKIES", c.Auth.SecureCookies)
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from environment variable or returns default.
// Unparsable values keep the default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
