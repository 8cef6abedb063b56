package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	APNs     APNsConfig     `yaml:"apns"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds S3 configuration
type AWSConfig struct {
	Region     string `yaml:"region"`
	S3Bucket   string `yaml:"s3_bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"` // custom endpoint for S3-compatible providers
	DisableSSL bool   `yaml:"disable_ssl"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// APNsConfig holds Apple push notification configuration
type APNsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertPath     string `yaml:"cert_path"`
	CertPassword string `yaml:"cert_password"`
	Topic        string `yaml:"topic"`
	Production   bool   `yaml:"production"`
}

// SyncConfig holds the timing knobs for the polling bridge and the
// private-media lifecycle.
type SyncConfig struct {
	PollIntervalSeconds     int `yaml:"poll_interval_seconds"`
	SignedURLTTLSeconds     int `yaml:"signed_url_ttl_seconds"`
	OrphanSweepIntervalMins int `yaml:"orphan_sweep_interval_minutes"`
	OrphanGraceMins         int `yaml:"orphan_grace_minutes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.PollIntervalSeconds <= 0 {
		c.Sync.PollIntervalSeconds = 5
	}
	if c.Sync.SignedURLTTLSeconds <= 0 {
		c.Sync.SignedURLTTLSeconds = 60
	}
	if c.Sync.OrphanSweepIntervalMins <= 0 {
		c.Sync.OrphanSweepIntervalMins = 60
	}
	if c.Sync.OrphanGraceMins <= 0 {
		c.Sync.OrphanGraceMins = 60
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PollInterval returns the poller delay as a duration.
func (c *SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SignedURLTTL returns the signed URL lifetime as a duration.
func (c *SyncConfig) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSeconds) * time.Second
}

// OrphanSweepInterval returns the sweep period as a duration.
func (c *SyncConfig) OrphanSweepInterval() time.Duration {
	return time.Duration(c.OrphanSweepIntervalMins) * time.Minute
}

// OrphanGrace returns the minimum age before an unreferenced blob is reclaimed.
func (c *SyncConfig) OrphanGrace() time.Duration {
	return time.Duration(c.OrphanGraceMins) * time.Minute
}
