package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all KroniQ engine configuration.
type Config struct {
	Listen      string             `yaml:"listen"`
	Log         LogConfig          `yaml:"log"`
	Store       StoreConfig        `yaml:"store"`
	PolicyPath  string             `yaml:"policy_path"`
	WatchPolicy bool               `yaml:"watch_policy"`
	Audit       models.AuditConfig `yaml:"audit"`
	Events      EventsConfig       `yaml:"events"`
	Provider    ProviderConfig     `yaml:"provider"`
	Server      ServerConfig       `yaml:"server"`
	Intent      IntentConfig       `yaml:"intent"`
}

// LogConfig controls log level, format and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// StoreConfig selects and configures the persistence backend.
// Driver is one of "sqlite" (default), "postgres", "redis" or "memory".
type StoreConfig struct {
	Driver      string      `yaml:"driver"`
	SQLitePath  string      `yaml:"sqlite_path"`
	PostgresDSN string      `yaml:"postgres_dsn"`
	Redis       RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig selects where usage events are published.
// Driver is "log" (default), "pubsub" or "none".
type EventsConfig struct {
	Driver    string `yaml:"driver"`
	ProjectID string `yaml:"project_id"`
	Topic     string `yaml:"topic"`
}

// ProviderConfig points the engine at the generation gateway.
type ProviderConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	Mock    bool          `yaml:"mock"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	CORSOrigins    []string `yaml:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// IntentConfig tunes the confirmation policy applied to classified intents.
type IntentConfig struct {
	ConfirmThreshold float64               `yaml:"confirm_threshold"`
	ConfirmIntents   []models.ResourceType `yaml:"confirm_intents"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "kroniq.db",
		},
		Audit: models.AuditConfig{
			Enabled:       true,
			DBPath:        "kroniq-audit.db",
			RetentionDays: 90,
		},
		Events: EventsConfig{
			Driver: "log",
			Topic:  "kroniq-usage",
		},
		Provider: ProviderConfig{
			Timeout: 2 * time.Minute,
		},
		Server: ServerConfig{
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Intent: IntentConfig{
			ConfirmThreshold: 0.7,
			ConfirmIntents:   []models.ResourceType{models.ResourceVideo},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.Store.Driver {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	switch cfg.Events.Driver {
	case "log", "pubsub", "none":
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}
	for _, r := range cfg.Intent.ConfirmIntents {
		if !r.Valid() {
			return nil, fmt.Errorf("intent.confirm_intents: unknown resource %q", r)
		}
	}

	return cfg, nil
}
