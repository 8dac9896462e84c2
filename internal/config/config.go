package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Provider
	FaceProvider string `envconfig:"FACE_PROVIDER" default:"deepface"`
	DeepFaceURL  string `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	AWSRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Cache
	CacheBackend string `envconfig:"CACHE_BACKEND" default:"memory"`
	RedisURL     string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// Security
	APIKeyHash string `envconfig:"API_KEY_HASH"`

	// Webhook
	WebhookURL         string   `envconfig:"WEBHOOK_URL"`
	WebhookSecret      string   `envconfig:"WEBHOOK_SECRET"`
	WebhookEvents      []string `envconfig:"WEBHOOK_EVENTS" default:"ATTENDANCE_CHECKED"`
	WebhookMaxAttempts int      `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"5"`

	// Engine
	EngineConfigFile string `envconfig:"ENGINE_CONFIG_FILE"`
	Engine           Engine `envconfig:"ENGINE"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.EngineConfigFile != "" {
		if err := LoadEngineFile(cfg.EngineConfigFile, &cfg.Engine); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the service settings and the engine tuning.
func (c *Config) Validate() error {
	switch c.FaceProvider {
	case "deepface", "rekognition", "mock":
	default:
		return fmt.Errorf("validate config: unknown FACE_PROVIDER %q", c.FaceProvider)
	}

	switch c.CacheBackend {
	case CacheMemory, CachePostgres, CacheRedis:
	default:
		return fmt.Errorf("validate config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("validate config: WEBHOOK_SECRET is required with WEBHOOK_URL")
	}

	return c.Engine.Validate()
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Cache backends for the second cache level.
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)
