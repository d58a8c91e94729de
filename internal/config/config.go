// Package config handles Drawbridge configuration: defaults, an optional .env
// file in development, an optional JSON file, DRAWBRIDGE_* environment
// variables and finally command-line flags, each overlaying the previous.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds runtime settings.
//
// Fields:
//   - RedisAddr / RedisPassword / RedisDB: store connection.
//   - KeyPrefix: namespace prepended to every store key.
//   - DialTimeout / OperationTimeout: store client timeouts.
//   - LogLevel / LogFormat: see logging.New.
//   - AMQPURL / AMQPQueue: lifecycle event sink; an empty URL disables it.
//   - S3*: snapshot export target.
type Config struct {
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB"`
	KeyPrefix        string        `env:"KEY_PREFIX"`
	DialTimeout      time.Duration `env:"DIAL_TIMEOUT"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE"`

	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION"`
	S3BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
	S3RootUser     string `env:"S3_ROOT_USER"`
	S3RootPassword string `env:"S3_ROOT_PASSWORD"`
	S3Prefix       string `env:"S3_PREFIX"`
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DRAWBRIDGE_"

// LoadDefaults populates Config with local development defaults.
func (c *Config) LoadDefaults() {
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisDB = 0
	c.DialTimeout = 5 * time.Second
	c.OperationTimeout = 3 * time.Second
	c.LogLevel = "info"
	c.AMQPQueue = "drawbridge.events"
	c.S3Region = "us-east-1"
	c.S3Prefix = "snapshots"
}

// Load applies defaults, then .env (when ENV=dev), then the JSON file at
// jsonPath if not empty, then the environment. Flags are applied separately
// with ApplyFlags once the command line is parsed.
func Load(jsonPath string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if os.Getenv("ENV") == "dev" {
		// A missing .env is fine.
		_ = godotenv.Load()
	}

	if jsonPath != "" {
		if err := parseJSON(cfg, jsonPath); err != nil {
			return nil, err
		}
	}

	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
