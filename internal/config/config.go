// Package config loads the service configuration from the environment and
// an optional YAML or TOML file.
package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// PathEnv names the variable holding an optional configuration file path.
const PathEnv = "VROOMSCOPE_CONFIG"

type ServiceConfig struct {
	Environment string `yaml:"environment" toml:"environment" env:"SENTRY_ENVIRONMENT" env-default:"development"`
	SentryDSN   string `yaml:"sentry_dsn" toml:"sentry_dsn" env:"SENTRY_DSN"`

	Port string `yaml:"port" toml:"port" env:"PORT" env-default:"8080"`

	// BucketURL is a gocloud.dev blob URL: gs://, file:// or mem://.
	BucketURL string `yaml:"bucket_url" toml:"bucket_url" env:"VROOMSCOPE_BUCKET_URL" env-default:"mem://"`

	LogLevel     string `yaml:"log_level" toml:"log_level" env:"VROOMSCOPE_LOG_LEVEL" env-default:"info"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" toml:"max_body_bytes" env:"VROOMSCOPE_MAX_BODY_BYTES" env-default:"52428800"`
	ReadWorkers  int    `yaml:"read_workers" toml:"read_workers" env:"VROOMSCOPE_READ_WORKERS" env-default:"5"`
}

// Load reads path if set, then applies environment overrides and defaults.
func Load(path string) (ServiceConfig, error) {
	var c ServiceConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &c)
	} else {
		err = cleanenv.ReadEnv(&c)
	}
	return c, err
}
