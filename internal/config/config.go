package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config interface {
	EnvConfig
	SessionConfig
	StoreConfig
	CorsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAuthBaseURL() string
	GetAPIBaseURL() string
	GetHTTPTimeout() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Settings is the loaded configuration. Values come from an optional YAML
// file and are overridden by environment variables.
type Settings struct {
	EnvVars `yaml:"app"`
	Session `yaml:"session"`
	Store   `yaml:"store"`
	Cors    `yaml:"cors"`
}

var _ Config = (*Settings)(nil)

// New loads the configuration from the environment only.
func New() (*Settings, error) {
	var s Settings
	if err := cleanenv.ReadEnv(&s); err != nil {
		return nil, fmt.Errorf("[config.New] reading environment: %w", err)
	}
	return &s, nil
}

// Load reads the YAML file at path and applies environment overrides on top.
// An empty path is the same as New.
func Load(path string) (*Settings, error) {
	if path == "" {
		return New()
	}
	var s Settings
	if err := cleanenv.ReadConfig(path, &s); err != nil {
		return nil, fmt.Errorf("[config.Load] reading %s: %w", path, err)
	}
	return &s, nil
}
