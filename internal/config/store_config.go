package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Credential store backends
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetStorePath() string
	GetStoreKey() ([]byte, error)
	GetRedisAddr() string
	GetRedisPrefix() string
}

type Store struct {
	Backend     string `yaml:"backend" env:"UGATE_STORE" env-default:"file"`
	Path        string `yaml:"path" env:"UGATE_STORE_PATH" env-default:"./data/session.json"`
	Key         string `yaml:"key" env:"UGATE_STORE_KEY"`
	RedisAddr   string `yaml:"redis_addr" env:"UGATE_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPrefix string `yaml:"redis_prefix" env:"UGATE_REDIS_PREFIX" env-default:"ugate"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string {
	switch b := strings.ToLower(s.Backend); b {
	case StoreMemory, StoreRedis:
		return b
	default:
		return StoreFile
	}
}

func (s Store) GetStorePath() string {
	if s.Path == "" {
		return "./data/session.json"
	}
	return s.Path
}

// GetStoreKey decodes the optional at-rest encryption key. An empty key
// disables encryption.
func (s Store) GetStoreKey() ([]byte, error) {
	if s.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.Key)
	if err != nil {
		return nil, fmt.Errorf("store key must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (s Store) GetRedisAddr() string {
	if s.RedisAddr == "" {
		return "localhost:6379"
	}
	return s.RedisAddr
}

func (s Store) GetRedisPrefix() string {
	if s.RedisPrefix == "" {
		return "ugate"
	}
	return s.RedisPrefix
}
