// Package config loads pagecache's YAML configuration: a dedicated
// viper instance per call, unmarshaled into a typed struct.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is pagecache's top-level configuration.
type Config struct {
	Pool struct {
		Size     int    `mapstructure:"size"`
		Replacer string `mapstructure:"replacer"` // "lru" (default) or "clock"
	} `mapstructure:"pool"`

	Storage struct {
		DataFile string `mapstructure:"data_file"`
		WALDir   string `mapstructure:"wal_dir"`
	} `mapstructure:"storage"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// Load reads a YAML config file from path and applies defaults for any
// field the file omits, the same pattern cmd/server/main.go uses for
// its port fallback.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pool.Size <= 0 {
		cfg.Pool.Size = 128
	}
	if cfg.Pool.Replacer == "" {
		cfg.Pool.Replacer = "lru"
	}
	if cfg.Storage.DataFile == "" {
		cfg.Storage.DataFile = "./data/pagecache.db"
	}
	if cfg.Storage.WALDir == "" {
		cfg.Storage.WALDir = "./data/wal"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:6543"
	}
}
