package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxPools            = 4
	DefaultCompactionThreshold = 1000
	DefaultLogLevel            = "info"
)

// Config is the sor binary configuration.
type Config struct {
	// PoolsFile is the JSON pool snapshot to route over.
	PoolsFile           string           `yaml:"pools_file"`
	MaxPools            int              `yaml:"max_pools"`
	FilterPaths         bool             `yaml:"filter_paths"`
	Workers             int              `yaml:"workers"`
	CompactionThreshold int              `yaml:"compaction_threshold"`
	DisabledTokens      []common.Address `yaml:"disabled_tokens"`
	LogLevel            string           `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MaxPools:            DefaultMaxPools,
		CompactionThreshold: DefaultCompactionThreshold,
		LogLevel:            DefaultLogLevel,
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxPools <= 0 {
		return errors.New("config: max_pools must be positive")
	}
	if c.Workers < 0 {
		return errors.New("config: workers cannot be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
