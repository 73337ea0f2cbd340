package harvest

import "github.com/pricecheckph/shelfwatch/harvest/internal/config"

// Config is the public alias for the harvester configuration; the
// underlying type lives in an internal package so its env/YAML logic
// stays private.
type Config = config.Config

// LoadConfig reads a YAML config file with environment overrides.
func LoadConfig(path string) (*Config, error) { return config.LoadFile(path) }

// DefaultConfig returns the built-in configuration with environment
// overrides applied.
func DefaultConfig() *Config { return config.Default() }
