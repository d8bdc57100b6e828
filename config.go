package statushook

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pboyd/statushook/internal/logging"
)

// DefaultSentinelModule is the module whose load triggers installation of the
// shim.
const DefaultSentinelModule = "common"

// Environment variables that override the config file.
const (
	EnvVerbose  = "STATUSHOOK_VERBOSE"
	EnvLogLevel = "STATUSHOOK_LOG_LEVEL"
)

// Config configures a Hook.
type Config struct {
	// Verbose enables informational log lines.
	Verbose bool `yaml:"verbose"`

	// SentinelModule is never recorded as a range; its load installs the
	// shim instead.
	SentinelModule string `yaml:"sentinel_module"`

	// FallbackSpan is the range length assumed when the host reports no
	// module size.
	FallbackSpan uint64 `yaml:"fallback_span"`

	Log logging.Config `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Verbose:        true,
		SentinelModule: DefaultSentinelModule,
		FallbackSpan:   DefaultFallbackSpan,
		Log:            logging.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig and applies
// environment overrides. A missing file (or an empty path) is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvVerbose); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvVerbose, err)
		}
		c.Verbose = on
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks that c can be used to build a Hook.
func (c Config) Validate() error {
	if c.SentinelModule == "" {
		return errors.New("sentinel_module must not be empty")
	}
	if c.FallbackSpan == 0 {
		return errors.New("fallback_span must be greater than zero")
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
