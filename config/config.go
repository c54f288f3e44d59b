package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage driver names accepted by the audit and artifacts sections.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds the runtime configuration.
type Config struct {
	Engine struct {
		MaxConcurrentWorkflows int           `mapstructure:"max_concurrent_workflows"`
		StepTimeout            time.Duration `mapstructure:"step_timeout"`
	} `mapstructure:"engine"`
	Audit struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
	} `mapstructure:"audit"`
	Artifacts struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
	} `mapstructure:"artifacts"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

// Load reads configuration from the given file, or, when file is empty, from
// an optional stratomesh.yaml in the working directory. Environment
// variables override file values and use the STRATOMESH_ prefix with
// underscores for nesting, e.g. STRATOMESH_ENGINE_MAX_CONCURRENT_WORKFLOWS=4.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("engine.max_concurrent_workflows", 10)
	v.SetDefault("engine.step_timeout", time.Duration(0))
	v.SetDefault("audit.driver", DriverMemory)
	v.SetDefault("audit.path", "stratomesh-audit.db")
	v.SetDefault("artifacts.driver", DriverMemory)
	v.SetDefault("artifacts.path", "stratomesh-artifacts.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetEnvPrefix("STRATOMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("stratomesh")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// The file is optional in discovery mode; a malformed one is not.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.MaxConcurrentWorkflows < 1 {
		return fmt.Errorf("engine.max_concurrent_workflows must be at least 1, got %d", c.Engine.MaxConcurrentWorkflows)
	}
	if c.Engine.StepTimeout < 0 {
		return fmt.Errorf("engine.step_timeout must not be negative, got %s", c.Engine.StepTimeout)
	}
	if err := validDriver("audit.driver", c.Audit.Driver); err != nil {
		return err
	}
	if err := validDriver("artifacts.driver", c.Artifacts.Driver); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func validDriver(key, driver string) error {
	switch driver {
	case DriverMemory, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("%s must be %s or %s, got %q", key, DriverMemory, DriverSQLite, driver)
	}
}
