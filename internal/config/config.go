// Package config loads the oracle daemon's configuration from a YAML file
// with environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nebula-network/oracle_layer/pkg/logger"
)

// Config is the daemon's full configuration tree.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Gateway  GatewayConfig        `yaml:"gateway"`
	Registry RegistryConfig       `yaml:"registry"`
	Nebulas  []NebulaConfig       `yaml:"nebulas"`
	Watch    WatchConfig          `yaml:"watch"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the optional PostgreSQL mirror. An empty DSN
// keeps state in memory only.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// GatewayConfig configures the chain gateway the market handles read from.
type GatewayConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// RegistryConfig configures the top-level oracle registry.
type RegistryConfig struct {
	Address string `yaml:"address"`
	Admin   string `yaml:"admin"`

	// AdminToken maps a bearer token to the admin identity for the HTTP API.
	AdminToken string `yaml:"admin_token"`
}

// NebulaConfig configures one oracle instance.
type NebulaConfig struct {
	Name                 string `yaml:"name"`
	Address              string `yaml:"address"`
	Admin                string `yaml:"admin"`
	DenominationFeed     string `yaml:"denomination_feed"`
	DenominationDecimals uint8  `yaml:"denomination_decimals"`
}

// WatchConfig configures the background price watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Load reads the configuration file at path and applies environment
// overrides. A missing file is not an error; the zero config plus overrides
// and defaults is used instead.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Server.Address, "ORACLE_HTTP_ADDR")
	overrideString(&c.Database.DSN, "ORACLE_DATABASE_DSN")
	overrideString(&c.Logging.Level, "ORACLE_LOG_LEVEL")
	overrideString(&c.Logging.Format, "ORACLE_LOG_FORMAT")
	overrideString(&c.Gateway.Endpoint, "ORACLE_GATEWAY_URL")
	overrideString(&c.Gateway.APIKey, "ORACLE_GATEWAY_KEY")
	overrideString(&c.Registry.Address, "ORACLE_REGISTRY_ADDRESS")
	overrideString(&c.Registry.Admin, "ORACLE_REGISTRY_ADMIN")
	overrideString(&c.Registry.AdminToken, "ORACLE_ADMIN_TOKEN")
	overrideDuration(&c.Watch.Interval, "ORACLE_WATCH_INTERVAL")
	overrideBool(&c.Watch.Enabled, "ORACLE_WATCH_ENABLED")
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Registry.Address == "" {
		c.Registry.Address = "oracle-registry"
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Registry.Admin == "" {
		return fmt.Errorf("config: registry admin is required")
	}
	for i, neb := range c.Nebulas {
		if neb.Name == "" {
			return fmt.Errorf("config: nebula %d: name is required", i)
		}
		if neb.Address == "" {
			return fmt.Errorf("config: nebula %q: address is required", neb.Name)
		}
		if neb.DenominationFeed == "" {
			return fmt.Errorf("config: nebula %q: denomination_feed is required", neb.Name)
		}
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}
