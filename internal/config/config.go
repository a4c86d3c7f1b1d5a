// Package config loads querykit settings from a YAML file, .env files and
// QUERYKIT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/queryset"
)

// Drivers accepted in backend.driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverGorm     = "gorm"
	DriverPostgres = "postgres"
)

type Config struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`
	Query   QueryConfig   `mapstructure:"query"   yaml:"query"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type BackendConfig struct {
	Driver    string `mapstructure:"driver"    yaml:"driver"`
	DSN       string `mapstructure:"dsn"       yaml:"dsn"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// Seed names a seed file loaded into the backend after it opens.
	Seed string `mapstructure:"seed" yaml:"seed"`
}

type LogConfig struct {
	Level      string         `mapstructure:"level"       yaml:"level"`
	JSON       bool           `mapstructure:"json"        yaml:"json"`
	File       string         `mapstructure:"file"        yaml:"file"`
	NoTerminal bool           `mapstructure:"no_terminal" yaml:"no_terminal"`
	Rotation   RotationConfig `mapstructure:"rotation"    yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"    yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"     yaml:"max_age"`
	Compress   bool `mapstructure:"compress"    yaml:"compress"`
}

type QueryConfig struct {
	CountPolicy string `mapstructure:"count_policy" yaml:"count_policy"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Driver: DriverSQLite,
			DSN:    "querykit.db",
		},
		Log: LogConfig{
			Level: "WARN",
			Rotation: RotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
			},
		},
		Query: QueryConfig{CountPolicy: queryset.CountMatches.String()},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("backend.driver", d.Backend.Driver)
	v.SetDefault("backend.dsn", d.Backend.DSN)
	v.SetDefault("backend.namespace", d.Backend.Namespace)
	v.SetDefault("backend.seed", d.Backend.Seed)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.no_terminal", d.Log.NoTerminal)
	v.SetDefault("log.rotation.max_size", d.Log.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age", d.Log.Rotation.MaxAge)
	v.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)

	v.SetDefault("query.count_policy", d.Query.CountPolicy)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

var envFiles = []string{".env", ".env.local"}

// searchPaths are tried in order when no config file is named.
var searchPaths = []string{".", "./config", "$HOME/.querykit"}

// Load reads path, or config.yaml from the search paths when path is
// empty. A missing default config file is not an error; a missing named
// one is. .env files next to the config are loaded first and never
// override variables already set.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	if path != "" {
		v.SetConfigFile(path)
		dir := filepath.Dir(path)
		for _, f := range envFiles {
			_ = godotenv.Load(filepath.Join(dir, f))
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix("QUERYKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Backend.Driver {
	case DriverMemory, DriverSQLite, DriverGorm:
	case DriverPostgres:
		if c.Backend.DSN == "" {
			return fmt.Errorf("backend.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown backend.driver %q (want memory, sqlite, gorm or postgres)", c.Backend.Driver)
	}
	if _, err := c.CountPolicy(); err != nil {
		return fmt.Errorf("query.count_policy: %w", err)
	}
	return nil
}

// CountPolicy parses query.count_policy.
func (c *Config) CountPolicy() (queryset.CountPolicy, error) {
	return queryset.ParseCountPolicy(c.Query.CountPolicy)
}

// Generate renders c as a YAML config file.
func Generate(c Config) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return append([]byte("# querykit configuration\n"), out...), nil
}
