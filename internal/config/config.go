// Package config loads Trellis settings from an optional YAML file,
// overridden by MCP_-prefixed environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the resolved process configuration.
type Settings struct {
	PlanningRoot   string `mapstructure:"planning_root"`
	SchemaVersion  string `mapstructure:"schema_version"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	LogLevel       string `mapstructure:"log_level"`
	DebugMode      bool   `mapstructure:"debug_mode"`
	AutoCreateDirs bool   `mapstructure:"auto_create_dirs"`
	CacheMaxSize   int    `mapstructure:"cache_max_size"`
}

// EnvPrefix is the environment variable prefix (MCP_PLANNING_ROOT etc).
const EnvPrefix = "MCP"

// Load reads settings from configFile (optional; "" searches the
// working directory for trellis.yaml) and the environment.
func Load(configFile string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("planning_root", ".")
	v.SetDefault("schema_version", "1.1")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8355)
	v.SetDefault("log_level", "info")
	v.SetDefault("debug_mode", false)
	v.SetDefault("auto_create_dirs", true)
	v.SetDefault("cache_max_size", 1000)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file could not be read: %w", err)
		}
	} else {
		v.SetConfigName("trellis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing config is fine; anything else is not.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file could not be read: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config could not be decoded: %w", err)
	}
	return &s, nil
}

// Addr returns the serve address in HOST:PORT form.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
