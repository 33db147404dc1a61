// ABOUTME: Configuration loading for spawned function servers
// ABOUTME: Supports YAML files, .env files, and environment variable overrides

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jerinthomascarmel/Exp/internal/xdg"
)

// DefaultPath is where the client looks for its config when none is
// given on the command line.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome(), "config.yaml")
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Trace  TraceConfig  `mapstructure:"trace"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig describes the function server process to spawn.
type ServerConfig struct {
	Command        string            `mapstructure:"command"`
	Args           []string          `mapstructure:"args"`
	WorkingDir     string            `mapstructure:"working_dir"`
	Env            map[string]string `mapstructure:"env"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
}

type TraceConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// Load reads a YAML config file, applies EXP_* environment overrides,
// and validates the result. A .env file next to the process, if present,
// is loaded first so its values are visible to the override pass.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EXP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Viper lowercases all map keys, but environment variables are
	// case-sensitive. Reparse the YAML directly to preserve key case
	// for server.env.
	//nolint:gosec // config file path from validated user input
	data, err := os.ReadFile(path)
	if err == nil {
		var rawConfig struct {
			Server struct {
				Env map[string]string `yaml:"env"`
			} `yaml:"server"`
		}
		if yaml.Unmarshal(data, &rawConfig) == nil && len(rawConfig.Server.Env) > 0 {
			cfg.Server.Env = rawConfig.Server.Env
		}
	}

	cfg.Trace.Path = xdg.ExpandPath(cfg.Trace.Path)

	if cfg.Server.Command == "" {
		return nil, fmt.Errorf("server.command is required")
	}
	if cfg.Server.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("server.timeout_seconds must not be negative")
	}

	return &cfg, nil
}
