// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads the Keymaster Hub configuration from defaults, config
// files, KMHUB_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName    = "keymaster-hub"
	configName = "kmhub"
	envPrefix  = "kmhub"
)

// Config is the complete runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	SSH      SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
	Language string         `mapstructure:"language" yaml:"language" validate:"oneof=en de"`
	Debug    bool           `mapstructure:"debug" yaml:"debug"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type" validate:"oneof=sqlite postgres mysql"`
	DSN  string `mapstructure:"dsn" yaml:"dsn" validate:"required"`
}

// SSHConfig holds the process-wide SSH credential and connection limits.
type SSHConfig struct {
	// PrivateKeyFile is the signing identity used for every host. Required
	// unless UseAgent is set.
	PrivateKeyFile string        `mapstructure:"private_key_file" yaml:"private_key_file" validate:"required_without=UseAgent"`
	UseAgent       bool          `mapstructure:"use_agent" yaml:"use_agent"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gt=0"`
	TrustTimeout   time.Duration `mapstructure:"trust_timeout" yaml:"trust_timeout" validate:"gt=0"`
	PendingTTL     time.Duration `mapstructure:"pending_ttl" yaml:"pending_ttl" validate:"gt=0"`
	MaxJumpDepth   int           `mapstructure:"max_jump_depth" yaml:"max_jump_depth" validate:"min=1,max=32"`
}

// Defaults returns the default values keyed by their viper key.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":        "sqlite",
		"database.dsn":         "./kmhub.db",
		"ssh.private_key_file": "",
		"ssh.use_agent":        false,
		"ssh.connect_timeout":  10 * time.Second,
		"ssh.trust_timeout":    15 * time.Second,
		"ssh.pending_ttl":      10 * time.Minute,
		"ssh.max_jump_depth":   8,
		"language":             "en",
		"debug":                false,
	}
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"db-type":   "database.type",
	"db-dsn":    "database.dsn",
	"identity":  "ssh.private_key_file",
	"use-agent": "ssh.use_agent",
	"timeout":   "ssh.connect_timeout",
	"lang":      "language",
	"debug":     "debug",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the loaded configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetConfigPath returns the full path of the user or system configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "KeymasterHub")
		default:
			configDir = "/etc/" + appName
		}
	} else {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(userDir, appName)
	}
	return filepath.Join(configDir, configName+".yaml"), nil
}

// LoadConfig builds a T from defaults, the first config file found, the
// environment and the flags of cmd. An explicit configFile takes precedence
// over the search paths and must exist.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return c, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for flag, key := range FlagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, err
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// WriteConfigFile writes c as YAML to path, or to the user/system config path
// when path is empty. The file is created with mode 0600.
func WriteConfigFile[T any](c *T, path string, system bool) (string, error) {
	if path == "" {
		p, err := GetConfigPath(system)
		if err != nil {
			return "", err
		}
		path = p
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
