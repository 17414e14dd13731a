// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration. Precedence is environment
// variables over the optional YAML file over built-in defaults; the
// recorder's own settings live in a separate JSON document managed by the
// recorder package.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig is the static daemon configuration.
type AppConfig struct {
	// Device endpoint.
	Host        string `yaml:"host"`
	CommandPort int    `yaml:"command_port"`
	MediaPort   int    `yaml:"media_port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`

	// HashHelper is the external command that turns a LoginFlag into the
	// password hash the firmware expects.
	HashHelper string `yaml:"hash_helper"`

	// Listen is the HTTP control surface address.
	Listen string `yaml:"listen"`

	// CacheDir holds recording_config.json and other mutable state.
	CacheDir string `yaml:"cache_dir"`

	LogLevel string `yaml:"log_level"`
}

func defaults() AppConfig {
	return AppConfig{
		CommandPort: 5050,
		MediaPort:   6050,
		Username:    "admin",
		Password:    "123456",
		Listen:      ":8080",
		CacheDir:    "cache",
		LogLevel:    "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty; a missing explicit file is an error), then environment
// overrides.
func Load(path string) (AppConfig, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Host = ParseString("DVR_HOST", cfg.Host)
	cfg.CommandPort = ParseInt("DVR_CMD_PORT", cfg.CommandPort)
	cfg.MediaPort = ParseInt("DVR_MEDIA_PORT", cfg.MediaPort)
	cfg.Username = ParseString("DVR_USERNAME", cfg.Username)
	cfg.Password = ParseString("DVR_PASSWORD", cfg.Password)
	cfg.HashHelper = ParseString("DVR_HASH_HELPER", cfg.HashHelper)
	cfg.Listen = ParseString("DVR_LISTEN", cfg.Listen)
	cfg.CacheDir = ParseString("DVR_CACHE_DIR", cfg.CacheDir)
	cfg.LogLevel = ParseString("DVR_LOG_LEVEL", cfg.LogLevel)

	return cfg, cfg.Validate()
}

// Validate checks the loaded configuration for values that can never work.
func (c AppConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host is required (DVR_HOST or host in the config file)")
	}
	if c.CommandPort <= 0 || c.CommandPort > 65535 {
		return fmt.Errorf("config: command_port %d out of range", c.CommandPort)
	}
	if c.MediaPort <= 0 || c.MediaPort > 65535 {
		return fmt.Errorf("config: media_port %d out of range", c.MediaPort)
	}
	return nil
}
