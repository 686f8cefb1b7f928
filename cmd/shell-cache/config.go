package main

import (
	"fmt"
	"os"
	"time"

	responsetransformer "github.com/always-cache/shell-cache/pkg/response-transformer"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is read from the config file first, then overridden by the environment
// and finally by command line flags.
type Config struct {
	Port         int                       `yaml:"port"         env:"SHELL_CACHE_PORT"`
	Origin       string                    `yaml:"origin"       env:"SHELL_CACHE_ORIGIN"`
	Host         string                    `yaml:"host"         env:"SHELL_CACHE_HOST"`
	Dir          string                    `yaml:"dir"          env:"SHELL_CACHE_DIR"`
	Scope        string                    `yaml:"scope"        env:"SHELL_CACHE_SCOPE"`
	DB           string                    `yaml:"db"           env:"SHELL_CACHE_DB"`
	Version      string                    `yaml:"version"      env:"SHELL_CACHE_VERSION"`
	Manifest     []string                  `yaml:"manifest"     env:"SHELL_CACHE_MANIFEST" envSeparator:","`
	OfflinePage  string                    `yaml:"offlinePage"  env:"SHELL_CACHE_OFFLINE_PAGE"`
	InstallRetry time.Duration             `yaml:"installRetry" env:"SHELL_CACHE_INSTALL_RETRY"`
	LogFile      string                    `yaml:"logFile"      env:"SHELL_CACHE_LOG_FILE"`
	Rules        responsetransformer.Rules `yaml:"rules"`
}

func defaultConfig() Config {
	return Config{
		Port: 8080,
		DB:   "cache.db",
	}
}

// getConfig loads the config file, if any, and applies environment overrides.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("parse %s: %w", filename, err)
		}
	}
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}
