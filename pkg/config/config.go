// Package config loads runtime settings from a YAML file and SALESYNC_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the CLI and preview server read at startup.
type Config struct {
	BackendURL     string        `mapstructure:"backend_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RenderCacheTTL time.Duration `mapstructure:"render_cache_ttl"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	LogLevel       string        `mapstructure:"log_level"`
	ChartTheme     string        `mapstructure:"chart_theme"`
	AssetsHost     string        `mapstructure:"assets_host"`
	ProfilePath    string        `mapstructure:"profile_path"`
}

// Load reads configuration from the given file (optional) plus environment
// variables. Missing file is not an error when path is empty; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("request_timeout", "8s")
	v.SetDefault("max_retries", 3)
	v.SetDefault("render_cache_ttl", "5m")
	v.SetDefault("listen_addr", ":7070")
	v.SetDefault("log_level", "info")
	v.SetDefault("chart_theme", "westeros")

	v.SetEnvPrefix("SALESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("salesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read salesync.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("config: backend_url is required")
	}
	return &cfg, nil
}
