package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Catalog struct {
		BaseURL string `yaml:"base_url"`
		Origin  string `yaml:"origin"`
		Timeout string `yaml:"timeout"`
		PoolTTL string `yaml:"pool_ttl"`
	} `yaml:"catalog"`
	Wiki struct {
		BaseURL       string  `yaml:"base_url"`
		Timeout       string  `yaml:"timeout"`
		CacheTTL      string  `yaml:"cache_ttl"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		ThumbnailSize int     `yaml:"thumbnail_size"`
	} `yaml:"wiki"`
	Quiz struct {
		DefaultQuestions int    `yaml:"default_questions"`
		MinQuestions     int    `yaml:"min_questions"`
		MaxQuestions     int    `yaml:"max_questions"`
		MaxRetries       *int   `yaml:"max_retries"`
		AttemptTimeout   string `yaml:"attempt_timeout"`
		LoadBudget       string `yaml:"load_budget"`
		SessionTTL       string `yaml:"session_ttl"`
	} `yaml:"quiz"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Catalog.BaseURL = "https://api.singbirds.net/api"
	cfg.Catalog.Timeout = "10s"
	cfg.Catalog.PoolTTL = "10m"
	cfg.Wiki.BaseURL = "https://en.wikipedia.org/w/api.php"
	cfg.Wiki.Timeout = "5s"
	cfg.Wiki.CacheTTL = "1h"
	cfg.Wiki.RatePerSecond = 5
	cfg.Wiki.ThumbnailSize = 500
	cfg.Quiz.DefaultQuestions = 10
	cfg.Quiz.MinQuestions = 5
	cfg.Quiz.MaxQuestions = 20
	cfg.Quiz.AttemptTimeout = "8s"
	cfg.Quiz.LoadBudget = "30s"
	cfg.Quiz.SessionTTL = "30m"
	cfg.Redis.TTL = "30m"
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MaxRetries returns the configured retry count, defaulting to 2.
func (c Config) MaxRetries() int {
	if c.Quiz.MaxRetries == nil || *c.Quiz.MaxRetries < 0 {
		return 2
	}
	return *c.Quiz.MaxRetries
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
