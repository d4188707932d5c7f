package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"diagbot/pkg"
)

// Config is the engine configuration loaded from config.yaml. Secrets come
// from the environment, never from the file.
type Config struct {
	Provider struct {
		Name        string  `yaml:"name"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		TimeoutSec  int     `yaml:"timeout_seconds"`
	} `yaml:"provider"`

	Redis struct {
		URL        string `yaml:"url"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"redis"`

	Engine struct {
		LexiconPath string `yaml:"lexicon_path"`
		ArchiveDir  string `yaml:"archive_dir"`
	} `yaml:"engine"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and parses config.yaml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config YAML: %w", err)
	}
	return &cfg, nil
}

// Default returns a usable configuration when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Provider.Model = "openai/gpt-3.5-turbo"
	cfg.Provider.BaseURL = "https://openrouter.ai/api/v1"
	cfg.Provider.MaxTokens = 1500
	cfg.Provider.Temperature = 0.1
	cfg.Provider.TimeoutSec = 8
	cfg.Redis.TTLMinutes = 40
	cfg.Engine.ArchiveDir = "data/archive"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// BuildProviderConfig merges the file config with the API key from the
// environment.
func (c *Config) BuildProviderConfig() pkg.ProviderConfig {
	apiKey := os.Getenv("PROVIDER_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}

	return pkg.ProviderConfig{
		Name:        c.Provider.Name,
		Model:       c.Provider.Model,
		APIKey:      apiKey,
		BaseURL:     c.Provider.BaseURL,
		MaxTokens:   c.Provider.MaxTokens,
		Temperature: c.Provider.Temperature,
		TimeoutSec:  c.Provider.TimeoutSec,
	}
}

// RedisURL returns the Redis URL, preferring the environment.
func (c *Config) RedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return c.Redis.URL
}
