// Package config provides configuration for the context assembler and its
// memory store. Settings come from built-in defaults, an optional YAML file,
// and AGENT_CONTEXT_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting consumed by the core.
type Config struct {
	MaxTokens              int             `yaml:"max_tokens"`               // total prompt token ceiling (default: 8000)
	ReservedResponseTokens int             `yaml:"reserved_response_tokens"` // kept free for the model's answer (default: 2000)
	Features               FeaturesConfig  `yaml:"features"`
	Memory                 MemoryConfig    `yaml:"memory"`
	Embedding              EmbeddingConfig `yaml:"embedding"`
}

// FeaturesConfig toggles optional section families.
type FeaturesConfig struct {
	Memory      bool `yaml:"memory"`      // inject memory sections (default: true)
	Engineering bool `yaml:"engineering"` // inject engineering/behavioral sections (default: true)
	Emphasis    bool `yaml:"emphasis"`    // inject task emphasis sections (default: true)
}

// MemoryConfig contains storage, retention and auto-inject settings.
type MemoryConfig struct {
	DBPath            string  `yaml:"db_path"`             // SQLite file (default: ~/.agent-context/memory.db)
	MinImportance     float64 `yaml:"min_importance"`      // cleanup threshold (default: 0.3)
	MaxAgeDays        int     `yaml:"max_age_days"`        // cleanup age threshold (default: 90)
	AutoInjectGlobal  bool    `yaml:"auto_inject_global"`  // default: true
	AutoInjectProject bool    `yaml:"auto_inject_project"` // default: true
	MaxGlobal         int     `yaml:"max_global"`          // memories injected per request from global scope (default: 5)
	MaxProject        int     `yaml:"max_project"`         // memories injected per request from project scope (default: 5)
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // openai | ollama | local (default: local)
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimensions        int           `yaml:"dimensions"`          // 0 uses the provider default
	CacheSize         int           `yaml:"cache_size"`          // default: 1000
	CacheTTL          time.Duration `yaml:"cache_ttl"`           // default: 1h
	Timeout           time.Duration `yaml:"timeout"`             // default: 30s
	RequestsPerSecond float64       `yaml:"requests_per_second"` // default: 5
	Burst             int           `yaml:"burst"`               // default: 10
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		MaxTokens:              8000,
		ReservedResponseTokens: 2000,
		Features: FeaturesConfig{
			Memory:      true,
			Engineering: true,
			Emphasis:    true,
		},
		Memory: MemoryConfig{
			DBPath:            defaultDBPath(),
			MinImportance:     0.3,
			MaxAgeDays:        90,
			AutoInjectGlobal:  true,
			AutoInjectProject: true,
			MaxGlobal:         5,
			MaxProject:        5,
		},
		Embedding: EmbeddingConfig{
			Provider:          "local",
			CacheSize:         1000,
			CacheTTL:          time.Hour,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.MaxTokens = getEnvInt("AGENT_CONTEXT_MAX_TOKENS", c.MaxTokens)
	c.ReservedResponseTokens = getEnvInt("AGENT_CONTEXT_RESERVED_RESPONSE_TOKENS", c.ReservedResponseTokens)

	c.Features.Memory = getEnvBool("AGENT_CONTEXT_FEATURE_MEMORY", c.Features.Memory)
	c.Features.Engineering = getEnvBool("AGENT_CONTEXT_FEATURE_ENGINEERING", c.Features.Engineering)
	c.Features.Emphasis = getEnvBool("AGENT_CONTEXT_FEATURE_EMPHASIS", c.Features.Emphasis)

	c.Memory.DBPath = getEnv("AGENT_CONTEXT_DB", c.Memory.DBPath)
	c.Memory.MinImportance = getEnvFloat("AGENT_CONTEXT_MIN_IMPORTANCE", c.Memory.MinImportance)
	c.Memory.MaxAgeDays = getEnvInt("AGENT_CONTEXT_MAX_AGE_DAYS", c.Memory.MaxAgeDays)
	c.Memory.AutoInjectGlobal = getEnvBool("AGENT_CONTEXT_AUTO_INJECT_GLOBAL", c.Memory.AutoInjectGlobal)
	c.Memory.AutoInjectProject = getEnvBool("AGENT_CONTEXT_AUTO_INJECT_PROJECT", c.Memory.AutoInjectProject)
	c.Memory.MaxGlobal = getEnvInt("AGENT_CONTEXT_MAX_GLOBAL", c.Memory.MaxGlobal)
	c.Memory.MaxProject = getEnvInt("AGENT_CONTEXT_MAX_PROJECT", c.Memory.MaxProject)

	c.Embedding.Provider = getEnv("AGENT_CONTEXT_EMBED_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("AGENT_CONTEXT_EMBED_MODEL", c.Embedding.Model)
	c.Embedding.BaseURL = getEnv("AGENT_CONTEXT_EMBED_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = getEnv("OPENAI_API_KEY", c.Embedding.APIKey)
	c.Embedding.APIKey = getEnv("AGENT_CONTEXT_EMBED_API_KEY", c.Embedding.APIKey)
	c.Embedding.Dimensions = getEnvInt("AGENT_CONTEXT_EMBED_DIMENSIONS", c.Embedding.Dimensions)
}

// Validate rejects settings that cannot work and resets out-of-range
// values to their defaults.
func (c *Config) Validate() error {
	d := Default()
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.ReservedResponseTokens < 0 {
		c.ReservedResponseTokens = d.ReservedResponseTokens
	}
	if c.Memory.DBPath == "" {
		return errors.New("config: memory.db_path is required")
	}
	if c.Memory.MinImportance < 0 || c.Memory.MinImportance > 1 {
		c.Memory.MinImportance = d.Memory.MinImportance
	}
	if c.Memory.MaxAgeDays < 0 {
		c.Memory.MaxAgeDays = d.Memory.MaxAgeDays
	}
	if c.Memory.MaxGlobal < 0 {
		c.Memory.MaxGlobal = d.Memory.MaxGlobal
	}
	if c.Memory.MaxProject < 0 {
		c.Memory.MaxProject = d.Memory.MaxProject
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = d.Embedding.CacheSize
	}
	if c.Embedding.CacheTTL < 0 {
		c.Embedding.CacheTTL = d.Embedding.CacheTTL
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agent-context", "memory.db")
	}
	return filepath.Join(home, ".agent-context", "memory.db")
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
