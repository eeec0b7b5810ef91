package embedding

import (
	"log/slog"
	"strings"
	"time"
)

// Config selects and tunes an embedding provider.
type Config struct {
	Provider          string // "openai" | "ollama" | "local"
	Model             string
	BaseURL           string
	APIKey            string
	Dimensions        int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// New builds the configured provider.
//
// Memory is an optional enhancement, so selection never fails: an unknown
// provider, or openai without an API key, falls back to the local provider
// with a warning.
func New(cfg Config, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	opts := RemoteOptions{
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            logger,
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		if cfg.APIKey == "" {
			logger.Warn("openai embedding provider has no api key, using local provider", "component", "embedding")
			return NewLocalEmbedder(cfg.Dimensions)
		}
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions, opts)
	case "ollama":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, opts)
	case "local", "":
		return NewLocalEmbedder(cfg.Dimensions)
	default:
		logger.Warn("unknown embedding provider, using local provider", "component", "embedding", "provider", cfg.Provider)
		return NewLocalEmbedder(cfg.Dimensions)
	}
}
