package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// ollamaBatchConcurrency bounds the fan-out of EmbedBatch.
const ollamaBatchConcurrency = 4

// OllamaEmbedder uses a self-hosted Ollama instance for embeddings.
type OllamaEmbedder struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
	guard   *guard
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
// Default model: nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(baseURL, model string, dims int, opts RemoteOptions) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dims == 0 {
		dims = 768 // default for nomic-embed-text
		if model == "all-minilm" {
			dims = 384
		}
	}
	opts = opts.withDefaults()
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: opts.Timeout},
		guard:   newGuard("ollama", opts),
	}
}

func (e *OllamaEmbedder) Name() string    { return "ollama" }
func (e *OllamaEmbedder) Model() string   { return e.model }
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if text == "" {
		return make(Vector, e.dims), nil
	}
	vs, err := e.guard.do(ctx, func() ([]Vector, error) {
		v, err := e.request(ctx, text)
		if err != nil {
			return nil, err
		}
		return []Vector{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch issues one request per text since Ollama has no batch endpoint.
// Any failure fails the whole batch.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaBatchConcurrency)
	for i, t := range texts {
		g.Go(func() error {
			v, err := e.Embed(gctx, t)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OllamaEmbedder) request(ctx context.Context, text string) (Vector, error) {
	body, _ := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama decode: %w", err)
	}
	if err := checkDims([]Vector{result.Embedding}, e.dims); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}
