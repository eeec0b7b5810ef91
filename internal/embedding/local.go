package embedding

import (
	"context"
)

// DefaultLocalDimensions is the vector size of the local provider.
const DefaultLocalDimensions = 384

// LocalEmbedder produces deterministic pseudo-embeddings offline.
//
// Each rune c at position i adds 1 to bucket (c*(i+1)) mod dims, and the
// result is L2-normalized. The vectors are reproducible but carry no
// semantic meaning: two paraphrases will not score as similar. Callers that
// rely on the local provider effectively get keyword-driven recall.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a local embedder. dims <= 0 uses the default.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = DefaultLocalDimensions
	}
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Name() string    { return "local" }
func (e *LocalEmbedder) Model() string   { return "hash" }
func (e *LocalEmbedder) Dimensions() int { return e.dims }

func (e *LocalEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	return e.hash(text), nil
}

func (e *LocalEmbedder) EmbedBatch(_ context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = e.hash(t)
	}
	return out, nil
}

func (e *LocalEmbedder) hash(text string) Vector {
	v := make(Vector, e.dims)
	pos := 0
	for _, c := range text {
		bucket := (int64(c) * int64(pos+1)) % int64(e.dims)
		v[bucket]++
		pos++
	}
	return Normalize(v)
}
