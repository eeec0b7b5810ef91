package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/assembler"
	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "nested", "memory.db")
	return cfg
}

func TestOpenWiresComponents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Embedding.Provider = "openai" // no key: falls back to local

	a, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, "local", a.Embedder.Name())
	assert.Equal(t, cfg.Memory.DBPath, a.Store.Path())

	m, err := a.Memory.Remember(ctx, memory.RememberParams{Content: "never commit secrets", Scope: model.ScopeGlobal, Category: model.CategoryPreference})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Cache.Len())

	res, err := a.Assembler.Build(ctx, "system", assembler.Request{Messages: []model.Message{{Role: "user", Content: "commit the change"}}})
	require.NoError(t, err)
	assert.Contains(t, res.SystemPrompt, m.Content)

	require.NoError(t, a.Reset(ctx))
	assert.Zero(t, a.Cache.Len())
	_, err = a.Memory.Get(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenAutoInjectFlags(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Memory.AutoInjectGlobal = false

	a, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, err = a.Memory.Remember(ctx, memory.RememberParams{Content: "always use tabs", Scope: model.ScopeGlobal, Category: model.CategoryPreference})
	require.NoError(t, err)

	rc := a.Memory.GetContextForRequest(ctx, memory.RequestParams{
		Messages:  []model.Message{{Role: "user", Content: "always use tabs"}},
		MaxGlobal: 5,
	})
	assert.Empty(t, rc.GlobalMemories)
}

func TestOpenWithEmbedderIsCached(t *testing.T) {
	ctx := context.Background()
	a, err := Open(testConfig(t), WithEmbedder(embedding.NewLocalEmbedder(16)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, 16, a.Embedder.Dimensions())
	_, err = a.Embedder.Embed(ctx, "same text")
	require.NoError(t, err)
	_, err = a.Embedder.Embed(ctx, "same text")
	require.NoError(t, err)
	hits, misses := a.Cache.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}
