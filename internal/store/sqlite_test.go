package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err, "create store")
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(scope model.Scope, project, content string) *model.Memory {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Memory{
		Content:     content,
		Category:    model.CategoryKnowledge,
		Scope:       scope,
		ProjectPath: project,
		Importance:  0.5,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPutAndGetMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	m := newMemory(model.ScopeProject, "/src/app", "uses sqlite in WAL mode")
	m.Metadata = model.Metadata{Source: "cli", Tags: []string{"db"}, ExpiresAt: &exp}
	require.NoError(t, s.PutMemory(ctx, m, embedding.Vector{0.1, 0.2, 0.3}))
	require.NotEmpty(t, m.ID, "id assigned on write")

	got, err := s.GetMemory(ctx, model.ScopeProject, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Category, got.Category)
	assert.Equal(t, m.Scope, got.Scope)
	assert.Equal(t, m.ProjectPath, got.ProjectPath)
	assert.Equal(t, m.CreatedAt, got.CreatedAt)
	assert.Equal(t, []string{"db"}, got.Metadata.Tags)
	require.NotNil(t, got.Metadata.ExpiresAt)
	assert.True(t, exp.Equal(*got.Metadata.ExpiresAt))

	_, err = s.GetMemory(ctx, model.ScopeGlobal, m.ID)
	assert.ErrorIs(t, err, ErrNotFound, "scopes are separate collections")
}

func TestPutMemoryWritesEmbeddingBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := newMemory(model.ScopeGlobal, "", "prefers tabs")
	vec := embedding.Vector{1, -2, 3.5}
	require.NoError(t, s.PutMemory(ctx, m, vec))

	data, meta, err := s.GetBlob(ctx, model.EmbeddingKey(m.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(12), meta.Size)
	assert.Equal(t, contentHash(data), meta.Hash)
	assert.Equal(t, EmbeddingMIME, meta.MIME)

	decoded, err := decodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestPutMemoryInvalidScopeWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := newMemory(model.Scope("team"), "", "x")
	require.Error(t, s.PutMemory(ctx, m, embedding.Vector{1}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Blobs)
}

func TestDeleteMemoryRemovesBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := newMemory(model.ScopeGlobal, "", "temporary")
	require.NoError(t, s.PutMemory(ctx, m, embedding.Vector{1, 2}))

	require.NoError(t, s.DeleteMemory(ctx, model.ScopeGlobal, m.ID))

	_, err := s.GetMemory(ctx, model.ScopeGlobal, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.StatBlob(ctx, model.EmbeddingKey(m.ID))
	assert.ErrorIs(t, err, ErrNotFound, "embedding must not be orphaned")

	err = s.DeleteMemory(ctx, model.ScopeGlobal, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutMemory(ctx, newMemory(model.ScopeGlobal, "", "g1"), embedding.Vector{1}))
	require.NoError(t, s.PutMemory(ctx, newMemory(model.ScopeProject, "/a", "a1"), embedding.Vector{1}))
	require.NoError(t, s.PutMemory(ctx, newMemory(model.ScopeProject, "/a", "a2"), embedding.Vector{1}))
	dec := newMemory(model.ScopeProject, "/b", "b1")
	dec.Category = model.CategoryDecision
	require.NoError(t, s.PutMemory(ctx, dec, embedding.Vector{1}))

	all, err := s.ListMemories(ctx, ListParams{Scope: model.ScopeBoth})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	projA, err := s.ListMemories(ctx, ListParams{Scope: model.ScopeProject, ProjectPath: "/a"})
	require.NoError(t, err)
	require.Len(t, projA, 2)
	assert.Equal(t, "a2", projA[0].Content, "newest first")

	decisions, err := s.ListMemories(ctx, ListParams{Scope: model.ScopeProject, Category: model.CategoryDecision})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "b1", decisions[0].Content)

	limited, err := s.ListMemories(ctx, ListParams{Scope: model.ScopeBoth, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "b1", limited[0].Content, "newest across both collections")
	assert.Equal(t, "a2", limited[1].Content)

	g2 := newMemory(model.ScopeGlobal, "", "g2")
	require.NoError(t, s.PutMemory(ctx, g2, embedding.Vector{1}))
	limited, err = s.ListMemories(ctx, ListParams{Scope: model.ScopeBoth, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, []string{"g2", "b1"}, []string{limited[0].Content, limited[1].Content})

	n, err := s.CountMemories(ctx, model.ScopeProject, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = s.CountMemories(ctx, model.ScopeProject, "/b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountMemories(ctx, model.ScopeGlobal, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTouchMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := newMemory(model.ScopeGlobal, "", "touched")
	require.NoError(t, s.PutMemory(ctx, m, embedding.Vector{1}))

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.TouchMemory(ctx, model.ScopeGlobal, m.ID, at))
	require.NoError(t, s.TouchMemory(ctx, model.ScopeGlobal, m.ID, at))

	got, err := s.GetMemory(ctx, model.ScopeGlobal, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	require.NotNil(t, got.LastAccessedAt)
	assert.True(t, at.Equal(*got.LastAccessedAt))

	err = s.TouchMemory(ctx, model.ScopeGlobal, "missing", at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmbeddingsSkipsCorruptBlobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	good := newMemory(model.ScopeGlobal, "", "good")
	require.NoError(t, s.PutMemory(ctx, good, embedding.Vector{1, 0}))
	corrupt := newMemory(model.ScopeGlobal, "", "corrupt")
	require.NoError(t, s.PutMemory(ctx, corrupt, embedding.Vector{0, 1}))
	missing := newMemory(model.ScopeGlobal, "", "missing")
	require.NoError(t, s.PutMemory(ctx, missing, embedding.Vector{1, 1}))

	_, err := s.PutBlob(ctx, model.EmbeddingKey(corrupt.ID), []byte{1, 2, 3}, EmbeddingMIME)
	require.NoError(t, err)
	require.NoError(t, s.DeleteBlob(ctx, model.EmbeddingKey(missing.ID)))

	vecs, warnings, err := s.Embeddings(ctx, model.ScopeGlobal, "")
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, embedding.Vector{1, 0}, vecs[good.ID])
	assert.Len(t, warnings, 2)
}

func TestEmbeddingsFiltersProject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newMemory(model.ScopeProject, "/a", "a")
	require.NoError(t, s.PutMemory(ctx, a, embedding.Vector{1}))
	require.NoError(t, s.PutMemory(ctx, newMemory(model.ScopeProject, "/b", "b"), embedding.Vector{2}))

	vecs, warnings, err := s.Embeddings(ctx, model.ScopeProject, "/a")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, vecs, 1)
	assert.Contains(t, vecs, a.ID)
}

func TestMetaAndBlobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.GetMeta(ctx, "schema_version")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	_, err = s.GetMeta(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetMeta(ctx, "owner", "me"))
	require.NoError(t, s.SetMeta(ctx, "owner", "you"))
	v, err = s.GetMeta(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, "you", v)

	first, err := s.PutBlob(ctx, "files/a", []byte("hello"), "text/plain")
	require.NoError(t, err)
	second, err := s.PutBlob(ctx, "files/a", []byte("hello, world"), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, int64(12), second.Size)
	assert.NotEqual(t, first.Hash, second.Hash, "hash follows current bytes")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(second.CreatedAt))

	_, _, err = s.GetBlob(ctx, "files/none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutMemory(ctx, newMemory(model.ScopeGlobal, "", "g"), embedding.Vector{1}))
	require.NoError(t, s.PutMemory(ctx, newMemory(model.ScopeProject, "/p", "p"), embedding.Vector{1, 2}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.GlobalMemories)
	assert.Equal(t, 1, st.ProjectMemories)
	assert.Equal(t, 2, st.Blobs)
	assert.Equal(t, int64(12), st.BlobBytes)
	assert.Equal(t, 2, st.Categories["knowledge"])
	require.Len(t, st.Projects, 1)
	assert.Equal(t, "/p", st.Projects[0].ProjectPath)

	all, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Reset(ctx))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.GlobalMemories+st.ProjectMemories+st.Blobs)
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	s.Close()

	_, err = os.Stat(dbPath)
	assert.False(t, os.IsNotExist(err), "expected db file to be created")
}
