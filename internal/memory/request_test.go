package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

func userMsg(s string) model.Message { return model.Message{Role: "user", Content: s} }

func TestExtractQuery(t *testing.T) {
	msgs := []model.Message{
		userMsg("first"),
		{Role: "assistant", Content: "reply"},
		userMsg("second"),
		userMsg("  "),
		userMsg("third"),
		{Role: "system", Content: "ignored"},
		userMsg("fourth"),
	}
	assert.Equal(t, "second\nthird\nfourth", ExtractQuery(msgs))
	assert.Equal(t, "", ExtractQuery(nil))
	assert.Equal(t, "", ExtractQuery([]model.Message{{Role: "assistant", Content: "hi"}}))
}

// seedKeywordService stores memories with real embeddings and returns a
// service over the same store whose query embedding always fails, so
// selection is driven by keyword overlap alone.
func seedKeywordService(t *testing.T, opts ...Option) (*Service, map[string]*model.Memory) {
	t.Helper()
	st := newTestStore(t)
	writer := NewService(st, embedding.NewLocalEmbedder(0))
	high, low := 0.95, 0.1
	mid := 0.5

	seeded := map[string]*model.Memory{
		"match": remember(t, writer, RememberParams{Content: "migrations run with goose", Scope: model.ScopeGlobal, Importance: &mid}),
		"vital": remember(t, writer, RememberParams{Content: "never push to main", Scope: model.ScopeGlobal, Importance: &high}),
		"noise": remember(t, writer, RememberParams{Content: "office plants need water", Scope: model.ScopeGlobal, Importance: &low}),
		"proj":  remember(t, writer, RememberParams{Content: "goose migrations live in db/", Scope: model.ScopeProject, ProjectPath: "/src/app", Importance: &mid}),
		"other": remember(t, writer, RememberParams{Content: "goose migrations elsewhere", Scope: model.ScopeProject, ProjectPath: "/src/other", Importance: &mid}),
	}
	return NewService(st, failingEmbedder{}, opts...), seeded
}

func ids(memories []model.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}

func TestGetContextForRequest(t *testing.T) {
	ctx := context.Background()
	s, seeded := seedKeywordService(t)

	rc := s.GetContextForRequest(ctx, RequestParams{
		Messages:    []model.Message{userMsg("goose migrations")},
		ProjectPath: "/src/app",
		MaxGlobal:   5,
		MaxProject:  5,
	})
	assert.Empty(t, rc.Errors)
	assert.Equal(t, "goose migrations", rc.Query)

	global := ids(rc.GlobalMemories)
	assert.Contains(t, global, seeded["match"].ID)
	assert.Contains(t, global, seeded["vital"].ID, "high importance is injected without matching")
	assert.NotContains(t, global, seeded["noise"].ID)
	assert.Equal(t, []string{seeded["proj"].ID}, ids(rc.ProjectMemories))
	assert.Equal(t, 3, rc.Total())

	for _, m := range append(rc.GlobalMemories, rc.ProjectMemories...) {
		assert.Equal(t, 1, m.AccessCount)
		got, err := s.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AccessCount, "selected memories are touched")
	}
	got, err := s.Get(ctx, seeded["noise"].ID)
	require.NoError(t, err)
	assert.Zero(t, got.AccessCount)
}

func TestGetContextForRequestCaps(t *testing.T) {
	ctx := context.Background()
	s, seeded := seedKeywordService(t)

	rc := s.GetContextForRequest(ctx, RequestParams{
		Messages:   []model.Message{userMsg("goose migrations")},
		MaxGlobal:  1,
		MaxProject: 5,
	})
	assert.Equal(t, []string{seeded["vital"].ID}, ids(rc.GlobalMemories), "high importance displaces a weaker match")
	assert.Empty(t, rc.ProjectMemories, "no project path")

	rc = s.GetContextForRequest(ctx, RequestParams{
		Messages:  []model.Message{userMsg("goose migrations")},
		MaxGlobal: 2,
	})
	assert.Equal(t, []string{seeded["match"].ID, seeded["vital"].ID}, ids(rc.GlobalMemories))
}

func TestGetContextForRequestImportantSurvivesFullCap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	writer := NewService(st, embedding.NewLocalEmbedder(0))
	low, high := 0.2, 0.95
	for _, c := range []string{"sqlite wal mode tuning", "sqlite vacuum schedule", "sqlite busy timeout"} {
		remember(t, writer, RememberParams{Content: c, Scope: model.ScopeGlobal, Importance: &low})
	}
	gpg := remember(t, writer, RememberParams{Content: "Always sign commits with gpg", Scope: model.ScopeGlobal, Importance: &high})

	s := NewService(st, failingEmbedder{})
	rc := s.GetContextForRequest(ctx, RequestParams{
		Messages:  []model.Message{userMsg("sqlite")},
		MaxGlobal: 2,
	})
	require.Len(t, rc.GlobalMemories, 2)
	assert.Contains(t, rc.GlobalMemories[0].Content, "sqlite")
	assert.Equal(t, gpg.ID, rc.GlobalMemories[1].ID)
}

func TestMergeImportant(t *testing.T) {
	mem := func(id string, importance float64) model.Memory {
		return model.Memory{ID: id, Importance: importance}
	}
	tests := []struct {
		name      string
		matches   []model.Memory
		important []model.Memory
		limit     int
		want      []string
	}{
		{"room for both", []model.Memory{mem("a", 0.2)}, []model.Memory{mem("x", 0.9)}, 3, []string{"a", "x"}},
		{"displaces lowest match", []model.Memory{mem("a", 0.2), mem("b", 0.1)}, []model.Memory{mem("x", 0.9)}, 2, []string{"a", "x"}},
		{"important match kept", []model.Memory{mem("a", 0.2), mem("b", 0.85)}, []model.Memory{mem("x", 0.9)}, 2, []string{"b", "x"}},
		{"all matches important", []model.Memory{mem("a", 0.9), mem("b", 0.85)}, []model.Memory{mem("x", 0.95)}, 2, []string{"a", "b"}},
		{"more important than cap", nil, []model.Memory{mem("x", 0.95), mem("y", 0.9), mem("z", 0.8)}, 2, []string{"x", "y"}},
		{"nothing", nil, nil, 2, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(mergeImportant(tt.matches, tt.important, tt.limit)))
		})
	}
}

func TestGetContextForRequestEmptyQuery(t *testing.T) {
	s, seeded := seedKeywordService(t)

	rc := s.GetContextForRequest(context.Background(), RequestParams{MaxGlobal: 5, MaxProject: 5, ProjectPath: "/src/app"})
	assert.Equal(t, []string{seeded["vital"].ID}, ids(rc.GlobalMemories))
	assert.Empty(t, rc.ProjectMemories)
}

func TestGetContextForRequestAutoInjectOff(t *testing.T) {
	s, _ := seedKeywordService(t, WithAutoInject(false, false))

	rc := s.GetContextForRequest(context.Background(), RequestParams{
		Messages:    []model.Message{userMsg("goose migrations")},
		ProjectPath: "/src/app",
		MaxGlobal:   5,
		MaxProject:  5,
	})
	assert.Zero(t, rc.Total())
	assert.Empty(t, rc.Errors)
}

func TestGetContextForRequestStoreFailure(t *testing.T) {
	st := newTestStore(t)
	s := NewService(st, embedding.NewLocalEmbedder(0))
	require.NoError(t, st.Close())

	rc := s.GetContextForRequest(context.Background(), RequestParams{
		Messages:    []model.Message{userMsg("anything at all")},
		ProjectPath: "/src/app",
		MaxGlobal:   5,
		MaxProject:  5,
	})
	assert.Zero(t, rc.Total())
	assert.NotEmpty(t, rc.Errors)
}

func TestGetContextForRequestOneScopeFails(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	writer := NewService(st, embedding.NewLocalEmbedder(0))
	global := remember(t, writer, RememberParams{Content: "lint with golangci", Scope: model.ScopeGlobal})
	remember(t, writer, RememberParams{Content: "lint with golangci here too", Scope: model.ScopeProject, ProjectPath: "/src/app"})

	s := NewService(&flakyStore{Store: st, failScope: model.ScopeProject}, embedding.NewLocalEmbedder(0))
	rc := s.GetContextForRequest(ctx, RequestParams{
		Messages:    []model.Message{userMsg("lint with golangci")},
		ProjectPath: "/src/app",
		MaxGlobal:   5,
		MaxProject:  5,
	})
	assert.Equal(t, []string{global.ID}, ids(rc.GlobalMemories))
	assert.Empty(t, rc.ProjectMemories)
	require.NotEmpty(t, rc.Errors)
	for _, e := range rc.Errors {
		assert.Contains(t, e, string(model.ScopeProject))
	}
}
