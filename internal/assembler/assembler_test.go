package assembler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

type fakeRetriever struct {
	rc    *memory.RequestContext
	panic bool
	got   memory.RequestParams
}

func (f *fakeRetriever) GetContextForRequest(_ context.Context, p memory.RequestParams) *memory.RequestContext {
	f.got = p
	if f.panic {
		panic("retriever exploded")
	}
	return f.rc
}

func sectionByID(sections []Section, id string) (Section, bool) {
	for _, s := range sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

func TestBuildAppendsOriginalPromptLast(t *testing.T) {
	a := New(nil)
	res, err := a.Build(context.Background(), "You are a helpful assistant.", Request{Messages: user("implement a retry helper")})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(res.SystemPrompt, "\n\nYou are a helpful assistant."))
	assert.True(t, strings.HasPrefix(res.SystemPrompt, "## Core Instructions"), "critical section first")
	assert.Equal(t, EstimateTokens(res.SystemPrompt), res.TotalTokens)
	assert.Equal(t, TaskCode, res.Analysis.TaskType)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.TrimmedSections)

	_, ok := sectionByID(res.Sections, "emphasis-code")
	assert.True(t, ok)
	_, ok = sectionByID(res.Sections, "tool-usage")
	assert.False(t, ok, "no tools in request")

	for i := 1; i < len(res.Sections); i++ {
		assert.GreaterOrEqual(t, res.Sections[i-1].Priority, res.Sections[i].Priority)
	}
}

func TestBuildMemorySections(t *testing.T) {
	r := &fakeRetriever{rc: &memory.RequestContext{
		GlobalMemories: []model.Memory{
			{ID: "1", Content: "prefers tabs", Category: model.CategoryPreference},
			{ID: "2", Content: "uses zsh", Category: model.CategoryContext},
		},
		ProjectMemories: []model.Memory{{ID: "3", Content: "db is sqlite", Category: model.CategoryArchitecture}},
		Errors:          []string{"project touch: boom"},
	}}
	cfg := *config.Default()
	cfg.Memory.MaxGlobal, cfg.Memory.MaxProject = 2, 7
	a := New(r, WithConfig(cfg))

	res, err := a.Build(context.Background(), "", Request{Messages: user("hello"), ProjectPath: "/src/app"})
	require.NoError(t, err)
	assert.Equal(t, memory.RequestParams{Messages: user("hello"), ProjectPath: "/src/app", MaxGlobal: 2, MaxProject: 7}, r.got)

	global, ok := sectionByID(res.Sections, "global-memories")
	require.True(t, ok)
	assert.Contains(t, global.Content, "### Preference\n- prefers tabs")
	assert.Contains(t, global.Content, "### Context\n- uses zsh")
	assert.Less(t, strings.Index(global.Content, "Preference"), strings.Index(global.Content, "Context"))

	project, ok := sectionByID(res.Sections, "project-memories")
	require.True(t, ok)
	assert.Contains(t, project.Content, "/src/app")
	assert.Contains(t, project.Content, "- db is sqlite")

	status, ok := sectionByID(res.Sections, "memory-status")
	require.True(t, ok)
	assert.Contains(t, status.Content, "2 global and 1 project")

	assert.Equal(t, []string{"memory: project touch: boom"}, res.Errors)
	assert.False(t, strings.HasSuffix(res.SystemPrompt, "\n\n"), "empty original prompt adds nothing")
}

func TestBuildNoMemoriesNoStatus(t *testing.T) {
	a := New(&fakeRetriever{rc: &memory.RequestContext{}})
	res, err := a.Build(context.Background(), "", Request{Messages: user("hello")})
	require.NoError(t, err)
	for _, s := range res.Sections {
		assert.NotEqual(t, CategoryMemory, s.Category)
	}
}

func TestBuildRecoversStageFailure(t *testing.T) {
	a := New(&fakeRetriever{panic: true})
	res, err := a.Build(context.Background(), "original", Request{Messages: user("review this")})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "memory sections")
	assert.Contains(t, res.Errors[0], "retriever exploded")
	assert.True(t, strings.HasSuffix(res.SystemPrompt, "original"))
	_, ok := sectionByID(res.Sections, "core-instructions")
	assert.True(t, ok)
}

func TestBuildFeatureFlags(t *testing.T) {
	cfg := *config.Default()
	cfg.Features = config.FeaturesConfig{}
	r := &fakeRetriever{rc: &memory.RequestContext{GlobalMemories: []model.Memory{{Content: "x", Category: model.CategoryCode}}}}
	a := New(r, WithConfig(cfg))

	res, err := a.Build(context.Background(), "", Request{Messages: user("fix the crash"), Tools: []model.Tool{{Name: "bash"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"core-instructions"}, idsOf(res.Sections))
	assert.Empty(t, r.got.Messages, "retriever not consulted")
}

func TestBuildEngineeringSections(t *testing.T) {
	a := New(nil)
	res, err := a.Build(context.Background(), "", Request{
		Messages: user("walk me through the scheduler:\n1. read it\n2. summarize\n3. list risks"),
		Tools:    []model.Tool{{Name: "read_file"}, {Name: "grep"}},
	})
	require.NoError(t, err)

	tools, ok := sectionByID(res.Sections, "tool-usage")
	require.True(t, ok)
	assert.Contains(t, tools.Content, "read_file, grep")
	_, ok = sectionByID(res.Sections, "exploration-guard")
	assert.True(t, ok)
	multi, ok := sectionByID(res.Sections, "multi-task")
	require.True(t, ok)
	assert.Contains(t, multi.Content, "3 tasks")
	_, ok = sectionByID(res.Sections, "scope-discipline")
	assert.True(t, ok)
}

func TestBuildTrimsToBudget(t *testing.T) {
	cfg := *config.Default()
	cfg.MaxTokens, cfg.ReservedResponseTokens = 0, 0
	a := New(nil, WithConfig(cfg))

	res, err := a.Build(context.Background(), "", Request{
		Messages: user("fix the failing test and then refactor the module"),
		Tools:    []model.Tool{{Name: "bash"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TrimmedSections)

	used := 0
	for _, s := range res.Sections {
		used += s.TokenCount
	}
	assert.LessOrEqual(t, used, MinAvailableTokens)
	_, ok := sectionByID(res.Sections, "core-instructions")
	assert.True(t, ok, "critical content survives")
}

func TestBuildCancelledIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRetriever{rc: &memory.RequestContext{Errors: []string{"global recall: slow"}}}
	_, err := New(r).Build(ctx, "original", Request{Messages: user("hello")})
	require.Error(t, err)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "assembly", be.Stage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"memory: global recall: slow"}, be.Errors)
}

func TestBuildWithMemoryService(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := memory.NewService(st, embedding.NewLocalEmbedder(0))

	m, err := svc.Remember(ctx, memory.RememberParams{Content: "Always wrap errors with context", Scope: model.ScopeGlobal, Category: model.CategoryPreference})
	require.NoError(t, err)

	res, err := New(svc).Build(ctx, "base prompt", Request{Messages: user("how should errors be wrapped")})
	require.NoError(t, err)
	assert.Contains(t, res.SystemPrompt, m.Content)

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
}
