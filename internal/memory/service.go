// Package memory implements remembering, recalling and retiring memories on
// top of a Store and an embedding Provider.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// Recall defaults.
const (
	DefaultLimit    = 10
	DefaultMinScore = 0.3
)

// Service is the memory business layer. It is safe for concurrent use.
type Service struct {
	store    store.Store
	embedder embedding.Provider
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	autoInjectGlobal  bool
	autoInjectProject bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for recall spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAutoInject sets whether request context pulls from each scope.
func WithAutoInject(global, project bool) Option {
	return func(s *Service) {
		s.autoInjectGlobal = global
		s.autoInjectProject = project
	}
}

// NewService creates a Service.
func NewService(st store.Store, embedder embedding.Provider, opts ...Option) *Service {
	s := &Service{
		store:             st,
		embedder:          embedder,
		logger:            slog.Default(),
		tracer:            noop.NewTracerProvider().Tracer("memory"),
		now:               time.Now,
		autoInjectGlobal:  true,
		autoInjectProject: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RememberParams holds parameters for creating a memory.
type RememberParams struct {
	Content     string
	Scope       model.Scope
	Category    model.Category // empty defaults to knowledge
	ProjectPath string
	Importance  *float64 // nil derives importance from category and content
	Metadata    model.Metadata
}

func (p *RememberParams) validate() error {
	p.Content = strings.TrimSpace(p.Content)
	p.ProjectPath = strings.TrimSpace(p.ProjectPath)
	if p.Content == "" {
		return invalid("content", "must not be empty")
	}
	switch p.Scope {
	case model.ScopeGlobal:
	case model.ScopeProject:
		if p.ProjectPath == "" {
			return invalid("projectPath", "required for project scope")
		}
	default:
		return invalid("scope", fmt.Sprintf("%q is not global or project", p.Scope))
	}
	if p.Category == "" {
		p.Category = model.CategoryKnowledge
	}
	if !p.Category.Valid() {
		return invalid("category", fmt.Sprintf("unknown category %q", p.Category))
	}
	if p.Importance != nil && (*p.Importance < 0 || *p.Importance > 1) {
		return invalid("importance", "must be within [0, 1]")
	}
	return nil
}

// Remember validates, embeds and stores a new memory.
//
// Validation errors wrap ErrValidation. Embedding and store errors are
// recoverable; callers may treat them as memory being unavailable.
func (s *Service) Remember(ctx context.Context, p RememberParams) (*model.Memory, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, p.Content)
	if err != nil {
		return nil, fmt.Errorf("memory: embed content: %w", err)
	}

	importance := ComputeImportance(p.Category, p.Content)
	if p.Importance != nil {
		importance = *p.Importance
	}
	now := s.now().UTC()
	m := &model.Memory{
		Content:    p.Content,
		Category:   p.Category,
		Scope:      p.Scope,
		Importance: importance,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   p.Metadata,
	}
	if p.Scope == model.ScopeProject {
		m.ProjectPath = p.ProjectPath
	}

	if err := s.store.PutMemory(ctx, m, vec); err != nil {
		return nil, fmt.Errorf("memory: store: %w", err)
	}
	s.logger.Debug("remembered", "component", "memory", "id", m.ID, "scope", m.Scope, "category", m.Category)
	return m, nil
}

// RecallParams holds parameters for searching memories.
type RecallParams struct {
	Query       string
	Scope       model.Scope // global, project or both
	ProjectPath string
	Categories  []model.Category
	Limit       int     // 0 uses DefaultLimit
	MinScore    float64 // 0 uses DefaultMinScore
}

// Recall runs a hybrid vector and keyword search.
//
// An empty query returns no results. A failure in one scope is logged and
// the other scope still answers; an error is returned only when every
// requested scope failed. If the query cannot be embedded the search
// degrades to keyword scoring.
func (s *Service) Recall(ctx context.Context, p RecallParams) ([]model.SearchResult, error) {
	query := strings.TrimSpace(p.Query)
	p.ProjectPath = strings.TrimSpace(p.ProjectPath)
	if query == "" {
		return []model.SearchResult{}, nil
	}
	scopes := p.Scope.Scopes()
	if len(scopes) == 0 {
		return nil, invalid("scope", fmt.Sprintf("%q is not global, project or both", p.Scope))
	}
	if p.Scope == model.ScopeProject && p.ProjectPath == "" {
		return nil, invalid("projectPath", "required for project scope")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	minScore := p.MinScore
	if minScore == 0 {
		minScore = DefaultMinScore
	}

	ctx, span := s.tracer.Start(ctx, "memory.Recall", trace.WithAttributes(
		attribute.String("scope", string(p.Scope)),
		attribute.Int("limit", limit),
	))
	defer span.End()

	qvec := s.embedQuery(ctx, query)
	keywords := ExtractKeywords(query)

	var all []model.SearchResult
	var errs []error
	attempted := 0
	for _, scope := range scopes {
		if scope == model.ScopeProject && p.ProjectPath == "" {
			continue
		}
		attempted++
		results, err := s.scoreScope(ctx, scope, p.ProjectPath, qvec, keywords)
		if err != nil {
			s.logger.Warn("recall scope failed", "component", "memory", "scope", scope, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", scope, err))
			continue
		}
		all = append(all, results...)
	}
	if len(errs) > 0 && len(errs) == attempted {
		span.RecordError(errs[0])
		return nil, fmt.Errorf("memory: recall: %w", errors.Join(errs...))
	}

	ranked := RankResults(all, p.Categories, minScore, limit)
	span.SetAttributes(attribute.Int("results", len(ranked)))
	return ranked, nil
}

// embedQuery returns nil when the query cannot be embedded.
func (s *Service) embedQuery(ctx context.Context, query string) embedding.Vector {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, using keyword scoring only", "component", "memory", "error", err)
		return nil
	}
	return vec
}

// scoreScope scores every live memory of one scope against the query.
func (s *Service) scoreScope(ctx context.Context, scope model.Scope, projectPath string, qvec embedding.Vector, keywords []string) ([]model.SearchResult, error) {
	memories, err := s.store.ListMemories(ctx, store.ListParams{Scope: scope, ProjectPath: projectPath})
	if err != nil {
		return nil, err
	}
	var vecs map[string]embedding.Vector
	if qvec != nil {
		var warnings []string
		vecs, warnings, err = s.store.Embeddings(ctx, scope, projectPath)
		if err != nil {
			s.logger.Warn("loading embeddings failed, using keyword scoring only", "component", "memory", "scope", scope, "error", err)
			vecs = nil
		}
		for _, w := range warnings {
			s.logger.Debug("embedding skipped", "component", "memory", "scope", scope, "warning", w)
		}
	}

	now := s.now()
	results := make([]model.SearchResult, 0, len(memories))
	for _, m := range memories {
		if m.Expired(now) {
			continue
		}
		score, match := HybridScore(qvec, vecs[m.ID], keywords, m.Content)
		results = append(results, model.SearchResult{Memory: m, Score: score, MatchType: match})
	}
	return results, nil
}

// Get retrieves a memory by ID from either scope.
func (s *Service) Get(ctx context.Context, id string) (*model.Memory, error) {
	for _, scope := range model.ScopeBoth.Scopes() {
		m, err := s.store.GetMemory(ctx, scope, id)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("memory: get: %w", err)
		}
	}
	return nil, fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
}

// Delete removes a memory and its embedding.
func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMemory(ctx, m.Scope, m.ID); err != nil {
		return fmt.Errorf("memory: delete: %w", err)
	}
	return nil
}

// List returns memories matching the filters, newest first.
func (s *Service) List(ctx context.Context, p store.ListParams) ([]model.Memory, error) {
	if p.Scope == "" {
		p.Scope = model.ScopeBoth
	}
	return s.store.ListMemories(ctx, p)
}

// Touch records one access of a memory.
func (s *Service) Touch(ctx context.Context, m *model.Memory) error {
	at := s.now().UTC()
	if err := s.store.TouchMemory(ctx, m.Scope, m.ID, at); err != nil {
		return fmt.Errorf("memory: touch %s: %w", m.ID, err)
	}
	m.AccessCount++
	m.LastAccessedAt = &at
	return nil
}

// Import stores previously exported memories, re-embedding their content.
// IDs, timestamps and access counts are preserved.
func (s *Service) Import(ctx context.Context, memories []model.Memory) (int, error) {
	for i := range memories {
		m := &memories[i]
		p := RememberParams{Content: m.Content, Scope: m.Scope, Category: m.Category, ProjectPath: m.ProjectPath}
		if err := p.validate(); err != nil {
			return 0, fmt.Errorf("memory %d (%s): %w", i, m.ID, err)
		}
		m.Content, m.Category = p.Content, p.Category
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Content
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("memory: embed import: %w", err)
	}

	imported := 0
	for i := range memories {
		m := memories[i]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		if m.UpdatedAt.Before(m.CreatedAt) {
			m.UpdatedAt = m.CreatedAt
		}
		if err := s.store.PutMemory(ctx, &m, vecs[i]); err != nil {
			return imported, fmt.Errorf("memory: import %s: %w", m.ID, err)
		}
		imported++
	}
	return imported, nil
}
