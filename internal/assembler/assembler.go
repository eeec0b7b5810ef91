package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
)

// MemoryRetriever selects the memories to inject for a request.
// *memory.Service implements it.
type MemoryRetriever interface {
	GetContextForRequest(ctx context.Context, p memory.RequestParams) *memory.RequestContext
}

// Request is what the gateway sends for one model call.
type Request struct {
	Messages    []model.Message `json:"messages"`
	ProjectPath string          `json:"projectPath,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	Tools       []model.Tool    `json:"tools,omitempty"`
}

// Result is the augmented prompt plus diagnostics.
type Result struct {
	SystemPrompt    string    `json:"systemPrompt"`
	Sections        []Section `json:"sections"`
	TotalTokens     int       `json:"totalTokens"`
	TrimmedSections []Section `json:"trimmedSections"`
	Analysis        Analysis  `json:"analysis"`
	Errors          []string  `json:"errors,omitempty"`
}

// BuildError is returned when the final assembly step fails. Errors holds
// the non-fatal problems recorded before that point.
type BuildError struct {
	Stage  string
	Err    error
	Errors []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("assembler: %s failed: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Assembler builds system prompts. It holds no per-request state and is
// safe for concurrent use.
type Assembler struct {
	memory MemoryRetriever
	cfg    config.Config
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	metrics *buildMetrics
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the assembler logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer used for build spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assembler) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithMeter sets the meter for build counters.
func WithMeter(m metric.Meter) Option {
	return func(a *Assembler) {
		if m != nil {
			a.meter = m
		}
	}
}

// WithConfig sets token limits, feature flags and memory caps.
func WithConfig(cfg config.Config) Option {
	return func(a *Assembler) { a.cfg = cfg }
}

// New creates an Assembler. retriever may be nil, which disables memory
// sections.
func New(retriever MemoryRetriever, opts ...Option) *Assembler {
	a := &Assembler{
		memory: retriever,
		cfg:    *config.Default(),
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("assembler"),
		meter:  noopmetric.NewMeterProvider().Meter("assembler"),
	}
	for _, o := range opts {
		o(a)
	}
	m, err := newBuildMetrics(a.meter)
	if err != nil {
		a.logger.Warn("build metrics disabled", "component", "assembler", "error", err)
	}
	a.metrics = m
	return a
}

// Build produces the augmented system prompt for a request.
//
// Failures in analysis, section collection or budget fitting are recovered
// with safe defaults and listed in Result.Errors. Only a failure of the
// final assembly is returned as an error, always a *BuildError.
func (a *Assembler) Build(ctx context.Context, originalPrompt string, req Request) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "assembler.Build", trace.WithAttributes(
		attribute.String("session_id", req.SessionID),
		attribute.Int("messages", len(req.Messages)),
	))
	defer span.End()

	b := &build{logger: a.logger.With("component", "assembler", "session", req.SessionID)}

	analysis := DefaultAnalysis()
	b.stage("analysis", func() error {
		analysis = Analyze(req.Messages)
		return nil
	})

	var sections []Section
	if a.cfg.Features.Memory && a.memory != nil {
		b.stage("memory sections", func() error {
			rc := a.memory.GetContextForRequest(ctx, memory.RequestParams{
				Messages:    req.Messages,
				ProjectPath: req.ProjectPath,
				MaxGlobal:   a.cfg.Memory.MaxGlobal,
				MaxProject:  a.cfg.Memory.MaxProject,
			})
			for _, e := range rc.Errors {
				b.errors = append(b.errors, "memory: "+e)
			}
			sections = append(sections, memorySections(rc.GlobalMemories, rc.ProjectMemories, req.ProjectPath)...)
			return nil
		})
	}
	b.stage("instruction sections", func() error {
		sections = append(sections, staticSections()...)
		return nil
	})
	if a.cfg.Features.Emphasis {
		b.stage("emphasis sections", func() error {
			sections = append(sections, emphasisSections(analysis)...)
			return nil
		})
	}
	if a.cfg.Features.Engineering {
		b.stage("engineering sections", func() error {
			sections = append(sections, engineeringSections(analysis, req.Tools)...)
			return nil
		})
	}

	available := AvailableTokens(a.cfg.MaxTokens, a.cfg.ReservedResponseTokens, originalPrompt)
	var included, trimmed []Section
	if !b.stage("budget fitting", func() error {
		included, trimmed = Fit(sections, available)
		return nil
	}) {
		included, trimmed = IncludeAll(sections)
	}

	prompt, err := assemble(ctx, included, originalPrompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly failed")
		b.logger.Error("assembly failed", "error", err)
		return nil, &BuildError{Stage: "assembly", Err: err, Errors: b.errors}
	}

	res := &Result{
		SystemPrompt:    prompt,
		Sections:        included,
		TotalTokens:     EstimateTokens(prompt),
		TrimmedSections: trimmed,
		Analysis:        analysis,
		Errors:          b.errors,
	}
	span.SetAttributes(
		attribute.String("task_type", string(analysis.TaskType)),
		attribute.Int("complexity", analysis.Complexity),
		attribute.Int("sections", len(included)),
		attribute.Int("trimmed", len(trimmed)),
		attribute.Int("available_tokens", available),
	)
	a.metrics.record(ctx, res)
	b.logger.Debug("built system prompt",
		"task_type", analysis.TaskType,
		"sections", len(included),
		"trimmed", len(trimmed),
		"tokens", res.TotalTokens,
		"errors", len(b.errors),
	)
	return res, nil
}

// build accumulates non-fatal errors for one Build call.
type build struct {
	logger *slog.Logger
	errors []string
}

// stage runs fn, converting an error or panic into a recorded message.
// It reports whether fn completed cleanly.
func (b *build) stage(name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(name, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()
	if err := fn(); err != nil {
		b.fail(name, err)
		return false
	}
	return true
}

func (b *build) fail(name string, err error) {
	b.logger.Warn("build stage failed", "stage", name, "error", err)
	b.errors = append(b.errors, fmt.Sprintf("%s: %v", name, err))
}

// assemble joins included sections by priority, then the original prompt.
func assemble(ctx context.Context, included []Section, originalPrompt string) (prompt string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(included)+1)
	for _, s := range SortByPriority(included) {
		if c := strings.TrimSpace(s.Content); c != "" {
			parts = append(parts, c)
		}
	}
	if p := strings.TrimSpace(originalPrompt); p != "" {
		parts = append(parts, originalPrompt)
	}
	return strings.Join(parts, "\n\n"), nil
}
