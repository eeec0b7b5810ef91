package assembler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// buildMetrics holds the instruments recorded once per Build.
type buildMetrics struct {
	builds   metric.Int64Counter
	trimmed  metric.Int64Counter
	degraded metric.Int64Counter
	tokens   metric.Int64Histogram
}

func newBuildMetrics(m metric.Meter) (*buildMetrics, error) {
	var bm buildMetrics
	var err error

	bm.builds, err = m.Int64Counter("assembler.builds",
		metric.WithDescription("System prompts built"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create builds counter: %w", err)
	}
	bm.trimmed, err = m.Int64Counter("assembler.sections.trimmed",
		metric.WithDescription("Sections dropped to fit the token budget"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create trimmed counter: %w", err)
	}
	bm.degraded, err = m.Int64Counter("assembler.stage.errors",
		metric.WithDescription("Non-fatal stage failures recovered during builds"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create stage errors counter: %w", err)
	}
	bm.tokens, err = m.Int64Histogram("assembler.prompt.tokens",
		metric.WithDescription("Estimated tokens in the assembled system prompt"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, fmt.Errorf("create tokens histogram: %w", err)
	}
	return &bm, nil
}

func (bm *buildMetrics) record(ctx context.Context, res *Result) {
	if bm == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("task_type", string(res.Analysis.TaskType)))
	bm.builds.Add(ctx, 1, opts)
	bm.trimmed.Add(ctx, int64(len(res.TrimmedSections)), opts)
	bm.degraded.Add(ctx, int64(len(res.Errors)), opts)
	bm.tokens.Record(ctx, int64(res.TotalTokens), opts)
}
