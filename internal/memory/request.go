package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// OverrideImportance is the importance at which a memory is injected even
// when it does not match the query.
const OverrideImportance = 0.8

// queryMessages is how many trailing user messages form the request query.
const queryMessages = 3

// RequestParams holds parameters for GetContextForRequest.
type RequestParams struct {
	Messages    []model.Message
	ProjectPath string
	MaxGlobal   int
	MaxProject  int
}

// RequestContext is the memory selected for one gateway request.
type RequestContext struct {
	Query           string
	GlobalMemories  []model.Memory
	ProjectMemories []model.Memory
	Errors          []string
}

// Total returns the number of selected memories.
func (c *RequestContext) Total() int {
	return len(c.GlobalMemories) + len(c.ProjectMemories)
}

// ExtractQuery joins the content of the last few user messages.
func ExtractQuery(messages []model.Message) string {
	var parts []string
	for i := len(messages) - 1; i >= 0 && len(parts) < queryMessages; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if c := strings.TrimSpace(messages[i].Content); c != "" {
			parts = append(parts, c)
		}
	}
	// Restore chronological order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\n")
}

// GetContextForRequest selects the memories to inject for a request.
//
// Each enabled scope contributes up to its cap of query matches. Memories
// with importance >= OverrideImportance are included regardless of the
// query, replacing the lowest-ranked weaker matches when the cap is full.
// Every selected memory is touched. Nothing here fails the request:
// problems are logged and listed in Errors.
func (s *Service) GetContextForRequest(ctx context.Context, p RequestParams) *RequestContext {
	rc := &RequestContext{Query: ExtractQuery(p.Messages)}
	p.ProjectPath = strings.TrimSpace(p.ProjectPath)

	var qvec embedding.Vector
	var keywords []string
	if rc.Query != "" {
		qvec = s.embedQuery(ctx, rc.Query)
		keywords = ExtractKeywords(rc.Query)
	}

	if s.autoInjectGlobal && p.MaxGlobal > 0 {
		rc.GlobalMemories = s.selectScope(ctx, rc, model.ScopeGlobal, "", qvec, keywords, p.MaxGlobal)
	}
	if s.autoInjectProject && p.MaxProject > 0 && p.ProjectPath != "" {
		rc.ProjectMemories = s.selectScope(ctx, rc, model.ScopeProject, p.ProjectPath, qvec, keywords, p.MaxProject)
	}

	for _, list := range [][]model.Memory{rc.GlobalMemories, rc.ProjectMemories} {
		for i := range list {
			if err := s.Touch(ctx, &list[i]); err != nil {
				s.recordError(rc, list[i].Scope, "touch", err)
			}
		}
	}
	return rc
}

func (s *Service) selectScope(ctx context.Context, rc *RequestContext, scope model.Scope, projectPath string, qvec embedding.Vector, keywords []string, limit int) []model.Memory {
	var matches []model.Memory
	seen := map[string]bool{}

	if rc.Query != "" {
		results, err := s.scoreScope(ctx, scope, projectPath, qvec, keywords)
		if err != nil {
			s.recordError(rc, scope, "recall", err)
		} else {
			for _, r := range RankResults(results, nil, DefaultMinScore, limit) {
				matches = append(matches, r.Memory)
				seen[r.Memory.ID] = true
			}
		}
	}

	all, err := s.store.ListMemories(ctx, store.ListParams{Scope: scope, ProjectPath: projectPath})
	if err != nil {
		s.recordError(rc, scope, "importance scan", err)
		return matches
	}
	now := s.now()
	var important []model.Memory
	for _, m := range all {
		if m.Importance >= OverrideImportance && !seen[m.ID] && !m.Expired(now) {
			important = append(important, m)
		}
	}
	sort.SliceStable(important, func(i, j int) bool {
		return important[i].Importance > important[j].Importance
	})
	return mergeImportant(matches, important, limit)
}

// mergeImportant fits query matches and override memories into limit.
// Override memories displace the lowest-ranked matches below
// OverrideImportance; matches at or above it are never displaced.
func mergeImportant(matches, important []model.Memory, limit int) []model.Memory {
	protected := 0
	for _, m := range matches {
		if m.Importance >= OverrideImportance {
			protected++
		}
	}
	if n := max(limit-protected, 0); len(important) > n {
		important = important[:n]
	}

	weak := limit - protected - len(important)
	selected := make([]model.Memory, 0, limit)
	for _, m := range matches {
		if m.Importance < OverrideImportance {
			if weak <= 0 {
				continue
			}
			weak--
		}
		selected = append(selected, m)
	}
	return append(selected, important...)
}

func (s *Service) recordError(rc *RequestContext, scope model.Scope, stage string, err error) {
	s.logger.Warn("request context degraded", "component", "memory", "scope", scope, "stage", stage, "error", err)
	rc.Errors = append(rc.Errors, fmt.Sprintf("%s %s: %v", scope, stage, err))
}
