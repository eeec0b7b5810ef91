package assembler

import (
	"sort"
)

// TruncationMarker is appended to a section cut to fit the budget.
const TruncationMarker = "\n[...truncated to fit context budget]"

// MinAvailableTokens floors the injection budget.
const MinAvailableTokens = 100

// minTruncateTokens is the remaining allowance needed before a critical
// section is truncated rather than dropped.
const minTruncateTokens = 100

// AvailableTokens returns the budget left for injected sections.
func AvailableTokens(maxTokens, reserved int, originalPrompt string) int {
	avail := maxTokens - reserved - EstimateTokens(originalPrompt)
	if avail < MinAvailableTokens {
		return MinAvailableTokens
	}
	return avail
}

// SortByPriority returns a copy of sections ordered by priority
// descending. Equal priorities keep their input order.
func SortByPriority(sections []Section) []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Fit greedily accepts sections in priority order while they fit within
// available tokens. A critical section that does not fit is truncated to the
// remaining allowance when more than minTruncateTokens remain; everything
// else that does not fit is trimmed.
func Fit(sections []Section, available int) (included, trimmed []Section) {
	included = []Section{}
	trimmed = []Section{}
	used := 0
	for _, s := range SortByPriority(sections) {
		if used+s.TokenCount <= available {
			included = append(included, s)
			used += s.TokenCount
			continue
		}
		remaining := available - used
		if s.Priority >= PriorityCritical && remaining > minTruncateTokens {
			t := truncate(s, remaining)
			included = append(included, t)
			used += t.TokenCount
			continue
		}
		trimmed = append(trimmed, s)
	}
	return included, trimmed
}

// truncate cuts s so that its content, marker included, is at most tokens.
func truncate(s Section, tokens int) Section {
	limit := tokens*4 - len([]rune(TruncationMarker))
	runes := []rune(s.Content)
	if limit < 0 {
		limit = 0
	}
	if limit < len(runes) {
		runes = runes[:limit]
	}
	t := s
	t.Content = string(runes) + TruncationMarker
	t.TokenCount = EstimateTokens(t.Content)
	t.Metadata.Truncated = true
	t.Metadata.OriginalTokens = s.TokenCount
	return t
}

// IncludeAll is the fallback when fitting fails: every section, in
// priority order, nothing trimmed.
func IncludeAll(sections []Section) (included, trimmed []Section) {
	return SortByPriority(sections), []Section{}
}
