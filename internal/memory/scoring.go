package memory

import (
	"sort"
	"strings"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

// Hybrid score weights.
const (
	VectorWeight  = 0.7
	KeywordWeight = 0.3
)

// minKeywordLen excludes short words from keyword overlap.
const minKeywordLen = 3

// ExtractKeywords returns the lowercased whitespace-separated words of query
// longer than two characters.
func ExtractKeywords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(w)) >= minKeywordLen {
			out = append(out, w)
		}
	}
	return out
}

// KeywordOverlap is the fraction of keywords found as substrings of content.
func KeywordOverlap(keywords []string, content string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// HybridScore combines vector similarity and keyword overlap.
// A nil query or memory vector contributes no vector component.
func HybridScore(queryVec, memVec embedding.Vector, keywords []string, content string) (float64, model.MatchType) {
	vector := 0.0
	if queryVec != nil && memVec != nil {
		vector = embedding.CosineSimilarity(queryVec, memVec)
	}
	keyword := KeywordOverlap(keywords, content)
	score := VectorWeight*vector + KeywordWeight*keyword

	switch {
	case vector > 0 && keyword > 0:
		return score, model.MatchHybrid
	case vector > 0:
		return score, model.MatchVector
	default:
		return score, model.MatchKeyword
	}
}

// RankResults filters by category allow-list and minimum score, sorts by
// score descending keeping input order for ties, and truncates to limit.
func RankResults(results []model.SearchResult, categories []model.Category, minScore float64, limit int) []model.SearchResult {
	allowed := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if len(allowed) > 0 && !allowed[r.Memory.Category] {
			continue
		}
		if r.Score < minScore {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
