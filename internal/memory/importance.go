package memory

import (
	"strings"

	"github.com/rcliao/agent-context/internal/model"
)

// CategoryWeights is the base importance of each category.
var CategoryWeights = map[model.Category]float64{
	model.CategoryPreference:   0.8,
	model.CategoryDecision:     0.75,
	model.CategoryArchitecture: 0.75,
	model.CategoryError:        0.7,
	model.CategoryPattern:      0.65,
	model.CategoryWorkflow:     0.6,
	model.CategoryCode:         0.55,
	model.CategoryKnowledge:    0.5,
	model.CategoryContext:      0.4,
}

// defaultCategoryWeight applies to categories missing from CategoryWeights.
const defaultCategoryWeight = 0.5

// ImportanceMarkers boost importance when they appear in the content.
var ImportanceMarkers = map[string]float64{
	"important": 0.05,
	"always":    0.05,
	"never":     0.05,
	"critical":  0.05,
	"prefer":    0.03,
	"must":      0.03,
}

// MaxMarkerBoost caps the total boost from ImportanceMarkers.
const MaxMarkerBoost = 0.15

// ComputeImportance derives importance from category and content, in [0, 1].
func ComputeImportance(category model.Category, content string) float64 {
	base, ok := CategoryWeights[category]
	if !ok {
		base = defaultCategoryWeight
	}

	lower := strings.ToLower(content)
	var boost float64
	for marker, weight := range ImportanceMarkers {
		if strings.Contains(lower, marker) {
			boost += weight
		}
	}
	if boost > MaxMarkerBoost {
		boost = MaxMarkerBoost
	}
	return clamp01(base + boost)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
