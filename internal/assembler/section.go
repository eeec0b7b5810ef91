// Package assembler builds the augmented system prompt for a gateway
// request: it analyzes the conversation, collects prioritized sections,
// fits them into the token budget and joins them ahead of the caller's own
// prompt.
package assembler

import (
	"fmt"
	"unicode/utf8"
)

// Priority orders sections for budget fitting. Higher is kept first.
type Priority int

const (
	PriorityOptional Priority = 0
	PriorityLow      Priority = 25
	PriorityMedium   Priority = 50
	PriorityHigh     Priority = 75
	PriorityCritical Priority = 100
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	case PriorityOptional:
		return "OPTIONAL"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Section categories.
const (
	CategoryMemory      = "memory"
	CategoryInstruction = "instruction"
	CategoryEmphasis    = "emphasis"
	CategoryEngineering = "engineering"
)

// SectionMeta carries bookkeeping about how a section ended up in the prompt.
type SectionMeta struct {
	Truncated      bool   `json:"truncated,omitempty"`
	OriginalTokens int    `json:"originalTokens,omitempty"`
	Source         string `json:"source,omitempty"`
}

// Section is one prioritized block of prompt text.
type Section struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Content    string      `json:"content"`
	Priority   Priority    `json:"priority"`
	TokenCount int         `json:"tokenCount"`
	Category   string      `json:"category"`
	Metadata   SectionMeta `json:"metadata"`
}

// EstimateTokens approximates the token count of s as ceil(runes/4).
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// NewSection creates a section with its token count filled in.
func NewSection(id, name, category string, priority Priority, content string) Section {
	return Section{
		ID:         id,
		Name:       name,
		Content:    content,
		Priority:   priority,
		TokenCount: EstimateTokens(content),
		Category:   category,
	}
}
