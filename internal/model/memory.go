// Package model defines the core memory data types.
package model

import (
	"fmt"
	"time"
)

// Category classifies what kind of fact a memory holds.
type Category string

const (
	CategoryPreference   Category = "preference"
	CategoryPattern      Category = "pattern"
	CategoryKnowledge    Category = "knowledge"
	CategoryDecision     Category = "decision"
	CategoryArchitecture Category = "architecture"
	CategoryContext      Category = "context"
	CategoryCode         Category = "code"
	CategoryError        Category = "error"
	CategoryWorkflow     Category = "workflow"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryPreference,
	CategoryPattern,
	CategoryKnowledge,
	CategoryDecision,
	CategoryArchitecture,
	CategoryContext,
	CategoryCode,
	CategoryError,
	CategoryWorkflow,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("invalid category %q", s)
	}
	return c, nil
}

// Scope says whether a memory applies everywhere or to one project.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
	// ScopeBoth is only meaningful as a query filter.
	ScopeBoth Scope = "both"
)

// Scopes returns the concrete storage scopes covered by s.
func (s Scope) Scopes() []Scope {
	switch s {
	case ScopeGlobal:
		return []Scope{ScopeGlobal}
	case ScopeProject:
		return []Scope{ScopeProject}
	case ScopeBoth:
		return []Scope{ScopeGlobal, ScopeProject}
	}
	return nil
}

// ParseScope converts a string into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeProject, ScopeBoth:
		return Scope(s), nil
	}
	return "", fmt.Errorf("invalid scope %q (valid: global, project, both)", s)
}

// Metadata holds optional descriptive fields attached to a memory.
type Metadata struct {
	Source       string     `json:"source,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	RelatedFiles []string   `json:"relatedFiles,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Memory represents a stored memory entry.
type Memory struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	Category       Category   `json:"category"`
	Scope          Scope      `json:"scope"`
	ProjectPath    string     `json:"projectPath,omitempty"`
	Importance     float64    `json:"importance"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	AccessCount    int        `json:"accessCount"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	Metadata       Metadata   `json:"metadata"`
}

// Expired reports whether the memory carries an expiry that has passed.
func (m *Memory) Expired(now time.Time) bool {
	return m.Metadata.ExpiresAt != nil && !m.Metadata.ExpiresAt.After(now)
}

// EmbeddingKey returns the blob key under which the memory's embedding lives.
func EmbeddingKey(id string) string {
	return "embeddings/" + id
}

// MatchType records which scoring component produced a search hit.
type MatchType string

const (
	MatchVector  MatchType = "vector"
	MatchKeyword MatchType = "keyword"
	MatchHybrid  MatchType = "hybrid"
)

// SearchResult is a memory paired with its relevance score.
type SearchResult struct {
	Memory    Memory    `json:"memory"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"matchType"`
}

// BlobMeta describes a stored binary blob.
type BlobMeta struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	MIME      string    `json:"mime,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn of the conversation sent through the gateway.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a tool the request makes available to the model.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
