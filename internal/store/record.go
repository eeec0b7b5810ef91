package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

// EmbeddingMIME tags embedding blobs: little-endian float32 values.
const EmbeddingMIME = "application/x-float32-le"

// record is the JSON document stored in a collection table. Timestamps are
// milliseconds since the Unix epoch.
type record struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	Category       string     `json:"category"`
	Scope          string     `json:"scope"`
	ProjectPath    string     `json:"projectPath,omitempty"`
	Importance     float64    `json:"importance"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
	AccessCount    int        `json:"accessCount"`
	LastAccessedAt *int64     `json:"lastAccessedAt,omitempty"`
	Metadata       recordMeta `json:"metadata"`
	EmbeddingKey   string     `json:"embeddingKey"`
}

type recordMeta struct {
	Source       string   `json:"source,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	RelatedFiles []string `json:"relatedFiles,omitempty"`
	SessionID    string   `json:"sessionId,omitempty"`
	ExpiresAt    *int64   `json:"expiresAt,omitempty"`
}

func toRecord(m *model.Memory) record {
	r := record{
		ID:          m.ID,
		Content:     m.Content,
		Category:    string(m.Category),
		Scope:       string(m.Scope),
		ProjectPath: m.ProjectPath,
		Importance:  m.Importance,
		CreatedAt:   m.CreatedAt.UnixMilli(),
		UpdatedAt:   m.UpdatedAt.UnixMilli(),
		AccessCount: m.AccessCount,
		Metadata: recordMeta{
			Source:       m.Metadata.Source,
			Tags:         m.Metadata.Tags,
			RelatedFiles: m.Metadata.RelatedFiles,
			SessionID:    m.Metadata.SessionID,
		},
		EmbeddingKey: model.EmbeddingKey(m.ID),
	}
	if m.LastAccessedAt != nil {
		ms := m.LastAccessedAt.UnixMilli()
		r.LastAccessedAt = &ms
	}
	if m.Metadata.ExpiresAt != nil {
		ms := m.Metadata.ExpiresAt.UnixMilli()
		r.Metadata.ExpiresAt = &ms
	}
	return r
}

func (r record) toMemory() model.Memory {
	m := model.Memory{
		ID:          r.ID,
		Content:     r.Content,
		Category:    model.Category(r.Category),
		Scope:       model.Scope(r.Scope),
		ProjectPath: r.ProjectPath,
		Importance:  r.Importance,
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(r.UpdatedAt).UTC(),
		AccessCount: r.AccessCount,
		Metadata: model.Metadata{
			Source:       r.Metadata.Source,
			Tags:         r.Metadata.Tags,
			RelatedFiles: r.Metadata.RelatedFiles,
			SessionID:    r.Metadata.SessionID,
		},
	}
	if r.LastAccessedAt != nil {
		t := time.UnixMilli(*r.LastAccessedAt).UTC()
		m.LastAccessedAt = &t
	}
	if r.Metadata.ExpiresAt != nil {
		t := time.UnixMilli(*r.Metadata.ExpiresAt).UTC()
		m.Metadata.ExpiresAt = &t
	}
	return m
}

// encodeVector serializes v as little-endian float32s.
func encodeVector(v embedding.Vector) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) (embedding.Vector, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty embedding blob")
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make(embedding.Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
