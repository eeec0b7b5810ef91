package store

import (
	"context"

	"github.com/rcliao/agent-context/internal/model"
)

// ExportAll returns every memory in both scopes, oldest first. Embeddings
// are not exported; importers re-embed the content.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.Memory, error) {
	var memories []model.Memory
	for _, table := range []string{"global_memories", "project_memories"} {
		ms, err := s.queryDocs(ctx, `SELECT doc FROM `+table+` ORDER BY key`)
		if err != nil {
			return nil, err
		}
		memories = append(memories, ms...)
	}
	return memories, nil
}
