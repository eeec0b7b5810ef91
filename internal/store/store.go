// Package store provides the memory storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

// ErrNotFound is returned when a memory, blob or meta key does not exist.
var ErrNotFound = errors.New("store: not found")

// ListParams holds parameters for listing memories.
type ListParams struct {
	Scope       model.Scope // global or project; both lists the two collections
	ProjectPath string      // filters project memories; empty matches every project
	Category    model.Category
	Limit       int // 0 means no limit
}

// Store defines the memory storage interface.
type Store interface {
	// GetMeta returns the value stored under key, or ErrNotFound.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// PutBlob writes data under key, recomputing size and hash.
	PutBlob(ctx context.Context, key string, data []byte, mime string) (*model.BlobMeta, error)
	GetBlob(ctx context.Context, key string) ([]byte, *model.BlobMeta, error)
	StatBlob(ctx context.Context, key string) (*model.BlobMeta, error)
	DeleteBlob(ctx context.Context, key string) error

	// PutMemory stores a memory and its embedding atomically. An empty ID
	// is replaced with a newly generated one.
	PutMemory(ctx context.Context, m *model.Memory, vec embedding.Vector) error

	// GetMemory retrieves one memory from the given scope's collection.
	GetMemory(ctx context.Context, scope model.Scope, id string) (*model.Memory, error)

	// DeleteMemory removes a memory and its embedding blob in one transaction.
	DeleteMemory(ctx context.Context, scope model.Scope, id string) error

	// ListMemories lists memories matching the given filters, newest first.
	ListMemories(ctx context.Context, p ListParams) ([]model.Memory, error)

	// CountMemories counts memories in a scope, optionally for one project.
	CountMemories(ctx context.Context, scope model.Scope, projectPath string) (int, error)

	// TouchMemory increments the access count and sets the last access time.
	TouchMemory(ctx context.Context, scope model.Scope, id string, at time.Time) error

	// Embeddings returns the embeddings of every memory in a scope keyed by
	// memory ID. Unreadable blobs are skipped and reported in warnings.
	Embeddings(ctx context.Context, scope model.Scope, projectPath string) (map[string]embedding.Vector, []string, error)

	// Close closes the store.
	Close() error
}
