package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// KeepAccessCount is the access count at which a memory is never swept.
const KeepAccessCount = 3

// ShouldRetire reports whether m is eligible for deletion: low importance,
// older than maxAge, and rarely accessed. All three must hold.
func ShouldRetire(m model.Memory, minImportance float64, maxAge time.Duration, now time.Time) bool {
	return m.Importance < minImportance &&
		now.Sub(m.CreatedAt) > maxAge &&
		m.AccessCount < KeepAccessCount
}

// Cleanup deletes retired memories from both scopes and returns how many
// were deleted. Individual failures do not stop the sweep; they are joined
// into the returned error alongside the count.
func (s *Service) Cleanup(ctx context.Context, minImportance float64, maxAgeDays int) (int, error) {
	now := s.now()
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour

	deleted := 0
	var errs []error
	for _, scope := range model.ScopeBoth.Scopes() {
		memories, err := s.store.ListMemories(ctx, store.ListParams{Scope: scope})
		if err != nil {
			s.logger.Warn("cleanup list failed", "component", "memory", "scope", scope, "error", err)
			errs = append(errs, fmt.Errorf("list %s: %w", scope, err))
			continue
		}
		for _, m := range memories {
			if !ShouldRetire(m, minImportance, maxAge, now) {
				continue
			}
			if err := s.store.DeleteMemory(ctx, scope, m.ID); err != nil {
				s.logger.Warn("cleanup delete failed", "component", "memory", "id", m.ID, "error", err)
				errs = append(errs, fmt.Errorf("delete %s: %w", m.ID, err))
				continue
			}
			deleted++
		}
	}

	s.logger.Info("cleanup finished", "component", "memory", "deleted", deleted, "failures", len(errs))
	return deleted, errors.Join(errs...)
}
