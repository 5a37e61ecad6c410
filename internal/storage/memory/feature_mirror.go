package memory

import (
	"context"
	"sync"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// FeatureMirror is an in-memory implementation of storage.FeatureMirror,
// append-only like the ClickHouse mirror it stands in for.
type FeatureMirror struct {
	mu   sync.RWMutex
	rows []*domain.FeatureRow
}

// NewFeatureMirror creates a new in-memory feature mirror.
func NewFeatureMirror() *FeatureMirror {
	return &FeatureMirror{}
}

// Compile-time interface check.
var _ storage.FeatureMirror = (*FeatureMirror)(nil)

// InsertBulk appends feature rows.
func (m *FeatureMirror) InsertBulk(_ context.Context, rows []*domain.FeatureRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		copy := *r
		m.rows = append(m.rows, &copy)
	}
	return nil
}

// Len returns the number of mirrored rows. Test helper.
func (m *FeatureMirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
