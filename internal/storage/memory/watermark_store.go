package memory

import (
	"context"
	"fmt"
	"sync"

	"ashare-data-lab/internal/storage"
)

// WatermarkStore is an in-memory implementation of storage.WatermarkStore.
type WatermarkStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewWatermarkStore creates a new in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{
		data: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.WatermarkStore = (*WatermarkStore)(nil)

func watermarkKey(domainName, table string) string {
	return fmt.Sprintf("%s|%s", domainName, table)
}

// Get returns the stored watermark, "" when none has been set.
func (s *WatermarkStore) Get(_ context.Context, domainName, table string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[watermarkKey(domainName, table)], nil
}

// Set stores the watermark, overwriting any previous value.
func (s *WatermarkStore) Set(_ context.Context, domainName, table, mark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[watermarkKey(domainName, table)] = mark
	return nil
}
