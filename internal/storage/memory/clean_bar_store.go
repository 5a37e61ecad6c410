package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// CleanBarStore is an in-memory implementation of storage.CleanBarStore.
type CleanBarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CleanBar
}

// NewCleanBarStore creates a new in-memory clean bar store.
func NewCleanBarStore() *CleanBarStore {
	return &CleanBarStore{
		data: make(map[string]*domain.CleanBar),
	}
}

// Compile-time interface check.
var _ storage.CleanBarStore = (*CleanBarStore)(nil)

func cleanBarKey(tsCode, tradeDate string) string {
	return fmt.Sprintf("%s|%s", tsCode, tradeDate)
}

// Upsert writes bars keyed by (ts_code, trade_date). Value-identical rows
// count as unchanged, mirroring the guarded SQL upsert.
func (s *CleanBarStore) Upsert(_ context.Context, bars []*domain.CleanBar) (storage.UpsertResult, error) {
	var result storage.UpsertResult

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		if b == nil || b.TSCode == "" || b.TradeDate == "" {
			return storage.UpsertResult{}, storage.ErrInvalidInput
		}
		key := cleanBarKey(b.TSCode, b.TradeDate)
		existing, exists := s.data[key]
		switch {
		case !exists:
			result.Inserted++
		case *existing == *b:
			result.Unchanged++
			continue
		default:
			result.Updated++
		}
		copy := *b
		s.data[key] = &copy
	}
	return result, nil
}

// GetByCode retrieves bars for one code within [start, end], ordered by
// trade_date ASC.
func (s *CleanBarStore) GetByCode(_ context.Context, code, start, end string) ([]*domain.CleanBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CleanBar
	for _, b := range s.data {
		if b.TSCode != code {
			continue
		}
		if start != "" && b.TradeDate < start {
			continue
		}
		if end != "" && b.TradeDate > end {
			continue
		}
		copy := *b
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TradeDate < out[j].TradeDate
	})
	return out, nil
}

// DeleteByCodes removes all bars for the given codes.
func (s *CleanBarStore) DeleteByCodes(_ context.Context, codes []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[c] = struct{}{}
	}

	var n int64
	for key, b := range s.data {
		if _, ok := wanted[b.TSCode]; ok {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

// Count returns the total number of stored bars.
func (s *CleanBarStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}
