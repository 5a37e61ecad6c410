package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FeatureRow
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[string]*domain.FeatureRow),
	}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

func featureKey(tsCode, tradeDate, feature string) string {
	return fmt.Sprintf("%s|%s|%s", tsCode, tradeDate, feature)
}

func featureValueEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Upsert writes rows keyed by (ts_code, trade_date, feature).
func (s *FeatureStore) Upsert(_ context.Context, rows []*domain.FeatureRow) (storage.UpsertResult, error) {
	var result storage.UpsertResult

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil || r.TSCode == "" || r.TradeDate == "" || r.Feature == "" {
			return storage.UpsertResult{}, storage.ErrInvalidInput
		}
		key := featureKey(r.TSCode, r.TradeDate, r.Feature)
		existing, exists := s.data[key]
		switch {
		case !exists:
			result.Inserted++
		case featureValueEqual(existing.Value, r.Value):
			result.Unchanged++
			continue
		default:
			result.Updated++
		}
		copy := *r
		s.data[key] = &copy
	}
	return result, nil
}

// GetByCode retrieves rows for one code within [start, end], ordered by
// (trade_date, feature) ASC.
func (s *FeatureStore) GetByCode(_ context.Context, code, start, end string) ([]*domain.FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.FeatureRow
	for _, r := range s.data {
		if r.TSCode != code {
			continue
		}
		if start != "" && r.TradeDate < start {
			continue
		}
		if end != "" && r.TradeDate > end {
			continue
		}
		copy := *r
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TradeDate != out[j].TradeDate {
			return out[i].TradeDate < out[j].TradeDate
		}
		return out[i].Feature < out[j].Feature
	})
	return out, nil
}

// DeleteByCodes removes all rows for the given codes.
func (s *FeatureStore) DeleteByCodes(_ context.Context, codes []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[c] = struct{}{}
	}

	var n int64
	for key, r := range s.data {
		if _, ok := wanted[r.TSCode]; ok {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

// ListFeatureNames returns the distinct feature names present, sorted.
func (s *FeatureStore) ListFeatureNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.data {
		seen[r.Feature] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
