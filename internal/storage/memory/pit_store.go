package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// PITStore is an in-memory implementation of storage.PITStore.
type PITStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PITStatement
}

// NewPITStore creates a new in-memory point-in-time statement store.
func NewPITStore() *PITStore {
	return &PITStore{
		data: make(map[string]*domain.PITStatement),
	}
}

// Compile-time interface check.
var _ storage.PITStore = (*PITStore)(nil)

func pitKey(tsCode, endDate, reportType string) string {
	return fmt.Sprintf("%s|%s|%s", tsCode, endDate, reportType)
}

func pitEqual(a, b *domain.PITStatement) bool {
	return a.AnnDate == b.AnnDate &&
		a.UpdateFlag == b.UpdateFlag &&
		floatPtrEqual(a.Revenue, b.Revenue) &&
		floatPtrEqual(a.NetProfit, b.NetProfit) &&
		floatPtrEqual(a.TotalAssets, b.TotalAssets) &&
		floatPtrEqual(a.TotalEquity, b.TotalEquity)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Upsert writes rows keyed by (ts_code, end_date, report_type). A stored
// row is replaced only by a later-or-equal (ann_date, update_flag); stale
// replays and value-identical rows count as unchanged.
func (s *PITStore) Upsert(_ context.Context, rows []*domain.PITStatement) (storage.UpsertResult, error) {
	var result storage.UpsertResult

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil || r.TSCode == "" || r.EndDate == "" || r.AnnDate == "" {
			return storage.UpsertResult{}, storage.ErrInvalidInput
		}
		key := pitKey(r.TSCode, r.EndDate, r.ReportType)
		existing, exists := s.data[key]
		switch {
		case !exists:
			result.Inserted++
		case r.AnnDate < existing.AnnDate,
			r.AnnDate == existing.AnnDate && r.UpdateFlag < existing.UpdateFlag,
			pitEqual(existing, r):
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

// GetByCode retrieves all rows for one code, ordered by
// (end_date, report_type) ASC.
func (s *PITStore) GetByCode(_ context.Context, code string) ([]*domain.PITStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PITStatement
	for _, r := range s.data {
		if r.TSCode != code {
			continue
		}
		copy := *r
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndDate != out[j].EndDate {
			return out[i].EndDate < out[j].EndDate
		}
		return out[i].ReportType < out[j].ReportType
	})
	return out, nil
}

// DeleteAll removes every row.
func (s *PITStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.data))
	s.data = make(map[string]*domain.PITStatement)
	return n, nil
}

// Count returns the total number of stored rows.
func (s *PITStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}
