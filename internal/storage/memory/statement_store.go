package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// StatementStore is an in-memory implementation of storage.StatementStore.
type StatementStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StatementRow
}

// NewStatementStore creates a new in-memory raw statement store.
func NewStatementStore() *StatementStore {
	return &StatementStore{
		data: make(map[string]*domain.StatementRow),
	}
}

// Compile-time interface check.
var _ storage.StatementStore = (*StatementStore)(nil)

func statementKey(r *domain.StatementRow) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", r.TSCode, r.AnnDate, r.EndDate, r.ReportType, r.IngestSeq)
}

// InsertBulk adds raw statement rows. Fails entire batch on any duplicate.
func (s *StatementStore) InsertBulk(_ context.Context, rows []*domain.StatementRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.TSCode == "" || r.AnnDate == "" || r.EndDate == "" {
			return storage.ErrInvalidInput
		}
		key := statementKey(r)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rows {
		copy := *r
		s.data[statementKey(r)] = &copy
	}
	return nil
}

// GetSince retrieves rows with ann_date > since, all rows when since is
// empty, in canonical order.
func (s *StatementStore) GetSince(_ context.Context, since string) ([]*domain.StatementRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.StatementRow
	for _, r := range s.data {
		if since != "" && r.AnnDate <= since {
			continue
		}
		copy := *r
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TSCode != b.TSCode {
			return a.TSCode < b.TSCode
		}
		if a.EndDate != b.EndDate {
			return a.EndDate < b.EndDate
		}
		if a.ReportType != b.ReportType {
			return a.ReportType < b.ReportType
		}
		if a.AnnDate != b.AnnDate {
			return a.AnnDate < b.AnnDate
		}
		return a.IngestSeq < b.IngestSeq
	})
	return out, nil
}

// MaxAnnDate returns the latest ann_date present, "" when empty.
func (s *StatementStore) MaxAnnDate(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max string
	for _, r := range s.data {
		if r.AnnDate > max {
			max = r.AnnDate
		}
	}
	return max, nil
}
