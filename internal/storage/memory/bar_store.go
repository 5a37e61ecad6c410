package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DailyBar // keyed by composite key
}

// NewBarStore creates a new in-memory raw bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]*domain.DailyBar),
	}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// barKey generates a unique key for a raw bar row.
func barKey(tsCode, tradeDate string, ingestSeq int64) string {
	return fmt.Sprintf("%s|%s|%d", tsCode, tradeDate, ingestSeq)
}

// InsertBulk adds raw bars. Fails entire batch on any duplicate.
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.TSCode == "" || b.TradeDate == "" {
			return storage.ErrInvalidInput
		}
		key := barKey(b.TSCode, b.TradeDate, b.IngestSeq)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, b := range bars {
		copy := *b
		s.data[barKey(b.TSCode, b.TradeDate, b.IngestSeq)] = &copy
	}
	return nil
}

// GetByCodes retrieves raw bars for the given codes within [start, end],
// ordered by (ts_code, trade_date, ingest_seq) ASC.
func (s *BarStore) GetByCodes(_ context.Context, codes []string, start, end string) ([]*domain.DailyBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[c] = struct{}{}
	}

	var out []*domain.DailyBar
	for _, b := range s.data {
		if _, ok := wanted[b.TSCode]; !ok {
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
		if out[i].TSCode != out[j].TSCode {
			return out[i].TSCode < out[j].TSCode
		}
		if out[i].TradeDate != out[j].TradeDate {
			return out[i].TradeDate < out[j].TradeDate
		}
		return out[i].IngestSeq < out[j].IngestSeq
	})
	return out, nil
}

// ListCodes returns distinct codes having bars newer than since, sorted ASC.
func (s *BarStore) ListCodes(_ context.Context, since string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, b := range s.data {
		if since != "" && b.TradeDate <= since {
			continue
		}
		seen[b.TSCode] = struct{}{}
	}

	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

// MaxTradeDate returns the latest trade_date present, "" when empty.
func (s *BarStore) MaxTradeDate(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max string
	for _, b := range s.data {
		if b.TradeDate > max {
			max = b.TradeDate
		}
	}
	return max, nil
}
