package postgres

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// FeatureStore implements storage.FeatureStore using PostgreSQL.
type FeatureStore struct {
	acc    storage.Accessor
	schema string
}

// NewFeatureStore creates a new FeatureStore over the given schema.
func NewFeatureStore(acc storage.Accessor, schema string) *FeatureStore {
	return &FeatureStore{acc: acc, schema: schema}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

func (s *FeatureStore) table() string { return qualified(s.schema, "daily_features") }

// Upsert writes rows keyed by (ts_code, trade_date, feature).
func (s *FeatureStore) Upsert(ctx context.Context, rows []*domain.FeatureRow) (storage.UpsertResult, error) {
	var result storage.UpsertResult
	if len(rows) == 0 {
		return result, nil
	}

	tx, err := s.acc.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s AS t (ts_code, trade_date, feature, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ts_code, trade_date, feature) DO UPDATE SET
			value = EXCLUDED.value
		WHERE t.value IS DISTINCT FROM EXCLUDED.value
		RETURNING (xmax = 0) AS inserted
	`, s.table())

	for _, row := range rows {
		returned, err := tx.Query(ctx, query, row.TSCode, row.TradeDate, row.Feature, row.Value)
		if err != nil {
			return storage.UpsertResult{}, fmt.Errorf("upsert feature row: %w", err)
		}
		switch {
		case len(returned) == 0:
			result.Unchanged++
		case rowBool(returned[0], "inserted"):
			result.Inserted++
		default:
			result.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.UpsertResult{}, fmt.Errorf("commit tx: %w", err)
	}

	return result, nil
}

// GetByCode retrieves rows for one code within [start, end], ordered by
// (trade_date, feature) ASC.
func (s *FeatureStore) GetByCode(ctx context.Context, code, start, end string) ([]*domain.FeatureRow, error) {
	query := fmt.Sprintf(`
		SELECT ts_code, trade_date, feature, value
		FROM %s
		WHERE ts_code = $1
		  AND ($2 = '' OR trade_date >= $2)
		  AND ($3 = '' OR trade_date <= $3)
		ORDER BY trade_date ASC, feature ASC
	`, s.table())

	rows, err := s.acc.Query(ctx, query, code, start, end)
	if err != nil {
		return nil, fmt.Errorf("get features by code: %w", err)
	}

	out := make([]*domain.FeatureRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.FeatureRow{
			TSCode:    rowString(r, "ts_code"),
			TradeDate: rowString(r, "trade_date"),
			Feature:   rowString(r, "feature"),
			Value:     rowFloatPtr(r, "value"),
		})
	}
	return out, nil
}

// DeleteByCodes removes all rows for the given codes.
func (s *FeatureStore) DeleteByCodes(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE ts_code = ANY($1)`, s.table())
	n, err := s.acc.Exec(ctx, query, codes)
	if err != nil {
		return 0, fmt.Errorf("delete features: %w", err)
	}
	return n, nil
}

// ListFeatureNames returns the distinct feature names present, sorted.
func (s *FeatureStore) ListFeatureNames(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT feature FROM %s ORDER BY feature ASC`, s.table())

	rows, err := s.acc.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list feature names: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, rowString(r, "feature"))
	}
	return names, nil
}
