package postgres

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/storage"
)

// WatermarkStore implements storage.WatermarkStore using PostgreSQL.
type WatermarkStore struct {
	acc    storage.Accessor
	schema string
}

// NewWatermarkStore creates a new WatermarkStore over the given schema.
func NewWatermarkStore(acc storage.Accessor, schema string) *WatermarkStore {
	return &WatermarkStore{acc: acc, schema: schema}
}

// Compile-time interface check.
var _ storage.WatermarkStore = (*WatermarkStore)(nil)

func (s *WatermarkStore) table() string { return qualified(s.schema, "datahub_watermarks") }

// Get returns the stored watermark, "" when none has been set.
func (s *WatermarkStore) Get(ctx context.Context, domainName, table string) (string, error) {
	query := fmt.Sprintf(`
		SELECT mark FROM %s WHERE domain = $1 AND table_name = $2
	`, s.table())

	rows, err := s.acc.Query(ctx, query, domainName, table)
	if err != nil {
		return "", fmt.Errorf("get watermark: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rowString(rows[0], "mark"), nil
}

// Set stores the watermark, overwriting any previous value.
func (s *WatermarkStore) Set(ctx context.Context, domainName, table, mark string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (domain, table_name, mark)
		VALUES ($1, $2, $3)
		ON CONFLICT (domain, table_name) DO UPDATE SET mark = EXCLUDED.mark
	`, s.table())

	if _, err := s.acc.Exec(ctx, query, domainName, table, mark); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}
