package clickhouse

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// FeatureMirror implements storage.FeatureMirror using ClickHouse. Feature
// rows are appended into a ReplacingMergeTree keyed by
// (ts_code, trade_date, feature), so replayed mirrors collapse on merge.
type FeatureMirror struct {
	conn *Conn
}

// NewFeatureMirror creates a new FeatureMirror.
func NewFeatureMirror(conn *Conn) *FeatureMirror {
	return &FeatureMirror{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureMirror = (*FeatureMirror)(nil)

// InsertBulk appends feature rows to the analytics store.
func (m *FeatureMirror) InsertBulk(ctx context.Context, rows []*domain.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO feature_timeseries (ts_code, trade_date, feature, value)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		// Pass nil values directly for Nullable columns
		if err := batch.Append(r.TSCode, r.TradeDate, r.Feature, r.Value); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCode retrieves mirrored rows for one code, latest replacing version
// per key, ordered by (trade_date, feature) ASC. Used by integration tests
// and ad-hoc analytics queries.
func (m *FeatureMirror) GetByCode(ctx context.Context, code string) ([]*domain.FeatureRow, error) {
	query := `
		SELECT ts_code, trade_date, feature, value
		FROM feature_timeseries FINAL
		WHERE ts_code = ?
		ORDER BY trade_date ASC, feature ASC
	`

	rows, err := m.conn.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query feature timeseries: %w", err)
	}
	defer rows.Close()

	var out []*domain.FeatureRow
	for rows.Next() {
		var r domain.FeatureRow
		if err := rows.Scan(&r.TSCode, &r.TradeDate, &r.Feature, &r.Value); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	return out, nil
}
