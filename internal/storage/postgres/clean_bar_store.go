package postgres

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// CleanBarStore implements storage.CleanBarStore using PostgreSQL.
type CleanBarStore struct {
	acc    storage.Accessor
	schema string
}

// NewCleanBarStore creates a new CleanBarStore over the given schema.
func NewCleanBarStore(acc storage.Accessor, schema string) *CleanBarStore {
	return &CleanBarStore{acc: acc, schema: schema}
}

// Compile-time interface check.
var _ storage.CleanBarStore = (*CleanBarStore)(nil)

func (s *CleanBarStore) table() string { return qualified(s.schema, "clean_daily_bars") }

// Upsert writes bars keyed by (ts_code, trade_date). The DO UPDATE guard
// skips rows whose incoming values match the stored row, so replays report
// all rows unchanged. (xmax = 0) distinguishes inserts from updates.
func (s *CleanBarStore) Upsert(ctx context.Context, bars []*domain.CleanBar) (storage.UpsertResult, error) {
	var result storage.UpsertResult
	if len(bars) == 0 {
		return result, nil
	}

	tx, err := s.acc.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s AS t (
			ts_code, trade_date, open, high, low, close, pre_close, volume, amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ts_code, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			pre_close = EXCLUDED.pre_close,
			volume = EXCLUDED.volume,
			amount = EXCLUDED.amount
		WHERE (t.open, t.high, t.low, t.close, t.pre_close, t.volume, t.amount)
		      IS DISTINCT FROM
		      (EXCLUDED.open, EXCLUDED.high, EXCLUDED.low, EXCLUDED.close, EXCLUDED.pre_close, EXCLUDED.volume, EXCLUDED.amount)
		RETURNING (xmax = 0) AS inserted
	`, s.table())

	for _, b := range bars {
		rows, err := tx.Query(ctx, query,
			b.TSCode, b.TradeDate,
			b.Open, b.High, b.Low, b.Close, b.PreClose, b.Volume, b.Amount,
		)
		if err != nil {
			return storage.UpsertResult{}, fmt.Errorf("upsert clean bar: %w", err)
		}
		switch {
		case len(rows) == 0:
			result.Unchanged++
		case rowBool(rows[0], "inserted"):
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

// GetByCode retrieves bars for one code within [start, end], ordered by
// trade_date ASC.
func (s *CleanBarStore) GetByCode(ctx context.Context, code, start, end string) ([]*domain.CleanBar, error) {
	query := fmt.Sprintf(`
		SELECT ts_code, trade_date, open, high, low, close, pre_close, volume, amount
		FROM %s
		WHERE ts_code = $1
		  AND ($2 = '' OR trade_date >= $2)
		  AND ($3 = '' OR trade_date <= $3)
		ORDER BY trade_date ASC
	`, s.table())

	rows, err := s.acc.Query(ctx, query, code, start, end)
	if err != nil {
		return nil, fmt.Errorf("get clean bars by code: %w", err)
	}

	bars := make([]*domain.CleanBar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, &domain.CleanBar{
			TSCode:    rowString(r, "ts_code"),
			TradeDate: rowString(r, "trade_date"),
			Open:      rowFloat(r, "open"),
			High:      rowFloat(r, "high"),
			Low:       rowFloat(r, "low"),
			Close:     rowFloat(r, "close"),
			PreClose:  rowFloat(r, "pre_close"),
			Volume:    rowFloat(r, "volume"),
			Amount:    rowFloat(r, "amount"),
		})
	}
	return bars, nil
}

// DeleteByCodes removes all bars for the given codes.
func (s *CleanBarStore) DeleteByCodes(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE ts_code = ANY($1)`, s.table())
	n, err := s.acc.Exec(ctx, query, codes)
	if err != nil {
		return 0, fmt.Errorf("delete clean bars: %w", err)
	}
	return n, nil
}

// Count returns the total number of stored bars.
func (s *CleanBarStore) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) AS n FROM %s`, s.table())
	rows, err := s.acc.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count clean bars: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rowInt64(rows[0], "n"), nil
}
