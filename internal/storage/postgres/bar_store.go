package postgres

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// BarStore implements storage.BarStore using PostgreSQL.
type BarStore struct {
	acc    storage.Accessor
	schema string
}

// NewBarStore creates a new BarStore over the given schema.
func NewBarStore(acc storage.Accessor, schema string) *BarStore {
	return &BarStore{acc: acc, schema: schema}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

func (s *BarStore) table() string { return qualified(s.schema, "raw_daily_bars") }

// InsertBulk adds raw bars. Returns ErrDuplicateKey on a key collision.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.acc.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (
			ts_code, trade_date, open, high, low, close, pre_close, volume, amount, ingest_seq
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.table())

	for _, b := range bars {
		_, err := tx.Exec(ctx, query,
			b.TSCode,
			b.TradeDate,
			b.Open,
			b.High,
			b.Low,
			b.Close,
			b.PreClose,
			b.Volume,
			b.Amount,
			b.IngestSeq,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert raw bar: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByCodes retrieves raw bars for the given codes within [start, end].
func (s *BarStore) GetByCodes(ctx context.Context, codes []string, start, end string) ([]*domain.DailyBar, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT ts_code, trade_date, open, high, low, close, pre_close, volume, amount, ingest_seq
		FROM %s
		WHERE ts_code = ANY($1)
		  AND ($2 = '' OR trade_date >= $2)
		  AND ($3 = '' OR trade_date <= $3)
		ORDER BY ts_code ASC, trade_date ASC, ingest_seq ASC
	`, s.table())

	rows, err := s.acc.Query(ctx, query, codes, start, end)
	if err != nil {
		return nil, fmt.Errorf("get raw bars by codes: %w", err)
	}

	return scanDailyBars(rows), nil
}

// ListCodes returns distinct codes having bars newer than since.
func (s *BarStore) ListCodes(ctx context.Context, since string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ts_code
		FROM %s
		WHERE $1 = '' OR trade_date > $1
		ORDER BY ts_code ASC
	`, s.table())

	rows, err := s.acc.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list raw bar codes: %w", err)
	}

	codes := make([]string, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, rowString(r, "ts_code"))
	}
	return codes, nil
}

// MaxTradeDate returns the latest trade_date present, "" when empty.
func (s *BarStore) MaxTradeDate(ctx context.Context) (string, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(trade_date), '') AS max_date FROM %s`, s.table())

	rows, err := s.acc.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("max trade date: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rowString(rows[0], "max_date"), nil
}

func scanDailyBars(rows []storage.Row) []*domain.DailyBar {
	bars := make([]*domain.DailyBar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, &domain.DailyBar{
			TSCode:    rowString(r, "ts_code"),
			TradeDate: rowString(r, "trade_date"),
			Open:      rowFloatPtr(r, "open"),
			High:      rowFloatPtr(r, "high"),
			Low:       rowFloatPtr(r, "low"),
			Close:     rowFloatPtr(r, "close"),
			PreClose:  rowFloatPtr(r, "pre_close"),
			Volume:    rowFloatPtr(r, "volume"),
			Amount:    rowFloatPtr(r, "amount"),
			IngestSeq: rowInt64(r, "ingest_seq"),
		})
	}
	return bars
}
