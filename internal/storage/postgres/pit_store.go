package postgres

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// PITStore implements storage.PITStore using PostgreSQL.
type PITStore struct {
	acc    storage.Accessor
	schema string
}

// NewPITStore creates a new PITStore over the given schema.
func NewPITStore(acc storage.Accessor, schema string) *PITStore {
	return &PITStore{acc: acc, schema: schema}
}

// Compile-time interface check.
var _ storage.PITStore = (*PITStore)(nil)

func (s *PITStore) table() string { return qualified(s.schema, "pit_statements") }

// Upsert writes rows keyed by (ts_code, end_date, report_type). The guard
// lets only a later or equal (ann_date, update_flag) replace a stored row,
// and skips value-identical replays, keeping the write idempotent.
func (s *PITStore) Upsert(ctx context.Context, rows []*domain.PITStatement) (storage.UpsertResult, error) {
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
		INSERT INTO %s AS t (
			ts_code, end_date, report_type, ann_date,
			revenue, net_profit, total_assets, total_equity, update_flag
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ts_code, end_date, report_type) DO UPDATE SET
			ann_date = EXCLUDED.ann_date,
			revenue = EXCLUDED.revenue,
			net_profit = EXCLUDED.net_profit,
			total_assets = EXCLUDED.total_assets,
			total_equity = EXCLUDED.total_equity,
			update_flag = EXCLUDED.update_flag
		WHERE (EXCLUDED.ann_date, EXCLUDED.update_flag) >= (t.ann_date, t.update_flag)
		  AND (t.ann_date, t.revenue, t.net_profit, t.total_assets, t.total_equity, t.update_flag)
		      IS DISTINCT FROM
		      (EXCLUDED.ann_date, EXCLUDED.revenue, EXCLUDED.net_profit, EXCLUDED.total_assets, EXCLUDED.total_equity, EXCLUDED.update_flag)
		RETURNING (xmax = 0) AS inserted
	`, s.table())

	for _, row := range rows {
		returned, err := tx.Query(ctx, query,
			row.TSCode, row.EndDate, row.ReportType, row.AnnDate,
			row.Revenue, row.NetProfit, row.TotalAssets, row.TotalEquity, row.UpdateFlag,
		)
		if err != nil {
			return storage.UpsertResult{}, fmt.Errorf("upsert pit statement: %w", err)
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

// GetByCode retrieves all rows for one code, ordered by
// (end_date, report_type) ASC.
func (s *PITStore) GetByCode(ctx context.Context, code string) ([]*domain.PITStatement, error) {
	query := fmt.Sprintf(`
		SELECT ts_code, end_date, report_type, ann_date,
		       revenue, net_profit, total_assets, total_equity, update_flag
		FROM %s
		WHERE ts_code = $1
		ORDER BY end_date ASC, report_type ASC
	`, s.table())

	rows, err := s.acc.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("get pit statements by code: %w", err)
	}

	out := make([]*domain.PITStatement, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.PITStatement{
			TSCode:      rowString(r, "ts_code"),
			EndDate:     rowString(r, "end_date"),
			ReportType:  rowString(r, "report_type"),
			AnnDate:     rowString(r, "ann_date"),
			Revenue:     rowFloatPtr(r, "revenue"),
			NetProfit:   rowFloatPtr(r, "net_profit"),
			TotalAssets: rowFloatPtr(r, "total_assets"),
			TotalEquity: rowFloatPtr(r, "total_equity"),
			UpdateFlag:  int(rowInt64(r, "update_flag")),
		})
	}
	return out, nil
}

// DeleteAll removes every row.
func (s *PITStore) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.acc.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table()))
	if err != nil {
		return 0, fmt.Errorf("delete pit statements: %w", err)
	}
	return n, nil
}

// Count returns the total number of stored rows.
func (s *PITStore) Count(ctx context.Context) (int64, error) {
	rows, err := s.acc.Query(ctx, fmt.Sprintf(`SELECT COUNT(*) AS n FROM %s`, s.table()))
	if err != nil {
		return 0, fmt.Errorf("count pit statements: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rowInt64(rows[0], "n"), nil
}
