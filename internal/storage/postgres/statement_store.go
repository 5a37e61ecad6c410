package postgres

import (
	"context"
	"fmt"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/storage"
)

// StatementStore implements storage.StatementStore using PostgreSQL.
type StatementStore struct {
	acc    storage.Accessor
	schema string
}

// NewStatementStore creates a new StatementStore over the given schema.
func NewStatementStore(acc storage.Accessor, schema string) *StatementStore {
	return &StatementStore{acc: acc, schema: schema}
}

// Compile-time interface check.
var _ storage.StatementStore = (*StatementStore)(nil)

func (s *StatementStore) table() string { return qualified(s.schema, "raw_statements") }

// InsertBulk adds raw statement rows.
func (s *StatementStore) InsertBulk(ctx context.Context, stmts []*domain.StatementRow) error {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := s.acc.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (
			ts_code, ann_date, end_date, report_type,
			revenue, net_profit, total_assets, total_equity, update_flag, ingest_seq
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.table())

	for _, row := range stmts {
		_, err := tx.Exec(ctx, query,
			row.TSCode,
			row.AnnDate,
			row.EndDate,
			row.ReportType,
			row.Revenue,
			row.NetProfit,
			row.TotalAssets,
			row.TotalEquity,
			row.UpdateFlag,
			row.IngestSeq,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert raw statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetSince retrieves rows with ann_date > since, all rows when since is empty.
func (s *StatementStore) GetSince(ctx context.Context, since string) ([]*domain.StatementRow, error) {
	query := fmt.Sprintf(`
		SELECT ts_code, ann_date, end_date, report_type,
		       revenue, net_profit, total_assets, total_equity, update_flag, ingest_seq
		FROM %s
		WHERE $1 = '' OR ann_date > $1
		ORDER BY ts_code ASC, end_date ASC, report_type ASC, ann_date ASC, ingest_seq ASC
	`, s.table())

	rows, err := s.acc.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get raw statements since: %w", err)
	}

	stmts := make([]*domain.StatementRow, 0, len(rows))
	for _, r := range rows {
		stmts = append(stmts, &domain.StatementRow{
			TSCode:      rowString(r, "ts_code"),
			AnnDate:     rowString(r, "ann_date"),
			EndDate:     rowString(r, "end_date"),
			ReportType:  rowString(r, "report_type"),
			Revenue:     rowFloatPtr(r, "revenue"),
			NetProfit:   rowFloatPtr(r, "net_profit"),
			TotalAssets: rowFloatPtr(r, "total_assets"),
			TotalEquity: rowFloatPtr(r, "total_equity"),
			UpdateFlag:  int(rowInt64(r, "update_flag")),
			IngestSeq:   rowInt64(r, "ingest_seq"),
		})
	}
	return stmts, nil
}

// MaxAnnDate returns the latest ann_date present, "" when empty.
func (s *StatementStore) MaxAnnDate(ctx context.Context) (string, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(ann_date), '') AS max_date FROM %s`, s.table())

	rows, err := s.acc.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("max ann date: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rowString(rows[0], "max_date"), nil
}
