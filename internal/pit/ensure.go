package pit

import (
	"context"
	"fmt"
	"sort"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/storage/postgres"
)

var ownedTables = map[string][]string{
	"pit_statements":     {"ann_date", "end_date", "net_profit", "report_type", "revenue", "total_assets", "total_equity", "ts_code", "update_flag"},
	"datahub_watermarks": {"domain", "mark", "table_name"},
}

func (s *DataService) ddl() []string {
	schema := s.cfg.Schema
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.pit_statements (
				ts_code      TEXT NOT NULL,
				end_date     TEXT NOT NULL,
				report_type  TEXT NOT NULL,
				ann_date     TEXT NOT NULL,
				revenue      DOUBLE PRECISION,
				net_profit   DOUBLE PRECISION,
				total_assets DOUBLE PRECISION,
				total_equity DOUBLE PRECISION,
				update_flag  INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (ts_code, end_date, report_type)
			)`, schema),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS pit_statements_ann_date_idx
			ON %s.pit_statements (ann_date)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.datahub_watermarks (
				domain     TEXT NOT NULL,
				table_name TEXT NOT NULL,
				mark       TEXT NOT NULL,
				PRIMARY KEY (domain, table_name)
			)`, schema),
	}
}

// EnsureTables idempotently provisions the pit namespace and its tables.
// Never alters existing data; a privilege failure or a conflicting existing
// object returns a StructureError.
func (s *DataService) EnsureTables(ctx context.Context) error {
	if s.acc == nil {
		return nil
	}

	if err := s.acc.EnsureSchema(ctx, s.cfg.Schema); err != nil {
		return s.structureError(s.cfg.Schema, "create schema", err)
	}
	for _, stmt := range s.ddl() {
		if _, err := s.acc.Exec(ctx, stmt); err != nil {
			return s.structureError(s.cfg.Schema, "create table", err)
		}
	}
	return s.checkShapes(ctx)
}

func (s *DataService) checkShapes(ctx context.Context) error {
	for table, want := range ownedTables {
		rows, err := s.acc.Query(ctx, `
			SELECT column_name FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2
			ORDER BY column_name ASC`, s.cfg.Schema, table)
		if err != nil {
			return fmt.Errorf("inspect table %s.%s: %w", s.cfg.Schema, table, err)
		}

		got := make([]string, 0, len(rows))
		for _, r := range rows {
			if name, ok := r["column_name"].(string); ok {
				got = append(got, name)
			}
		}
		sort.Strings(got)

		if !equalStrings(got, want) {
			return &dataservice.StructureError{
				Domain: DomainName,
				Object: s.cfg.Schema + "." + table,
				Reason: fmt.Sprintf("existing table has columns %v, expected %v", got, want),
			}
		}
	}
	return nil
}

func (s *DataService) structureError(object, action string, err error) error {
	reason := action + " failed"
	if postgres.IsPrivilegeError(err) {
		reason = action + " denied: insufficient privileges"
	}
	return &dataservice.StructureError{Domain: DomainName, Object: object, Reason: reason, Err: err}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
