package techfeatures

import (
	"context"
	"fmt"
	"sort"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/storage/postgres"
)

// ownedTables maps each table the domain creates to its expected column
// set. Used both for DDL and for the shape check against existing objects.
var ownedTables = map[string][]string{
	"clean_daily_bars":   {"amount", "close", "high", "low", "open", "pre_close", "trade_date", "ts_code", "volume"},
	"daily_features":     {"feature", "trade_date", "ts_code", "value"},
	"datahub_watermarks": {"domain", "mark", "table_name"},
}

func (s *DataService) ddl() []string {
	schema := s.cfg.Schema
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.clean_daily_bars (
				ts_code    TEXT NOT NULL,
				trade_date TEXT NOT NULL,
				open       DOUBLE PRECISION NOT NULL,
				high       DOUBLE PRECISION NOT NULL,
				low        DOUBLE PRECISION NOT NULL,
				close      DOUBLE PRECISION NOT NULL,
				pre_close  DOUBLE PRECISION NOT NULL,
				volume     DOUBLE PRECISION NOT NULL,
				amount     DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (ts_code, trade_date)
			)`, schema),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS clean_daily_bars_trade_date_idx
			ON %s.clean_daily_bars (trade_date)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.daily_features (
				ts_code    TEXT NOT NULL,
				trade_date TEXT NOT NULL,
				feature    TEXT NOT NULL,
				value      DOUBLE PRECISION,
				PRIMARY KEY (ts_code, trade_date, feature)
			)`, schema),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS daily_features_feature_idx
			ON %s.daily_features (feature, trade_date)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.datahub_watermarks (
				domain     TEXT NOT NULL,
				table_name TEXT NOT NULL,
				mark       TEXT NOT NULL,
				PRIMARY KEY (domain, table_name)
			)`, schema),
	}
}

// EnsureTables idempotently provisions the features namespace: the schema,
// the owned tables and their indexes. Existing data is never altered. A
// privilege failure or an existing table with an incompatible shape returns
// a StructureError.
func (s *DataService) EnsureTables(ctx context.Context) error {
	if s.acc == nil {
		// Non-relational backing stores manage their own structure.
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

// checkShapes verifies every owned table has exactly the expected columns,
// catching pre-existing objects with conflicting definitions that CREATE
// TABLE IF NOT EXISTS silently accepts.
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
