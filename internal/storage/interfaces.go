package storage

import (
	"context"

	"ashare-data-lab/internal/domain"
)

// BarStore provides access to raw_daily_bars storage. The table is owned by
// the ingestion layer; this repo reads it and seeds it only in tests and
// fixture mode.
type BarStore interface {
	// InsertBulk adds raw bars. Returns ErrDuplicateKey on a
	// (ts_code, trade_date, ingest_seq) collision.
	InsertBulk(ctx context.Context, bars []*domain.DailyBar) error

	// GetByCodes retrieves raw bars for the given codes within
	// [start, end] (inclusive, YYYYMMDD; empty bound means unbounded),
	// ordered by (ts_code, trade_date, ingest_seq) ASC.
	GetByCodes(ctx context.Context, codes []string, start, end string) ([]*domain.DailyBar, error)

	// ListCodes returns distinct codes having bars with trade_date > since
	// (all codes when since is empty), sorted ASC.
	ListCodes(ctx context.Context, since string) ([]string, error)

	// MaxTradeDate returns the latest trade_date present, "" when empty.
	MaxTradeDate(ctx context.Context) (string, error)
}

// StatementStore provides access to raw_statements storage. Read-only for
// this repo outside of tests and fixture mode.
type StatementStore interface {
	// InsertBulk adds raw statement rows.
	InsertBulk(ctx context.Context, rows []*domain.StatementRow) error

	// GetSince retrieves rows with ann_date > since (all rows when since is
	// empty), ordered by (ts_code, end_date, report_type, ann_date,
	// ingest_seq) ASC.
	GetSince(ctx context.Context, since string) ([]*domain.StatementRow, error)

	// MaxAnnDate returns the latest ann_date present, "" when empty.
	MaxAnnDate(ctx context.Context) (string, error)
}

// CleanBarStore provides access to clean_daily_bars storage, owned by the
// features domain.
type CleanBarStore interface {
	// Upsert writes bars keyed by (ts_code, trade_date). Rows identical to
	// the stored values count as unchanged.
	Upsert(ctx context.Context, bars []*domain.CleanBar) (UpsertResult, error)

	// GetByCode retrieves bars for one code within [start, end], ordered by
	// trade_date ASC.
	GetByCode(ctx context.Context, code, start, end string) ([]*domain.CleanBar, error)

	// DeleteByCodes removes all bars for the given codes.
	DeleteByCodes(ctx context.Context, codes []string) (int64, error)

	// Count returns the total number of stored bars.
	Count(ctx context.Context) (int64, error)
}

// FeatureStore provides access to daily_features storage, owned by the
// features domain.
type FeatureStore interface {
	// Upsert writes rows keyed by (ts_code, trade_date, feature).
	Upsert(ctx context.Context, rows []*domain.FeatureRow) (UpsertResult, error)

	// GetByCode retrieves rows for one code within [start, end], ordered by
	// (trade_date, feature) ASC.
	GetByCode(ctx context.Context, code, start, end string) ([]*domain.FeatureRow, error)

	// DeleteByCodes removes all rows for the given codes.
	DeleteByCodes(ctx context.Context, codes []string) (int64, error)

	// ListFeatureNames returns the distinct feature names present, sorted.
	ListFeatureNames(ctx context.Context) ([]string, error)
}

// PITStore provides access to pit_statements storage, owned by the pit
// domain.
type PITStore interface {
	// Upsert writes rows keyed by (ts_code, end_date, report_type). An
	// existing row is replaced only by a row with a later or equal
	// (ann_date, update_flag); stale replays count as unchanged.
	Upsert(ctx context.Context, rows []*domain.PITStatement) (UpsertResult, error)

	// GetByCode retrieves all rows for one code, ordered by
	// (end_date, report_type) ASC.
	GetByCode(ctx context.Context, code string) ([]*domain.PITStatement, error)

	// DeleteAll removes every row. Used by full rebuild staging.
	DeleteAll(ctx context.Context) (int64, error)

	// Count returns the total number of stored rows.
	Count(ctx context.Context) (int64, error)
}

// WatermarkStore tracks the boundary between already-processed and new
// upstream data, per (domain, table).
type WatermarkStore interface {
	// Get returns the stored watermark, "" when none has been set.
	Get(ctx context.Context, domainName, table string) (string, error)

	// Set stores the watermark, overwriting any previous value.
	Set(ctx context.Context, domainName, table, mark string) error
}

// FeatureMirror receives computed feature rows for analytics storage.
// Mirroring is best-effort wiring, not part of the domain's correctness:
// a nil mirror is valid and skipped.
type FeatureMirror interface {
	// InsertBulk appends feature rows to the analytics store.
	InsertBulk(ctx context.Context, rows []*domain.FeatureRow) error
}
