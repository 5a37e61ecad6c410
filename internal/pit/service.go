// Package pit implements the point-in-time statement domain: for every
// reporting period of every instrument it maintains the statement row as it
// was known after the latest announcement, so downstream consumers can query
// fundamentals without look-ahead bias.
package pit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/storage"
)

const (
	// DomainName keys the registry and the watermark rows.
	DomainName = "pit"

	// DefaultSchema is the namespace the service owns.
	DefaultSchema = "pit"

	// watermarkTable names the upstream table the watermark tracks.
	watermarkTable = "raw_statements"
)

// DataService governs the pit domain.
type DataService struct {
	cfg        dataservice.Config
	acc        storage.Accessor // nil when structure is managed elsewhere
	statements storage.StatementStore
	pit        storage.PITStore
	watermarks storage.WatermarkStore
	metrics    *observability.Metrics
}

var _ dataservice.Service = (*DataService)(nil)

// New creates the pit domain service. acc may be nil when the backing
// stores are not relational (fixture mode).
func New(cfg dataservice.Config, acc storage.Accessor, statements storage.StatementStore, pit storage.PITStore, watermarks storage.WatermarkStore) *DataService {
	return &DataService{
		cfg:        cfg.Normalize(DefaultSchema),
		acc:        acc,
		statements: statements,
		pit:        pit,
		watermarks: watermarks,
	}
}

// WithMetrics adds observability metrics.
func (s *DataService) WithMetrics(m *observability.Metrics) *DataService {
	s.metrics = m
	return s
}

// Name implements dataservice.Service.
func (s *DataService) Name() string { return DomainName }

// periodKey identifies one reporting period of one instrument.
type periodKey struct {
	tsCode     string
	endDate    string
	reportType string
}

// Reconstruct picks the winning announcement per reporting period: the
// latest ann_date wins, ties broken by update_flag (restated over original)
// and then ingest order. Input order does not matter. Output is sorted by
// (ts_code, end_date, report_type).
func Reconstruct(rows []*domain.StatementRow, filter []string) []*domain.PITStatement {
	var want map[string]bool
	if len(filter) > 0 {
		want = make(map[string]bool, len(filter))
		for _, f := range filter {
			want[f] = true
		}
	}

	winners := make(map[periodKey]*domain.StatementRow)
	for _, r := range rows {
		if r.TSCode == "" || r.EndDate == "" || r.ReportType == "" {
			continue
		}
		if want != nil && !want[r.TSCode] {
			continue
		}
		key := periodKey{r.TSCode, r.EndDate, r.ReportType}
		cur, ok := winners[key]
		if !ok || announcedAfter(r, cur) {
			winners[key] = r
		}
	}

	out := make([]*domain.PITStatement, 0, len(winners))
	for _, w := range winners {
		out = append(out, &domain.PITStatement{
			TSCode:      w.TSCode,
			EndDate:     w.EndDate,
			ReportType:  w.ReportType,
			AnnDate:     w.AnnDate,
			Revenue:     w.Revenue,
			NetProfit:   w.NetProfit,
			TotalAssets: w.TotalAssets,
			TotalEquity: w.TotalEquity,
			UpdateFlag:  w.UpdateFlag,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TSCode != b.TSCode {
			return a.TSCode < b.TSCode
		}
		if a.EndDate != b.EndDate {
			return a.EndDate < b.EndDate
		}
		return a.ReportType < b.ReportType
	})
	return out
}

func announcedAfter(a, b *domain.StatementRow) bool {
	if a.AnnDate != b.AnnDate {
		return a.AnnDate > b.AnnDate
	}
	if a.UpdateFlag != b.UpdateFlag {
		return a.UpdateFlag > b.UpdateFlag
	}
	return a.IngestSeq > b.IngestSeq
}

// FullRebuild recomputes pit_statements from the full raw announcement
// history. Writes go through the guarded upsert in BatchSize batches, so a
// re-run after a partial failure repairs state instead of corrupting it.
func (s *DataService) FullRebuild(ctx context.Context, opts dataservice.RebuildOptions) (*domain.RunResult, error) {
	start := time.Now()
	res := &domain.RunResult{Domain: DomainName, Operation: "full_rebuild"}

	raw, err := s.statements.GetSince(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetch raw statements: %w", err)
	}
	winners := Reconstruct(filterByDate(raw, opts.StartDate, opts.EndDate), opts.TSCodes)
	if len(winners) == 0 {
		res.Status = domain.StatusSkipped
		res.Detail = "no raw statements to rebuild from"
		res.Elapsed = time.Since(start)
		return res, nil
	}

	// An unnarrowed rebuild recomputes everything, so rows from deleted
	// upstream announcements must not survive it.
	if len(opts.TSCodes) == 0 && opts.StartDate == "" && opts.EndDate == "" {
		if _, err := s.pit.DeleteAll(ctx); err != nil {
			return nil, fmt.Errorf("clear pit statements for rebuild: %w", err)
		}
	}

	if err := s.upsertBatched(ctx, winners, res); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	res.Status = domain.StatusSuccess
	if len(opts.TSCodes) == 0 && opts.EndDate == "" {
		if err := s.advanceWatermark(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// IncrementalUpdate applies announcements newer than the watermark. The
// upsert's (ann_date, update_flag) guard makes replays no-ops: a second
// call with no new announcements reports skipped and writes nothing.
func (s *DataService) IncrementalUpdate(ctx context.Context, opts dataservice.UpdateOptions) (*domain.RunResult, error) {
	start := time.Now()
	res := &domain.RunResult{Domain: DomainName, Operation: "incremental_update"}

	since := opts.Since
	if since == "" {
		var err error
		since, err = s.watermarks.Get(ctx, DomainName, watermarkTable)
		if err != nil {
			return nil, fmt.Errorf("read watermark: %w", err)
		}
	}

	raw, err := s.statements.GetSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetch raw statements: %w", err)
	}
	winners := Reconstruct(raw, opts.TSCodes)
	if len(winners) == 0 {
		res.Status = domain.StatusSkipped
		res.Detail = "no announcements newer than watermark"
		res.Elapsed = time.Since(start)
		return res, nil
	}

	if err := s.upsertBatched(ctx, winners, res); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	if res.RowsInserted+res.RowsUpdated == 0 {
		res.Status = domain.StatusSkipped
		res.Detail = "all announcements already applied"
	} else {
		res.Status = domain.StatusSuccess
	}
	// A narrowed update leaves the watermark alone so codes outside the
	// subset are not skipped next time.
	if len(opts.TSCodes) == 0 {
		if err := s.advanceWatermark(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *DataService) upsertBatched(ctx context.Context, rows []*domain.PITStatement, res *domain.RunResult) error {
	for len(rows) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pit write cancelled: %w", err)
		}
		n := s.cfg.BatchSize
		if n > len(rows) {
			n = len(rows)
		}
		result, err := s.pit.Upsert(ctx, rows[:n])
		if err != nil {
			return fmt.Errorf("upsert pit statements: %w", err)
		}
		res.RowsInserted += result.Inserted
		res.RowsUpdated += result.Updated
		res.RowsUnchanged += result.Unchanged
		s.metrics.ObserveUpsert("pit_statements", result.Inserted, result.Updated, result.Unchanged)
		rows = rows[n:]
	}
	return nil
}

func (s *DataService) advanceWatermark(ctx context.Context) error {
	mark, err := s.statements.MaxAnnDate(ctx)
	if err != nil {
		return fmt.Errorf("read max ann date: %w", err)
	}
	if mark == "" {
		return nil
	}
	if err := s.watermarks.Set(ctx, DomainName, watermarkTable, mark); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

func filterByDate(rows []*domain.StatementRow, start, end string) []*domain.StatementRow {
	if start == "" && end == "" {
		return rows
	}
	var out []*domain.StatementRow
	for _, r := range rows {
		if start != "" && r.EndDate < start {
			continue
		}
		if end != "" && r.EndDate > end {
			continue
		}
		out = append(out, r)
	}
	return out
}
