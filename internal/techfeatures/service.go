// Package techfeatures implements the technical-indicator domain: it owns
// the features namespace, drives the processing pipeline over raw daily
// bars, and maintains the cleaned bar and computed feature tables.
package techfeatures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/features"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/pipeline"
	"ashare-data-lab/internal/storage"
)

const (
	// DomainName keys the registry and the watermark rows.
	DomainName = "features"

	// DefaultSchema is the namespace the service owns.
	DefaultSchema = "features"

	// watermarkTable names the upstream table the watermark tracks.
	watermarkTable = "raw_daily_bars"

	// defaultLookbackDays is the calendar window re-read before the
	// watermark so windowed features have warm-up history. Covers the
	// largest built-in window (20 trading days) with margin.
	defaultLookbackDays = 45
)

// DataService governs the features domain. It holds no per-call mutable
// state; all mutation happens in its governed storage.
type DataService struct {
	cfg        dataservice.Config
	acc        storage.Accessor // nil when structure is managed elsewhere
	bars       storage.BarStore
	cleanBars  storage.CleanBarStore
	featStore  storage.FeatureStore
	watermarks storage.WatermarkStore
	registry   *features.Registry
	mirror     storage.FeatureMirror
	metrics    *observability.Metrics

	featureNames []string
	lookbackDays int
}

var _ dataservice.Service = (*DataService)(nil)

// New creates the features domain service. acc may be nil when the backing
// stores are not relational (fixture mode); EnsureTables then only verifies
// the registry.
func New(cfg dataservice.Config, acc storage.Accessor, bars storage.BarStore, cleanBars storage.CleanBarStore, featStore storage.FeatureStore, watermarks storage.WatermarkStore, registry *features.Registry) *DataService {
	return &DataService{
		cfg:          cfg.Normalize(DefaultSchema),
		acc:          acc,
		bars:         bars,
		cleanBars:    cleanBars,
		featStore:    featStore,
		watermarks:   watermarks,
		registry:     registry,
		featureNames: registry.Names(),
		lookbackDays: defaultLookbackDays,
	}
}

// WithMirror adds an analytics mirror for computed feature rows.
func (s *DataService) WithMirror(m storage.FeatureMirror) *DataService {
	s.mirror = m
	return s
}

// WithMetrics adds observability metrics.
func (s *DataService) WithMetrics(m *observability.Metrics) *DataService {
	s.metrics = m
	return s
}

// WithFeatures restricts the computed feature set. Defaults to every
// registered feature.
func (s *DataService) WithFeatures(names ...string) *DataService {
	s.featureNames = names
	return s
}

// WithLookbackDays overrides the warm-up window for incremental updates.
func (s *DataService) WithLookbackDays(days int) *DataService {
	if days > 0 {
		s.lookbackDays = days
	}
	return s
}

// Name implements dataservice.Service.
func (s *DataService) Name() string { return DomainName }

func (s *DataService) newPipeline() *pipeline.Pipeline {
	p := pipeline.New(s.bars, s.cleanBars, s.featStore, s.registry).WithMetrics(s.metrics)
	if s.mirror != nil {
		p = p.WithMirror(s.mirror)
	}
	return p
}

// FullRebuild recomputes cleaned bars and features for the target codes and
// date range. An unnarrowed range clears each batch's previous output and
// re-fills it; a date-narrowed range repairs its window in place through
// upserts, leaving rows outside the range untouched. Work proceeds in code
// batches of BatchSize; cancellation is honored between batches and a
// re-run after a partial failure repairs state because every write is an
// upsert.
func (s *DataService) FullRebuild(ctx context.Context, opts dataservice.RebuildOptions) (*domain.RunResult, error) {
	start := time.Now()
	res := &domain.RunResult{Domain: DomainName, Operation: "full_rebuild"}

	codes := opts.TSCodes
	if len(codes) == 0 {
		var err error
		codes, err = s.bars.ListCodes(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list instrument codes: %w", err)
		}
	}
	if len(codes) == 0 {
		res.Status = domain.StatusSkipped
		res.Detail = "no raw bars to rebuild from"
		res.Elapsed = time.Since(start)
		return res, nil
	}

	dateNarrowed := opts.StartDate != "" || opts.EndDate != ""

	batches := batchCodes(codes, s.cfg.BatchSize)
	var failed []string
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rebuild cancelled: %w", err)
		}

		// Stage the batch by clearing its previous output; the pipeline
		// then re-fills it. Upserts keep a concurrent reader consistent
		// per row. A date-narrowed rebuild must not touch rows outside
		// its range, so it skips the staging delete and repairs the
		// range in place through the upserts.
		if !dateNarrowed {
			if _, err := s.featStore.DeleteByCodes(ctx, batch); err != nil {
				return nil, fmt.Errorf("clear features for rebuild: %w", err)
			}
			if _, err := s.cleanBars.DeleteByCodes(ctx, batch); err != nil {
				return nil, fmt.Errorf("clear clean bars for rebuild: %w", err)
			}
		}

		unit := domain.ProcessingUnit{
			TSCodes:   batch,
			StartDate: opts.StartDate,
			EndDate:   opts.EndDate,
			Features:  s.featureNames,
		}
		if opts.StartDate != "" {
			// Windowed features at the head of the range need history
			// before it; re-read that history as warm-up input only.
			unit.StartDate = lookbackStart(opts.StartDate, s.lookbackDays)
			unit.WarmupUntil = lookbackStart(opts.StartDate, 1)
		}

		result, err := s.newPipeline().Run(ctx, unit)
		if err != nil {
			if isInfrastructure(err) || isDependency(err) {
				return nil, err
			}
			failed = append(failed, fmt.Sprintf("%s: %v", strings.Join(batch, ","), err))
			continue
		}
		accumulate(res, result)
	}

	res.Elapsed = time.Since(start)
	switch {
	case len(failed) == 0:
		res.Status = domain.StatusSuccess
	case len(failed) == len(batches):
		res.Status = domain.StatusFailed
		res.Detail = strings.Join(failed, "; ")
	default:
		res.Status = domain.StatusPartialSuccess
		res.Detail = strings.Join(failed, "; ")
	}

	// A complete, unnarrowed rebuild re-establishes the watermark.
	if res.Status == domain.StatusSuccess && len(opts.TSCodes) == 0 && opts.EndDate == "" {
		if err := s.advanceWatermark(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// IncrementalUpdate processes codes with raw bars newer than the watermark.
// Replaying with no new upstream data writes nothing and reports skipped.
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

	codes, err := s.bars.ListCodes(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list updated codes: %w", err)
	}
	codes = intersect(codes, opts.TSCodes)
	if len(codes) == 0 {
		res.Status = domain.StatusSkipped
		res.Detail = "no raw bars newer than watermark"
		res.Elapsed = time.Since(start)
		return res, nil
	}

	// Re-read a lookback window before the watermark so windowed features
	// have their warm-up history. The warm-up rows are input only: saving
	// them would truncate their own windows and replace stored values
	// with NULL, so only rows past the watermark are persisted.
	windowStart := lookbackStart(since, s.lookbackDays)

	var failed []string
	for _, batch := range batchCodes(codes, s.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("update cancelled: %w", err)
		}

		result, err := s.newPipeline().Run(ctx, domain.ProcessingUnit{
			TSCodes:     batch,
			StartDate:   windowStart,
			Features:    s.featureNames,
			WarmupUntil: since,
		})
		if err != nil {
			if isInfrastructure(err) || isDependency(err) {
				return nil, err
			}
			failed = append(failed, fmt.Sprintf("%s: %v", strings.Join(batch, ","), err))
			continue
		}
		accumulate(res, result)
	}

	res.Elapsed = time.Since(start)
	switch {
	case len(failed) > 0 && res.RowsInserted+res.RowsUpdated == 0:
		res.Status = domain.StatusFailed
		res.Detail = strings.Join(failed, "; ")
	case len(failed) > 0:
		res.Status = domain.StatusPartialSuccess
		res.Detail = strings.Join(failed, "; ")
	case res.RowsInserted+res.RowsUpdated == 0:
		res.Status = domain.StatusSkipped
		res.Detail = "all rows already current"
	default:
		res.Status = domain.StatusSuccess
	}

	// A narrowed update leaves the watermark alone: advancing it would
	// silently skip the codes outside the target subset next time.
	if len(failed) == 0 && len(opts.TSCodes) == 0 {
		if err := s.advanceWatermark(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *DataService) advanceWatermark(ctx context.Context) error {
	mark, err := s.bars.MaxTradeDate(ctx)
	if err != nil {
		return fmt.Errorf("read max trade date: %w", err)
	}
	if mark == "" {
		return nil
	}
	if err := s.watermarks.Set(ctx, DomainName, watermarkTable, mark); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

func accumulate(res *domain.RunResult, r *pipeline.Result) {
	res.RowsInserted += r.Bars.Inserted + r.Features.Inserted
	res.RowsUpdated += r.Bars.Updated + r.Features.Updated
	res.RowsUnchanged += r.Bars.Unchanged + r.Features.Unchanged
}

func isInfrastructure(err error) bool {
	var infra *storage.InfrastructureError
	return errors.As(err, &infra)
}

// isDependency detects a requested-feature validation failure, which is a
// caller error affecting every batch equally and so aborts the whole call.
func isDependency(err error) bool {
	var dep *features.DependencyError
	if errors.As(err, &dep) {
		return true
	}
	var cycle *features.CycleError
	return errors.As(err, &cycle)
}

func batchCodes(codes []string, size int) [][]string {
	if size <= 0 {
		size = dataservice.DefaultBatchSize
	}
	var out [][]string
	for len(codes) > size {
		out = append(out, codes[:size])
		codes = codes[size:]
	}
	if len(codes) > 0 {
		out = append(out, codes)
	}
	return out
}

func intersect(codes, filter []string) []string {
	if len(filter) == 0 {
		return codes
	}
	want := make(map[string]bool, len(filter))
	for _, f := range filter {
		want[f] = true
	}
	var out []string
	for _, c := range codes {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

// lookbackStart returns the YYYYMMDD date `days` calendar days before
// since, "" when since is unset (full history).
func lookbackStart(since string, days int) string {
	if since == "" {
		return ""
	}
	t, err := time.Parse("20060102", since)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -days).Format("20060102")
}
