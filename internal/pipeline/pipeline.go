// Package pipeline transforms one ProcessingUnit through four ordered
// stages: fetch raw bars, clean them, compute requested features over the
// cleaned series, and upsert the results. Units are isolated: a failed unit
// never affects another unit's run, and the pipeline never retries
// internally.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/features"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/storage"
)

// State is the pipeline's processing state for one unit.
type State string

const (
	StatePending  State = "PENDING"
	StateFetched  State = "FETCHED"
	StateCleaned  State = "CLEANED"
	StateFeatured State = "FEATURED"
	StateSaved    State = "SAVED"
	StateFailed   State = "FAILED"
)

// Result reports the outcome of one pipeline run. State is the terminal
// state reached; on failure the earlier counters reflect work done before
// the failing stage.
type Result struct {
	State       State
	RowsFetched int
	RowsCleaned int
	RowsDropped int
	FeatureRows int
	Bars        storage.UpsertResult
	Features    storage.UpsertResult
}

// Pipeline runs ProcessingUnits against a feature registry and storage.
type Pipeline struct {
	bars      storage.BarStore
	cleanBars storage.CleanBarStore
	featStore storage.FeatureStore
	registry  *features.Registry
	mirror    storage.FeatureMirror
	metrics   *observability.Metrics
	skipped   []string
}

// New creates a pipeline over the given stores and feature registry.
func New(bars storage.BarStore, cleanBars storage.CleanBarStore, featStore storage.FeatureStore, registry *features.Registry) *Pipeline {
	return &Pipeline{
		bars:      bars,
		cleanBars: cleanBars,
		featStore: featStore,
		registry:  registry,
	}
}

// WithMirror adds an analytics mirror for saved feature rows.
func (p *Pipeline) WithMirror(m storage.FeatureMirror) *Pipeline {
	p.mirror = m
	return p
}

// WithMetrics adds observability metrics.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithSkippedFeatures marks features the caller pre-supplies. A skipped
// feature is excluded from saved output; it is still computed when a
// non-skipped requested feature depends on it.
func (p *Pipeline) WithSkippedFeatures(names ...string) *Pipeline {
	p.skipped = append(p.skipped, names...)
	return p
}

// Run executes the unit through fetch, clean, feature and save. The
// requested feature set is validated against the dependency graph before
// any computation starts; on a validation failure nothing is written.
func (p *Pipeline) Run(ctx context.Context, unit domain.ProcessingUnit) (*Result, error) {
	result := &Result{State: StatePending}

	fail := func(err error) (*Result, error) {
		result.State = StateFailed
		p.metrics.ObservePipelineRun(string(StateFailed))
		return result, err
	}

	// Fetch
	start := time.Now()
	raw, err := p.bars.GetByCodes(ctx, unit.TSCodes, unit.StartDate, unit.EndDate)
	if err != nil {
		return fail(&FetchError{Codes: unit.TSCodes, Err: err})
	}
	result.RowsFetched = len(raw)
	result.State = StateFetched
	p.metrics.ObserveStage("fetch", time.Since(start))

	// Clean
	start = time.Now()
	cleaned, dropped := cleanBars(raw)
	result.RowsCleaned = len(cleaned)
	result.RowsDropped = dropped
	result.State = StateCleaned
	p.metrics.ObserveStage("clean", time.Since(start))
	p.metrics.ObserveDropped(dropped)

	// Feature
	start = time.Now()
	var featureRows []*domain.FeatureRow
	if !unit.SkipFeatures {
		plan, err := p.registry.Plan(unit.Features, p.skipped)
		if err != nil {
			return fail(err)
		}
		featureRows, err = computeFeatures(plan, cleaned)
		if err != nil {
			return fail(fmt.Errorf("compute features: %w", err))
		}
		if unit.WarmupUntil != "" {
			featureRows = trimWarmup(featureRows, unit.WarmupUntil)
		}
	}
	result.FeatureRows = len(featureRows)
	result.State = StateFeatured
	p.metrics.ObserveStage("feature", time.Since(start))
	p.metrics.ObserveFeatureRows(len(featureRows))

	// Save
	start = time.Now()
	barResult, err := p.cleanBars.Upsert(ctx, cleaned)
	if err != nil {
		return fail(fmt.Errorf("save clean bars: %w", err))
	}
	result.Bars = barResult
	p.metrics.ObserveUpsert("clean_daily_bars", barResult.Inserted, barResult.Updated, barResult.Unchanged)

	if len(featureRows) > 0 {
		featResult, err := p.featStore.Upsert(ctx, featureRows)
		if err != nil {
			return fail(fmt.Errorf("save features: %w", err))
		}
		result.Features = featResult
		p.metrics.ObserveUpsert("daily_features", featResult.Inserted, featResult.Updated, featResult.Unchanged)

		if p.mirror != nil {
			if err := p.mirror.InsertBulk(ctx, featureRows); err != nil {
				return fail(fmt.Errorf("mirror features: %w", err))
			}
		}
	}

	result.State = StateSaved
	p.metrics.ObserveStage("save", time.Since(start))
	p.metrics.ObservePipelineRun(string(StateSaved))
	return result, nil
}

// computeFeatures evaluates the plan per instrument series and collects
// rows for the plan's output features.
func computeFeatures(plan *features.Plan, cleaned []*domain.CleanBar) ([]*domain.FeatureRow, error) {
	byCode := make(map[string][]*domain.CleanBar)
	for _, b := range cleaned {
		byCode[b.TSCode] = append(byCode[b.TSCode], b)
	}

	codes := make([]string, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	var rows []*domain.FeatureRow
	for _, code := range codes {
		bars := byCode[code] // already sorted by trade_date from the clean stage

		series := features.NewSeries(code, tradeDates(bars))
		setRawColumns(series, bars)

		for _, f := range plan.Order {
			values, err := f.Compute(series)
			if err != nil {
				return nil, err
			}
			if err := series.SetColumn(f.Name, values); err != nil {
				return nil, err
			}
		}

		// Emit output rows in (date, feature) order for determinism.
		outputs := make([]string, 0, len(plan.Outputs))
		for name := range plan.Outputs {
			outputs = append(outputs, name)
		}
		sort.Strings(outputs)

		for i, date := range series.Dates {
			for _, name := range outputs {
				rows = append(rows, &domain.FeatureRow{
					TSCode:    code,
					TradeDate: date,
					Feature:   name,
					Value:     series.Column(name)[i],
				})
			}
		}
	}

	return rows, nil
}

// trimWarmup drops feature rows dated in the warm-up prefix. Those rows
// exist only to seed windowed computations; saving them would overwrite
// previously computed values with head-of-window NULLs.
func trimWarmup(rows []*domain.FeatureRow, until string) []*domain.FeatureRow {
	out := rows[:0]
	for _, r := range rows {
		if r.TradeDate > until {
			out = append(out, r)
		}
	}
	return out
}

func tradeDates(bars []*domain.CleanBar) []string {
	dates := make([]string, len(bars))
	for i, b := range bars {
		dates[i] = b.TradeDate
	}
	return dates
}

func setRawColumns(s *features.Series, bars []*domain.CleanBar) {
	n := len(bars)
	open := make([]*float64, n)
	high := make([]*float64, n)
	low := make([]*float64, n)
	close := make([]*float64, n)
	preClose := make([]*float64, n)
	volume := make([]*float64, n)
	amount := make([]*float64, n)
	for i, b := range bars {
		b := b
		open[i] = &b.Open
		high[i] = &b.High
		low[i] = &b.Low
		close[i] = &b.Close
		preClose[i] = &b.PreClose
		volume[i] = &b.Volume
		amount[i] = &b.Amount
	}
	// Lengths match by construction, errors are impossible here.
	_ = s.SetColumn(features.RawOpen, open)
	_ = s.SetColumn(features.RawHigh, high)
	_ = s.SetColumn(features.RawLow, low)
	_ = s.SetColumn(features.RawClose, close)
	_ = s.SetColumn(features.RawPreClose, preClose)
	_ = s.SetColumn(features.RawVolume, volume)
	_ = s.SetColumn(features.RawAmount, amount)
}
