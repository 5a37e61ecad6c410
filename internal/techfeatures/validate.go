package techfeatures

import (
	"context"
	"fmt"
	"time"

	"ashare-data-lab/internal/domain"
)

// Validate runs the domain's data-quality checks. Check failures are data,
// reported through the RunResult; only storage failures return an error.
func (s *DataService) Validate(ctx context.Context) (*domain.RunResult, error) {
	start := time.Now()
	res := &domain.RunResult{Domain: DomainName, Operation: "validate"}

	check := func(name string, passed bool, detail string) {
		if passed {
			detail = ""
		}
		res.Checks = append(res.Checks, domain.CheckResult{Name: name, Passed: passed, Detail: detail})
		s.metrics.ObserveValidationCheck(DomainName, name, passed)
	}

	barCount, err := s.cleanBars.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count clean bars: %w", err)
	}
	check("clean_bars_present", barCount > 0,
		"clean_daily_bars is empty; run a rebuild or update first")

	// Every stored feature name must still be registered, otherwise the
	// table holds output from a feature set that no longer exists.
	stored, err := s.featStore.ListFeatureNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored feature names: %w", err)
	}
	var unregistered []string
	for _, name := range stored {
		if !s.registry.Has(name) {
			unregistered = append(unregistered, name)
		}
	}
	check("feature_names_registered", len(unregistered) == 0,
		fmt.Sprintf("stored features not in registry: %v", unregistered))

	// The watermark may never run ahead of the raw data it tracks.
	mark, err := s.watermarks.Get(ctx, DomainName, watermarkTable)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	maxDate, err := s.bars.MaxTradeDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max trade date: %w", err)
	}
	check("watermark_not_ahead", mark == "" || mark <= maxDate,
		fmt.Sprintf("watermark %s is ahead of latest raw trade date %s", mark, maxDate))

	res.Elapsed = time.Since(start)
	res.Status = domain.StatusSuccess
	if !res.AllChecksPassed() {
		res.Status = domain.StatusFailed
	}
	return res, nil
}
