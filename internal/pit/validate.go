package pit

import (
	"context"
	"fmt"
	"time"

	"ashare-data-lab/internal/domain"
)

// Validate checks the reconstructed table against its invariants: rows are
// present when raw announcements exist, announcement dates never precede
// the period they report on, and the watermark does not run ahead of the
// raw data. Check failures are reported, never raised.
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

	raw, err := s.statements.GetSince(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetch raw statements: %w", err)
	}
	count, err := s.pit.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pit statements: %w", err)
	}

	expected := int64(len(Reconstruct(raw, nil)))
	check("reconstruction_complete", count >= expected,
		fmt.Sprintf("pit_statements holds %d rows, raw history implies %d periods", count, expected))

	// ann_date >= end_date: a statement cannot be announced before the
	// period it reports on ends.
	badOrder := 0
	codes := make(map[string]bool)
	for _, r := range raw {
		codes[r.TSCode] = true
	}
	for code := range codes {
		rows, err := s.pit.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("fetch pit statements for %s: %w", code, err)
		}
		for _, r := range rows {
			if r.AnnDate < r.EndDate {
				badOrder++
			}
		}
	}
	check("ann_date_not_before_end_date", badOrder == 0,
		fmt.Sprintf("%d rows announced before their period end", badOrder))

	mark, err := s.watermarks.Get(ctx, DomainName, watermarkTable)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	maxAnn, err := s.statements.MaxAnnDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max ann date: %w", err)
	}
	check("watermark_not_ahead", mark == "" || mark <= maxAnn,
		fmt.Sprintf("watermark %s is ahead of latest announcement %s", mark, maxAnn))

	res.Elapsed = time.Since(start)
	res.Status = domain.StatusSuccess
	if !res.AllChecksPassed() {
		res.Status = domain.StatusFailed
	}
	return res, nil
}
