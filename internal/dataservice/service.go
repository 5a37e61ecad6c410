// Package dataservice defines the uniform lifecycle every domain-specific
// processor implements, so a generic runner can drive any domain without
// domain-specific branching: structure (EnsureTables), data (FullRebuild,
// IncrementalUpdate) and quality (Validate) are separate operations that
// compose across domains.
package dataservice

import (
	"context"

	"ashare-data-lab/internal/domain"
)

// Service is the contract every domain implements. A Service is bound to
// one storage namespace, holds no per-call mutable state, and never touches
// tables outside its namespace except to read upstream raw data.
type Service interface {
	// Name returns the unique domain name used for registry lookup and
	// watermark keys.
	Name() string

	// EnsureTables idempotently creates the domain's namespace and all
	// tables and indexes it owns. Safe on every startup; never alters
	// existing data. Returns a StructureError when DDL privileges are
	// missing or a conflicting object has an incompatible shape.
	EnsureTables(ctx context.Context) error

	// FullRebuild recomputes the domain's output from scratch for the
	// given target subset and date range (everything when omitted).
	// Re-running after a partial failure must not corrupt state; the
	// cancellation signal is honored between batches.
	FullRebuild(ctx context.Context, opts RebuildOptions) (*domain.RunResult, error)

	// IncrementalUpdate computes only data new since the watermark.
	// Idempotent: a second call with no new upstream data produces no
	// additional writes and a success or skipped status.
	IncrementalUpdate(ctx context.Context, opts UpdateOptions) (*domain.RunResult, error)

	// Validate runs the domain's data-quality checks. Check failures are
	// reported in the RunResult, never raised; only infrastructure
	// failures return an error.
	Validate(ctx context.Context) (*domain.RunResult, error)
}

// RebuildOptions narrows a full rebuild. Zero value rebuilds everything.
type RebuildOptions struct {
	TSCodes   []string // target subset, all targets when empty
	StartDate string   // inclusive, YYYYMMDD; empty means all history
	EndDate   string   // inclusive, YYYYMMDD; empty means up to latest
}

// UpdateOptions narrows an incremental update. Zero value updates from the
// stored watermark across all targets.
type UpdateOptions struct {
	Since   string   // watermark override, YYYYMMDD; empty uses the stored mark
	TSCodes []string // target subset, all targets when empty
}

// Config carries the per-domain settings every service is constructed
// with. Defaults are explicit rather than inherited.
type Config struct {
	// Schema is the storage namespace the service owns.
	Schema string

	// BatchSize bounds per-transaction work during rebuilds and updates.
	// Cancellation is checked between batches. Defaults to 500.
	BatchSize int
}

// DefaultBatchSize is used when Config.BatchSize is unset.
const DefaultBatchSize = 500

// Normalize fills defaults and clamps invalid values.
func (c Config) Normalize(defaultSchema string) Config {
	if c.Schema == "" {
		c.Schema = defaultSchema
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}
