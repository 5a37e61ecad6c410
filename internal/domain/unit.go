package domain

// ProcessingUnit is the input to one pipeline run: a set of instrument
// codes, an optional date range, and the features to compute. A unit is
// produced by a caller (scheduler or CLI) and consumed exactly once;
// it is never persisted.
type ProcessingUnit struct {
	TSCodes   []string // instrument codes to process
	StartDate string   // inclusive, YYYYMMDD; empty means all history
	EndDate   string   // inclusive, YYYYMMDD; empty means up to latest
	Features  []string // requested feature names; empty means all registered
	// WarmupUntil marks the head of the range as warm-up input: feature
	// rows dated on or before it seed windowed computations but are not
	// saved. Callers re-reading history before a watermark set it so
	// head-of-window NULLs never overwrite previously computed values.
	WarmupUntil string
	// SkipFeatures passes cleaned data through unchanged, saving only
	// cleaned columns. The caller is responsible for downstream consumers
	// tolerating the absence of feature rows.
	SkipFeatures bool
}
