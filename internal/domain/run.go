package domain

import "time"

// RunStatus is the closed set of outcome statuses for a service call.
type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialSuccess RunStatus = "partial_success"
	StatusFailed         RunStatus = "failed"
	StatusSkipped        RunStatus = "skipped"
)

// CheckResult is the outcome of one named data-quality check.
// Check failures are data, not errors: they are reported here so a batch
// validation across many domains can complete and report all findings.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string // threshold/actual description, empty when passed
}

// RunResult is the outcome record of one rebuild/update/validate call.
// Never mutated after return; owned by the caller.
type RunResult struct {
	Domain        string
	Operation     string // "full_rebuild", "incremental_update", "validate"
	Status        RunStatus
	RowsInserted  int64
	RowsUpdated   int64
	RowsUnchanged int64
	Elapsed       time.Duration
	Checks        []CheckResult // populated by validate only
	Detail        string        // optional error/context detail
}

// AllChecksPassed reports whether every check in the result passed.
func (r *RunResult) AllChecksPassed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
