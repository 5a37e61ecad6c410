package storage

import "context"

// Row is one result row as a column-name to value mapping.
type Row map[string]any

// Accessor executes SQL against the backing relational storage. Domain
// services and the view engine are written once against this interface and
// are execution-mode agnostic: the pooled implementation is safe under a
// concurrent scheduler, the session implementation strictly serializes
// callers. Both must produce identical observable storage effects.
type Accessor interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query runs a parameterized query and returns all rows.
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)

	// Begin opens an explicit transaction.
	Begin(ctx context.Context) (Tx, error)

	// EnsureSchema idempotently creates the named storage namespace.
	EnsureSchema(ctx context.Context, name string) error
}

// Tx is an explicit transaction over an Accessor.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UpsertResult reports the outcome of an upsert-by-primary-key write.
// Unchanged counts rows whose incoming values matched the stored row, so a
// replayed write reports zero inserted/updated.
type UpsertResult struct {
	Inserted  int64
	Updated   int64
	Unchanged int64
}

// Add accumulates another result into r.
func (r *UpsertResult) Add(o UpsertResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
}

// Total returns the total number of rows the write considered.
func (r UpsertResult) Total() int64 {
	return r.Inserted + r.Updated + r.Unchanged
}
