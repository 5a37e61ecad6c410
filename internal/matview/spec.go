// Package matview turns declarative view specifications into idempotent SQL
// and applies them against relational storage. Rendering is a pure function
// of the spec: an unchanged spec always renders byte-identical SQL, so
// re-applying it targets the same object and supports diff-based change
// detection.
package matview

// Strategy selects how a view is refreshed.
type Strategy string

const (
	// StrategyFull rebuilds the view into a staging table and atomically
	// swaps it in place of the previous one.
	StrategyFull Strategy = "full"

	// StrategyIncremental upserts one source partition at a time into the
	// existing view table, keyed by the spec's unique column set.
	StrategyIncremental Strategy = "incremental"
)

// Column is one output column: a name and the SQL expression producing it.
// Columns render in declared order.
type Column struct {
	Name string
	Expr string
}

// Spec declares a materialized view. The target object is always
// <Schema>.<Name>; no hidden suffixes are visible to callers, so two applies
// of the same spec govern the same table.
type Spec struct {
	Name    string
	Schema  string
	Sources []string // upstream tables the spec is allowed to read
	Columns []Column
	From    string
	Joins   []string
	Where   string
	GroupBy []string

	Strategy Strategy

	// PartitionColumn scopes incremental refreshes; required for
	// StrategyIncremental. Must be one of the output columns.
	PartitionColumn string

	// UniqueBy is the conflict key for incremental upserts; required for
	// StrategyIncremental. Every entry must be an output column.
	UniqueBy []string

	// Indexes lists extra single-column indexes created after a full apply.
	Indexes []string
}

// Target returns the schema-qualified name of the view table.
func (s Spec) Target() string {
	return s.Schema + "." + s.Name
}

func (s Spec) columnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func (s Spec) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
