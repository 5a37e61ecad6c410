package matview

import (
	"fmt"
	"strings"
)

// Render produces the full SQL script for the spec's strategy. It is a pure
// function: an identical spec renders byte-identical SQL. Column order in
// the output follows the declared order.
func Render(spec Spec) (string, error) {
	stmts, err := renderStatements(spec)
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, ";\n\n") + ";\n", nil
}

// renderStatements validates the spec and returns its SQL statements in
// execution order.
func renderStatements(spec Spec) ([]string, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	switch spec.Strategy {
	case StrategyFull:
		return renderFull(spec), nil
	case StrategyIncremental:
		return renderIncremental(spec), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", spec.Strategy)
}

// renderSelect builds the SELECT body shared by both strategies.
func renderSelect(spec Spec) string {
	var b strings.Builder
	b.WriteString("SELECT\n")
	for i, c := range spec.Columns {
		b.WriteString("    ")
		b.WriteString(c.Expr)
		b.WriteString(" AS ")
		b.WriteString(c.Name)
		if i < len(spec.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("FROM ")
	b.WriteString(spec.From)
	for _, j := range spec.Joins {
		b.WriteString("\n")
		b.WriteString(j)
	}
	if spec.Where != "" {
		b.WriteString("\nWHERE ")
		b.WriteString(spec.Where)
	}
	if len(spec.GroupBy) > 0 {
		b.WriteString("\nGROUP BY ")
		b.WriteString(strings.Join(spec.GroupBy, ", "))
	}
	return b.String()
}

// renderFull stages the rebuilt view under a __stage suffix and swaps it in
// place of the previous table. The whole script runs inside one transaction
// so a failed rebuild leaves the old view intact.
func renderFull(spec Spec) []string {
	stage := spec.Target() + "__stage"

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", stage),
		fmt.Sprintf("CREATE TABLE %s AS\n%s", stage, renderSelect(spec)),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", spec.Target()),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", stage, spec.Name),
	}
	if len(spec.UniqueBy) > 0 {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE UNIQUE INDEX %s_key ON %s (%s)",
			spec.Name, spec.Target(), strings.Join(spec.UniqueBy, ", ")))
	}
	for _, idx := range spec.Indexes {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX %s_%s_idx ON %s (%s)",
			spec.Name, idx, spec.Target(), idx))
	}
	return stmts
}

// renderIncremental renders a partition-scoped upsert keyed by the spec's
// unique column set. $1 binds the partition value. Unchanged rows are left
// untouched so a replayed apply reports zero mutations.
func renderIncremental(spec Spec) []string {
	cols := spec.columnNames()

	unique := make(map[string]bool, len(spec.UniqueBy))
	for _, u := range spec.UniqueBy {
		unique[u] = true
	}
	var updates []string
	var current, incoming []string
	for _, c := range cols {
		if unique[c] {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		current = append(current, "t."+c)
		incoming = append(incoming, "EXCLUDED."+c)
	}

	// WHERE cannot reference output aliases, so scope by the partition
	// column's source expression.
	partExpr := spec.PartitionColumn
	for _, c := range spec.Columns {
		if c.Name == spec.PartitionColumn {
			partExpr = c.Expr
		}
	}
	scoped := spec
	cond := partExpr + " = $1"
	if scoped.Where != "" {
		scoped.Where = scoped.Where + " AND " + cond
	} else {
		scoped.Where = cond
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s)\n", spec.Target(), strings.Join(cols, ", "))
	b.WriteString(renderSelect(scoped))
	fmt.Fprintf(&b, "\nON CONFLICT (%s) DO UPDATE SET\n    %s",
		strings.Join(spec.UniqueBy, ", "), strings.Join(updates, ",\n    "))
	if len(current) > 0 {
		fmt.Fprintf(&b, "\nWHERE (%s) IS DISTINCT FROM (%s)",
			strings.Join(current, ", "), strings.Join(incoming, ", "))
	}
	return []string{b.String()}
}

// renderBootstrap returns the statements that create an empty incremental
// view table with its conflict index, shaped by the spec's SELECT.
func renderBootstrap(spec Spec) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS\n%s\nLIMIT 0", spec.Target(), renderSelect(spec)),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s_key ON %s (%s)",
			spec.Name, spec.Target(), strings.Join(spec.UniqueBy, ", ")),
	}
}
