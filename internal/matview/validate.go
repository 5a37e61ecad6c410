package matview

import (
	"fmt"
	"regexp"
	"strings"
)

// SpecError reports every violation found in a view spec, not just the
// first, so a caller can fix the whole spec in one pass.
type SpecError struct {
	Name       string
	Violations []string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid view spec %q: %s", e.Name, strings.Join(e.Violations, "; "))
}

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate statically checks a spec before rendering. It returns a
// *SpecError enumerating all violations, or nil when the spec is valid.
func Validate(spec Spec) error {
	var violations []string

	if !identifierRe.MatchString(spec.Name) {
		violations = append(violations, fmt.Sprintf("name %q is not a legal identifier", spec.Name))
	}
	if !identifierRe.MatchString(spec.Schema) {
		violations = append(violations, fmt.Sprintf("schema %q is not a legal identifier", spec.Schema))
	}

	if len(spec.Sources) == 0 {
		violations = append(violations, "no sources declared")
	}
	if len(spec.Columns) == 0 {
		violations = append(violations, "no output columns declared")
	}

	seen := make(map[string]bool, len(spec.Columns))
	for _, c := range spec.Columns {
		if c.Name == "" {
			violations = append(violations, "output column with empty name")
			continue
		}
		if seen[c.Name] {
			violations = append(violations, fmt.Sprintf("duplicate output column %q", c.Name))
		}
		seen[c.Name] = true
		if strings.TrimSpace(c.Expr) == "" {
			violations = append(violations, fmt.Sprintf("column %q has an empty expression", c.Name))
		}
	}

	if spec.From == "" {
		violations = append(violations, "empty FROM clause")
	} else if !referencesDeclaredSource(spec.From, spec.Sources) {
		violations = append(violations, fmt.Sprintf("FROM %q does not reference a declared source", spec.From))
	}
	for _, j := range spec.Joins {
		if !referencesDeclaredSource(j, spec.Sources) {
			violations = append(violations, fmt.Sprintf("join %q does not reference a declared source", j))
		}
	}

	switch spec.Strategy {
	case StrategyFull:
	case StrategyIncremental:
		if spec.PartitionColumn == "" {
			violations = append(violations, "incremental strategy requires a partition column")
		} else if !spec.hasColumn(spec.PartitionColumn) {
			violations = append(violations, fmt.Sprintf("partition column %q is not an output column", spec.PartitionColumn))
		}
		if len(spec.UniqueBy) == 0 {
			violations = append(violations, "incremental strategy requires a unique column set")
		}
		for _, u := range spec.UniqueBy {
			if !spec.hasColumn(u) {
				violations = append(violations, fmt.Sprintf("unique column %q is not an output column", u))
			}
		}
	default:
		violations = append(violations, fmt.Sprintf("unknown strategy %q", spec.Strategy))
	}

	for _, idx := range spec.Indexes {
		if !spec.hasColumn(idx) {
			violations = append(violations, fmt.Sprintf("index column %q is not an output column", idx))
		}
	}

	if len(violations) > 0 {
		return &SpecError{Name: spec.Name, Violations: violations}
	}
	return nil
}

// referencesDeclaredSource checks the relation position of a FROM or JOIN
// fragment against the declared sources. A substring match would accept a
// fragment that merely mentions a declared source while reading from an
// undeclared table.
func referencesDeclaredSource(fragment string, sources []string) bool {
	rel := relationOf(fragment)
	for _, s := range sources {
		if rel == s {
			return true
		}
	}
	return false
}

// relationOf extracts the relation token of a fragment: the token after the
// JOIN keyword ("LEFT JOIN schema.table alias ON ..."), or the first token
// of a bare FROM body ("schema.table alias").
func relationOf(fragment string) string {
	fields := strings.Fields(fragment)
	for i, f := range fields {
		if strings.EqualFold(f, "JOIN") {
			if i+1 < len(fields) {
				return fields[i+1]
			}
			return ""
		}
	}
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}
