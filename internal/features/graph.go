package features

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyError reports every unmet dependency found while validating a
// requested feature set, keyed by the feature that declared it. It is
// raised before any computation executes.
type DependencyError struct {
	Missing map[string][]string
}

func (e *DependencyError) Error() string {
	features := make([]string, 0, len(e.Missing))
	for f := range e.Missing {
		features = append(features, f)
	}
	sort.Strings(features)

	parts := make([]string, 0, len(features))
	for _, f := range features {
		deps := append([]string(nil), e.Missing[f]...)
		sort.Strings(deps)
		if len(deps) == 1 && deps[0] == f {
			parts = append(parts, fmt.Sprintf("%s is not registered", f))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s needs %s", f, strings.Join(deps, ", ")))
	}
	return "unmet feature dependencies: " + strings.Join(parts, "; ")
}

// CycleError reports a dependency cycle among the named features.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	nodes := append([]string(nil), e.Nodes...)
	sort.Strings(nodes)
	return "feature dependency cycle involving: " + strings.Join(nodes, ", ")
}

// Plan is a validated execution plan: features in topological order, and
// the subset of names whose output is persisted.
type Plan struct {
	Order   []Feature
	Outputs map[string]bool
}

// Plan resolves the requested feature set into an execution plan. An empty
// request selects every registered feature. Skipped features are excluded
// from the outputs and computed only when a non-skipped requested feature
// transitively depends on them.
//
// The whole set is validated before the plan is returned: every dependency
// must resolve to a raw column or a registered feature, and the graph must
// be acyclic. All violations are reported at once.
func (r *Registry) Plan(requested, skipped []string) (*Plan, error) {
	return r.plan(requested, skipped, func(a, b string) bool { return a < b })
}

// plan is Plan with an explicit tie-break order among independent features,
// so order-independence is testable.
func (r *Registry) plan(requested, skipped []string, less func(a, b string) bool) (*Plan, error) {
	if len(requested) == 0 {
		requested = r.Names()
	}

	skip := make(map[string]bool, len(skipped))
	for _, s := range skipped {
		skip[s] = true
	}

	// Walk the transitive closure of the request, collecting every unmet
	// dependency instead of stopping at the first.
	missing := make(map[string][]string)
	needed := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		f, ok := r.features[name]
		if !ok {
			return
		}
		for _, dep := range f.Deps {
			if r.isRaw(dep) {
				continue
			}
			if !r.Has(dep) {
				missing[name] = append(missing[name], dep)
				continue
			}
			visit(dep)
		}
	}
	for _, name := range requested {
		if r.isRaw(name) {
			continue
		}
		if !r.Has(name) {
			missing[name] = append(missing[name], name)
			continue
		}
		visit(name)
	}
	if len(missing) > 0 {
		return nil, &DependencyError{Missing: missing}
	}

	// Kahn's algorithm over the needed subgraph. The ready set is kept
	// sorted by the tie-break order so independent features run in a
	// deterministic sequence.
	indegree := make(map[string]int, len(needed))
	dependents := make(map[string][]string, len(needed))
	for name := range needed {
		f := r.features[name]
		for _, dep := range f.Deps {
			if r.isRaw(dep) {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name := range needed {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	order := make([]Feature, 0, len(needed))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, r.features[name])

		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
	}

	if len(order) != len(needed) {
		var cyclic []string
		for name := range needed {
			if indegree[name] > 0 {
				cyclic = append(cyclic, name)
			}
		}
		return nil, &CycleError{Nodes: cyclic}
	}

	outputs := make(map[string]bool, len(requested))
	for _, name := range requested {
		if r.Has(name) && !skip[name] {
			outputs[name] = true
		}
	}

	// A skipped request with no non-skipped dependent is validated above
	// but never computed: keep only what the outputs transitively need.
	keep := make(map[string]bool, len(needed))
	var mark func(name string)
	mark = func(name string) {
		if keep[name] {
			return
		}
		keep[name] = true
		for _, dep := range r.features[name].Deps {
			if !r.isRaw(dep) {
				mark(dep)
			}
		}
	}
	for name := range outputs {
		mark(name)
	}
	pruned := order[:0]
	for _, f := range order {
		if keep[f.Name] {
			pruned = append(pruned, f)
		}
	}

	return &Plan{Order: pruned, Outputs: outputs}, nil
}
