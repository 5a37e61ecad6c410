package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(name string, deps ...string) Feature {
	return Feature{
		Name: name,
		Deps: deps,
		Compute: func(s *Series) ([]*float64, error) {
			out := make([]*float64, s.Len())
			for i := range out {
				v := 1.0
				out[i] = &v
			}
			return out, nil
		},
	}
}

func TestPlan_TopologicalOrder(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("a", RawClose)))
	require.NoError(t, r.Register(constant("b", "a")))
	require.NoError(t, r.Register(constant("c", "b", "a")))

	plan, err := r.Plan([]string{"c"}, nil)
	require.NoError(t, err)

	var order []string
	for _, f := range plan.Order {
		order = append(order, f.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, map[string]bool{"c": true}, plan.Outputs)
}

func TestPlan_EmptyRequestSelectsAll(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("a", RawClose)))
	require.NoError(t, r.Register(constant("b", "a")))

	plan, err := r.Plan(nil, nil)
	require.NoError(t, err)
	assert.Len(t, plan.Order, 2)
	assert.True(t, plan.Outputs["a"])
	assert.True(t, plan.Outputs["b"])
}

func TestPlan_MissingDependenciesAllEnumerated(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("a", "ghost1", "ghost2")))
	require.NoError(t, r.Register(constant("b", "ghost3")))

	_, err := r.Plan([]string{"a", "b"}, nil)
	require.Error(t, err)

	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.ElementsMatch(t, []string{"ghost1", "ghost2"}, depErr.Missing["a"])
	assert.ElementsMatch(t, []string{"ghost3"}, depErr.Missing["b"])
}

func TestPlan_UnknownRequestedFeature(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("a", RawClose)))

	_, err := r.Plan([]string{"nope"}, nil)
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Contains(t, err.Error(), "nope is not registered")
}

func TestPlan_CycleDetected(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("a", "b")))
	require.NoError(t, r.Register(constant("b", "a")))

	_, err := r.Plan([]string{"a"}, nil)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Nodes)
}

func TestPlan_SkippedStillComputedWhenDependedOn(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("base", RawClose)))
	require.NoError(t, r.Register(constant("derived", "base")))

	plan, err := r.Plan([]string{"base", "derived"}, []string{"base"})
	require.NoError(t, err)

	var order []string
	for _, f := range plan.Order {
		order = append(order, f.Name)
	}
	assert.Equal(t, []string{"base", "derived"}, order, "skipped dependency must still execute")
	assert.False(t, plan.Outputs["base"], "skipped feature must not be persisted")
	assert.True(t, plan.Outputs["derived"])
}

func TestPlan_SkippedSinkNotComputed(t *testing.T) {
	r := NewRegistry(RawClose)
	require.NoError(t, r.Register(constant("base", RawClose)))
	require.NoError(t, r.Register(constant("lonely", "base")))
	require.NoError(t, r.Register(constant("kept", RawClose)))

	// Nothing non-skipped depends on lonely, so neither it nor its
	// base-only dependency chain should execute.
	plan, err := r.Plan([]string{"kept", "lonely"}, []string{"lonely"})
	require.NoError(t, err)

	var order []string
	for _, f := range plan.Order {
		order = append(order, f.Name)
	}
	assert.Equal(t, []string{"kept"}, order)
	assert.Equal(t, map[string]bool{"kept": true}, plan.Outputs)
}

// Independent features may execute in any tie-break order without changing
// what a dependent feature computes.
func TestPlan_TieBreakOrderInvariance(t *testing.T) {
	build := func() *Registry {
		r := NewRegistry(RawClose)
		require.NoError(t, r.Register(constant("x", RawClose)))
		require.NoError(t, r.Register(constant("y", RawClose)))
		require.NoError(t, r.Register(Feature{
			Name: "sum",
			Deps: []string{"x", "y"},
			Compute: func(s *Series) ([]*float64, error) {
				xs, ys := s.Column("x"), s.Column("y")
				out := make([]*float64, s.Len())
				for i := range out {
					v := *xs[i] + *ys[i]
					out[i] = &v
				}
				return out, nil
			},
		}))
		return r
	}

	run := func(less func(a, b string) bool) []*float64 {
		r := build()
		plan, err := r.plan([]string{"sum"}, nil, less)
		require.NoError(t, err)

		s := NewSeries("000001.SZ", []string{"20240102", "20240103"})
		closes := []*float64{f(1), f(2)}
		require.NoError(t, s.SetColumn(RawClose, closes))
		for _, feat := range plan.Order {
			vals, err := feat.Compute(s)
			require.NoError(t, err)
			require.NoError(t, s.SetColumn(feat.Name, vals))
		}
		return s.Column("sum")
	}

	asc := run(func(a, b string) bool { return a < b })
	desc := run(func(a, b string) bool { return a > b })

	require.Len(t, asc, 2)
	for i := range asc {
		assert.Equal(t, *asc[i], *desc[i])
	}
}

func f(v float64) *float64 { return &v }
