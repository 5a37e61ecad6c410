package dataservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare-data-lab/internal/domain"
)

type stubService struct{ name string }

func (s *stubService) Name() string                    { return s.name }
func (s *stubService) EnsureTables(context.Context) error { return nil }
func (s *stubService) FullRebuild(context.Context, RebuildOptions) (*domain.RunResult, error) {
	return &domain.RunResult{Domain: s.name, Operation: "full_rebuild", Status: domain.StatusSuccess}, nil
}
func (s *stubService) IncrementalUpdate(context.Context, UpdateOptions) (*domain.RunResult, error) {
	return &domain.RunResult{Domain: s.name, Operation: "incremental_update", Status: domain.StatusSuccess}, nil
}
func (s *stubService) Validate(context.Context) (*domain.RunResult, error) {
	return &domain.RunResult{Domain: s.name, Operation: "validate", Status: domain.StatusSuccess}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubService{name: "features"}))
	require.NoError(t, r.Register(&stubService{name: "pit"}))

	assert.NotNil(t, r.Get("features"))
	assert.Nil(t, r.Get("unknown"))
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubService{name: "features"}))
	assert.Error(t, r.Register(&stubService{name: "features"}))
}

func TestRegistry_AllSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubService{name: "pit"}))
	require.NoError(t, r.Register(&stubService{name: "features"}))

	var names []string
	for _, s := range r.All() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"features", "pit"}, names)
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubService{name: "features"}))
	require.NoError(t, r.Register(&stubService{name: "pit"}))

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := r.Select([]string{"pit"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "pit", one[0].Name())

	_, err = r.Select([]string{"ghost"})
	assert.Error(t, err)
}

func TestConfig_Normalize(t *testing.T) {
	cfg := Config{}.Normalize("features")
	assert.Equal(t, "features", cfg.Schema)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)

	cfg = Config{Schema: "custom", BatchSize: 50}.Normalize("features")
	assert.Equal(t, "custom", cfg.Schema)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestRunner_ResultsInRegistrationOrder(t *testing.T) {
	services := []Service{&stubService{name: "pit"}, &stubService{name: "features"}}

	for _, mode := range []Mode{ModeSequential, ModeConcurrent} {
		runner := NewRunner(services, mode, 2)
		results, err := runner.ValidateAll(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "pit", results[0].Domain, "mode %s", mode)
		assert.Equal(t, "features", results[1].Domain, "mode %s", mode)
	}
}
