package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/features"
	"ashare-data-lab/internal/storage"
	"ashare-data-lab/internal/storage/memory"
)

func seedScenarioBars(t *testing.T, bars *memory.BarStore) {
	t.Helper()

	closes := []float64{9.40, 9.35, 9.20, 9.28}
	dates := []string{"20240102", "20240103", "20240104", "20240105"}
	rows := make([]*domain.DailyBar, len(dates))
	for i := range dates {
		rows[i] = &domain.DailyBar{
			TSCode:    "000001.SZ",
			TradeDate: dates[i],
			Close:     f(closes[i]),
			IngestSeq: int64(i + 1),
		}
	}
	require.NoError(t, bars.InsertBulk(context.Background(), rows))
}

func newTestPipeline(bars *memory.BarStore) (*Pipeline, *memory.CleanBarStore, *memory.FeatureStore) {
	cleanStore := memory.NewCleanBarStore()
	featStore := memory.NewFeatureStore()
	p := New(bars, cleanStore, featStore, features.DefaultRegistry())
	return p, cleanStore, featStore
}

// Four trading days of 000001.SZ with a window-3 moving average: the first
// two days fall inside the warm-up and stay NULL, Jan 4 and Jan 5 carry
// computed values.
func TestRun_MA3Scenario(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	p, cleanStore, featStore := newTestPipeline(bars)
	result, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:  []string{"000001.SZ"},
		Features: []string{"ma3"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateSaved, result.State)
	assert.Equal(t, 4, result.RowsFetched)
	assert.Equal(t, 4, result.RowsCleaned)

	saved, err := cleanStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	assert.Len(t, saved, 4)

	rows, err := featStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	require.Len(t, rows, 4, "one ma3 row per date, NULL during warm-up")

	computed := make(map[string]*float64)
	for _, r := range rows {
		require.Equal(t, "ma3", r.Feature)
		computed[r.TradeDate] = r.Value
	}
	assert.Nil(t, computed["20240102"])
	assert.Nil(t, computed["20240103"])
	require.NotNil(t, computed["20240104"])
	require.NotNil(t, computed["20240105"])
	assert.InDelta(t, (9.40+9.35+9.20)/3, *computed["20240104"], 1e-9)
	assert.InDelta(t, (9.35+9.20+9.28)/3, *computed["20240105"], 1e-9)
}

func TestRun_WarmupRowsNotPersisted(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	p, cleanStore, featStore := newTestPipeline(bars)
	result, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:     []string{"000001.SZ"},
		Features:    []string{"ma3"},
		WarmupUntil: "20240104",
	})
	require.NoError(t, err)
	assert.Equal(t, StateSaved, result.State)
	assert.Equal(t, 1, result.FeatureRows)

	saved, err := cleanStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	assert.Len(t, saved, 4, "warm-up bars are still cleaned and saved")

	rows, err := featStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	require.Len(t, rows, 1, "warm-up feature rows are input only")
	assert.Equal(t, "20240105", rows[0].TradeDate)
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, (9.35+9.20+9.28)/3, *rows[0].Value, 1e-9)
}

func TestRun_SkipFeatures(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	p, cleanStore, featStore := newTestPipeline(bars)
	result, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:      []string{"000001.SZ"},
		Features:     []string{"ma3"},
		SkipFeatures: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateSaved, result.State)
	assert.Equal(t, 0, result.FeatureRows)

	saved, err := cleanStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	assert.Len(t, saved, 4, "cleaned columns still saved")

	rows, err := featStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	assert.Empty(t, rows, "no feature rows when features are skipped")
}

// A requested feature with an unmet dependency fails before any computation
// or write: both output tables stay empty.
func TestRun_DependencyErrorBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	registry := features.NewRegistry(features.RawClose)
	require.NoError(t, registry.Register(features.MovingAverage("needs_ghost", "ghost", 3)))

	cleanStore := memory.NewCleanBarStore()
	featStore := memory.NewFeatureStore()
	p := New(bars, cleanStore, featStore, registry)

	result, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:  []string{"000001.SZ"},
		Features: []string{"needs_ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)

	var depErr *features.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{"ghost"}, depErr.Missing["needs_ghost"])

	count, err := cleanStore.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "no clean bars may be written on a dependency failure")

	rows, err := featStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type failingBarStore struct{}

func (failingBarStore) InsertBulk(context.Context, []*domain.DailyBar) error { return nil }
func (failingBarStore) GetByCodes(context.Context, []string, string, string) ([]*domain.DailyBar, error) {
	return nil, errors.New("connection refused")
}
func (failingBarStore) ListCodes(context.Context, string) ([]string, error) { return nil, nil }
func (failingBarStore) MaxTradeDate(context.Context) (string, error)        { return "", nil }

var _ storage.BarStore = failingBarStore{}

func TestRun_FetchErrorTerminatesFailed(t *testing.T) {
	cleanStore := memory.NewCleanBarStore()
	featStore := memory.NewFeatureStore()
	p := New(failingBarStore{}, cleanStore, featStore, features.DefaultRegistry())

	result, err := p.Run(context.Background(), domain.ProcessingUnit{
		TSCodes:  []string{"000001.SZ"},
		Features: []string{"ma3"},
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, []string{"000001.SZ"}, fetchErr.Codes)
}

func TestRun_SkippedFeatureStillComputedForDependents(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	cleanStore := memory.NewCleanBarStore()
	featStore := memory.NewFeatureStore()
	p := New(bars, cleanStore, featStore, features.DefaultRegistry()).
		WithSkippedFeatures("ema12", "ema26")

	_, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:  []string{"000001.SZ"},
		Features: []string{"ema12", "ema26", "macd"},
	})
	require.NoError(t, err)

	rows, err := featStore.GetByCode(ctx, "000001.SZ", "", "")
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, "macd", r.Feature, "only the non-skipped output is persisted")
	}
	require.NotEmpty(t, rows)
	assert.NotNil(t, rows[0].Value, "macd still computed from skipped EMAs")
}

func TestRun_MirrorReceivesFeatureRows(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	mirror := memory.NewFeatureMirror()
	cleanStore := memory.NewCleanBarStore()
	featStore := memory.NewFeatureStore()
	p := New(bars, cleanStore, featStore, features.DefaultRegistry()).WithMirror(mirror)

	result, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:  []string{"000001.SZ"},
		Features: []string{"ma3"},
	})
	require.NoError(t, err)
	assert.Equal(t, result.FeatureRows, mirror.Len())
}

// Replaying the identical unit writes nothing new: every row reports
// unchanged.
func TestRun_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewBarStore()
	seedScenarioBars(t, bars)

	p, _, _ := newTestPipeline(bars)
	unit := domain.ProcessingUnit{TSCodes: []string{"000001.SZ"}, Features: []string{"ma3"}}

	first, err := p.Run(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, int64(4), first.Bars.Inserted)
	assert.Equal(t, int64(4), first.Features.Inserted)

	second, err := p.Run(ctx, unit)
	require.NoError(t, err)
	assert.Zero(t, second.Bars.Inserted)
	assert.Zero(t, second.Bars.Updated)
	assert.Equal(t, int64(4), second.Bars.Unchanged)
	assert.Zero(t, second.Features.Inserted)
	assert.Zero(t, second.Features.Updated)
	assert.Equal(t, int64(4), second.Features.Unchanged)
}
