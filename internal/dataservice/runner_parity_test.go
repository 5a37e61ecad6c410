package dataservice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/features"
	"ashare-data-lab/internal/pit"
	"ashare-data-lab/internal/storage/memory"
	"ashare-data-lab/internal/techfeatures"
)

type world struct {
	bars       *memory.BarStore
	statements *memory.StatementStore
	cleanBars  *memory.CleanBarStore
	featStore  *memory.FeatureStore
	pitStore   *memory.PITStore
	runner     *dataservice.Runner
}

func newWorld(t *testing.T, mode dataservice.Mode) *world {
	t.Helper()
	ctx := context.Background()

	w := &world{
		bars:       memory.NewBarStore(),
		statements: memory.NewStatementStore(),
		cleanBars:  memory.NewCleanBarStore(),
		featStore:  memory.NewFeatureStore(),
		pitStore:   memory.NewPITStore(),
	}

	f := func(v float64) *float64 { return &v }
	var rawBars []*domain.DailyBar
	seq := int64(1)
	for _, code := range []string{"000001.SZ", "600519.SH"} {
		for i, date := range []string{"20240102", "20240103", "20240104", "20240105"} {
			rawBars = append(rawBars, &domain.DailyBar{
				TSCode:    code,
				TradeDate: date,
				Close:     f(9.0 + float64(i)*0.1),
				IngestSeq: seq,
			})
			seq++
		}
	}
	require.NoError(t, w.bars.InsertBulk(ctx, rawBars))

	require.NoError(t, w.statements.InsertBulk(ctx, []*domain.StatementRow{
		{TSCode: "000001.SZ", AnnDate: "20240315", EndDate: "20231231", ReportType: "1", Revenue: f(100), IngestSeq: seq},
		{TSCode: "000001.SZ", AnnDate: "20240420", EndDate: "20231231", ReportType: "1", Revenue: f(110), UpdateFlag: 1, IngestSeq: seq + 1},
	}))

	featSvc := techfeatures.New(dataservice.Config{BatchSize: 1}, nil,
		w.bars, w.cleanBars, w.featStore, memory.NewWatermarkStore(), features.DefaultRegistry())
	pitSvc := pit.New(dataservice.Config{}, nil, w.statements, w.pitStore, memory.NewWatermarkStore())

	w.runner = dataservice.NewRunner([]dataservice.Service{featSvc, pitSvc}, mode, 4)
	return w
}

func (w *world) snapshot(t *testing.T) map[string]any {
	t.Helper()
	ctx := context.Background()

	snap := make(map[string]any)
	for _, code := range []string{"000001.SZ", "600519.SH"} {
		bars, err := w.cleanBars.GetByCode(ctx, code, "", "")
		require.NoError(t, err)
		snap["clean:"+code] = bars

		feats, err := w.featStore.GetByCode(ctx, code, "", "")
		require.NoError(t, err)
		snap["feat:"+code] = feats

		stmts, err := w.pitStore.GetByCode(ctx, code)
		require.NoError(t, err)
		snap["pit:"+code] = stmts
	}
	return snap
}

// The sequential and concurrent execution paths must produce identical
// final storage content for the same sequence of operations.
func TestRunner_DualModeParity(t *testing.T) {
	ctx := context.Background()

	run := func(mode dataservice.Mode) (*world, []*domain.RunResult) {
		w := newWorld(t, mode)

		results, err := w.runner.RebuildAll(ctx, dataservice.RebuildOptions{})
		require.NoError(t, err)
		for _, res := range results {
			require.Equal(t, domain.StatusSuccess, res.Status, res.Domain)
		}

		// A follow-up update with no new raw data must be a no-op.
		results, err = w.runner.UpdateAll(ctx, dataservice.UpdateOptions{})
		require.NoError(t, err)
		return w, results
	}

	seqWorld, seqResults := run(dataservice.ModeSequential)
	conWorld, conResults := run(dataservice.ModeConcurrent)

	assert.Equal(t, seqWorld.snapshot(t), conWorld.snapshot(t),
		"both execution modes must leave identical storage content")

	require.Len(t, seqResults, len(conResults))
	for i := range seqResults {
		assert.Equal(t, seqResults[i].Status, conResults[i].Status)
		assert.Equal(t, seqResults[i].RowsInserted, conResults[i].RowsInserted)
		assert.Equal(t, seqResults[i].RowsUpdated, conResults[i].RowsUpdated)
	}
}

func TestRunner_UpdateAfterRebuildIsSkipped(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, dataservice.ModeSequential)

	_, err := w.runner.RebuildAll(ctx, dataservice.RebuildOptions{})
	require.NoError(t, err)

	results, err := w.runner.UpdateAll(ctx, dataservice.UpdateOptions{})
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, domain.StatusSkipped, res.Status, res.Domain)
		assert.Zero(t, res.RowsInserted, res.Domain)
		assert.Zero(t, res.RowsUpdated, res.Domain)
	}
}
